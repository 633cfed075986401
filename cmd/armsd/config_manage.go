package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/armsd/internal/catalog"
	"github.com/mattjoyce/armsd/internal/config"
	"github.com/mattjoyce/armsd/internal/doctor"
	"github.com/mattjoyce/armsd/internal/state"
)

func runCatalogNoun(args []string) int {
	return dispatch("catalog", args, map[string]func([]string) int{
		"check": runCatalogCheck,
		"hash":  runCatalogHash,
	}, printCatalogNounHelp)
}

func printCatalogNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: armsd catalog <action> [--config PATH]")
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  check [--json]   load the catalog, verify catalog.checksum, print arms and fingerprint")
	fmt.Fprintln(w, "  hash [FILE]      print the BLAKE3 hash to pin as catalog.checksum")
}

type catalogReport struct {
	Path        string   `json:"path"`
	Arms        []string `json:"arms"`
	Fingerprint string   `json:"fingerprint"`
	Checksum    string   `json:"checksum"`
}

func runCatalogCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	report := catalogReport{Path: cfg.Catalog.Path, Checksum: "not pinned"}
	if cfg.Catalog.Checksum != "" {
		if err := cfg.VerifyCatalog(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		report.Checksum = "ok"
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	report.Arms = cat.Names()
	report.Fingerprint = cat.Fingerprint

	if *jsonOut {
		return printJSON(report)
	}
	fmt.Printf("catalog:     %s\n", report.Path)
	fmt.Printf("arms:        %d\n", len(report.Arms))
	for _, name := range report.Arms {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Printf("fingerprint: %s\n", report.Fingerprint)
	fmt.Printf("checksum:    %s\n", report.Checksum)
	return 0
}

// runCatalogHash hashes FILE, or the configured catalog when no file is given.
func runCatalogHash(args []string) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	var target string
	switch len(positional) {
	case 0:
		cfg, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
		target = cfg.Catalog.Path
	case 1:
		target = positional[0]
	default:
		fmt.Fprintln(os.Stderr, "Usage: armsd catalog hash [FILE] [--config PATH]")
		return 1
	}

	sum, err := config.SumFile(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println(sum)
	return 0
}

func runConfigNoun(args []string) int {
	return dispatch("config", args, map[string]func([]string) int{
		"check":  runConfigCheck,
		"doctor": runConfigCheck,
		"get":    runConfigGet,
	}, printConfigNounHelp)
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: armsd config <action> [--config PATH]")
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  check [--json] [--strict] [--offline]   validate config, catalog and store")
	fmt.Fprintln(w, "  get <path> [--json]                     print one value, e.g. policy.orphans")
}

func runConfigCheck(args []string) int {
	var configPath string
	var strict, jsonOut, offline bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	fs.BoolVar(&offline, "offline", false, "Skip opening the belief store")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	var open doctor.StoreOpener = state.Open
	if offline {
		open = nil
	}
	result := doctor.New(cfg, open).Validate(context.Background())

	if jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: armsd config get <path> [--json]")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	val, err := cfg.GetPath(positional[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}
	switch val.(type) {
	case map[string]any, []any:
	default:
		fmt.Printf("%v\n", val)
		return 0
	}
	data, err := yaml.Marshal(val)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render YAML: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}
