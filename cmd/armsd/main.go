package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"text/tabwriter"
	"time"
)

// Set with -ldflags "-X main.version=...". Empty values fall back to the
// module's VCS stamp.
var (
	version   = "0.1.0-dev"
	gitCommit = ""
	buildDate = ""
)

// command is a top-level noun or alias.
type command struct {
	name    string
	summary string
	run     func(args []string) int
}

func commands() []command {
	return []command{
		{"system", "Service lifecycle and health (start, status)", runSystemNoun},
		{"arm", "Sample arms, record rewards, prune, watch", runArmNoun},
		{"catalog", "Catalog integrity (check, hash)", runCatalogNoun},
		{"config", "Configuration validation and lookup (check, get)", runConfigNoun},
		{"version", "Show version information", runVersion},
	}
}

// aliases map shortcuts onto noun actions.
var aliases = map[string][]string{
	"start":  {"system", "start"},
	"sample": {"arm", "sample"},
	"doctor": {"config", "check"},
}

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(args []string) int {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return 1
	}
	name, rest := args[0], args[1:]

	if isHelpToken(name) {
		printUsage(os.Stdout)
		return 0
	}
	if name == "--version" {
		name = "version"
	}
	if target, ok := aliases[name]; ok {
		name, rest = target[0], append([]string{target[1]}, rest...)
	}
	for _, c := range commands() {
		if c.name == name {
			return c.run(rest)
		}
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
	printUsage(os.Stderr)
	return 1
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, "armsd - Thompson-sampling arm selection service\n\n")
	fmt.Fprint(w, "Usage:\n  armsd <noun> <action> [flags]\n  armsd <noun> help\n\nCommands:\n")

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	for _, c := range commands() {
		fmt.Fprintf(tw, "  %s \t%s\n", c.name, c.summary)
	}
	_ = tw.Flush()

	fmt.Fprint(w, "\nShortcuts:\n")
	for _, a := range []string{"start", "sample", "doctor"} {
		fmt.Fprintf(tw, "  %s \t= %s\n", a, strings.Join(aliases[a], " "))
	}
	_ = tw.Flush()

	fmt.Fprint(w, `
Every action accepts --config <file|dir>. Without it armsd checks
$ARMSD_CONFIG, ./armsd.yaml, ~/.config/armsd/armsd.yaml and
/etc/armsd/armsd.yaml in that order.
`)
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Go        string `json:"go,omitempty"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: armsd version [--json]")
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		return printJSON(info)
	}
	fmt.Printf("armsd %s (commit %s, built %s, %s)\n", info.Version, info.Commit, info.BuildTime, info.Go)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{Version: "0.0.0-dev", Commit: "unknown", BuildTime: "unknown"}
	if v := strings.TrimSpace(version); v != "" {
		info.Version = v
	}

	commit, built := strings.TrimSpace(gitCommit), strings.TrimSpace(buildDate)
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.Go = bi.GoVersion
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && commit == "":
				commit = s.Value
			case s.Key == "vcs.time" && built == "":
				built = s.Value
			}
		}
	}
	if commit != "" {
		info.Commit = commit[:min(len(commit), 12)]
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
		return 1
	}
	return 0
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

// dispatch runs the action named by args[0]. "help", "-h" or "--help"
// anywhere prints the noun's help instead.
func dispatch(noun string, args []string, actions map[string]func([]string) int, help func(*os.File)) int {
	if len(args) == 0 {
		help(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		help(os.Stdout)
		return 0
	}
	run, ok := actions[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown %s action: %s\n", noun, args[0])
		help(os.Stderr)
		return 1
	}
	for _, a := range args[1:] {
		if a == "--help" || a == "-h" {
			help(os.Stdout)
			return 0
		}
	}
	return run(args[1:])
}
