package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/mattjoyce/armsd/internal/bandit"
	"github.com/mattjoyce/armsd/internal/feedback"
)

func runArmNoun(args []string) int {
	return dispatch("arm", args, map[string]func([]string) int{
		"list":   runArmList,
		"sample": runArmSample,
		"reward": runArmReward,
		"prune":  runArmPrune,
		"watch":  runArmWatch,
	}, printArmNounHelp)
}

func printArmNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: armsd arm <action> [--config PATH] [--json]")
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  list                          catalog arms with alpha, beta and mean")
	fmt.Fprintln(w, "  sample [--arms a,b]           Thompson-sample one arm")
	fmt.Fprintln(w, "  reward <arm> <value>          record a reward (use -- before negative values)")
	fmt.Fprintln(w, "  reward <arm> --type <event>   record a reward from the feedback table")
	fmt.Fprintln(w, "    [--event-id ID]             apply at most once per id")
	fmt.Fprintln(w, "  prune [--dry-run]             delete beliefs not in the catalog (policy.orphans: prune)")
	fmt.Fprintln(w, "  watch [--url URL] [--token T] live dashboard of a running service")
}

// withRuntime loads config, opens the runtime and runs fn.
func withRuntime(configPath string, fn func(ctx context.Context, rt *runtime) int) int {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	ctx := context.Background()
	rt, err := openRuntime(ctx, cfg, nil, nil, cliLogger(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer rt.Close()
	return fn(ctx, rt)
}

type armRow struct {
	Name        string  `json:"name"`
	Alpha       float64 `json:"alpha"`
	Beta        float64 `json:"beta"`
	Mean        float64 `json:"mean"`
	Initialized bool    `json:"initialized"`
	Orphan      bool    `json:"orphan,omitempty"`
}

func runArmList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	return withRuntime(*configPath, func(ctx context.Context, rt *runtime) int {
		cat, err := rt.catalog.Current()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		records, err := rt.engine.Beliefs(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}

		byArm := make(map[string]bandit.Record, len(records))
		for _, r := range records {
			byArm[r.Arm] = r
		}
		rows := make([]armRow, 0, len(records)+len(cat.Arms))
		for _, a := range cat.Arms {
			row := armRow{Name: a.Name, Alpha: bandit.PriorAlpha, Beta: bandit.PriorBeta}
			if r, ok := byArm[a.Name]; ok {
				row.Alpha, row.Beta, row.Initialized = r.Alpha, r.Beta, true
				delete(byArm, a.Name)
			}
			row.Mean = bandit.Record{Alpha: row.Alpha, Beta: row.Beta}.Mean()
			rows = append(rows, row)
		}
		for _, r := range records {
			if _, orphan := byArm[r.Arm]; orphan {
				rows = append(rows, armRow{Name: r.Arm, Alpha: r.Alpha, Beta: r.Beta, Mean: r.Mean(), Initialized: true, Orphan: true})
			}
		}

		if *jsonOut {
			return printJSON(rows)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ARM\tALPHA\tBETA\tMEAN\tNOTE")
		for _, r := range rows {
			note := ""
			switch {
			case r.Orphan:
				note = "orphan"
			case !r.Initialized:
				note = "prior"
			}
			fmt.Fprintf(tw, "%s\t%g\t%g\t%.3f\t%s\n", r.Name, r.Alpha, r.Beta, r.Mean, note)
		}
		_ = tw.Flush()
		return 0
	})
}

func runArmSample(args []string) int {
	fs := flag.NewFlagSet("sample", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	armsFlag := fs.String("arms", "", "Comma-separated subset of catalog arms")
	jsonOut := fs.Bool("json", false, "Output the full decision as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	return withRuntime(*configPath, func(ctx context.Context, rt *runtime) int {
		cat, err := rt.catalog.Current()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		arms := cat.Arms
		if names := splitList(*armsFlag); len(names) > 0 {
			if arms, err = cat.Subset(names); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return 1
			}
		}

		decision, err := rt.engine.Select(ctx, arms, cat.Fingerprint)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		if *jsonOut {
			return printJSON(decision)
		}
		fmt.Println(decision.Arm.Name)
		return 0
	})
}

func runArmReward(args []string) int {
	fs := flag.NewFlagSet("reward", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	eventType := fs.String("type", "", "Event type from feedback.rewards")
	eventID := fs.String("event-id", "", "Deduplication id")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	usage := "Usage: armsd arm reward <arm> (<value> | --type <event>) [--event-id ID]"
	ev := feedback.Event{Type: *eventType, ID: *eventID, Source: "cli"}
	switch {
	case len(positional) == 2 && *eventType == "":
		v, err := strconv.ParseFloat(positional[1], 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid reward %q: %v\n", positional[1], err)
			return 1
		}
		ev.Reward = &v
	case len(positional) == 1 && *eventType != "":
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 1
	}
	ev.Arm = positional[0]

	return withRuntime(*configPath, func(ctx context.Context, rt *runtime) int {
		out, err := rt.recorder.Record(ctx, ev)
		if errors.Is(err, feedback.ErrDuplicateEvent) {
			fmt.Printf("event %s already applied; beliefs unchanged\n", ev.ID)
			return 0
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		if *jsonOut {
			return printJSON(out)
		}
		outcome := "failure"
		if out.Success {
			outcome = "success"
		}
		fmt.Printf("%s: reward %g (%s) -> alpha=%g beta=%g\n", out.Arm, out.Reward, outcome, out.Belief.Alpha, out.Belief.Beta)
		return 0
	})
}

func runArmPrune(args []string) int {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	dryRun := fs.Bool("dry-run", false, "List orphans without deleting them")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	return withRuntime(*configPath, func(ctx context.Context, rt *runtime) int {
		cat, err := rt.catalog.Current()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}

		if *dryRun {
			orphans, err := rt.engine.Orphans(ctx, cat.Arms)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return 1
			}
			for _, name := range orphans {
				fmt.Println(name)
			}
			fmt.Printf("%d orphan(s) would be pruned\n", len(orphans))
			return 0
		}

		pruned, err := rt.engine.PruneOrphans(ctx, cat.Arms)
		if errors.Is(err, bandit.ErrPruningDisabled) {
			fmt.Fprintln(os.Stderr, "Pruning is disabled: set policy.orphans: prune to delete orphaned beliefs")
			return 1
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		for _, name := range pruned {
			fmt.Println(name)
		}
		fmt.Printf("%d orphan(s) pruned\n", len(pruned))
		return 0
	})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
