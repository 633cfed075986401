package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mattjoyce/armsd/internal/api"
	"github.com/mattjoyce/armsd/internal/bandit"
	"github.com/mattjoyce/armsd/internal/config"
	"github.com/mattjoyce/armsd/internal/events"
	"github.com/mattjoyce/armsd/internal/lock"
	"github.com/mattjoyce/armsd/internal/log"
	"github.com/mattjoyce/armsd/internal/metrics"
	"github.com/mattjoyce/armsd/internal/scheduler"
	"github.com/mattjoyce/armsd/internal/state"
	"github.com/mattjoyce/armsd/internal/webhook"
)

func runSystemNoun(args []string) int {
	return dispatch("system", args, map[string]func([]string) int{
		"start":  runStart,
		"status": runSystemStatus,
	}, printSystemNounHelp)
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: armsd system <action> [--config PATH]")
	fmt.Fprintln(w, "Actions: start, status")
	fmt.Fprintln(w, "  status accepts --json")
}

// lockPath places the PID file next to the SQLite database, or next to the
// config file for network stores.
func lockPath(cfg *config.Config) string {
	if cfg.Store.Driver == state.DriverSQLite && cfg.Store.Path != "" {
		return filepath.Join(filepath.Dir(cfg.Store.Path), "armsd.pid")
	}
	if cfg.SourcePath != "" {
		return filepath.Join(filepath.Dir(cfg.SourcePath), "armsd.pid")
	}
	return "armsd.pid"
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(log.Options{Level: cfg.Service.LogLevel, Format: cfg.Service.LogFormat, Service: cfg.Service.Name})
	logger := log.WithComponent("main")
	logger.Info("armsd starting", "version", version, "config", cfg.SourcePath, "store", cfg.Store.Driver)

	pidLock, err := lock.Acquire(lockPath(cfg))
	if err != nil {
		msg := "failed to acquire PID lock"
		if errors.Is(err, lock.ErrHeld) {
			msg = "another armsd is already running against this data directory"
		}
		logger.Error(msg, "path", lockPath(cfg), "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var prom *metrics.Prometheus
	var engineMetrics bandit.Metrics
	if cfg.Metrics.Enabled {
		prom = metrics.New(cfg.Metrics.Namespace)
		engineMetrics = prom
	}
	hub := events.NewHub(256)

	rt, err := openRuntime(ctx, cfg, engineMetrics, hub, log.Get())
	if err != nil {
		logger.Error("failed to initialise", "error", err)
		return 1
	}
	defer rt.Close()

	auditor := newBeliefAuditor(rt, hub, log.WithComponent("audit"))
	if err := auditor.Run(ctx); err != nil {
		logger.Error("failed to prepare beliefs", "error", err)
		return 1
	}

	errCh := make(chan error, 3)

	if cfg.API.Enabled {
		apiConfig := api.Config{
			Listen:      cfg.API.Listen,
			APIKey:      cfg.API.Auth.APIKey,
			Tokens:      apiTokens(cfg),
			StoreDriver: rt.backend.Driver,
		}
		if prom != nil {
			apiConfig.MetricsHandler = prom.Handler()
		}
		apiServer := api.New(apiConfig, rt.engine, rt.recorder, rt.catalog, hub, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	if cfg.Webhooks != nil && len(cfg.Webhooks.Endpoints) > 0 {
		webhookConfig, err := webhook.FromGlobalConfig(cfg.Webhooks, cfg.Feedback.ArmMetadataKey)
		if err != nil {
			logger.Error("failed to configure webhooks", "error", err)
			return 1
		}
		var wm webhook.Metrics
		if prom != nil {
			wm = prom
		}
		webhookServer := webhook.New(webhookConfig, rt.recorder, wm, log.WithComponent("webhook"))
		go func() {
			if err := webhookServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("webhook: %w", err)
			}
		}()
		logger.Info("webhook server enabled", "listen", webhookConfig.Listen, "endpoints", len(webhookConfig.Endpoints))
	}

	sched, err := scheduler.New(log.Get(), maintenanceTasks(cfg, rt, auditor)...)
	if err != nil {
		logger.Error("failed to configure maintenance", "error", err)
		return 1
	}
	sched.Start(ctx)
	defer sched.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("armsd running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("armsd stopped")
	return 0
}

type statusReport struct {
	Config      string `json:"config"`
	Running     bool   `json:"running"`
	PID         int    `json:"pid,omitempty"`
	Since       string `json:"since,omitempty"`
	LockPath    string `json:"lock_path"`
	Store       string `json:"store"`
	StoredArms  int    `json:"stored_arms"`
	Catalog     string `json:"catalog,omitempty"`
	CatalogArms int    `json:"catalog_arms"`
	Orphans     int    `json:"orphans"`
	Error       string `json:"error,omitempty"`
}

func runSystemStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output status as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	report := statusReport{Config: cfg.SourcePath, LockPath: lockPath(cfg), Store: cfg.Store.Driver}
	if st, err := lock.Inspect(report.LockPath); err == nil && st.Held {
		report.Running = true
		report.PID = st.Owner.PID
		if !st.Owner.Since.IsZero() {
			report.Since = st.Owner.Since.Format(time.RFC3339)
		}
	}

	code := 0
	ctx := context.Background()
	rt, err := openRuntime(ctx, cfg, nil, nil, cliLogger(cfg))
	if err != nil {
		report.Error = err.Error()
		code = 1
	} else {
		defer rt.Close()
		if err := fillStatus(ctx, rt, &report); err != nil {
			report.Error = err.Error()
			code = 1
		}
	}

	if *jsonOut {
		if printJSON(report) != 0 {
			return 1
		}
		return code
	}

	service := "stopped"
	if report.Running {
		service = fmt.Sprintf("running (pid %d", report.PID)
		if report.Since != "" {
			service += " since " + report.Since
		}
		service += ")"
	}
	fmt.Printf("config:   %s\n", report.Config)
	fmt.Printf("service:  %s\n", service)
	fmt.Printf("store:    %s (%d stored arm(s))\n", report.Store, report.StoredArms)
	fmt.Printf("catalog:  %d arm(s) %s\n", report.CatalogArms, report.Catalog)
	fmt.Printf("orphans:  %d\n", report.Orphans)
	if report.Error != "" {
		fmt.Fprintf(os.Stderr, "error: %s\n", report.Error)
	}
	return code
}

func fillStatus(ctx context.Context, rt *runtime, report *statusReport) error {
	records, err := rt.engine.Beliefs(ctx)
	if err != nil {
		return err
	}
	report.StoredArms = len(records)

	cat, err := rt.catalog.Current()
	if err != nil {
		return err
	}
	report.Catalog = cat.Fingerprint
	report.CatalogArms = len(cat.Arms)

	orphans, err := rt.engine.Orphans(ctx, cat.Arms)
	if err != nil {
		return err
	}
	report.Orphans = len(orphans)
	return nil
}
