package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattjoyce/armsd/internal/auth"
	"github.com/mattjoyce/armsd/internal/bandit"
	"github.com/mattjoyce/armsd/internal/catalog"
	"github.com/mattjoyce/armsd/internal/config"
	"github.com/mattjoyce/armsd/internal/events"
	"github.com/mattjoyce/armsd/internal/feedback"
	"github.com/mattjoyce/armsd/internal/log"
	"github.com/mattjoyce/armsd/internal/state"
)

// runtime is everything an action needs to touch beliefs.
type runtime struct {
	cfg      *config.Config
	backend  *state.Backend
	engine   *bandit.Engine
	catalog  *catalog.Source
	recorder *feedback.Recorder
}

func (r *runtime) Close() error {
	return r.backend.Close()
}

// loadConfig resolves the config location and loads it.
func loadConfig(flagPath string) (*config.Config, error) {
	path, err := config.Discover(flagPath)
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

// openRuntime opens the store and builds the engine and recorder from cfg.
// m and hub may be nil.
func openRuntime(ctx context.Context, cfg *config.Config, m bandit.Metrics, hub *events.Hub, logger *slog.Logger) (*runtime, error) {
	if err := cfg.VerifyCatalog(); err != nil {
		return nil, err
	}
	source, err := catalogSource(cfg)
	if err != nil {
		return nil, err
	}

	backend, err := state.Open(ctx, state.OptionsFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}

	engine, err := bandit.New(backend.Beliefs, bandit.Options{
		SuccessThreshold: cfg.Policy.SuccessThreshold,
		Epsilon:          cfg.Policy.Epsilon,
		Orphans:          bandit.OrphanPolicy(cfg.Policy.Orphans),
		Metrics:          m,
		Logger:           logger.With("component", "bandit"),
	})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	opts := []feedback.Option{
		feedback.WithLedger(backend.Ledger),
		feedback.WithLogger(logger.With("component", "feedback")),
	}
	if hub != nil {
		opts = append(opts, feedback.WithPublisher(hub))
	}

	return &runtime{
		cfg:      cfg,
		backend:  backend,
		engine:   engine,
		catalog:  source,
		recorder: feedback.NewRecorder(engine, cfg.Feedback.Rewards, opts...),
	}, nil
}

// catalogSource builds the catalog source, pinned to catalog.checksum when
// one is configured so every reload is verified.
func catalogSource(cfg *config.Config) (*catalog.Source, error) {
	var opts []catalog.SourceOption
	if cfg.Catalog.Checksum != "" {
		sum, err := config.ParseChecksum(cfg.Catalog.Checksum)
		if err != nil {
			return nil, fmt.Errorf("catalog.checksum: %w", err)
		}
		opts = append(opts, catalog.WithChecksum(sum))
	}
	return catalog.NewSource(cfg.Catalog.Path, cfg.Catalog.Reload, opts...)
}

// apiTokens converts configured scoped tokens for the auth package.
func apiTokens(cfg *config.Config) []auth.TokenConfig {
	out := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, t := range cfg.API.Auth.Tokens {
		out = append(out, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	return out
}

// cliLogger writes to stderr so action output on stdout stays parseable.
// Only warnings surface unless the config asks for debug.
func cliLogger(cfg *config.Config) *slog.Logger {
	level := "warn"
	if log.ParseLevel(cfg.Service.LogLevel) == slog.LevelDebug {
		level = "debug"
	}
	return log.New(log.Options{Level: level, Format: cfg.Service.LogFormat, Writer: os.Stderr})
}

// parseInterspersed parses flags that may appear before, between or after
// positional arguments and returns the positionals. Everything after "--"
// is positional, so negative rewards can be passed as "-- arm -1".
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var tail []string
	for i, a := range args {
		if a == "--" {
			tail = args[i+1:]
			args = args[:i]
			break
		}
	}

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return append(positional, tail...), nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}
