package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/mattjoyce/armsd/internal/bandit"
	"github.com/mattjoyce/armsd/internal/config"
	"github.com/mattjoyce/armsd/internal/events"
	"github.com/mattjoyce/armsd/internal/scheduler"
	"github.com/mattjoyce/armsd/internal/state"
)

const ledgerPurgeInterval = time.Hour

// beliefAuditor seeds priors for the current catalog and applies the orphan
// policy. Retained orphans are logged only when their count changes.
type beliefAuditor struct {
	rt     *runtime
	hub    *events.Hub
	logger *slog.Logger

	lastFingerprint string
	lastOrphans     int
}

func newBeliefAuditor(rt *runtime, hub *events.Hub, logger *slog.Logger) *beliefAuditor {
	return &beliefAuditor{rt: rt, hub: hub, logger: logger, lastOrphans: -1}
}

func (a *beliefAuditor) Run(ctx context.Context) error {
	cat, err := a.rt.catalog.Current()
	if err != nil {
		return err
	}
	created, err := a.rt.engine.EnsurePriors(ctx, cat.Arms)
	if err != nil {
		return err
	}
	if created > 0 || cat.Fingerprint != a.lastFingerprint {
		a.logger.Info("catalog audited", "arms", len(cat.Arms), "new_priors", created, "fingerprint", cat.Fingerprint)
		a.lastFingerprint = cat.Fingerprint
	}

	if a.rt.engine.OrphanPolicy() == bandit.OrphansPrune {
		pruned, err := a.rt.engine.PruneOrphans(ctx, cat.Arms)
		if err != nil {
			return err
		}
		if len(pruned) > 0 && a.hub != nil {
			a.hub.Publish(events.TypeArmsPruned, events.ArmsPruned{Arms: pruned})
		}
		return nil
	}

	orphans, err := a.rt.engine.Orphans(ctx, cat.Arms)
	if err != nil {
		return err
	}
	if len(orphans) != a.lastOrphans {
		if len(orphans) > 0 {
			a.logger.Warn("retaining beliefs for arms not in catalog", "count", len(orphans), "arms", orphans)
		}
		a.lastOrphans = len(orphans)
	}
	return nil
}

// ledgerPurge expires processed-event ids older than ttl.
func ledgerPurge(backend *state.Backend, ttl time.Duration, logger *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		n, err := backend.Purge(ctx, time.Now().Add(-ttl))
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("expired processed events", "count", n)
		}
		return nil
	}
}

func maintenanceTasks(cfg *config.Config, rt *runtime, auditor *beliefAuditor) []scheduler.Task {
	return []scheduler.Task{
		{
			Name:       "ledger-purge",
			Every:      ledgerPurgeInterval,
			Jitter:     ledgerPurgeInterval / 10,
			RunAtStart: true,
			Run:        ledgerPurge(rt.backend, cfg.Service.DedupeTTL, auditor.logger),
		},
		{
			Name:   "catalog-audit",
			Every:  cfg.Service.AuditInterval,
			Jitter: cfg.Service.AuditInterval / 10,
			Run:    auditor.Run,
		},
	}
}
