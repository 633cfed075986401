// Package doctor runs deeper checks than config loading does: it loads the
// catalog, verifies its checksum, opens the belief store and looks for
// orphaned or malformed beliefs.
package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mattjoyce/armsd/internal/bandit"
	"github.com/mattjoyce/armsd/internal/catalog"
	"github.com/mattjoyce/armsd/internal/config"
	"github.com/mattjoyce/armsd/internal/state"
	"github.com/mattjoyce/armsd/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// StoreOpener connects a belief store backend.
type StoreOpener func(ctx context.Context, opts state.Options) (*state.Backend, error)

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg  *config.Config
	open StoreOpener
}

// New creates a Doctor. A nil opener skips the store checks.
func New(cfg *config.Config, open StoreOpener) *Doctor {
	return &Doctor{cfg: cfg, open: open}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	cat := d.validateCatalog(r)
	d.validateStore(ctx, r, cat)
	d.validateAPI(r)
	d.validateWebhooks(r)
	d.validateFeedback(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateCatalog loads the catalog and checks the pinned checksum.
func (d *Doctor) validateCatalog(r *Result) *catalog.Catalog {
	if err := d.cfg.VerifyCatalog(); err != nil {
		d.addError(r, "catalog", "catalog.checksum", err.Error())
	}

	cat, err := catalog.Load(d.cfg.Catalog.Path)
	if err != nil {
		d.addError(r, "catalog", "catalog.path", err.Error())
		return nil
	}
	if len(cat.Arms) == 1 {
		d.addWarning(r, "catalog", "catalog.path",
			fmt.Sprintf("catalog has a single arm %q; every sample will return it", cat.Arms[0].Name))
	}
	return cat
}

// validateStore opens the backend and inspects stored beliefs.
func (d *Doctor) validateStore(ctx context.Context, r *Result, cat *catalog.Catalog) {
	if d.cfg.Store.Driver == state.DriverMemory {
		d.addWarning(r, "store", "store.driver", "memory store loses all beliefs on restart")
	}
	if d.cfg.Store.Driver == "" || d.cfg.Store.Driver == state.DriverSQLite {
		d.validateSQLitePath(r)
	}
	if d.open == nil {
		return
	}

	backend, err := d.open(ctx, state.OptionsFromConfig(d.cfg))
	if err != nil {
		d.addError(r, "store", "store", fmt.Sprintf("cannot open %s store: %v", d.cfg.Store.Driver, err))
		return
	}
	defer backend.Close()

	records, err := backend.Beliefs.List(ctx)
	if err != nil {
		d.addError(r, "store", "store", fmt.Sprintf("cannot list beliefs: %v", err))
		return
	}

	for _, rec := range records {
		if !validParam(rec.Alpha) || !validParam(rec.Beta) {
			d.addWarning(r, "store", rec.Arm,
				fmt.Sprintf("belief alpha=%v beta=%v is not a valid Beta parameter pair; sampling will clamp it", rec.Alpha, rec.Beta))
		}
	}

	if cat == nil {
		return
	}
	known := make(map[string]struct{}, len(cat.Arms))
	for _, a := range cat.Arms {
		known[a.Name] = struct{}{}
	}
	var orphans []string
	for _, rec := range records {
		if _, ok := known[rec.Arm]; !ok {
			orphans = append(orphans, rec.Arm)
		}
	}
	if len(orphans) == 0 {
		return
	}
	msg := fmt.Sprintf("%d stored belief(s) not in catalog: %s", len(orphans), strings.Join(orphans, ", "))
	if d.cfg.Policy.Orphans == string(bandit.OrphansRetain) {
		msg += " (retained; set policy.orphans: prune and run 'armsd arm prune' to drop them)"
	}
	d.addWarning(r, "orphans", "policy.orphans", msg)
}

// validateSQLitePath runs without opening the store so --offline still
// catches databases placed on network mounts.
func (d *Doctor) validateSQLitePath(r *Result) {
	fs, err := storage.ProbeFilesystem(d.cfg.Store.Path)
	if err != nil {
		d.addError(r, "store", "store.path", err.Error())
		return
	}
	if fs.Network {
		d.addError(r, "store", "store.path",
			fmt.Sprintf("%s is on network filesystem %q; SQLite locking is unreliable there", d.cfg.Store.Path, fs.Type))
	}
}

func validParam(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// validateAPI checks API server settings.
func (d *Doctor) validateAPI(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	auth := d.cfg.API.Auth
	if auth.APIKey != "" && len(auth.Tokens) == 0 {
		d.addWarning(r, "api", "api.auth.api_key",
			"api_key grants full access including prune; prefer scoped tokens")
	}
	for i, tok := range auth.Tokens {
		if len(tok.Token) < 16 {
			d.addWarning(r, "api", fmt.Sprintf("api.auth.tokens[%d].token", i),
				"token is shorter than 16 characters")
		}
	}
	if !strings.HasPrefix(d.cfg.API.Listen, "127.0.0.1:") && !strings.HasPrefix(d.cfg.API.Listen, "localhost:") {
		d.addWarning(r, "api", "api.listen",
			fmt.Sprintf("API listens on %s; bearer tokens travel in cleartext unless TLS terminates in front", d.cfg.API.Listen))
	}
}

// validateWebhooks checks endpoint kinds against their headers and secrets.
func (d *Doctor) validateWebhooks(r *Result) {
	if d.cfg.Webhooks == nil {
		return
	}
	for i, ep := range d.cfg.Webhooks.Endpoints {
		field := fmt.Sprintf("webhooks.endpoints[%d]", i)
		switch ep.Kind {
		case "stripe":
			if ep.SignatureHeader != "" && !strings.EqualFold(ep.SignatureHeader, "Stripe-Signature") {
				d.addWarning(r, "webhooks", field+".signature_header",
					fmt.Sprintf("stripe endpoint %q reads %s; Stripe always sends Stripe-Signature", ep.Path, ep.SignatureHeader))
			}
			if ep.Secret != "" && !strings.HasPrefix(ep.Secret, "whsec_") {
				d.addWarning(r, "webhooks", field+".secret",
					fmt.Sprintf("stripe endpoint %q secret does not look like a signing secret (whsec_...)", ep.Path))
			}
		case "hmac":
			if ep.Secret != "" && len(ep.Secret) < 16 {
				d.addWarning(r, "webhooks", field+".secret",
					fmt.Sprintf("hmac endpoint %q secret is shorter than 16 characters", ep.Path))
			}
		}
		if ep.SecretRef != "" && ep.Secret == "" {
			d.addError(r, "env_vars", field+".secret_ref",
				fmt.Sprintf("environment variable %s is not set", ep.SecretRef))
		}
	}
}

// validateFeedback checks the reward table against the success threshold.
func (d *Doctor) validateFeedback(r *Result) {
	threshold := bandit.DefaultSuccessThreshold
	if d.cfg.Policy.SuccessThreshold != nil {
		threshold = *d.cfg.Policy.SuccessThreshold
	}

	anySuccess := false
	for typ, v := range d.cfg.Feedback.Rewards {
		if v < 0 || v > 1 {
			d.addWarning(r, "feedback", "feedback.rewards."+typ,
				fmt.Sprintf("reward %v for %q is outside [0, 1]", v, typ))
		}
		if v >= threshold {
			anySuccess = true
		}
	}
	if len(d.cfg.Feedback.Rewards) > 0 && !anySuccess {
		d.addWarning(r, "feedback", "feedback.rewards",
			fmt.Sprintf("no event type reaches the success threshold %v; only explicit rewards can raise alpha", threshold))
	}

	if d.cfg.Webhooks != nil {
		for _, ep := range d.cfg.Webhooks.Endpoints {
			if ep.Kind != "stripe" {
				continue
			}
			if _, ok := d.cfg.Feedback.Rewards["purchase"]; !ok {
				d.addError(r, "feedback", "feedback.rewards.purchase",
					"stripe webhooks produce purchase events but feedback.rewards has no purchase entry")
			}
			break
		}
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
