// Package catalog loads the arm catalog: the YAML list of options the bandit
// chooses between. Each entry needs a name; every other field is carried as
// opaque metadata and handed back with the chosen arm.
package catalog

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/armsd/internal/bandit"
)

// Reload modes.
const (
	ReloadPerCall = "per_call"
	ReloadOnStart = "on_start"
)

// Catalog is one parsed catalog file.
type Catalog struct {
	Path        string
	Arms        []bandit.Arm
	Fingerprint string
}

type fileFormat struct {
	Arms []map[string]any `yaml:"arms"`
}

// ErrChecksumMismatch means the catalog file no longer matches its pinned digest.
var ErrChecksumMismatch = errors.New("catalog checksum mismatch")

// Load reads and validates the catalog at path.
func Load(path string) (*Catalog, error) {
	return load(path, nil)
}

// load reads path and, when pin is set, refuses bytes whose BLAKE3 digest
// differs before parsing them.
func load(path string, pin *[32]byte) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &bandit.ConfigurationError{Op: "load_catalog", Err: fmt.Errorf("read catalog: %w", err)}
	}
	if pin != nil {
		if got := blake3.Sum256(data); got != *pin {
			return nil, &bandit.ConfigurationError{Op: "load_catalog", Err: fmt.Errorf(
				"%w for %s: pinned blake3:%x, file is blake3:%x", ErrChecksumMismatch, path, pin[:], got[:])}
		}
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	c.Path = path
	return c, nil
}

// Parse decodes catalog YAML. A missing or empty arms list is an error.
func Parse(data []byte) (*Catalog, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	arms := make([]bandit.Arm, 0, len(f.Arms))
	for i, entry := range f.Arms {
		raw, ok := entry["name"]
		if !ok {
			return nil, &bandit.ConfigurationError{Op: "load_catalog", Err: fmt.Errorf("arms[%d]: %w", i, bandit.ErrUnnamedArm)}
		}
		name, ok := raw.(string)
		if !ok {
			return nil, &bandit.ConfigurationError{Op: "load_catalog", Err: fmt.Errorf("arms[%d]: name must be a string, got %T", i, raw)}
		}

		var meta map[string]any
		for k, v := range entry {
			if k == "name" {
				continue
			}
			if meta == nil {
				meta = make(map[string]any, len(entry)-1)
			}
			meta[k] = v
		}
		arms = append(arms, bandit.Arm{Name: strings.TrimSpace(name), Meta: meta})
	}

	if err := bandit.ValidateCatalog(arms); err != nil {
		return nil, err
	}

	fp, err := Fingerprint(arms)
	if err != nil {
		return nil, err
	}
	return &Catalog{Arms: arms, Fingerprint: fp}, nil
}

// Fingerprint hashes the canonical JSON form of arms, so formatting-only
// edits to the file keep the same value.
func Fingerprint(arms []bandit.Arm) (string, error) {
	data, err := json.Marshal(arms)
	if err != nil {
		return "", fmt.Errorf("encode catalog: %w", err)
	}
	sum := blake3.Sum256(data)
	return "blake3:" + hex.EncodeToString(sum[:]), nil
}

// Names returns the arm names in catalog order.
func (c *Catalog) Names() []string {
	return bandit.Names(c.Arms)
}

// Subset returns the catalog arms named in names, in catalog order.
// An empty names list returns the full catalog.
func (c *Catalog) Subset(names []string) ([]bandit.Arm, error) {
	if len(names) == 0 {
		return c.Arms, nil
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}

	out := make([]bandit.Arm, 0, len(names))
	for _, a := range c.Arms {
		if _, ok := want[a.Name]; ok {
			out = append(out, a)
			delete(want, a.Name)
		}
	}
	for _, n := range names {
		if _, missing := want[n]; missing {
			return nil, &bandit.ConfigurationError{Op: "subset", Arm: n, Err: bandit.ErrUnknownArm}
		}
	}
	return out, nil
}

// Source hands out the current catalog, re-reading the file on every call
// in per_call mode or once in on_start mode.
type Source struct {
	path   string
	reload string
	pin    *[32]byte

	mu     sync.Mutex
	cached *Catalog
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithChecksum pins the catalog file to a BLAKE3 digest. Every read is
// checked against it.
func WithChecksum(sum [32]byte) SourceOption {
	return func(s *Source) { s.pin = &sum }
}

// NewSource builds a Source. An empty reload mode means per_call.
func NewSource(path, reload string, opts ...SourceOption) (*Source, error) {
	switch reload {
	case "":
		reload = ReloadPerCall
	case ReloadPerCall, ReloadOnStart:
	default:
		return nil, fmt.Errorf("unknown catalog reload mode %q", reload)
	}
	s := &Source{path: path, reload: reload}
	for _, opt := range opts {
		opt(s)
	}
	if reload == ReloadOnStart {
		c, err := load(path, s.pin)
		if err != nil {
			return nil, err
		}
		s.cached = c
	}
	return s, nil
}

// Static wraps an already-loaded catalog.
func Static(c *Catalog) *Source {
	return &Source{path: c.Path, reload: ReloadOnStart, cached: c}
}

// Path returns the catalog file path.
func (s *Source) Path() string { return s.path }

// Current returns the catalog to use for this call.
func (s *Source) Current() (*Catalog, error) {
	if s.reload == ReloadOnStart {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.cached, nil
	}
	return load(s.path, s.pin)
}
