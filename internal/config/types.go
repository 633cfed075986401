package config

import "time"

// Config represents the complete armsd configuration.
type Config struct {
	Service  ServiceConfig   `yaml:"service"`
	Catalog  CatalogConfig   `yaml:"catalog"`
	Store    StoreConfig     `yaml:"store"`
	Policy   PolicyConfig    `yaml:"policy"`
	API      APIConfig       `yaml:"api,omitempty"`
	Webhooks *WebhooksConfig `yaml:"webhooks,omitempty"`
	Feedback FeedbackConfig  `yaml:"feedback"`
	Metrics  MetricsConfig   `yaml:"metrics"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`

	// LogFormat is json (default) or text.
	LogFormat string `yaml:"log_format"`

	// DedupeTTL is how long processed webhook event ids are remembered.
	DedupeTTL time.Duration `yaml:"dedupe_ttl"`

	// AuditInterval is how often a running service re-reads the catalog to
	// seed priors for new arms and apply the orphan policy.
	AuditInterval time.Duration `yaml:"audit_interval"`
}

// CatalogConfig locates the arm catalog.
type CatalogConfig struct {
	Path string `yaml:"path"`

	// Reload is per_call (re-read on every sample) or on_start.
	Reload string `yaml:"reload"`

	// Checksum optionally pins the catalog file to a BLAKE3 hex digest.
	Checksum string `yaml:"checksum,omitempty"`
}

// StoreConfig selects the belief store backend.
type StoreConfig struct {
	Driver    string `yaml:"driver"`
	Path      string `yaml:"path,omitempty"`
	DSN       string `yaml:"dsn,omitempty"`
	RedisAddr string `yaml:"redis_addr,omitempty"`
	RedisDB   int    `yaml:"redis_db,omitempty"`
	KeyPrefix string `yaml:"key_prefix,omitempty"`
}

// PolicyConfig tunes the sampling engine.
type PolicyConfig struct {
	// SuccessThreshold is a pointer so an explicit 0 survives defaulting.
	SuccessThreshold *float64 `yaml:"success_threshold"`
	Epsilon          float64  `yaml:"epsilon"`
	Orphans          string   `yaml:"orphans"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token with full access.
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// WebhooksConfig defines webhook listener settings.
type WebhooksConfig struct {
	Listen    string            `yaml:"listen"`
	Endpoints []WebhookEndpoint `yaml:"endpoints"`
}

// WebhookEndpoint defines a single webhook endpoint.
type WebhookEndpoint struct {
	Path string `yaml:"path"`

	// Kind is stripe or hmac.
	Kind string `yaml:"kind"`

	Secret string `yaml:"secret,omitempty"`

	// SecretRef names an environment variable holding the secret.
	SecretRef string `yaml:"secret_ref,omitempty"`

	SignatureHeader string `yaml:"signature_header,omitempty"`
	MaxBodySize     string `yaml:"max_body_size,omitempty"`
}

// FeedbackConfig maps reward-bearing event types to reward values.
type FeedbackConfig struct {
	Rewards        map[string]float64 `yaml:"rewards"`
	ArmMetadataKey string             `yaml:"arm_metadata_key"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Defaults returns a Config with every optional field filled in.
func Defaults() *Config {
	threshold := 0.5
	return &Config{
		Service: ServiceConfig{
			Name:          "armsd",
			LogLevel:      "info",
			LogFormat:     "json",
			DedupeTTL:     30 * 24 * time.Hour,
			AuditInterval: 5 * time.Minute,
		},
		Catalog: CatalogConfig{
			Path:   "./arms.yaml",
			Reload: "per_call",
		},
		Store: StoreConfig{
			Driver:    "sqlite",
			Path:      "./data/beliefs.db",
			RedisAddr: "localhost:6379",
			KeyPrefix: "{armsd}:",
		},
		Policy: PolicyConfig{
			SuccessThreshold: &threshold,
			Epsilon:          1e-3,
			Orphans:          "retain",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
		Feedback: FeedbackConfig{
			Rewards: map[string]float64{
				"purchase":    1.0,
				"email_click": 0.6,
				"email_open":  0.3,
			},
			ArmMetadataKey: "arm",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "armsd",
		},
	}
}
