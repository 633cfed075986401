package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable consulted by Discover.
const EnvConfigPath = "ARMSD_CONFIG"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, interpolates, defaults and validates the config at configPath.
// Relative catalog and store paths are resolved against the config's directory.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "armsd.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but armsd.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath
	resolvePaths(cfg, filepath.Dir(absPath))
	return cfg, nil
}

// Parse decodes config YAML, applying ${VAR} interpolation, defaults and validation.
func Parse(data []byte) (*Config, error) {
	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyConfigDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Discover finds the config file to use.
// Priority order: flagPath, $ARMSD_CONFIG, ./armsd.yaml, ~/.config/armsd/armsd.yaml, /etc/armsd/armsd.yaml.
func Discover(flagPath string) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}

	candidates := []string{"./armsd.yaml"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "armsd", "armsd.yaml"))
	}
	candidates = append(candidates, "/etc/armsd/armsd.yaml")

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("no config found (checked: --config, $%s, %s)", EnvConfigPath, strings.Join(candidates, ", "))
}

func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.DedupeTTL == 0 {
		cfg.Service.DedupeTTL = defaults.Service.DedupeTTL
	}
	if cfg.Service.AuditInterval == 0 {
		cfg.Service.AuditInterval = defaults.Service.AuditInterval
	}

	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = defaults.Catalog.Path
	}
	if cfg.Catalog.Reload == "" {
		cfg.Catalog.Reload = defaults.Catalog.Reload
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = defaults.Store.Driver
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.Path == "" {
		cfg.Store.Path = defaults.Store.Path
	}
	if cfg.Store.Driver == "redis" {
		if cfg.Store.RedisAddr == "" {
			cfg.Store.RedisAddr = defaults.Store.RedisAddr
		}
		if cfg.Store.KeyPrefix == "" {
			cfg.Store.KeyPrefix = defaults.Store.KeyPrefix
		}
	}

	if cfg.Policy.SuccessThreshold == nil {
		cfg.Policy.SuccessThreshold = defaults.Policy.SuccessThreshold
	}
	if cfg.Policy.Epsilon == 0 {
		cfg.Policy.Epsilon = defaults.Policy.Epsilon
	}
	if cfg.Policy.Orphans == "" {
		cfg.Policy.Orphans = defaults.Policy.Orphans
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if cfg.Feedback.Rewards == nil {
		cfg.Feedback.Rewards = defaults.Feedback.Rewards
	}
	if cfg.Feedback.ArmMetadataKey == "" {
		cfg.Feedback.ArmMetadataKey = defaults.Feedback.ArmMetadataKey
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = defaults.Metrics.Namespace
	}

	if cfg.Webhooks != nil {
		for i := range cfg.Webhooks.Endpoints {
			ep := &cfg.Webhooks.Endpoints[i]
			if ep.SecretRef != "" && ep.Secret == "" {
				ep.Secret = os.Getenv(ep.SecretRef)
			}
		}
	}
}

func resolvePaths(cfg *Config, baseDir string) {
	if cfg.Catalog.Path != "" && !filepath.IsAbs(cfg.Catalog.Path) {
		cfg.Catalog.Path = filepath.Join(baseDir, cfg.Catalog.Path)
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.Path != "" && !filepath.IsAbs(cfg.Store.Path) {
		cfg.Store.Path = filepath.Join(baseDir, cfg.Store.Path)
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	switch strings.ToLower(cfg.Service.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}
	if cfg.Service.DedupeTTL < 0 {
		return fmt.Errorf("service.dedupe_ttl must not be negative")
	}
	if cfg.Service.AuditInterval < time.Second {
		return fmt.Errorf("service.audit_interval must be at least 1s (got %s)", cfg.Service.AuditInterval)
	}

	switch cfg.Catalog.Reload {
	case "per_call", "on_start":
	default:
		return fmt.Errorf("catalog.reload must be per_call or on_start (got %q)", cfg.Catalog.Reload)
	}
	if cfg.Catalog.Checksum != "" {
		if _, err := ParseChecksum(cfg.Catalog.Checksum); err != nil {
			return fmt.Errorf("catalog.checksum: %w", err)
		}
	}

	switch cfg.Store.Driver {
	case "sqlite":
		if cfg.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case "memory":
	case "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
		if hasUnresolvedEnv(cfg.Store.DSN) {
			return fmt.Errorf("store.dsn references an unset environment variable")
		}
	case "redis":
		if cfg.Store.RedisDB < 0 {
			return fmt.Errorf("store.redis_db must not be negative")
		}
	default:
		return fmt.Errorf("store.driver must be one of: sqlite, memory, postgres, redis (got %q)", cfg.Store.Driver)
	}

	if t := *cfg.Policy.SuccessThreshold; math.IsNaN(t) || math.IsInf(t, 0) {
		return fmt.Errorf("policy.success_threshold must be a finite number")
	}
	if !(cfg.Policy.Epsilon > 0) || cfg.Policy.Epsilon >= 1 {
		return fmt.Errorf("policy.epsilon must be in (0, 1) (got %v)", cfg.Policy.Epsilon)
	}
	switch cfg.Policy.Orphans {
	case "retain", "prune":
	default:
		return fmt.Errorf("policy.orphans must be retain or prune (got %q)", cfg.Policy.Orphans)
	}

	if cfg.API.Enabled {
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth requires api_key or tokens when api.enabled is true")
		}
		if hasUnresolvedEnv(cfg.API.Auth.APIKey) {
			return fmt.Errorf("api.auth.api_key references an unset environment variable")
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if strings.TrimSpace(tok.Token) == "" {
				return fmt.Errorf("api.auth.tokens[%d].token is required", i)
			}
			if hasUnresolvedEnv(tok.Token) {
				return fmt.Errorf("api.auth.tokens[%d].token references an unset environment variable", i)
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes is required", i)
			}
		}
	}

	if cfg.Webhooks != nil {
		if err := validateWebhooks(cfg.Webhooks); err != nil {
			return err
		}
	}

	for typ, reward := range cfg.Feedback.Rewards {
		if math.IsNaN(reward) || math.IsInf(reward, 0) {
			return fmt.Errorf("feedback.rewards.%s must be a finite number", typ)
		}
	}

	return nil
}

func validateWebhooks(w *WebhooksConfig) error {
	if w.Listen == "" {
		return fmt.Errorf("webhooks.listen is required")
	}
	seen := make(map[string]bool, len(w.Endpoints))
	for i, ep := range w.Endpoints {
		if ep.Path == "" || !strings.HasPrefix(ep.Path, "/") {
			return fmt.Errorf("webhooks.endpoints[%d].path must start with /", i)
		}
		if seen[ep.Path] {
			return fmt.Errorf("webhooks.endpoints[%d].path %q is duplicated", i, ep.Path)
		}
		seen[ep.Path] = true

		switch ep.Kind {
		case "stripe", "hmac":
		default:
			return fmt.Errorf("webhooks.endpoints[%d].kind must be stripe or hmac (got %q)", i, ep.Kind)
		}
		if ep.Secret == "" {
			if ep.SecretRef != "" {
				return fmt.Errorf("webhooks.endpoints[%d].secret_ref %s is not set", i, ep.SecretRef)
			}
			return fmt.Errorf("webhooks.endpoints[%d].secret is required", i)
		}
		if hasUnresolvedEnv(ep.Secret) {
			return fmt.Errorf("webhooks.endpoints[%d].secret references an unset environment variable", i)
		}
	}
	return nil
}

func hasUnresolvedEnv(s string) bool {
	return envVarPattern.MatchString(s)
}
