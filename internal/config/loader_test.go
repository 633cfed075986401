package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "armsd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "empty file gets defaults",
			yaml: "{}\n",
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "armsd", cfg.Service.Name)
				assert.Equal(t, "sqlite", cfg.Store.Driver)
				assert.Equal(t, 0.5, *cfg.Policy.SuccessThreshold)
				assert.Equal(t, 1e-3, cfg.Policy.Epsilon)
				assert.Equal(t, "retain", cfg.Policy.Orphans)
				assert.Equal(t, "per_call", cfg.Catalog.Reload)
				assert.Equal(t, 1.0, cfg.Feedback.Rewards["purchase"])
				assert.Equal(t, 0.6, cfg.Feedback.Rewards["email_click"])
				assert.Equal(t, 0.3, cfg.Feedback.Rewards["email_open"])
				assert.Equal(t, "arm", cfg.Feedback.ArmMetadataKey)
				assert.Equal(t, 30*24*time.Hour, cfg.Service.DedupeTTL)
				assert.Equal(t, 5*time.Minute, cfg.Service.AuditInterval)
				assert.Equal(t, "json", cfg.Service.LogFormat)
				assert.True(t, filepath.IsAbs(cfg.Catalog.Path))
				assert.True(t, filepath.IsAbs(cfg.Store.Path))
			},
		},
		{
			name: "explicit zero threshold survives defaults",
			yaml: "policy:\n  success_threshold: 0\n  orphans: prune\n",
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 0.0, *cfg.Policy.SuccessThreshold)
				assert.Equal(t, "prune", cfg.Policy.Orphans)
			},
		},
		{
			name: "env interpolation",
			yaml: `
api:
  enabled: true
  auth:
    api_key: ${ARMSD_TEST_KEY}
store:
  driver: postgres
  dsn: ${ARMSD_TEST_DSN}
`,
			env: map[string]string{"ARMSD_TEST_KEY": "k-123", "ARMSD_TEST_DSN": "postgres://localhost/armsd"},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "k-123", cfg.API.Auth.APIKey)
				assert.Equal(t, "postgres://localhost/armsd", cfg.Store.DSN)
				assert.Equal(t, "127.0.0.1:8080", cfg.API.Listen)
			},
		},
		{
			name:    "unset env var in api key",
			yaml:    "api:\n  enabled: true\n  auth:\n    api_key: ${ARMSD_TEST_UNSET_KEY}\n",
			wantErr: "unset environment variable",
		},
		{
			name:    "api enabled without credentials",
			yaml:    "api:\n  enabled: true\n",
			wantErr: "api.auth requires api_key or tokens",
		},
		{
			name:    "token without scopes",
			yaml:    "api:\n  enabled: true\n  auth:\n    tokens:\n      - token: abc\n",
			wantErr: "scopes is required",
		},
		{
			name:    "bad driver",
			yaml:    "store:\n  driver: mongo\n",
			wantErr: "store.driver must be one of",
		},
		{
			name:    "postgres needs dsn",
			yaml:    "store:\n  driver: postgres\n",
			wantErr: "store.dsn is required",
		},
		{
			name: "redis defaults",
			yaml: "store:\n  driver: redis\n",
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "localhost:6379", cfg.Store.RedisAddr)
				assert.Equal(t, "{armsd}:", cfg.Store.KeyPrefix)
				assert.Empty(t, cfg.Store.Path)
			},
		},
		{
			name:    "bad orphan policy",
			yaml:    "policy:\n  orphans: archive\n",
			wantErr: "policy.orphans must be retain or prune",
		},
		{
			name:    "epsilon out of range",
			yaml:    "policy:\n  epsilon: 2\n",
			wantErr: "policy.epsilon",
		},
		{
			name:    "bad reload mode",
			yaml:    "catalog:\n  reload: hourly\n",
			wantErr: "catalog.reload",
		},
		{
			name:    "malformed catalog checksum",
			yaml:    "catalog:\n  checksum: md5:abc\n",
			wantErr: "catalog.checksum",
		},
		{
			name:    "bad log level",
			yaml:    "service:\n  log_level: loud\n",
			wantErr: "service.log_level",
		},
		{
			name:    "bad log format",
			yaml:    "service:\n  log_format: xml\n",
			wantErr: "service.log_format",
		},
		{
			name:    "audit interval too short",
			yaml:    "service:\n  audit_interval: 10ms\n",
			wantErr: "service.audit_interval",
		},
		{
			name: "webhook secret_ref resolves from env",
			yaml: `
webhooks:
  listen: 127.0.0.1:8091
  endpoints:
    - path: /webhooks/stripe
      kind: stripe
      secret_ref: ARMSD_TEST_STRIPE_SECRET
`,
			env: map[string]string{"ARMSD_TEST_STRIPE_SECRET": "whsec_abc"},
			checkFn: func(t *testing.T, cfg *Config) {
				require.NotNil(t, cfg.Webhooks)
				assert.Equal(t, "whsec_abc", cfg.Webhooks.Endpoints[0].Secret)
			},
		},
		{
			name:    "webhook secret_ref unset",
			yaml:    "webhooks:\n  listen: :8091\n  endpoints:\n    - path: /h\n      kind: hmac\n      secret_ref: ARMSD_TEST_NOT_SET_ANYWHERE\n",
			wantErr: "secret_ref ARMSD_TEST_NOT_SET_ANYWHERE is not set",
		},
		{
			name:    "webhook bad kind",
			yaml:    "webhooks:\n  listen: :8091\n  endpoints:\n    - path: /h\n      kind: github\n      secret: s\n",
			wantErr: "kind must be stripe or hmac",
		},
		{
			name:    "webhook duplicate path",
			yaml:    "webhooks:\n  listen: :8091\n  endpoints:\n    - {path: /h, kind: hmac, secret: s}\n    - {path: /h, kind: stripe, secret: s}\n",
			wantErr: "is duplicated",
		},
		{
			name:    "webhooks without listen",
			yaml:    "webhooks:\n  endpoints: []\n",
			wantErr: "webhooks.listen is required",
		},
		{
			name:    "invalid yaml",
			yaml:    "service: [\n",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load(writeConfig(t, tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	path := writeConfig(t, "catalog:\n  path: catalogs/arms.yaml\nstore:\n  path: /var/lib/armsd/beliefs.db\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(path), "catalogs", "arms.yaml"), cfg.Catalog.Path)
	assert.Equal(t, "/var/lib/armsd/beliefs.db", cfg.Store.Path)
	assert.Equal(t, path, cfg.SourcePath)
}

func TestLoadDirectoryLooksForArmsdYAML(t *testing.T) {
	path := writeConfig(t, "service:\n  name: from-dir\n")
	cfg, err := Load(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, "from-dir", cfg.Service.Name)

	_, err = Load(t.TempDir())
	assert.ErrorContains(t, err, "armsd.yaml not found")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "config file not found")
}

func TestDiscover(t *testing.T) {
	got, err := Discover("/explicit.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/explicit.yaml", got)

	t.Setenv(EnvConfigPath, "/from/env.yaml")
	got, err = Discover("")
	require.NoError(t, err)
	assert.Equal(t, "/from/env.yaml", got)
}

func TestInterpolateEnvLeavesUnknownVars(t *testing.T) {
	t.Setenv("ARMSD_TEST_KNOWN", "yes")
	assert.Equal(t, "yes ${ARMSD_TEST_UNKNOWN_VAR}", interpolateEnv("${ARMSD_TEST_KNOWN} ${ARMSD_TEST_UNKNOWN_VAR}"))
}
