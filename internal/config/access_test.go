package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPath(t *testing.T) {
	cfg := Defaults()
	cfg.API.Auth.APIKey = "super-secret"
	cfg.Webhooks = &WebhooksConfig{
		Listen:    ":8091",
		Endpoints: []WebhookEndpoint{{Path: "/stripe", Kind: "stripe", Secret: "whsec_x"}},
	}

	tests := []struct {
		name    string
		path    string
		want    any
		wantErr bool
	}{
		{name: "root service field", path: "service.name", want: "armsd"},
		{name: "policy field", path: "policy.orphans", want: "retain"},
		{name: "float field", path: "policy.success_threshold", want: 0.5},
		{name: "reward table entry", path: "feedback.rewards.email_open", want: 0.3},
		{name: "api key is redacted", path: "api.auth.api_key", want: redacted},
		{name: "sequence index", path: "webhooks.endpoints.0.kind", want: "stripe"},
		{name: "secret inside sequence", path: "webhooks.endpoints.0.secret", want: redacted},
		{name: "index out of range", path: "webhooks.endpoints.3", wantErr: true},
		{name: "missing key", path: "service.missing", wantErr: true},
		{name: "through a scalar", path: "service.name.first", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cfg.GetPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRedactedLeavesConfigUntouched(t *testing.T) {
	cfg := Defaults()
	cfg.API.Auth.Tokens = []APIToken{{Token: "t1", Scopes: []string{"arms:ro"}}}
	cfg.Store.DSN = "postgres://u:p@localhost/db"
	cfg.Webhooks = &WebhooksConfig{Endpoints: []WebhookEndpoint{{Path: "/h", Secret: "s"}}}

	r := cfg.Redacted()

	assert.Equal(t, redacted, r.API.Auth.Tokens[0].Token)
	assert.Equal(t, []string{"arms:ro"}, r.API.Auth.Tokens[0].Scopes)
	assert.Equal(t, redacted, r.Store.DSN)
	assert.Equal(t, redacted, r.Webhooks.Endpoints[0].Secret)

	assert.Equal(t, "t1", cfg.API.Auth.Tokens[0].Token)
	assert.Equal(t, "s", cfg.Webhooks.Endpoints[0].Secret)
	assert.Equal(t, "postgres://u:p@localhost/db", cfg.Store.DSN)
}
