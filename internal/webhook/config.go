package webhook

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mattjoyce/armsd/internal/config"
)

// FromGlobalConfig converts the webhooks section of the service config.
// secret_ref values were already resolved by the config loader, so every
// endpoint must arrive with a Secret.
func FromGlobalConfig(wc *config.WebhooksConfig, armMetadataKey string) (Config, error) {
	if wc == nil {
		return Config{}, fmt.Errorf("webhooks config is nil")
	}

	out := Config{Listen: wc.Listen, ArmMetadataKey: armMetadataKey}
	for _, ep := range wc.Endpoints {
		if ep.Secret == "" {
			return Config{}, fmt.Errorf("webhook endpoint %q: no secret or secret_ref configured", ep.Path)
		}
		limit, err := parseMaxBodySize(ep.MaxBodySize)
		if err != nil {
			return Config{}, fmt.Errorf("webhook endpoint %q: max_body_size: %w", ep.Path, err)
		}
		out.Endpoints = append(out.Endpoints, EndpointConfig{
			Path:            ep.Path,
			Kind:            ep.Kind,
			Secret:          ep.Secret,
			SignatureHeader: ep.SignatureHeader,
			MaxBodySize:     limit,
		})
	}
	return out, nil
}

// parseMaxBodySize reads sizes such as "64KiB", "1MB" or "2048". SI units
// are powers of 1000 and IEC units powers of 1024. Empty means
// DefaultMaxBodySize.
func parseMaxBodySize(size string) (int64, error) {
	size = strings.TrimSpace(size)
	if size == "" {
		return DefaultMaxBodySize, nil
	}
	n, err := humanize.ParseBytes(size)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", size, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	if n > math.MaxInt64/2 {
		return 0, fmt.Errorf("size %q too large", size)
	}
	return int64(n), nil
}
