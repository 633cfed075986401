package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const redacted = "[redacted]"

// GetPath looks up a dotted path such as "policy.orphans" or
// "api.auth.tokens.0.scopes" in the redacted config. Numeric segments index
// sequences.
func (c *Config) GetPath(path string) (any, error) {
	var doc yaml.Node
	if err := doc.Encode(c.Redacted()); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	node := &doc
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			continue
		}
		next, err := child(node, seg)
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", path, err)
		}
		node = next
	}

	var out any
	if err := node.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %q: %w", path, err)
	}
	return out, nil
}

func child(n *yaml.Node, seg string) (*yaml.Node, error) {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == seg {
				return n.Content[i+1], nil
			}
		}
		return nil, fmt.Errorf("key %q not found", seg)
	case yaml.SequenceNode:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(n.Content) {
			return nil, fmt.Errorf("index %q out of range (%d items)", seg, len(n.Content))
		}
		return n.Content[idx], nil
	default:
		return nil, fmt.Errorf("%q is below a scalar", seg)
	}
}

// Redacted returns a copy with bearer tokens, webhook secrets and DSNs masked.
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&out.API.Auth.APIKey)
	mask(&out.Store.DSN)

	if len(c.API.Auth.Tokens) > 0 {
		out.API.Auth.Tokens = append([]APIToken(nil), c.API.Auth.Tokens...)
		for i := range out.API.Auth.Tokens {
			out.API.Auth.Tokens[i].Token = redacted
		}
	}
	if c.Webhooks != nil {
		wh := *c.Webhooks
		wh.Endpoints = append([]WebhookEndpoint(nil), c.Webhooks.Endpoints...)
		for i := range wh.Endpoints {
			mask(&wh.Endpoints[i].Secret)
		}
		out.Webhooks = &wh
	}
	return &out
}
