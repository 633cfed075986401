// Package auth maps bearer tokens to principals and their scopes.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// Scopes understood by the API. Holding a broader arms scope grants the
// narrower ones: admin > rw > ro.
const (
	ScopeAll       = "*"
	ScopeArmsRead  = "arms:ro"
	ScopeArmsWrite = "arms:rw"
	ScopeArmsAdmin = "arms:admin"
	ScopeEventsRO  = "events:ro"
)

var implied = map[string][]string{
	ScopeArmsAdmin: {ScopeArmsWrite, ScopeArmsRead},
	ScopeArmsWrite: {ScopeArmsRead},
}

var (
	ErrNoCredentials = errors.New("missing Authorization header")
	ErrMalformed     = errors.New("invalid Authorization header format")
	ErrEmptyToken    = errors.New("missing API key")
)

// TokenConfig is a bearer token with a set of scopes.
type TokenConfig struct {
	Token  string
	Scopes []string
}

// Principal is an authenticated caller.
type Principal struct {
	// Admin is set for the api_key, which holds every scope.
	Admin  bool
	Scopes map[string]struct{}
}

// Can reports whether p holds at least one of scopes. No scopes means no
// requirement.
func (p Principal) Can(scopes ...string) bool {
	if len(scopes) == 0 || p.Admin {
		return true
	}
	if _, ok := p.Scopes[ScopeAll]; ok {
		return true
	}
	for _, s := range scopes {
		if _, ok := p.Scopes[s]; ok {
			return true
		}
	}
	return false
}

// CanAll reports whether p holds every one of scopes.
func (p Principal) CanAll(scopes ...string) bool {
	for _, s := range scopes {
		if !p.Can(s) {
			return false
		}
	}
	return true
}

// Keyring resolves presented tokens. Build one per configuration.
type Keyring struct {
	apiKey string
	tokens []keyEntry
}

type keyEntry struct {
	token     string
	principal Principal
}

// NewKeyring expands scopes once up front. Blank tokens are skipped so an
// empty header can never match.
func NewKeyring(apiKey string, tokens []TokenConfig) *Keyring {
	k := &Keyring{apiKey: apiKey}
	for _, t := range tokens {
		if t.Token == "" {
			continue
		}
		k.tokens = append(k.tokens, keyEntry{token: t.Token, principal: Principal{Scopes: expand(t.Scopes)}})
	}
	return k
}

// Lookup returns the principal for presented.
func (k *Keyring) Lookup(presented string) (Principal, bool) {
	if presented == "" {
		return Principal{}, false
	}
	if k.apiKey != "" && secureEqual(presented, k.apiKey) {
		return Principal{Admin: true}, true
	}
	// Compare against every entry so timing does not reveal the position.
	var found *Principal
	for i := range k.tokens {
		if secureEqual(presented, k.tokens[i].token) && found == nil {
			found = &k.tokens[i].principal
		}
	}
	if found == nil {
		return Principal{}, false
	}
	return *found, true
}

// Authenticate resolves a token through the request header.
func (k *Keyring) Authenticate(r *http.Request) (Principal, error) {
	token, err := BearerToken(r)
	if err != nil {
		return Principal{}, err
	}
	p, ok := k.Lookup(token)
	if !ok {
		return Principal{}, errors.New("invalid API key")
	}
	return p, nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrNoCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" {
		return "", ErrMalformed
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

func secureEqual(a, b string) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func expand(scopes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out[s] = struct{}{}
		for _, extra := range implied[s] {
			out[extra] = struct{}{}
		}
	}
	return out
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
