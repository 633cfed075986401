package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/armsd/internal/auth"
	"github.com/mattjoyce/armsd/internal/config"
	"github.com/mattjoyce/armsd/internal/tui/watch"
)

// EnvWatchToken overrides the bearer token arm watch presents.
const EnvWatchToken = "ARMSD_TOKEN"

func runArmWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	apiURL := fs.String("url", "", "API base URL (default: derived from api.listen)")
	token := fs.String("token", "", "Bearer token with arms:ro and events:ro (default: $"+EnvWatchToken+" or config)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	client := watch.Client{BaseURL: watchURL(cfg, *apiURL), Token: watchToken(cfg, *token)}
	if client.Token == "" {
		fmt.Fprintln(os.Stderr, "No token available: pass --token or set "+EnvWatchToken)
		return 1
	}

	if _, err := tea.NewProgram(watch.New(client)).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// watchURL turns api.listen into a URL a local client can dial.
func watchURL(cfg *config.Config, flagURL string) string {
	if flagURL != "" {
		return flagURL
	}
	host, port, err := net.SplitHostPort(cfg.API.Listen)
	if err != nil {
		return "http://" + cfg.API.Listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// watchToken prefers an explicit token, then the first configured token
// that can read arms and events, then the full-access api_key.
func watchToken(cfg *config.Config, flagToken string) string {
	if flagToken != "" {
		return flagToken
	}
	if env := strings.TrimSpace(os.Getenv(EnvWatchToken)); env != "" {
		return env
	}
	keys := auth.NewKeyring("", apiTokens(cfg))
	for _, t := range cfg.API.Auth.Tokens {
		if p, ok := keys.Lookup(t.Token); ok && p.CanAll(auth.ScopeArmsRead, auth.ScopeEventsRO) {
			return t.Token
		}
	}
	return cfg.API.Auth.APIKey
}
