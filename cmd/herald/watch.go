package main

import (
	"flag"
	"fmt"
	"os"
	"slices"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/herald/internal/auth"
	"github.com/mattjoyce/herald/internal/config"
	"github.com/mattjoyce/herald/internal/tui/watch"
)

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to configuration file or directory")
	apiURL := fs.String("api-url", "", "herald API URL (default: from api.listen)")
	token := fs.String("token", os.Getenv("HERALD_API_TOKEN"), "API bearer token with events:ro")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *apiURL == "" || *token == "" {
		cfg, err := loadConfigForTool(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: --api-url and --token are required without a readable config: %v\n", err)
			return 1
		}
		url, tok := watchTarget(cfg)
		if *apiURL == "" {
			*apiURL = url
		}
		if *token == "" {
			*token = tok
		}
	}
	if *token == "" {
		fmt.Fprintln(os.Stderr, "Error: API token required. Use --token or HERALD_API_TOKEN.")
		return 1
	}

	p := tea.NewProgram(watch.New(*apiURL, *token))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// watchTarget derives the API address and a token able to read events from
// the config file.
func watchTarget(cfg *config.Config) (string, string) {
	url := "http://" + cfg.API.Listen
	if cfg.API.Auth.APIKey != "" {
		return url, cfg.API.Auth.APIKey
	}
	for _, t := range cfg.API.Auth.Tokens {
		if slices.Contains(t.Scopes, auth.ScopeAll) || slices.Contains(t.Scopes, auth.ScopeEventsRead) {
			return url, t.Token
		}
	}
	return url, ""
}

func printSystemWatchHelp() {
	fmt.Println("Usage: herald system watch [flags]")
	fmt.Println()
	fmt.Println("Live dashboard of connection state, per-command activity and the event stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --config PATH    Read api.listen and a token from this config")
	fmt.Println("  --api-url URL    herald API URL (default: http://<api.listen>)")
	fmt.Println("  --token TOKEN    Bearer token with events:ro (or HERALD_API_TOKEN)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Scroll commands")
}
