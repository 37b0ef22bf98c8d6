package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/herald/internal/blocklist"
	"github.com/mattjoyce/herald/internal/broadcast"
	"github.com/mattjoyce/herald/internal/builtin"
	"github.com/mattjoyce/herald/internal/command"
	"github.com/mattjoyce/herald/internal/config"
	"github.com/mattjoyce/herald/internal/doctor"
	"github.com/mattjoyce/herald/internal/plugin"
	"github.com/mattjoyce/herald/internal/transport"
)

const redacted = "<redacted>"

// checkReloader and checkGroups stand in for the live reloader and bridge so
// config check sees the same builtin names a running bot registers.
type checkReloader struct{}

func (checkReloader) Reload(context.Context) (int, int, error) { return 0, 0, nil }

type checkGroups struct{}

func (checkGroups) GroupMetadata(context.Context, string) (*transport.GroupMetadata, error) {
	return nil, errors.New("no bridge during config check")
}

func (checkGroups) SendMessage(context.Context, string, transport.Content, transport.SendOptions) error {
	return errors.New("no bridge during config check")
}

func runConfigCheck(args []string) int {
	var configPath string
	var strict, jsonOut bool
	var format string

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", defaultConfigPath(), "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if jsonOut {
		format = "json"
	}

	cfg, err := loadConfigForTool(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	reg, report, err := buildCheckRegistry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Plugin discovery error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg, reg, report).Validate()
	fingerprint, fpErr := config.Fingerprint(cfg.Plugins.Roots...)

	switch format {
	case "json":
		out := struct {
			*doctor.Result
			Commands    int    `json:"commands"`
			Fingerprint string `json:"plugins_fingerprint,omitempty"`
		}{Result: result, Commands: reg.Len(), Fingerprint: fingerprint}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	default:
		fmt.Print(doctor.FormatHuman(result))
		fmt.Printf("Commands: %d (%d from plugins)\n", reg.Len(), len(report.Loaded))
		if fpErr == nil {
			fmt.Printf("Plugins fingerprint: %s\n", fingerprint)
		}
	}
	if fpErr != nil {
		fmt.Fprintf(os.Stderr, "Fingerprint error: %v\n", fpErr)
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

// buildCheckRegistry registers builtins the way start does, then loads the
// plugin tree on top of them.
func buildCheckRegistry(cfg *config.Config) (*command.Registry, *plugin.Report, error) {
	reg := command.NewRegistry(cfg.Bot.Prefix)
	deps := builtin.Deps{
		BotName:     cfg.Service.Name,
		Groups:      checkGroups{},
		Broadcaster: broadcast.New(nil, cfg.Broadcast.Interval, cfg.Broadcast.Burst, nil),
		Reloader:    checkReloader{},
		Disabled:    cfg.Bot.Disabled,
	}
	if cfg.Bot.Features.Blocklist {
		deps.Blocklist = &blocklist.Store{}
	}
	if err := builtin.Register(reg, deps); err != nil {
		return nil, nil, err
	}
	report, err := plugin.Load(reg, cfg.Plugins.Roots, pluginOptions(cfg))
	if err != nil {
		return nil, nil, err
	}
	return reg, report, nil
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	redactSecrets(cfg)

	if *jsonOut {
		data, _ := json.MarshalIndent(cfg, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "YAML format error: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}

func redactSecrets(cfg *config.Config) {
	redact := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	redact(&cfg.Transport.Webhook.Secret)
	redact(&cfg.Transport.Websocket.Token)
	redact(&cfg.API.Auth.APIKey)
	tokens := make([]config.APIToken, len(cfg.API.Auth.Tokens))
	for i, t := range cfg.API.Auth.Tokens {
		redact(&t.Token)
		tokens[i] = t
	}
	cfg.API.Auth.Tokens = tokens
}
