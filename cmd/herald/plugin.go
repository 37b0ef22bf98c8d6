package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/mattjoyce/herald/internal/plugin"
)

type pluginListEntry struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Aliases     []string `json:"aliases,omitempty"`
	Description string   `json:"description,omitempty"`
	Manifest    string   `json:"manifest"`
}

type pluginListOutput struct {
	Plugins  []pluginListEntry `json:"plugins"`
	Disabled []string          `json:"disabled,omitempty"`
	Errors   []string          `json:"errors,omitempty"`
}

func runPluginList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	plugins, report, err := plugin.Discover(cfg.Plugins.Roots, pluginOptions(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Plugin discovery error: %v\n", err)
		return 1
	}

	out := pluginListOutput{
		Plugins:  make([]pluginListEntry, 0, len(plugins)),
		Disabled: report.Disabled,
	}
	for _, p := range plugins {
		out.Plugins = append(out.Plugins, pluginListEntry{
			Name:        p.Name,
			Category:    p.Category,
			Aliases:     p.Aliases,
			Description: p.Description,
			Manifest:    p.ManifestPath,
		})
	}
	sort.Slice(out.Plugins, func(i, j int) bool {
		if out.Plugins[i].Category != out.Plugins[j].Category {
			return out.Plugins[i].Category < out.Plugins[j].Category
		}
		return out.Plugins[i].Name < out.Plugins[j].Name
	})
	for _, e := range report.Errors {
		out.Errors = append(out.Errors, e.Error())
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
	} else {
		printPluginTable(out)
	}

	if len(out.Errors) > 0 {
		return 1
	}
	return 0
}

func printPluginTable(out pluginListOutput) {
	if len(out.Plugins) == 0 {
		fmt.Println("No plugin commands found.")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCATEGORY\tALIASES\tMANIFEST")
		for _, p := range out.Plugins {
			aliases := strings.Join(p.Aliases, ",")
			if aliases == "" {
				aliases = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.Category, aliases, p.Manifest)
		}
		_ = w.Flush()
	}
	for _, d := range out.Disabled {
		fmt.Printf("disabled: %s\n", d)
	}
	for _, e := range out.Errors {
		fmt.Printf("error: %s\n", e)
	}
}
