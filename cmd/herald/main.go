package main

import (
	"fmt"
	"os"

	"github.com/mattjoyce/herald/internal/config"
)

const version = "0.3.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage()
		return 1
	}

	cmd := args[0]
	rest := args[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(rest)
	case "config":
		return runConfigNoun(rest)
	case "plugin":
		return runPluginNoun(rest)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(rest)
	case "watch":
		return runWatch(rest)
	case "doctor":
		return runConfigCheck(rest)
	case "version":
		fmt.Printf("herald version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`herald - prefix-command dispatcher for chat bots

Usage:
  herald <noun> <action> [flags]

Core Resources (Nouns):
  system    Bot lifecycle
  config    Configuration validation and inspection
  plugin    Command plugin discovery

System Commands:
  system start      Start the bot in the foreground
  system watch      Live dashboard over the HTTP API

Config Commands:
  config check      Validate configuration and the plugin tree
  config show       Print the resolved configuration (secrets redacted)

Plugin Commands:
  plugin list       Show discovered plugin commands

General:
  version           Show version information
  help              Show this help message

Every action accepts --config PATH (default: $HERALD_CONFIG or ./config.yaml).
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runPluginNoun(args []string) int {
	if len(args) < 1 {
		printPluginNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printPluginNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "list":
		if hasHelpFlag(actionArgs) {
			printPluginListHelp()
			return 0
		}
		return runPluginList(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown plugin action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: herald system <action>")
	fmt.Fprintln(w, "Actions: start, watch")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: herald config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, show")
}

func printPluginNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: herald plugin <action>")
	fmt.Fprintln(w, "Actions: list")
}

func printSystemStartHelp() {
	fmt.Println("Usage: herald system start [--config PATH]")
	fmt.Println("Start the bot in the foreground. SIGHUP reloads plugin commands.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: herald config check [--config PATH] [--format human|json] [--strict] [--json]")
	fmt.Println("Validate configuration and plugin manifests; print the plugin tree fingerprint.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: herald config show [--config PATH] [--json]")
	fmt.Println("Print the resolved configuration with secrets redacted.")
}

func printPluginListHelp() {
	fmt.Println("Usage: herald plugin list [--config PATH] [--json]")
	fmt.Println("Show plugin commands discovered under plugins.roots.")
}

func defaultConfigPath() string {
	if p := os.Getenv("HERALD_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func loadConfigForTool(configPath string) (*config.Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath()
	}
	return config.Load(configPath)
}
