package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mattjoyce/herald/internal/api"
	"github.com/mattjoyce/herald/internal/audit"
	"github.com/mattjoyce/herald/internal/auth"
	"github.com/mattjoyce/herald/internal/blocklist"
	"github.com/mattjoyce/herald/internal/broadcast"
	"github.com/mattjoyce/herald/internal/builtin"
	"github.com/mattjoyce/herald/internal/command"
	"github.com/mattjoyce/herald/internal/config"
	"github.com/mattjoyce/herald/internal/dispatch"
	"github.com/mattjoyce/herald/internal/events"
	"github.com/mattjoyce/herald/internal/lock"
	"github.com/mattjoyce/herald/internal/log"
	"github.com/mattjoyce/herald/internal/normalize"
	"github.com/mattjoyce/herald/internal/plugin"
	"github.com/mattjoyce/herald/internal/policy"
	"github.com/mattjoyce/herald/internal/reload"
	"github.com/mattjoyce/herald/internal/storage"
	"github.com/mattjoyce/herald/internal/transport"
	"github.com/mattjoyce/herald/internal/transport/webhook"
	"github.com/mattjoyce/herald/internal/transport/wsbridge"
)

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("herald starting", "version", version, "config", *configPath)

	pidLock, err := lock.AcquirePIDLock(cfg.State.LockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", cfg.State.LockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", cfg.State.LockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer a.close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	logger.Info("herald running (press Ctrl+C to stop)", "commands", a.live.Load().Len(), "transport", cfg.Transport.Kind)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if _, _, err := a.reloader.Reload(ctx); err != nil {
					logger.Error("reload on SIGHUP failed", "error", err)
				}
				continue
			}
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
			if err := <-done; err != nil {
				logger.Error("shutdown error", "error", err)
				return 1
			}
			logger.Info("herald stopped")
			return 0
		case err := <-done:
			if err != nil {
				logger.Error("component failed", "error", err)
				return 1
			}
			logger.Info("herald stopped")
			return 0
		}
	}
}

// app is one fully wired herald process.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db         *sql.DB
	hub        *events.Hub
	live       *command.Live
	engine     *policy.Engine
	blocklist  *blocklist.Store
	audit      *audit.Log
	bridge     transport.Transport
	reloader   *reload.Reloader
	dispatcher *dispatch.Dispatcher
	api        *api.Server
}

// newApp opens state, builds the registry and wires every component. A nil
// bridge selects the adapter named by transport.kind.
func newApp(ctx context.Context, cfg *config.Config, bridge transport.Transport) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: log.WithComponent("main"),
		hub:    events.NewHub(0),
		live:   command.NewLive(command.NewRegistry(cfg.Bot.Prefix)),
		engine: policy.NewEngine(nil),
	}

	if cfg.Bot.Features.Blocklist || cfg.Bot.Features.Audit {
		db, err := storage.OpenSQLite(ctx, cfg.State.Path)
		if err != nil {
			return nil, fmt.Errorf("open state %s: %w", cfg.State.Path, err)
		}
		a.db = db
		a.logger.Info("database opened", "path", cfg.State.Path)
	}
	if cfg.Bot.Features.Blocklist {
		store, err := blocklist.Open(ctx, a.db)
		if err != nil {
			a.close()
			return nil, err
		}
		a.blocklist = store
	}
	if cfg.Bot.Features.Audit {
		a.audit = audit.New(a.db)
	}

	if bridge == nil {
		var err error
		if bridge, err = newTransport(cfg); err != nil {
			a.close()
			return nil, err
		}
	}
	a.bridge = bridge

	bc := broadcast.New(bridge, cfg.Broadcast.Interval, cfg.Broadcast.Burst, log.WithComponent("broadcast"))
	a.reloader = reload.New(a.live, reload.Options{
		Prefix:   cfg.Bot.Prefix,
		Roots:    cfg.Plugins.Roots,
		Plugins:  pluginOptions(cfg),
		Builtins: a.registerBuiltins(bc),
		Events:   a.hub,
		Logger:   log.WithComponent("reload"),
	})
	n, failures, err := a.reloader.Reload(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.logger.Info("command registry built", "commands", n, "plugin_failures", failures)

	opts := dispatch.Options{
		Owners: cfg.Bot.Owners,
		Events: a.hub,
		Logger: log.WithComponent("dispatch"),
	}
	if a.blocklist != nil {
		opts.Blocklist = a.blocklist
	}
	if a.audit != nil {
		opts.Audit = a.audit
	}
	norm := normalize.New(cfg.Bot.Prefix,
		normalize.WithStatusHandling(cfg.Bot.Features.StatusHandling),
		normalize.WithSelfID(bridge.SelfID),
	)
	a.dispatcher = dispatch.New(a.live, norm, a.engine, bridge, opts)

	if cfg.API.Enabled {
		a.api = api.New(apiConfig(cfg), a.apiDeps(), log.WithComponent("api"))
	}
	return a, nil
}

func (a *app) registerBuiltins(bc *broadcast.Broadcaster) reload.RegisterFunc {
	return func(reg *command.Registry) error {
		deps := builtin.Deps{
			BotName:     a.cfg.Service.Name,
			Groups:      a.bridge,
			Broadcaster: bc,
			Blocklist:   a.blocklist,
			Events:      a.hub,
			Disabled:    a.cfg.Bot.Disabled,
		}
		if a.reloader != nil {
			deps.Reloader = a.reloader
		}
		return builtin.Register(reg, deps)
	}
}

func (a *app) apiDeps() api.Deps {
	deps := api.Deps{
		Registry: a.live,
		State:    a.dispatcher,
		Events:   a.hub,
		Reloader: a.reloader,
	}
	if a.audit != nil {
		deps.History = a.audit
	}
	return deps
}

func apiConfig(cfg *config.Config) api.Config {
	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, t := range cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	return api.Config{
		Listen: cfg.API.Listen,
		APIKey: cfg.API.Auth.APIKey,
		Tokens: tokens,
	}
}

func pluginOptions(cfg *config.Config) plugin.Options {
	return plugin.Options{
		Disabled: cfg.Bot.Disabled,
		Timeout:  cfg.Plugins.Timeout,
		Config:   cfg.Plugins.Config,
		Logger:   log.WithComponent("plugin"),
	}
}

func newTransport(cfg *config.Config) (transport.Transport, error) {
	switch cfg.Transport.Kind {
	case "webhook":
		wc, err := webhook.FromConfig(cfg.Transport)
		if err != nil {
			return nil, fmt.Errorf("configure webhook transport: %w", err)
		}
		return webhook.New(wc, &http.Client{Timeout: 30 * time.Second}, log.WithComponent("webhook")), nil
	case "websocket":
		wc, err := wsbridge.FromConfig(cfg.Transport)
		if err != nil {
			return nil, fmt.Errorf("configure websocket transport: %w", err)
		}
		return wsbridge.New(wc, log.WithComponent("wsbridge")), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}
}

// run starts every component and blocks until ctx is cancelled or one of
// them fails. In-flight commands finish before it returns.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 4)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	start("transport", a.bridge.Start)
	start("dispatcher", func(ctx context.Context) error {
		return a.dispatcher.Run(ctx, a.bridge.Messages())
	})
	start("connection watcher", func(ctx context.Context) error {
		a.dispatcher.WatchStates(ctx, a.bridge.States())
		return nil
	})
	start("cooldown sweeper", func(ctx context.Context) error {
		a.engine.RunSweeper(ctx, a.cfg.Cooldown.SweepInterval, log.WithComponent("policy"))
		return nil
	})
	start("reload watcher", func(ctx context.Context) error {
		a.reloader.Watch(ctx, a.cfg.Plugins.ReloadInterval)
		return nil
	})
	if a.audit != nil {
		start("audit pruner", func(ctx context.Context) error {
			a.audit.RunPruner(ctx, a.cfg.Service.AuditRetention, log.WithComponent("audit"))
			return nil
		})
	}
	if a.api != nil {
		start("api", a.api.Start)
		a.logger.Info("API server enabled", "listen", a.cfg.API.Listen)
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
		cancel()
	}
	wg.Wait()
	return err
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", "error", err)
		}
		a.db = nil
	}
}
