package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"aplgui/internal/api"
	"aplgui/internal/aplconfig"
	"aplgui/internal/checkpoint"
	"aplgui/internal/config"
	"aplgui/internal/discovery"
	"aplgui/internal/eventhub"
	"aplgui/internal/journal"
	"aplgui/internal/jsonfile"
	"aplgui/internal/learnings"
	"aplgui/internal/monitor"
	"aplgui/internal/patterns"
	"aplgui/internal/process"
	"aplgui/internal/state"
	"aplgui/internal/telemetry"
	"aplgui/internal/websocket"
)

// App owns every long-lived component of the server
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	mu sync.Mutex

	workspace  *config.Workspace
	hub        *eventhub.Hub
	wsServer   *websocket.Server
	monitor    *monitor.Monitor
	supervisor *process.Supervisor
	journal    *journal.Journal
	apiServer  *api.Server
	advert     *discovery.Advertisement

	stopTelemetry func(context.Context) error
	hubCancel     context.CancelFunc
	hubDone       chan struct{}
}

// NewApp creates an App for cfg. Nothing runs until Startup.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Startup builds the components and starts the watchers and event hub
func (a *App) Startup(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cfg := a.cfg

	stop, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "aplgui",
		ServiceVersion: config.Version,
		OTLPEndpoint:   cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.stopTelemetry = stop

	var rollbackJournal checkpoint.Journal
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			// Rollbacks still work without the audit trail.
			a.logger.Warn("rollback journal unavailable", "path", cfg.Journal.Path, "error", err)
		} else {
			a.journal = j
			rollbackJournal = j
		}
	}

	a.workspace = config.NewWorkspace(cfg.ProjectRoot, cfg.PluginRoot)
	writer := jsonfile.NewWriter(cfg.BackupRetention)
	stateStore := state.NewStore(a.workspace, writer)

	a.hub = eventhub.New(eventhub.DefaultQueueSize, a.logger.With("component", "eventhub"))
	a.wsServer = websocket.NewServer(websocket.Options{
		Version:        config.Version,
		AllowedOrigins: cfg.CORSOrigins,
		Logger:         a.logger,
	})
	a.hub.Attach(a.wsServer)

	hubCtx, cancel := context.WithCancel(context.Background())
	a.hubCancel = cancel
	a.hubDone = make(chan struct{})
	go func() {
		defer close(a.hubDone)
		a.hub.Run(hubCtx)
	}()

	a.monitor = monitor.New(a.workspace, a.hub, monitor.Options{
		Debounce:  cfg.Debounce,
		MetaDepth: cfg.MetaDepth,
		Logger:    a.logger,
	})
	if err := a.monitor.Start(); err != nil {
		return fmt.Errorf("start watchers: %w", err)
	}

	a.supervisor = process.NewSupervisor(process.Options{
		Command:      cfg.Agent.Command,
		Args:         cfg.Agent.Args,
		GoalTemplate: cfg.Agent.GoalTemplate,
		Dir:          func() string { return a.workspace.Paths().ProjectRoot },
		StopTimeout:  cfg.Agent.StopTimeout,
		MaxRuntime:   cfg.Agent.MaxRuntime,
		Logger:       a.logger,
	}, a.hub)

	a.apiServer = api.NewServer(api.Deps{
		Workspace:   a.workspace,
		State:       stateStore,
		Config:      aplconfig.NewStore(a.workspace, writer),
		Learnings:   learnings.NewStore(a.workspace, writer),
		Patterns:    patterns.NewLibrary(a.workspace, cfg.PatternCacheTTL, a.logger),
		Checkpoints: checkpoint.NewManager(stateStore, rollbackJournal, a.logger),
		Supervisor:  a.supervisor,
		Watchers:    a.monitor,
		WebSocket:   a.wsServer.Handler(),
	}, api.Options{
		Version:        config.Version,
		AllowedOrigins: cfg.CORSOrigins,
		Logger:         a.logger,
	})

	a.logger.Info("aplgui started",
		"project", cfg.ProjectRoot,
		"plugin", cfg.PluginRoot,
		"journal", a.journal != nil,
	)
	return nil
}

// Serve listens on the configured address until Shutdown
func (a *App) Serve(ln net.Listener) error {
	a.mu.Lock()
	srv := a.apiServer
	if a.cfg.MDNS.Enabled {
		a.advertise(ln)
	}
	a.mu.Unlock()

	if srv == nil {
		return errors.New("app not started")
	}
	return srv.Serve(ln)
}

func (a *App) advertise(ln net.Listener) {
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		return
	}
	url := fmt.Sprintf("http://%s", ln.Addr().String())
	txt := discovery.TXTRecords(a.cfg.ProjectRoot, url, config.Version)
	adv, err := discovery.Advertise(a.cfg.MDNS.Instance, addr.Port, txt)
	if err != nil {
		a.logger.Warn("mDNS advertisement failed", "error", err)
		return
	}
	a.advert = adv
	a.logger.Info("advertising on mDNS", "service", discovery.ServiceType, "port", addr.Port)
}

// Shutdown stops the agent first and the event hub last
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.advert != nil {
		if err := a.advert.Close(); err != nil {
			a.logger.Warn("stop mDNS", "error", err)
		}
	}

	if a.supervisor != nil {
		if err := a.supervisor.Shutdown(ctx); err != nil {
			a.logger.Warn("stop agent", "error", err)
		}
	}

	if a.apiServer != nil {
		if err := a.apiServer.Shutdown(ctx); err != nil {
			a.logger.Warn("stop http server", "error", err)
		}
	}

	if a.monitor != nil {
		a.monitor.Stop()
	}

	if a.hub != nil {
		a.hub.Close()
		a.hubCancel()
		<-a.hubDone
	}
	if a.wsServer != nil {
		a.wsServer.Close()
	}

	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("close journal", "error", err)
		}
	}

	if a.stopTelemetry != nil {
		if err := a.stopTelemetry(ctx); err != nil {
			a.logger.Warn("flush telemetry", "error", err)
		}
	}

	a.logger.Info("aplgui shutdown complete")
}
