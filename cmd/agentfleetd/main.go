// Command agentfleetd is the unified entry point: it wires the Durable
// Store, the Process Supervisor, the Event Broadcaster, the Subscription
// Manager, the Worktree Service and the optional usage-stat event bus
// behind one HTTP/WebSocket control surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agentfleet/agentfleetd/internal/agentsvc"
	"github.com/agentfleet/agentfleetd/internal/broadcaster"
	"github.com/agentfleet/agentfleetd/internal/common/config"
	"github.com/agentfleet/agentfleetd/internal/common/logger"
	"github.com/agentfleet/agentfleetd/internal/errs"
	"github.com/agentfleet/agentfleetd/internal/eventbus"
	"github.com/agentfleet/agentfleetd/internal/httpapi"
	"github.com/agentfleet/agentfleetd/internal/process"
	"github.com/agentfleet/agentfleetd/internal/store"
	"github.com/agentfleet/agentfleetd/internal/subscription"
	"github.com/agentfleet/agentfleetd/internal/worktree"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, OutputPath: cfg.Logging.OutputPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting agentfleetd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, store.Config{Path: cfg.Database.Path, MaxConns: cfg.Database.MaxConns}, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer db.Close()
	repo := store.NewSQLiteRepository(db)

	errSink := errs.NewRingSink(256)
	procs := process.NewManager(cfg.Agent.ExecutablePath, log, errSink)

	publisher := subscription.New(log)
	bcast := broadcaster.New(repo, publisher, log)
	go bcast.Run(ctx, procs.Events())

	agentSvc := agentsvc.New(repo, procs, bcast, log)
	if err := agentSvc.Recover(ctx); err != nil {
		log.Fatal("failed to run startup recovery", zap.Error(err))
	}

	heartbeat := subscription.NewHeartbeat(publisher, cfg.Subscription)
	heartbeat.Start()
	defer heartbeat.Stop()

	var bus eventbus.Bus
	if cfg.NATS.URL != "" {
		natsBus, err := eventbus.NewNATSBus(cfg.NATS, log)
		if err != nil {
			log.Warn("failed to connect to nats, falling back to in-memory event bus", zap.Error(err))
			bus = eventbus.NewMemoryBus(log)
		} else {
			bus = natsBus
			defer natsBus.Close()
		}
	} else {
		bus = eventbus.NewMemoryBus(log)
	}
	collector := eventbus.NewUsageCollector(bus, repo, bcast, log)
	if _, err := collector.Start(); err != nil {
		log.Warn("failed to start usage collector", zap.Error(err))
	}

	gitAdapter := worktree.NewGitAdapter()

	router := httpapi.NewRouter(httpapi.Deps{
		Repo:       repo,
		Agents:     agentSvc,
		GitAdapter: gitAdapter,
		Subs:       publisher,
		Log:        log,
	}, cfg.Logging.Level != "debug")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down agentfleetd")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	procs.StopAll(true)
	heartbeat.Stop()
	publisher.Cleanup()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}
	bus.Close()

	log.Info("agentfleetd stopped")
}
