// Command broker runs the MCP federation broker: it loads
// configuration, wires the FederationBroker singleton, and optionally
// serves the admin/status HTTP surface until signalled to shut down.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/platformbuilds/mcp-federation-broker/internal/broker"
	"github.com/platformbuilds/mcp-federation-broker/internal/config"
	"github.com/platformbuilds/mcp-federation-broker/internal/engine/sqliteengine"
	"github.com/platformbuilds/mcp-federation-broker/internal/httpapi"
	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
	"github.com/platformbuilds/mcp-federation-broker/internal/metrics"
	"github.com/platformbuilds/mcp-federation-broker/internal/singleton"
)

func main() {
	configPath := flag.String("config", os.Getenv("MCPFED_CONFIG"), "path to broker config file (YAML)")
	flag.Parse()

	if *configPath == "" {
		*configPath = "./mcpfed.yaml"
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	log := logger.New(cfg.LogLevel)
	defer log.Sync()
	log.Info("starting mcp federation broker", "config", *configPath)

	eng, err := sqliteengine.Open(cfg.DBPath)
	if err != nil {
		log.Fatal("failed to open reference engine", "error", err)
	}

	reg := prometheus.NewRegistry()
	prom := metrics.NewPrometheus(reg)

	// The broker is a process-wide singleton built lazily: if
	// construction fails the error is cached rather than retried, so a
	// bad config never leaves a half-initialised broker for later
	// callers to trip over.
	lazyBroker := singleton.New(func() (*broker.Broker, error) {
		return broker.New(cfg, eng, log, prom)
	})
	b, err := lazyBroker.Get()
	if err != nil {
		log.Fatal("failed to initialise broker", "error", err)
	}
	defer b.Close()

	watcher := config.NewWatcher(*configPath, log)
	watcher.RegisterWatcher(func(newCfg config.Config) {
		log.Info("configuration changed on disk; restart required to apply pool/router changes", "path", *configPath)
		cfg = newCfg
	})
	if err := watcher.Start(); err != nil {
		log.Warn("config hot-reload watcher failed to start", "error", err)
	} else {
		defer watcher.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	if cfg.HTTPAPI.Enabled {
		srv := httpapi.NewServer(httpapi.Config{Addr: cfg.HTTPAPI.Addr, JWTSecret: cfg.HTTPAPI.JWTSecret}, b, log)
		if err := srv.Start(ctx); err != nil {
			log.Fatal("httpapi server failed", "error", err)
		}
		return
	}

	<-ctx.Done()
}
