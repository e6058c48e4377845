package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/svcpanel/internal/activitylog"
	"github.com/loykin/svcpanel/internal/config"
	"github.com/loykin/svcpanel/internal/env"
	"github.com/loykin/svcpanel/internal/history"
	"github.com/loykin/svcpanel/internal/history/clickhouse"
	"github.com/loykin/svcpanel/internal/logger"
	"github.com/loykin/svcpanel/internal/metrics"
	"github.com/loykin/svcpanel/internal/registry"
	"github.com/loykin/svcpanel/internal/server"
	"github.com/loykin/svcpanel/internal/store"
	"github.com/loykin/svcpanel/internal/store/factory"
	"github.com/loykin/svcpanel/internal/supervisor"
)

const shutdownTimeout = 30 * time.Second

func runServeCommand(flags *ServeFlags) error {
	if flags.ConfigPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=svcpanel.toml or provide as argument")
	}

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}

	log := logger.NewSlog(cfg.Log.Level, os.Stderr)
	ctx := context.Background()

	// Optional settings/state store. Persisted settings override file values.
	var st store.Store
	if cfg.Store.DSN != "" {
		st, err = factory.NewFromDSN(cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer func() { _ = st.Close() }()
		if err := st.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare store schema: %w", err)
		}
		settings, err := st.Settings(ctx)
		if err != nil {
			log.Warn("failed to load persisted settings", "error", err)
		} else {
			cfg.ApplySettings(settings)
		}
	}

	reg := registry.New()
	if err := reg.Load(cfg.Services); err != nil {
		return fmt.Errorf("invalid service definitions: %w", err)
	}
	if missing := reg.Validate(); len(missing) > 0 {
		log.Warn("service executables missing, writing placeholders", "count", len(missing))
		_ = reg.MaterializeMissing(missing, log)
	}

	act := activitylog.New(cfg.MaxLog)
	act.SetMirror(log)

	var globalEnv *env.Env
	if len(cfg.Env) > 0 {
		globalEnv = env.New()
		for k, v := range cfg.Env {
			globalEnv.Set(k, v)
		}
	}

	var sinks []history.Sink
	if cfg.History.ClickHouseAddr != "" {
		sink, err := clickhouse.New(cfg.History.ClickHouseAddr, cfg.History.ClickHouseTable)
		if err != nil {
			log.Warn("clickhouse history disabled", "addr", cfg.History.ClickHouseAddr, "error", err)
		} else {
			if err := sink.EnsureTable(ctx); err != nil {
				log.Warn("failed to prepare clickhouse table", "error", err)
			}
			sinks = append(sinks, sink)
			defer func() { _ = sink.Close() }()
		}
	}

	sup := supervisor.New(reg, supervisor.Options{
		MaxWorkers:  cfg.MaxWorkers,
		GracePeriod: cfg.GracePeriod,
		Logger:      log,
		Activity:    act,
		ChildLog:    cfg.Log,
		Env:         globalEnv,
		Store:       st,
		Sinks:       sinks,
	})

	mux := http.NewServeMux()
	mux.Handle("/", server.NewRouter(sup, cfg.Server.BasePath).Handler())
	if cfg.Server.Metrics {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
		mux.Handle("/metrics", metrics.Handler())
	}
	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped", "error", err)
		}
	}()

	log.Info("svcpanel daemon started",
		"listen", cfg.Server.Listen,
		"base_path", cfg.Server.BasePath,
		"services", reg.Len(),
		"max_workers", cfg.MaxWorkers,
		"grace_period", cfg.GracePeriod)

	// Bring up auto-start services through the bounded pool.
	for _, r := range sup.StartAll(ctx, true) {
		if r.Err != nil {
			log.Error("auto-start failed", "service", r.Name, "error", r.Err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, r := range sup.Close(shutdownCtx) {
		if r.Err != nil {
			log.Warn("shutdown stop failed", "service", r.Name, "error", r.Err)
		}
	}
	_ = httpServer.Close()
	_ = removePidFile(flags.PidFile)
	return nil
}
