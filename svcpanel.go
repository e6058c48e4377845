package svcpanel

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/svcpanel/internal/activitylog"
	cfg "github.com/loykin/svcpanel/internal/config"
	"github.com/loykin/svcpanel/internal/history"
	"github.com/loykin/svcpanel/internal/logger"
	"github.com/loykin/svcpanel/internal/metrics"
	"github.com/loykin/svcpanel/internal/registry"
	iapi "github.com/loykin/svcpanel/internal/server"
	"github.com/loykin/svcpanel/internal/store"
	"github.com/loykin/svcpanel/internal/store/factory"
	"github.com/loykin/svcpanel/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Definition = registry.Definition

type State = supervisor.State

type Status = supervisor.Status

type Result = supervisor.Result

type Options = supervisor.Options

type Publisher = supervisor.Publisher

type PublisherFunc = supervisor.PublisherFunc

type ActivityEntry = activitylog.Entry

type HistorySink = history.Sink

type HistoryEvent = history.Event

type LogConfig = logger.Config

const (
	StateStopped  = supervisor.StateStopped
	StateStarting = supervisor.StateStarting
	StateRunning  = supervisor.StateRunning
	StateStopping = supervisor.StateStopping
	StateFailed   = supervisor.StateFailed
)

// Supervisor is a thin facade over internal/supervisor.Supervisor.
// It provides a stable public API for embedding.
type Supervisor struct{ inner *supervisor.Supervisor }

// New builds a supervisor over defs. Duplicate or empty definitions are
// rejected as a whole.
func New(defs []Definition, opts Options) (*Supervisor, error) {
	reg := registry.New()
	if err := reg.Load(defs); err != nil {
		return nil, err
	}
	return &Supervisor{inner: supervisor.New(reg, opts)}, nil
}

func (s *Supervisor) Start(name string) (Status, error) { return s.inner.Start(name) }
func (s *Supervisor) Stop(name string) (Status, error)  { return s.inner.Stop(name) }
func (s *Supervisor) StartAll(ctx context.Context, autoOnly bool) []Result {
	return s.inner.StartAll(ctx, autoOnly)
}
func (s *Supervisor) StopAll(ctx context.Context) []Result { return s.inner.StopAll(ctx) }
func (s *Supervisor) StatusOf(name string) (Status, error) { return s.inner.StatusOf(name) }
func (s *Supervisor) StatusAll() []Status                  { return s.inner.StatusAll() }
func (s *Supervisor) Definitions() []Definition            { return s.inner.Definitions() }
func (s *Supervisor) Subscribe(p Publisher)                { s.inner.Subscribe(p) }
func (s *Supervisor) Activity() *activitylog.Log           { return s.inner.Activity() }
func (s *Supervisor) Close(ctx context.Context) []Result   { return s.inner.Close(ctx) }

// LoadConfig parses the daemon's TOML configuration.
func LoadConfig(path string) (*cfg.Config, error) { return cfg.Load(path) }

// NewStore opens a state/settings store from a DSN (sqlite path or
// postgres:// URL).
func NewStore(dsn string) (store.Store, error) { return factory.NewFromDSN(dsn) }

// NewHTTPServer starts an HTTP server exposing the panel API over sup.
func NewHTTPServer(addr, basePath string, sup *Supervisor) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, sup.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It runs in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
