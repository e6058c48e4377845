package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/svcpanel/internal/activitylog"
	"github.com/loykin/svcpanel/internal/env"
	"github.com/loykin/svcpanel/internal/history"
	"github.com/loykin/svcpanel/internal/logger"
	"github.com/loykin/svcpanel/internal/metrics"
	"github.com/loykin/svcpanel/internal/process"
	"github.com/loykin/svcpanel/internal/registry"
	"github.com/loykin/svcpanel/internal/store"
)

// Defaults mirror the original control panel configuration.
const (
	DefaultMaxWorkers  = 8
	DefaultGracePeriod = 5 * time.Second
)

// Options configures a Supervisor. Zero values fall back to defaults;
// Activity, Store and Sinks are optional.
type Options struct {
	MaxWorkers  int
	GracePeriod time.Duration
	Logger      *slog.Logger
	Activity    *activitylog.Log
	ChildLog    logger.Config
	Env         *env.Env
	Store       store.Store
	Sinks       []history.Sink
}

// Supervisor orchestrates start/stop of the registered services, bounds bulk
// operations to MaxWorkers concurrent lifecycle operations, and serializes all
// transitions per service. It is safe for concurrent use.
type Supervisor struct {
	reg  *registry.Registry
	opts Options
	log  *slog.Logger
	act  *activitylog.Log

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool

	pubMu sync.RWMutex
	pubs  []Publisher
}

// entry is the supervisor's per-service record. opMu serializes lifecycle
// operations (the per-service total order); mu guards the snapshot fields so
// status reads never wait behind an in-flight stop.
type entry struct {
	name string
	def  registry.Definition

	opMu sync.Mutex

	mu        sync.Mutex
	state     State
	pid       int
	startedAt time.Time
	lastErr   error
	handle    *process.Handle
}

// New builds a Supervisor over reg. The registry must already be loaded.
func New(reg *registry.Registry, opts Options) *Supervisor {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultMaxWorkers
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Activity == nil {
		opts.Activity = activitylog.New(0)
	}
	if opts.Env != nil {
		// Cache the OS base now so concurrent launches never race on it.
		opts.Env.FromOS()
	}
	s := &Supervisor{
		reg:     reg,
		opts:    opts,
		log:     opts.Logger,
		act:     opts.Activity,
		entries: make(map[string]*entry),
	}
	for _, d := range reg.All() {
		s.entries[d.Name] = &entry{name: d.Name, def: d, state: StateStopped}
	}
	return s
}

// Activity exposes the supervisor's activity log for display layers.
func (s *Supervisor) Activity() *activitylog.Log { return s.act }

// GracePeriod returns the configured graceful-stop bound.
func (s *Supervisor) GracePeriod() time.Duration { return s.opts.GracePeriod }

// Definitions returns the configured service definitions sorted by name.
func (s *Supervisor) Definitions() []registry.Definition { return s.reg.All() }

// childEnv composes the environment for a service launch. Nil means inherit
// the daemon's environment unchanged.
func (s *Supervisor) childEnv(d registry.Definition) []string {
	if s.opts.Env == nil && len(d.Env) == 0 {
		return nil
	}
	base := s.opts.Env
	if base == nil {
		base = env.New()
	}
	return base.Merge(d.Env)
}

// Subscribe registers a publisher for state-change notifications.
func (s *Supervisor) Subscribe(p Publisher) {
	if p == nil {
		return
	}
	s.pubMu.Lock()
	s.pubs = append(s.pubs, p)
	s.pubMu.Unlock()
}

func (s *Supervisor) publish(name string, prev, next State) {
	s.pubMu.RLock()
	pubs := append([]Publisher(nil), s.pubs...)
	s.pubMu.RUnlock()
	for _, p := range pubs {
		p.OnStateChanged(name, prev, next)
	}
}

func (s *Supervisor) entryFor(name string) (*entry, error) {
	s.mu.RLock()
	e := s.entries[name]
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if e == nil {
		return nil, &UnknownServiceError{Name: name}
	}
	return e, nil
}

// transition commits a state change and fans it out: snapshot update, metrics,
// store upsert, then synchronous publishers. Callers hold e.opMu.
func (s *Supervisor) transition(e *entry, next State) (prev State) {
	e.mu.Lock()
	prev = e.state
	e.state = next
	if next == StateStopped || next == StateFailed {
		e.pid = 0
		e.startedAt = time.Time{}
	}
	rec := store.Record{Name: e.name, State: string(next), PID: e.pid, StartedAt: e.startedAt}
	e.mu.Unlock()

	metrics.RecordStateTransition(e.name, string(prev), string(next))
	if s.opts.Store != nil {
		if err := s.opts.Store.UpsertState(context.Background(), rec); err != nil {
			s.log.Debug("state persist failed", "service", e.name, "error", err)
		}
	}
	s.publish(e.name, prev, next)
	return prev
}

func (s *Supervisor) sendEvent(t history.EventType, name string, pid int, detail string) {
	if len(s.opts.Sinks) == 0 {
		return
	}
	evt := history.Event{Type: t, OccurredAt: time.Now().UTC(), Service: name, PID: pid, Detail: detail}
	for _, sink := range s.opts.Sinks {
		if err := sink.Send(context.Background(), evt); err != nil {
			s.log.Debug("history sink send failed", "service", name, "error", err)
		}
	}
}

// Start launches the named service. Preconditions: the service is registered
// and currently Stopped or Failed. A start on a Starting/Running service is an
// idempotent no-op returning the current status, so concurrent duplicate
// starts spawn exactly one process. On spawn failure the service transitions
// to Failed and a SpawnError is returned; the supervisor itself is unaffected.
func (s *Supervisor) Start(name string) (Status, error) {
	e, err := s.entryFor(name)
	if err != nil {
		return Status{}, err
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()

	// Re-check after taking the service lock: Close raises the flag before
	// its stop sweep, so a start admitted just before the flag went up must
	// not respawn the service behind the sweep.
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return s.snapshot(e), ErrClosed
	}

	if st := s.snapshot(e); st.State == StateStarting || st.State == StateRunning {
		s.act.Info(name, (&AlreadyInStateError{Name: name, State: st.State}).Error())
		return st, nil
	}

	s.transition(e, StateStarting)
	s.act.Info(name, "starting")

	outW, errW := s.opts.ChildLog.Writers(name)
	h, spawnErr := process.Launch(name, e.def.Path, s.childEnv(e.def), outW, errW)
	if spawnErr != nil {
		e.mu.Lock()
		e.lastErr = spawnErr
		e.handle = nil
		e.mu.Unlock()
		s.transition(e, StateFailed)
		metrics.IncSpawnFailure(name)
		werr := &SpawnError{Name: name, Err: spawnErr}
		s.act.Error(name, werr.Error())
		s.log.Error("spawn failed", "service", name, "error", spawnErr)
		s.sendEvent(history.EventFailed, name, 0, spawnErr.Error())
		return s.snapshot(e), werr
	}

	e.mu.Lock()
	e.handle = h
	e.pid = h.PID()
	e.startedAt = h.StartedAt()
	e.lastErr = nil
	e.mu.Unlock()
	s.transition(e, StateRunning)
	metrics.IncStart(name)
	s.act.Info(name, fmt.Sprintf("started (pid %d)", h.PID()))
	s.log.Info("service started", "service", name, "pid", h.PID())
	s.sendEvent(history.EventStarted, name, h.PID(), "")

	go s.watch(e, h)
	return s.snapshot(e), nil
}

// watch observes an unrequested exit of h and transitions the service to
// Failed (abnormal exit) or Stopped (clean exit). Requested stops clear the
// handle under opMu before this goroutine can acquire it, making the two
// paths mutually exclusive.
func (s *Supervisor) watch(e *entry, h *process.Handle) {
	<-h.Done()
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	current := e.handle == h
	e.mu.Unlock()
	if !current {
		return
	}

	exitErr := h.ExitErr()
	e.mu.Lock()
	e.handle = nil
	e.lastErr = exitErr
	e.mu.Unlock()

	if exitErr != nil {
		s.transition(e, StateFailed)
		s.act.Error(e.name, fmt.Sprintf("exited unexpectedly: %v", exitErr))
		s.log.Warn("service exited unexpectedly", "service", e.name, "error", exitErr)
		s.sendEvent(history.EventFailed, e.name, h.PID(), exitErr.Error())
		return
	}
	s.transition(e, StateStopped)
	s.act.Info(e.name, "exited")
	s.log.Info("service exited", "service", e.name)
	s.sendEvent(history.EventStopped, e.name, h.PID(), "")
}

// Stop terminates the named service: cooperative signal, bounded grace wait,
// forceful kill on timeout, then reap. Stopping a service with no active
// process is a no-op. When escalation was needed the stop still completes and
// a TerminationTimeoutError is returned so callers can surface it.
func (s *Supervisor) Stop(name string) (Status, error) {
	e, err := s.entryFor(name)
	if err != nil {
		return Status{}, err
	}
	return s.stopEntry(e)
}

func (s *Supervisor) stopEntry(e *entry) (Status, error) {
	name := e.name
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	h := e.handle
	st := e.state
	e.mu.Unlock()
	if h == nil {
		s.act.Info(name, (&AlreadyInStateError{Name: name, State: st}).Error())
		return s.snapshot(e), nil
	}

	s.transition(e, StateStopping)
	s.act.Info(name, "stopping")

	killed, exitErr := h.Terminate(s.opts.GracePeriod)

	e.mu.Lock()
	e.handle = nil
	e.lastErr = exitErr
	e.mu.Unlock()
	s.transition(e, StateStopped)
	metrics.IncStop(name)
	s.sendEvent(history.EventStopped, name, h.PID(), "")

	if killed {
		metrics.IncForcedKill(name)
		terr := &TerminationTimeoutError{Name: name, Grace: s.opts.GracePeriod}
		s.act.Warn(name, terr.Error())
		s.log.Warn("grace period exceeded", "service", name, "grace", s.opts.GracePeriod)
		return s.snapshot(e), terr
	}
	s.act.Info(name, "stopped")
	s.log.Info("service stopped", "service", name)
	return s.snapshot(e), nil
}

// Result is the per-service outcome of a bulk operation.
type Result struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Err    error  `json:"-"`
	Error  string `json:"error,omitempty"`
}

// StartAll starts registry services through the bounded worker pool. With
// autoOnly set only definitions flagged AutoStart are started (launch-time
// behavior). Individual failures never abort the batch.
func (s *Supervisor) StartAll(ctx context.Context, autoOnly bool) []Result {
	var names []string
	for _, d := range s.reg.All() {
		if autoOnly && !d.AutoStart {
			continue
		}
		names = append(names, d.Name)
	}
	return s.runBulk(ctx, names, s.Start)
}

// StopAll stops every registry service through the bounded worker pool.
func (s *Supervisor) StopAll(ctx context.Context) []Result {
	var names []string
	for _, d := range s.reg.All() {
		names = append(names, d.Name)
	}
	return s.runBulk(ctx, names, s.Stop)
}

// StatusOf returns the snapshot of one service as of its most recently
// committed transition. It never waits behind in-flight operations.
func (s *Supervisor) StatusOf(name string) (Status, error) {
	s.mu.RLock()
	e := s.entries[name]
	s.mu.RUnlock()
	if e == nil {
		return Status{}, &UnknownServiceError{Name: name}
	}
	return s.snapshot(e), nil
}

// StatusAll returns snapshots for all services in registry load order.
func (s *Supervisor) StatusAll() []Status {
	defs := s.reg.All()
	out := make([]Status, 0, len(defs))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range defs {
		if e := s.entries[d.Name]; e != nil {
			out = append(out, s.snapshot(e))
		}
	}
	return out
}

func (s *Supervisor) snapshot(e *entry) Status {
	e.mu.Lock()
	h := e.handle
	st := Status{
		Name:      e.name,
		Path:      e.def.Path,
		AutoStart: e.def.AutoStart,
		State:     e.state,
		PID:       e.pid,
		StartedAt: e.startedAt,
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	e.mu.Unlock()
	// Cross-check the committed state against the PID probe; the probe
	// covers the window between the child dying and the reaper committing
	// the exit transition.
	if st.State == StateRunning && h != nil {
		st.Alive = h.Alive()
	}
	return st
}

// Close stops all services and rejects further operations. The closed flag
// is raised before the sweep so a concurrent Start cannot respawn a service
// mid-shutdown; every child is terminated and reaped before Close returns.
func (s *Supervisor) Close(ctx context.Context) []Result {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	var names []string
	for _, d := range s.reg.All() {
		names = append(names, d.Name)
	}
	return s.runBulk(ctx, names, func(name string) (Status, error) {
		s.mu.RLock()
		e := s.entries[name]
		s.mu.RUnlock()
		if e == nil {
			return Status{}, &UnknownServiceError{Name: name}
		}
		return s.stopEntry(e)
	})
}
