//go:build !windows

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/svcpanel/internal/env"
	"github.com/loykin/svcpanel/internal/logger"
	"github.com/loykin/svcpanel/internal/registry"
)

const cooperativeScript = "trap 'exit 0' TERM\nwhile true; do sleep 0.1; done\n"

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755))
	return p
}

// newTestSupervisor builds a registry of cooperative long-running scripts.
func newTestSupervisor(t *testing.T, opts Options, names ...string) *Supervisor {
	t.Helper()
	dir := t.TempDir()
	defs := make([]registry.Definition, 0, len(names))
	for _, n := range names {
		defs = append(defs, registry.Definition{Name: n, Path: writeScript(t, dir, n+".sh", cooperativeScript)})
	}
	reg := registry.New()
	require.NoError(t, reg.Load(defs))
	if opts.GracePeriod == 0 {
		opts.GracePeriod = 3 * time.Second
	}
	s := New(reg, opts)
	t.Cleanup(func() {
		s.Close(context.Background())
	})
	return s
}

func TestStartStopLifecycle(t *testing.T) {
	s := newTestSupervisor(t, Options{}, "auth")

	st, err := s.Start("auth")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st.State)
	assert.NotZero(t, st.PID)

	st, err = s.StatusOf("auth")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st.State)
	assert.NotZero(t, st.PID)
	assert.False(t, st.StartedAt.IsZero())

	st, err = s.Stop("auth")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, st.State)
	assert.Zero(t, st.PID)

	st, err = s.StatusOf("auth")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, st.State)
	assert.Zero(t, st.PID)
}

func TestUnknownService(t *testing.T) {
	s := newTestSupervisor(t, Options{}, "auth")

	var unknown *UnknownServiceError
	_, err := s.Start("ghost")
	require.Error(t, err)
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "ghost", unknown.Name)

	_, err = s.Stop("ghost")
	require.True(t, errors.As(err, &unknown))
	_, err = s.StatusOf("ghost")
	require.True(t, errors.As(err, &unknown))
}

func TestSpawnFailureIsIsolated(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	require.NoError(t, reg.Load([]registry.Definition{
		{Name: "broken", Path: filepath.Join(dir, "does-not-exist.sh")},
		{Name: "healthy", Path: writeScript(t, dir, "healthy.sh", cooperativeScript)},
	}))
	s := New(reg, Options{GracePeriod: 3 * time.Second})
	t.Cleanup(func() { s.Close(context.Background()) })

	_, err := s.Start("broken")
	var spawn *SpawnError
	require.Error(t, err)
	require.True(t, errors.As(err, &spawn))
	assert.Equal(t, "broken", spawn.Name)

	st, err := s.StatusOf("broken")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st.State)
	assert.NotEmpty(t, st.LastError)

	// The failure must not affect the sibling service.
	st, err = s.Start("healthy")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st.State)

	// A failed service can be retried after the path appears.
	writeScript(t, dir, "does-not-exist.sh", cooperativeScript)
	st, err = s.Start("broken")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st.State)
}

func TestConcurrentDuplicateStartSpawnsOnce(t *testing.T) {
	s := newTestSupervisor(t, Options{}, "auth")

	const callers = 10
	var wg sync.WaitGroup
	pids := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := s.Start("auth")
			assert.NoError(t, err)
			pids[i] = st.PID
		}(i)
	}
	wg.Wait()

	first := pids[0]
	require.NotZero(t, first)
	for _, pid := range pids {
		assert.Equal(t, first, pid, "every caller must observe the single spawned process")
	}
}

func TestStopWithoutProcessIsNoop(t *testing.T) {
	s := newTestSupervisor(t, Options{}, "auth")
	st, err := s.Stop("auth")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, st.State)
}

func TestTerminationTimeoutEscalates(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	require.NoError(t, reg.Load([]registry.Definition{
		{Name: "stubborn", Path: writeScript(t, dir, "stubborn.sh", "trap '' TERM\nwhile true; do sleep 0.1; done\n")},
	}))
	s := New(reg, Options{GracePeriod: 300 * time.Millisecond})
	t.Cleanup(func() { s.Close(context.Background()) })

	_, err := s.Start("stubborn")
	require.NoError(t, err)

	st, err := s.Stop("stubborn")
	var timeout *TerminationTimeoutError
	require.Error(t, err)
	require.True(t, errors.As(err, &timeout))
	// The stop still completed despite the escalation.
	assert.Equal(t, StateStopped, st.State)
	assert.Zero(t, st.PID)
}

func TestUnexpectedAbnormalExitTransitionsToFailed(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	require.NoError(t, reg.Load([]registry.Definition{
		{Name: "crasher", Path: writeScript(t, dir, "crasher.sh", "sleep 0.2\nexit 3\n")},
	}))
	s := New(reg, Options{GracePeriod: time.Second})
	t.Cleanup(func() { s.Close(context.Background()) })

	_, err := s.Start("crasher")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := s.StatusOf("crasher")
		return err == nil && st.State == StateFailed
	}, 5*time.Second, 20*time.Millisecond, "abnormal exit must surface as Failed")

	st, _ := s.StatusOf("crasher")
	assert.Contains(t, st.LastError, "exit status 3")
}

func TestUnexpectedCleanExitTransitionsToStopped(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	require.NoError(t, reg.Load([]registry.Definition{
		{Name: "oneshot", Path: writeScript(t, dir, "oneshot.sh", "sleep 0.2\nexit 0\n")},
	}))
	s := New(reg, Options{GracePeriod: time.Second})
	t.Cleanup(func() { s.Close(context.Background()) })

	_, err := s.Start("oneshot")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := s.StatusOf("oneshot")
		return err == nil && st.State == StateStopped
	}, 5*time.Second, 20*time.Millisecond)
}

func TestPublisherSeesOrderedTransitions(t *testing.T) {
	s := newTestSupervisor(t, Options{}, "auth")

	var mu sync.Mutex
	var seen []StateChange
	s.Subscribe(PublisherFunc(func(service string, prev, next State) {
		mu.Lock()
		seen = append(seen, StateChange{Service: service, Prev: prev, Next: next})
		mu.Unlock()
	}))

	_, err := s.Start("auth")
	require.NoError(t, err)
	_, err = s.Stop("auth")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	want := []StateChange{
		{Service: "auth", Prev: StateStopped, Next: StateStarting},
		{Service: "auth", Prev: StateStarting, Next: StateRunning},
		{Service: "auth", Prev: StateRunning, Next: StateStopping},
		{Service: "auth", Prev: StateStopping, Next: StateStopped},
	}
	assert.Equal(t, want, seen)
}

func TestAutoStartScenario(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	require.NoError(t, reg.Load([]registry.Definition{
		{Name: "auth", Path: writeScript(t, dir, "auth.sh", cooperativeScript), AutoStart: true},
		{Name: "data", Path: writeScript(t, dir, "data.sh", cooperativeScript)},
	}))
	s := New(reg, Options{GracePeriod: 3 * time.Second})
	t.Cleanup(func() { s.Close(context.Background()) })

	// Launch-time StartAll starts only the auto-start flagged service.
	res := s.StartAll(context.Background(), true)
	require.Len(t, res, 1)
	require.NoError(t, res[0].Err)
	assert.Equal(t, "auth", res[0].Name)

	st, _ := s.StatusOf("auth")
	assert.Equal(t, StateRunning, st.State)
	st, _ = s.StatusOf("data")
	assert.Equal(t, StateStopped, st.State)

	// Explicit start brings up the second service.
	st, err := s.Start("data")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st.State)

	// StopAll stops both; final statuses are Stopped with no pid.
	for _, r := range s.StopAll(context.Background()) {
		require.NoError(t, r.Err)
	}
	for _, st := range s.StatusAll() {
		assert.Equal(t, StateStopped, st.State, st.Name)
		assert.Zero(t, st.PID, st.Name)
	}

	// The activity log reflects the transitions in a totally ordered tail.
	entries := s.Activity().Snapshot()
	require.NotEmpty(t, entries)
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Time.Before(entries[i-1].Time))
		assert.Greater(t, entries[i].Seq, entries[i-1].Seq)
	}
	var messages []string
	for _, e := range entries {
		if e.Service == "auth" {
			messages = append(messages, e.Message)
		}
	}
	assert.Equal(t, []string{"starting", fmt.Sprintf("started (pid %d)", pidFromLog(messages)), "stopping", "stopped"}, messages)
}

// pidFromLog extracts the pid recorded in the "started (pid N)" entry.
func pidFromLog(messages []string) int {
	for _, m := range messages {
		var pid int
		if _, err := fmt.Sscanf(m, "started (pid %d)", &pid); err == nil {
			return pid
		}
	}
	return 0
}

func TestCloseRejectsFurtherOperations(t *testing.T) {
	s := newTestSupervisor(t, Options{}, "auth")
	_, err := s.Start("auth")
	require.NoError(t, err)

	for _, r := range s.Close(context.Background()) {
		require.NoError(t, r.Err)
	}
	_, err = s.Start("auth")
	require.ErrorIs(t, err, ErrClosed)
}

func TestCloseWinsOverConcurrentStarts(t *testing.T) {
	s := newTestSupervisor(t, Options{}, "auth")
	_, err := s.Start("auth")
	require.NoError(t, err)

	// Hammer Start while Close sweeps; no attempt may respawn the service
	// behind the sweep.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 25; i++ {
			_, _ = s.Start("auth")
		}
	}()
	for _, r := range s.Close(context.Background()) {
		require.NoError(t, r.Err)
	}
	wg.Wait()

	st, err := s.StatusOf("auth")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, st.State)
	assert.Zero(t, st.PID)
}

func TestStatusCarriesLivenessProbe(t *testing.T) {
	s := newTestSupervisor(t, Options{}, "auth")

	st, err := s.Start("auth")
	require.NoError(t, err)
	require.Equal(t, StateRunning, st.State)
	assert.True(t, st.Alive)

	st, err = s.Stop("auth")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, st.State)
	assert.False(t, st.Alive)
}

func TestStartComposesChildEnvironment(t *testing.T) {
	dir := t.TempDir()
	logDir := t.TempDir()
	script := writeScript(t, dir, "envsvc.sh",
		"echo \"${GREETING}-${PORT}\"\ntrap 'exit 0' TERM\nwhile true; do sleep 0.1; done\n")

	reg := registry.New()
	require.NoError(t, reg.Load([]registry.Definition{
		{Name: "envsvc", Path: script, Env: []string{"PORT=9001"}},
	}))

	ev := env.New()
	ev.Set("GREETING", "hello")
	s := New(reg, Options{
		GracePeriod: 3 * time.Second,
		Env:         ev,
		ChildLog:    logger.Config{Dir: logDir},
	})
	t.Cleanup(func() { s.Close(context.Background()) })

	_, err := s.Start("envsvc")
	require.NoError(t, err)

	stdout := filepath.Join(logDir, "envsvc.stdout.log")
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(stdout)
		return err == nil && strings.Contains(string(b), "hello-9001")
	}, 5*time.Second, 50*time.Millisecond)
}
