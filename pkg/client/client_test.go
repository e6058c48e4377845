//go:build !windows

package client

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/svcpanel/internal/activitylog"
	"github.com/loykin/svcpanel/internal/registry"
	"github.com/loykin/svcpanel/internal/server"
	"github.com/loykin/svcpanel/internal/supervisor"
)

func newTestDaemon(t *testing.T, names ...string) *Client {
	t.Helper()
	dir := t.TempDir()
	defs := make([]registry.Definition, 0, len(names))
	for _, n := range names {
		p := filepath.Join(dir, n+".sh")
		script := "#!/bin/sh\ntrap 'exit 0' TERM\nwhile true; do sleep 0.1; done\n"
		require.NoError(t, os.WriteFile(p, []byte(script), 0o755))
		defs = append(defs, registry.Definition{Name: n, Path: p, AutoStart: true})
	}
	reg := registry.New()
	require.NoError(t, reg.Load(defs))
	sup := supervisor.New(reg, supervisor.Options{
		GracePeriod: 3 * time.Second,
		Activity:    activitylog.New(100),
	})
	t.Cleanup(func() { sup.Close(context.Background()) })
	ts := httptest.NewServer(server.NewRouter(sup, "/api").Handler())
	t.Cleanup(ts.Close)
	return New(Config{BaseURL: ts.URL + "/api"})
}

func TestClientLifecycle(t *testing.T) {
	c := newTestDaemon(t, "auth")
	ctx := context.Background()

	require.True(t, c.IsReachable(ctx))

	defs, err := c.Services(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "auth", defs[0].Name)

	st, err := c.Start(ctx, "auth")
	require.NoError(t, err)
	assert.Equal(t, "running", st.State)
	assert.NotZero(t, st.PID)

	st, err = c.Status(ctx, "auth")
	require.NoError(t, err)
	assert.Equal(t, "running", st.State)

	res, err := c.Stop(ctx, "auth")
	require.NoError(t, err)
	assert.Equal(t, "stopped", res.Status.State)
	assert.Empty(t, res.Warning)
}

func TestClientStopWarningOnForcedKill(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "stubborn.sh")
	script := "#!/bin/sh\ntrap '' TERM\nwhile true; do sleep 0.1; done\n"
	require.NoError(t, os.WriteFile(p, []byte(script), 0o755))
	reg := registry.New()
	require.NoError(t, reg.Load([]registry.Definition{{Name: "stubborn", Path: p}}))
	sup := supervisor.New(reg, supervisor.Options{
		GracePeriod: 300 * time.Millisecond,
		Activity:    activitylog.New(100),
	})
	t.Cleanup(func() { sup.Close(context.Background()) })
	ts := httptest.NewServer(server.NewRouter(sup, "/api").Handler())
	t.Cleanup(ts.Close)
	c := New(Config{BaseURL: ts.URL + "/api"})

	ctx := context.Background()
	_, err := c.Start(ctx, "stubborn")
	require.NoError(t, err)

	res, err := c.Stop(ctx, "stubborn")
	require.NoError(t, err)
	assert.Equal(t, "stopped", res.Status.State)
	assert.Contains(t, res.Warning, "force killed")
}

func TestClientBulkAndLog(t *testing.T) {
	c := newTestDaemon(t, "auth", "data")
	ctx := context.Background()

	results, err := c.StartAll(ctx, true)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Empty(t, r.Error)
		assert.Equal(t, "running", r.Status.State)
	}

	sts, err := c.StatusAll(ctx)
	require.NoError(t, err)
	require.Len(t, sts, 2)

	entries, err := c.Log(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	tail, err := c.Log(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, tail, 1)
	assert.Equal(t, entries[len(entries)-1].Seq, tail[0].Seq)

	results, err = c.StopAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	_, err = c.Start(ctx, "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown service")
}

func TestClientUnreachable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 500 * time.Millisecond})
	assert.False(t, c.IsReachable(context.Background()))
	_, err := c.StatusAll(context.Background())
	require.Error(t, err)
}
