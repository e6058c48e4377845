package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRejectsDuplicates(t *testing.T) {
	r := New()
	err := r.Load([]Definition{
		{Name: "auth", Path: "/tmp/auth.sh"},
		{Name: "auth", Path: "/tmp/other.sh"},
	})
	require.Error(t, err)
	var dup *DuplicateServiceError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "auth", dup.Name)
	// failed load must not mutate state
	assert.Equal(t, 0, r.Len())
}

func TestLoadRejectsEmptyNameAndPath(t *testing.T) {
	r := New()
	require.Error(t, r.Load([]Definition{{Name: "", Path: "/tmp/x"}}))
	require.Error(t, r.Load([]Definition{{Name: "x", Path: ""}}))
}

func TestLoadAndLookup(t *testing.T) {
	r := New()
	defs := []Definition{
		{Name: "auth", Path: "/tmp/auth.sh", AutoStart: true},
		{Name: "data", Path: "/tmp/data.sh"},
	}
	require.NoError(t, r.Load(defs))

	d, ok := r.Get("auth")
	require.True(t, ok)
	assert.True(t, d.AutoStart)

	_, ok = r.Get("nope")
	assert.False(t, ok)

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "auth", all[0].Name)
	assert.Equal(t, "data", all[1].Name)
}

func TestLoadNormalizesStoredNames(t *testing.T) {
	r := New()
	require.NoError(t, r.Load([]Definition{{Name: "  auth  ", Path: "/tmp/auth.sh"}}))

	d, ok := r.Get("auth")
	require.True(t, ok)
	assert.Equal(t, "auth", d.Name)

	// The ordered catalog must carry the same trimmed name as the lookup map.
	all := r.All()
	require.Len(t, all, 1)
	assert.Equal(t, "auth", all[0].Name)
}

func TestValidateReportsMissingPaths(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.sh")
	require.NoError(t, os.WriteFile(present, []byte("#!/bin/sh\n"), 0o755))
	missing := filepath.Join(dir, "missing.sh")

	r := New()
	require.NoError(t, r.Load([]Definition{
		{Name: "present", Path: present},
		{Name: "missing", Path: missing},
	}))
	got := r.Validate()
	assert.Equal(t, []string{missing}, got)
}

func TestMaterializeMissingWritesExecutableStub(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "svc", "stub.sh")

	r := New()
	require.NoError(t, r.MaterializeMissing([]string{p}, nil))

	fi, err := os.Stat(p)
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&0o111, "placeholder must be executable")

	// second call is a no-op and keeps the existing file
	require.NoError(t, os.WriteFile(p, []byte("custom"), 0o755))
	require.NoError(t, r.MaterializeMissing([]string{p}, nil))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "custom", string(b))
}
