package registry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Definition describes one launchable service. Definitions are immutable
// once loaded into a Registry.
type Definition struct {
	Name      string   `json:"name" mapstructure:"name"`
	Path      string   `json:"path" mapstructure:"path"`
	AutoStart bool     `json:"auto_start" mapstructure:"auto_start"`
	Env       []string `json:"env,omitempty" mapstructure:"env"`
}

// DuplicateServiceError is returned by Load when two definitions share a name.
type DuplicateServiceError struct {
	Name string
}

func (e *DuplicateServiceError) Error() string {
	return fmt.Sprintf("duplicate service definition: %s", e.Name)
}

// Registry holds the catalog of known service definitions. It is read-mostly:
// Load is called once at startup (or on settings reload) and all other methods
// are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	defs   []Definition
	byName map[string]Definition
}

func New() *Registry {
	return &Registry{byName: make(map[string]Definition)}
}

// Load replaces the catalog with defs. It fails without mutating state when
// two definitions share a name or a definition is missing a name or path.
func (r *Registry) Load(defs []Definition) error {
	byName := make(map[string]Definition, len(defs))
	normalized := make([]Definition, 0, len(defs))
	for _, d := range defs {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return fmt.Errorf("service definition with empty name (path %q)", d.Path)
		}
		if strings.TrimSpace(d.Path) == "" {
			return fmt.Errorf("service %s: empty path", name)
		}
		if _, ok := byName[name]; ok {
			return &DuplicateServiceError{Name: name}
		}
		d.Name = name
		byName[name] = d
		normalized = append(normalized, d)
	}
	r.mu.Lock()
	r.defs = normalized
	r.byName = byName
	r.mu.Unlock()
	return nil
}

// Get returns the definition for name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	d, ok := r.byName[name]
	r.mu.RUnlock()
	return d, ok
}

// All returns the definitions in load order.
func (r *Registry) All() []Definition {
	r.mu.RLock()
	out := append([]Definition(nil), r.defs...)
	r.mu.RUnlock()
	return out
}

// Len returns the number of loaded definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	n := len(r.defs)
	r.mu.RUnlock()
	return n
}

// Validate checks each definition's path on disk and returns the paths that
// do not exist. It never mutates the registry.
func (r *Registry) Validate() []string {
	var missing []string
	for _, d := range r.All() {
		if _, err := os.Stat(d.Path); err != nil {
			missing = append(missing, d.Path)
		}
	}
	return missing
}

// placeholderScript is what MaterializeMissing writes: a no-op long-running
// stub so a start attempt on a not-yet-deployed service does not fail outright.
const placeholderScript = `#!/bin/sh
# Placeholder service generated by svcpanel. Replace with the real executable.
while true; do
  sleep 60
done
`

// MaterializeMissing writes a placeholder executable for each missing path.
// This is a best-effort convenience: individual write failures are logged and
// do not abort the remaining paths. The first error is returned so callers
// can surface it, but it must not be treated as fatal.
func (r *Registry) MaterializeMissing(paths []string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	var firstErr error
	for _, p := range paths {
		if err := writePlaceholder(p); err != nil {
			log.Warn("failed to materialize placeholder service", "path", p, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		log.Info("materialized placeholder service", "path", p)
	}
	return firstErr
}

func writePlaceholder(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	// Do not clobber an existing file: another writer may have raced us, or
	// validation may be stale.
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(placeholderScript), 0o755) // #nosec G306 -- must be executable
}
