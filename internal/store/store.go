package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record or setting does not exist.
var ErrNotFound = errors.New("store: not found")

// Record is the last known state we persist for a supervised service.
// UpdatedAt should be in UTC.
type Record struct {
	Name      string
	State     string
	PID       int
	StartedAt time.Time
	UpdatedAt time.Time
}

// Store persists last known service states and panel settings such as
// max_workers and grace_period. Implementations must be safe for concurrent
// use.
type Store interface {
	EnsureSchema(ctx context.Context) error
	UpsertState(ctx context.Context, rec Record) error
	GetState(ctx context.Context, name string) (Record, error)
	ListStates(ctx context.Context) ([]Record, error)
	SetSetting(ctx context.Context, key, value string) error
	GetSetting(ctx context.Context, key string) (string, error)
	Settings(ctx context.Context) (map[string]string, error)
	Close() error
}
