package activitylog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultMaxEntries caps the retained tail when the caller does not choose one.
const DefaultMaxEntries = 1000

// Entry is one immutable, timestamped operational event. Service is empty for
// global events. Seq is a monotonically increasing insertion number that breaks
// ties between entries sharing a timestamp.
type Entry struct {
	Time    time.Time  `json:"time"`
	Seq     uint64     `json:"seq"`
	Service string     `json:"service,omitempty"`
	Level   slog.Level `json:"level"`
	Message string     `json:"message"`
}

// Log is an append-only, size-capped activity log. Appends are safe under
// concurrent writers; readers get consistent ordered copies. When the cap is
// exceeded the oldest entries are discarded first.
type Log struct {
	mu     sync.Mutex
	buf    []Entry
	seq    uint64
	max    int
	mirror *slog.Logger
}

// New returns a Log retaining at most maxEntries (DefaultMaxEntries if <= 0).
func New(maxEntries int) *Log {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Log{max: maxEntries}
}

// SetMirror makes every appended entry also emit through l. Pass nil to stop.
func (a *Log) SetMirror(l *slog.Logger) {
	a.mu.Lock()
	a.mirror = l
	a.mu.Unlock()
}

// Append records one event. Timestamp and sequence number are assigned under
// the same lock, so the (Time, Seq) order matches the observed append order.
func (a *Log) Append(service string, level slog.Level, msg string) Entry {
	a.mu.Lock()
	a.seq++
	e := Entry{Time: time.Now(), Seq: a.seq, Service: service, Level: level, Message: msg}
	a.buf = append(a.buf, e)
	if len(a.buf) > a.max {
		// Drop oldest; copy to avoid retaining the old backing array forever.
		over := len(a.buf) - a.max
		a.buf = append(a.buf[:0:0], a.buf[over:]...)
	}
	mirror := a.mirror
	a.mu.Unlock()

	if mirror != nil {
		if service != "" {
			mirror.Log(context.Background(), level, msg, "service", service)
		} else {
			mirror.Log(context.Background(), level, msg)
		}
	}
	return e
}

// Infof-style helpers keep call sites terse.

func (a *Log) Info(service, msg string)  { a.Append(service, slog.LevelInfo, msg) }
func (a *Log) Warn(service, msg string)  { a.Append(service, slog.LevelWarn, msg) }
func (a *Log) Error(service, msg string) { a.Append(service, slog.LevelError, msg) }

// Snapshot returns an ordered copy of the retained entries. Writers are only
// blocked for the duration of the copy.
func (a *Log) Snapshot() []Entry {
	a.mu.Lock()
	out := append([]Entry(nil), a.buf...)
	a.mu.Unlock()
	return out
}

// Tail returns the newest n entries in order (all entries when n <= 0 or
// exceeds the retained count).
func (a *Log) Tail(n int) []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n <= 0 || n >= len(a.buf) {
		return append([]Entry(nil), a.buf...)
	}
	return append([]Entry(nil), a.buf[len(a.buf)-n:]...)
}

// Len returns the number of retained entries.
func (a *Log) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf)
}
