package client

import (
	"time"
)

// ServiceDefinition mirrors one configured service as reported by the daemon.
type ServiceDefinition struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	AutoStart bool   `json:"auto_start"`
}

// ServiceStatus is the daemon's snapshot of one supervised service.
type ServiceStatus struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	AutoStart bool      `json:"auto_start"`
	State     string    `json:"state"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Alive     bool      `json:"alive,omitempty"`
}

// BulkResult is the per-service outcome of a start-all or stop-all call.
type BulkResult struct {
	Name   string        `json:"name"`
	Status ServiceStatus `json:"status"`
	Error  string        `json:"error,omitempty"`
}

// LogEntry is one line of the daemon's activity log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Seq     uint64    `json:"seq"`
	Service string    `json:"service,omitempty"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// StopResult carries a stop outcome plus an optional forced-kill warning.
type StopResult struct {
	Status  ServiceStatus `json:"status"`
	Warning string        `json:"warning,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
