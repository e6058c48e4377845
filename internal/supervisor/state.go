package supervisor

import "time"

// State is the lifecycle state of one supervised service. A service holds
// exactly one state at any instant; all transitions for a service are totally
// ordered by its per-service operation lock.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateFailed   State = "failed"
)

// Status is a torn-free snapshot of one service as of its most recently
// committed transition.
type Status struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	AutoStart bool      `json:"auto_start"`
	State     State     `json:"state"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	// Alive is a PID-level liveness probe taken at snapshot time and is
	// only meaningful while State is running.
	Alive bool `json:"alive,omitempty"`
}
