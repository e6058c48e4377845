package supervisor

import (
	"errors"
	"fmt"
	"time"
)

// ErrClosed rejects operations submitted after Close.
var ErrClosed = errors.New("supervisor is closed")

// UnknownServiceError reports an operation on a name the registry does not know.
type UnknownServiceError struct {
	Name string
}

func (e *UnknownServiceError) Error() string {
	return fmt.Sprintf("unknown service: %s", e.Name)
}

// SpawnError reports an OS-level failure to create the service process
// (missing executable, permission denied, resource limits).
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TerminationTimeoutError reports that a graceful stop exceeded the grace
// period and the process was force killed. The stop itself still completed.
type TerminationTimeoutError struct {
	Name  string
	Grace time.Duration
}

func (e *TerminationTimeoutError) Error() string {
	return fmt.Sprintf("%s did not exit within %s, force killed", e.Name, e.Grace)
}

// AlreadyInStateError marks a no-op transition (start of a running service,
// stop of a stopped one). It is informational, not a failure: operations that
// hit it return success alongside the current status.
type AlreadyInStateError struct {
	Name  string
	State State
}

func (e *AlreadyInStateError) Error() string {
	return fmt.Sprintf("%s is already %s", e.Name, e.State)
}
