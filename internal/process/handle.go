package process

import (
	"io"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Handle wraps one running child process. A Handle is created only after a
// successful spawn and never outlives the underlying OS process: a single
// reaper goroutine owns cmd.Wait and closes waitDone once the exit status has
// been collected, so the child is never left as a zombie.
type Handle struct {
	name      string
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	waitDone  chan struct{}

	mu      sync.Mutex
	exitErr error
	exited  bool

	outW io.WriteCloser
	errW io.WriteCloser
}

// Launch spawns path as a detached child in its own process group so that the
// child's exit cannot take the supervisor down and the whole group can be
// signalled at once. A non-empty env replaces the inherited environment. out
// and errw, when non-nil, receive the child's stdout and stderr and are closed
// by the reaper after exit.
func Launch(name, path string, env []string, out, errw io.WriteCloser) (*Handle, error) {
	// Definition paths are filesystem locations, never $PATH lookups, so a
	// bare name is anchored to the working directory before exec.Command
	// would hand it to LookPath.
	if filepath.Base(path) == path {
		path = "." + string(filepath.Separator) + path
	}
	// #nosec G204 -- path comes from the validated registry
	cmd := exec.Command(path)
	configureSysProcAttr(cmd)
	if len(env) > 0 {
		cmd.Env = env
	}
	// nil Stdout/Stderr already discard to the null device.
	cmd.Stdout = out
	cmd.Stderr = errw

	if err := cmd.Start(); err != nil {
		closeBoth(out, errw)
		return nil, err
	}
	h := &Handle{
		name:      name,
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		waitDone:  make(chan struct{}),
		outW:      out,
		errW:      errw,
	}
	go h.reap()
	return h, nil
}

// reap collects the exit status exactly once and closes waitDone afterwards.
func (h *Handle) reap() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.exitErr = err
	h.exited = true
	h.mu.Unlock()
	closeBoth(h.outW, h.errW)
	close(h.waitDone)
}

// Name returns the owning service name.
func (h *Handle) Name() string { return h.name }

// PID returns the child's process id.
func (h *Handle) PID() int { return h.pid }

// StartedAt returns the spawn time.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Done returns a channel closed once the child has exited and been reaped.
func (h *Handle) Done() <-chan struct{} { return h.waitDone }

// ExitErr returns the error recorded by the reaper, nil while still running
// or after a clean exit.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Exited reports whether the reaper has observed the child's exit.
func (h *Handle) Exited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

// Alive probes liveness. The reaper is authoritative for children we spawned;
// the PID probe guards against the short window before the reaper runs.
func (h *Handle) Alive() bool {
	select {
	case <-h.waitDone:
		return false
	default:
	}
	if ok, err := gopsproc.PidExists(int32(h.pid)); err == nil && !ok {
		return false
	}
	return true
}

// Terminate requests cooperative shutdown, waits up to grace, and escalates
// to a forceful kill when the child has not exited in time. It returns only
// after the reaper has collected the exit status (or a short hard cap after
// SIGKILL, which cannot be ignored). killed reports whether escalation was
// needed.
func (h *Handle) Terminate(grace time.Duration) (killed bool, exitErr error) {
	select {
	case <-h.waitDone:
		return false, h.ExitErr()
	default:
	}
	_ = h.terminateGroup()
	select {
	case <-h.waitDone:
		return false, h.ExitErr()
	case <-time.After(grace):
	}
	_ = h.killGroup()
	select {
	case <-h.waitDone:
	case <-time.After(2 * time.Second):
		// best-effort: SIGKILL is not ignorable, the reaper will finish
	}
	return true, h.ExitErr()
}

func closeBoth(a, b io.WriteCloser) {
	if a != nil {
		_ = a.Close()
	}
	if b != nil {
		_ = b.Close()
	}
}
