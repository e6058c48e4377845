//go:build windows

package process

// Windows has no process-group signals; both paths fall back to Kill, which
// terminates the direct child only.

func (h *Handle) terminateGroup() error {
	return h.cmd.Process.Kill()
}

func (h *Handle) killGroup() error {
	return h.cmd.Process.Kill()
}
