//go:build !windows

package process

import "syscall"

// terminateGroup sends SIGTERM to the child's process group.
func (h *Handle) terminateGroup() error {
	return syscall.Kill(-h.pid, syscall.SIGTERM)
}

// killGroup sends SIGKILL to the child's process group.
func (h *Handle) killGroup() error {
	return syscall.Kill(-h.pid, syscall.SIGKILL)
}
