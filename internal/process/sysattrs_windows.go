//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr detaches the child into its own process group on
// Windows so console control events do not propagate from the supervisor.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
