//go:build windows

package supervisor

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
)

// interruptPID asks the process to close without /F.
func interruptPID(pid int) error {
	return taskkill("/PID", strconv.Itoa(pid))
}

// killPID ends the process tree.
func killPID(pid int) error {
	return taskkill("/T", "/F", "/PID", strconv.Itoa(pid))
}

func taskkill(args ...string) error {
	out, err := exec.Command("taskkill", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("taskkill %v: %w: %s", args, err, bytes.TrimSpace(out))
	}
	return nil
}
