//go:build !windows

package supervisor

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"

	"golang.org/x/sys/unix"
)

func interruptPID(pid int) error { return signalPID(pid, unix.SIGINT, "INT") }

func killPID(pid int) error { return signalPID(pid, unix.SIGKILL, "KILL") }

// signalPID delivers sig to pid. The edge drops privileges after opening its
// tap device, so a direct signal may be refused; pkexec is tried then.
func signalPID(pid int, sig unix.Signal, name string) error {
	err := unix.Kill(pid, sig)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	if !errors.Is(err, unix.EPERM) {
		return fmt.Errorf("send SIG%s to %d: %w", name, pid, err)
	}

	slog.Info("Direct signal refused, retrying through pkexec.", "pid", pid, "signal", name)
	out, err := exec.Command("pkexec", "kill", "-s", name, strconv.Itoa(pid)).CombinedOutput()
	if err != nil {
		return fmt.Errorf("pkexec kill -s %s %d: %w: %s", name, pid, err, bytes.TrimSpace(out))
	}
	return nil
}
