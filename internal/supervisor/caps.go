package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// edgeCaps are the file capabilities an unprivileged edge needs to create
// its tap device and drop privileges afterwards.
var edgeCaps = []string{"cap_net_admin", "cap_net_raw", "cap_setuid", "cap_setgid"}

// ErrCapsMissing reports that the edge binary lacks its capabilities and
// they could not be granted.
var ErrCapsMissing = errors.New("edge capabilities missing")

// capProvisioner grants the edge binary its capabilities through pkexec
// setcap when the supervisor does not run as root.
type capProvisioner struct {
	euid     func() int
	lookPath func(file string) (string, error)
	run      func(ctx context.Context, name string, args ...string) ([]byte, error)
	log      *slog.Logger
}

func newCapProvisioner(euid func() int) capProvisioner {
	return capProvisioner{
		euid:     euid,
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
		log: slog.With("component", "capabilities"),
	}
}

// ensure returns the resolved edge path once the binary carries edgeCaps.
func (c capProvisioner) ensure(ctx context.Context, path string) (string, error) {
	if c.euid() == 0 {
		return path, nil
	}
	if !strings.Contains(path, "/") {
		resolved, err := c.lookPath(path)
		if err != nil {
			return path, fmt.Errorf("%w: resolve %s: %w", ErrCapsMissing, path, err)
		}
		path = resolved
	}

	if getcap, err := c.lookPath("getcap"); err == nil {
		out, err := c.run(ctx, getcap, path)
		if err == nil && hasCaps(string(out)) {
			return path, nil
		}
	}

	pkexec, err := c.lookPath("pkexec")
	if err != nil {
		return path, fmt.Errorf("%w: pkexec not found", ErrCapsMissing)
	}
	setcap, err := c.lookPath("setcap")
	if err != nil {
		return path, fmt.Errorf("%w: setcap not found", ErrCapsMissing)
	}

	c.log.Info("Granting edge capabilities.", "path", path)
	spec := strings.Join(edgeCaps, ",") + "+eip"
	if out, err := c.run(ctx, pkexec, setcap, spec, path); err != nil {
		return path, fmt.Errorf("%w: setcap %s: %w: %s", ErrCapsMissing, path, err, bytes.TrimSpace(out))
	}
	return path, nil
}

func hasCaps(getcapOut string) bool {
	for _, c := range edgeCaps {
		if !strings.Contains(getcapOut, c) {
			return false
		}
	}
	return true
}
