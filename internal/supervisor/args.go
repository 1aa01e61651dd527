package supervisor

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"n2nmaid/config"
)

const defaultNodeName = "n2nmaid"

// BuildArgs renders the edge command line for cfg on the current platform.
func BuildArgs(cfg config.Config) []string {
	return buildArgs(cfg, nodeName(cfg, os.Hostname), runtime.GOOS == "windows")
}

func buildArgs(cfg config.Config, name string, windows bool) []string {
	var args []string
	// Some Windows edge builds reject -f.
	if !windows {
		args = append(args, "-f")
	}
	args = append(args, "-c", cfg.Community, "-l", cfg.Supernode, "-I", name)
	if cfg.EncryptionKey != "" {
		args = append(args, "-k", cfg.EncryptionKey)
	}
	switch cfg.IPMode {
	case "", config.IPModeDHCP:
		args = append(args, "-a", "dhcp:0.0.0.0")
	case config.IPModeStatic:
		if cfg.StaticIP != "" {
			args = append(args, "-a", cfg.StaticIP)
		}
	}
	if cfg.MTU > 0 {
		args = append(args, "-M", strconv.Itoa(cfg.MTU))
	}
	if cfg.TapDevice != "" {
		args = append(args, "-d", cfg.TapDevice)
	}
	return append(args, strings.Fields(cfg.ExtraArgs)...)
}

// nodeName is the configured username, else the hostname.
func nodeName(cfg config.Config, hostname func() (string, error)) string {
	if name := strings.TrimSpace(cfg.Username); name != "" {
		return name
	}
	if h, err := hostname(); err == nil && strings.TrimSpace(h) != "" {
		return strings.TrimSpace(h)
	}
	return defaultNodeName
}

// EdgePath resolves the edge binary: the configured override, else edge on
// PATH, else the copy bundled under ./bin.
func EdgePath(override string) string {
	return edgePath(override, exec.LookPath, runtime.GOOS == "windows")
}

func edgePath(override string, lookPath func(string) (string, error), windows bool) string {
	if override = strings.TrimSpace(override); override != "" {
		return override
	}
	if p, err := lookPath("edge"); err == nil {
		return p
	}
	if windows {
		return filepath.Join("bin", "edge.exe")
	}
	return "./bin/edge"
}

var secretFlags = map[string]bool{
	"-k":                    true,
	"--management-password": true,
}

// Redact renders args for logging with secret values masked.
func Redact(path string, args []string) string {
	out := make([]string, 0, len(args)+1)
	out = append(out, path)
	for i := 0; i < len(args); i++ {
		out = append(out, args[i])
		if secretFlags[args[i]] && i+1 < len(args) {
			out = append(out, "****")
			i++
		}
	}
	return strings.Join(out, " ")
}
