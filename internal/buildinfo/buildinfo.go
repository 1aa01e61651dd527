// Package buildinfo carries values stamped at link time.
package buildinfo

import "runtime/debug"

// Version is set with -ldflags "-X n2nmaid/internal/buildinfo.Version=...".
var Version = "dev"

func init() {
	if Version != "dev" {
		return
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		Version = bi.Main.Version
	}
}
