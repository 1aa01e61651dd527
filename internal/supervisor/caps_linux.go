package supervisor

import (
	"context"

	"golang.org/x/sys/unix"
)

func defaultEnsureCaps(ctx context.Context, path string) (string, error) {
	return newCapProvisioner(unix.Geteuid).ensure(ctx, path)
}
