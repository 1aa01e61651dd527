//go:build !linux

package supervisor

import "context"

// Only Linux edges rely on file capabilities.
func defaultEnsureCaps(_ context.Context, path string) (string, error) {
	return path, nil
}
