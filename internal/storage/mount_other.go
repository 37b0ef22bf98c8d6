//go:build !darwin && !linux

package storage

// mountKind cannot inspect mounts on this platform; every path counts as local.
func mountKind(string) (string, error) {
	return "local", nil
}
