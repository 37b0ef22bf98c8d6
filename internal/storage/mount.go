package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrRemoteFilesystem reports a database path on a network mount. SQLite's
// file locks are not reliable there.
var ErrRemoteFilesystem = errors.New("state database is on a network filesystem")

// remoteKinds are filesystem names treated as network mounts. Linux magic
// numbers are mapped onto these names in mount_linux.go.
var remoteKinds = map[string]bool{
	"9p":     true,
	"afpfs":  true,
	"afs":    true,
	"ceph":   true,
	"cifs":   true,
	"nfs":    true,
	"smb2":   true,
	"smbfs":  true,
	"webdav": true,
}

type fsKindFunc func(dir string) (string, error)

func requireLocalDisk(path string) error {
	return checkLocalDisk(path, mountKind)
}

func checkLocalDisk(path string, kindOf fsKindFunc) error {
	dir, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve state path %s: %w", path, err)
	}
	kind, err := kindOf(dir)
	if err != nil {
		return fmt.Errorf("inspect mount of %s: %w", dir, err)
	}
	if remoteKinds[strings.ToLower(strings.TrimSpace(kind))] {
		return fmt.Errorf("%w: %s is on %s; point state.path (or HERALD_STATE_PATH) at a local disk",
			ErrRemoteFilesystem, path, kind)
	}
	return nil
}

// existingAncestor walks up from path to the first entry that exists, so a
// database that has not been created yet is judged by its parent mount.
func existingAncestor(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(p)
		switch {
		case err == nil:
			return p, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing directory above %s", path)
		}
		p = parent
	}
}
