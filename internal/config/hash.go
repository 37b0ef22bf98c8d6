package config

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"
)

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Fingerprint returns one BLAKE3 digest covering every regular file under the
// given paths. File names, modes and contents all contribute, so adding,
// removing, chmod-ing or editing a file changes the result.
func Fingerprint(paths ...string) (string, error) {
	type entry struct {
		path string
		mode fs.FileMode
	}
	var entries []entry

	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			entries = append(entries, entry{path: path, mode: info.Mode()})
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("fingerprint %s: %w", root, err)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	h := blake3.New()
	for _, e := range entries {
		data, err := os.ReadFile(e.path)
		if err != nil {
			return "", fmt.Errorf("fingerprint %s: %w", e.path, err)
		}
		sum := blake3.Sum256(data)
		fmt.Fprintf(h, "%s\x00%o\x00%x\n", e.path, e.mode.Perm(), sum)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
