package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// EnsureStateDirs creates the runtime layout under the paths' root. Every
// directory must be a real directory, not a symlink, and writable.
func EnsureStateDirs(p Paths) error {
	for _, dir := range p.all() {
		if err := os.MkdirAll(filepath.Dir(dir), 0o700); err != nil {
			return fmt.Errorf("cannot create parent for %s: %w", dir, err)
		}
		if fi, err := os.Lstat(dir); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink: %s", dir)
			}
			if !fi.IsDir() {
				return fmt.Errorf("path exists and is not a directory: %s", dir)
			}
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("cannot create path %s: %w", dir, err)
		}
		tmp, err := os.CreateTemp(dir, ".validate-*")
		if err != nil {
			return fmt.Errorf("path not writable: %s: %w", dir, err)
		}
		tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	return nil
}

// Setup resolves dbPath and ensures its layout exists.
func Setup(dbPath string) (Paths, error) {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = "./database"
	}
	p := PathsFor(filepath.Clean(path))
	return p, EnsureStateDirs(p)
}

var (
	PathsVar Paths
	initOnce sync.Once
	initErr  error
)

// Init runs Setup once per process and publishes the result in PathsVar.
func Init(dbPath string) error {
	initOnce.Do(func() {
		PathsVar, initErr = Setup(dbPath)
	})
	return initErr
}
