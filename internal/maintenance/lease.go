package maintenance

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chatstore/pkg/state/logger"
)

var ErrNotOwner = errors.New("maintenance: lease held by another owner")

// FileLease is a cross-process lock backed by a file holding the owner and
// an expiry. An expired lease can be taken over.
type FileLease struct {
	path string
	now  func() time.Time
}

type leaseFile struct {
	Owner   string    `json:"owner"`
	Expires time.Time `json:"expires"`
}

func NewFileLease(dir, name string) *FileLease {
	return &FileLease{path: filepath.Join(dir, name+".lock"), now: time.Now}
}

func (l *FileLease) Path() string { return l.path }

// Acquire takes the lease for ttl. It reports false when another owner
// holds an unexpired lease.
func (l *FileLease) Acquire(owner string, ttl time.Duration) (bool, error) {
	now := l.now()
	tmp, err := l.writeTmp(leaseFile{Owner: owner, Expires: now.Add(ttl)})
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp)

	// link fails if the lock file already exists
	if err := os.Link(tmp, l.path); err == nil {
		logger.Debug("lease_acquired", "path", l.path, "owner", owner)
		return true, nil
	}
	existing, err := l.read()
	if err != nil {
		return false, err
	}
	if existing.Owner != owner && existing.Expires.After(now) {
		logger.Info("lease_currently_held", "path", l.path, "owner", existing.Owner)
		return false, nil
	}
	if err := os.Rename(tmp, l.path); err != nil {
		logger.Error("lease_replace_failed", "path", l.path, "error", err)
		return false, err
	}
	logger.Info("lease_acquired_replaced", "path", l.path, "owner", owner, "previous", existing.Owner)
	return true, nil
}

// Renew extends a lease owner already holds.
func (l *FileLease) Renew(owner string, ttl time.Duration) error {
	existing, err := l.read()
	if err != nil {
		return err
	}
	if existing.Owner != owner {
		return ErrNotOwner
	}
	tmp, err := l.writeTmp(leaseFile{Owner: owner, Expires: l.now().Add(ttl)})
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		logger.Error("lease_renew_failed", "path", l.path, "error", err)
		return err
	}
	return nil
}

func (l *FileLease) Release(owner string) error {
	existing, err := l.read()
	if err != nil {
		return err
	}
	if existing.Owner != owner {
		logger.Error("lease_release_not_owner", "owner", owner, "holder", existing.Owner)
		return ErrNotOwner
	}
	if err := os.Remove(l.path); err != nil {
		return fmt.Errorf("release lease %s: %w", l.path, err)
	}
	logger.Debug("lease_released", "path", l.path, "owner", owner)
	return nil
}

func (l *FileLease) read() (leaseFile, error) {
	var lf leaseFile
	data, err := os.ReadFile(l.path)
	if err != nil {
		return lf, err
	}
	if err := json.Unmarshal(data, &lf); err != nil {
		return lf, fmt.Errorf("lease %s: %w", l.path, err)
	}
	return lf, nil
}

func (l *FileLease) writeTmp(lf leaseFile) (string, error) {
	b, err := json.Marshal(lf)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".tmp-*")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
