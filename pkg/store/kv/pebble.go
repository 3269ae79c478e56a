package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatstore/pkg/state/logger"
	"chatstore/pkg/store/metrics"

	"github.com/cockroachdb/pebble"
)

const syncMarkerKey = "__chatstore_wal_sync_marker__"

// PebbleOptions tunes the pebble backend.
type PebbleOptions struct {
	DisableWAL   bool
	Sync         bool
	MemTableSize uint64
	Metrics      *metrics.Store
}

// Pebble is a Store over a pebble database.
type Pebble struct {
	db      *pebble.DB
	path    string
	sync    bool
	walOff  bool
	metrics *metrics.Store
}

// OpenPebble opens or creates a pebble database at path.
func OpenPebble(path string, o PebbleOptions) (*Pebble, error) {
	opts := &pebble.Options{
		DisableWAL: o.DisableWAL,
	}
	if o.MemTableSize > 0 {
		opts.MemTableSize = o.MemTableSize
	}
	if o.DisableWAL {
		logger.Warn("durability_disabled", "durability", "pebble WAL disabled", "path", path)
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("pebble_opened", "path", path, "wal_disabled", o.DisableWAL, "sync", o.Sync)
	return &Pebble{db: db, path: path, sync: o.Sync, walOff: o.DisableWAL, metrics: o.Metrics}, nil
}

// Close flushes memtables and closes the database.
func (p *Pebble) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	if err := p.db.Flush(); err != nil {
		logger.Error("pebble_flush_failed", "error", err)
	}
	if err := p.db.Close(); err != nil {
		return err
	}
	p.db = nil
	logger.Info("pebble_closed", "path", p.path)
	return nil
}

// Ready reports whether the database is open.
func (p *Pebble) Ready() bool {
	return p != nil && p.db != nil
}

// IsNotFound reports whether err is pebble's not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

func (p *Pebble) writeOpt() *pebble.WriteOptions {
	if p.sync && !p.walOff {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (p *Pebble) Read(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if len(key) == 0 {
		return nil, false, ErrEmptyKey
	}
	if !p.Ready() {
		return nil, false, fmt.Errorf("pebble not opened; call kv.OpenPebble first")
	}
	v, closer, err := p.db.Get(key)
	if err != nil {
		if IsNotFound(err) {
			p.metrics.KV("read", metrics.ResultMiss)
			logger.Debug("get_key_missing", "key", string(key))
			return nil, false, nil
		}
		p.metrics.KV("read", metrics.ResultError)
		logger.Error("get_key_failed", "key", string(key), "error", err)
		return nil, false, fmt.Errorf("pebble get %q: %w", key, err)
	}
	out := clone(v)
	if closer != nil {
		_ = closer.Close()
	}
	if out == nil {
		out = []byte{}
	}
	p.metrics.KV("read", metrics.ResultOK)
	return out, true, nil
}

func (p *Pebble) Write(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if !p.Ready() {
		return fmt.Errorf("pebble not opened; call kv.OpenPebble first")
	}
	if err := p.db.Set(key, value, p.writeOpt()); err != nil {
		p.metrics.KV("write", metrics.ResultError)
		logger.Error("save_key_failed", "key", string(key), "error", err)
		return fmt.Errorf("pebble set %q: %w", key, err)
	}
	p.metrics.KV("write", metrics.ResultOK)
	logger.Debug("save_key_ok", "key", string(key), "len", len(value))
	return nil
}

// ForceSync writes a marker with a synced write so that everything before
// it is durable. It is a no-op when the WAL is disabled.
func (p *Pebble) ForceSync() error {
	if !p.Ready() {
		return fmt.Errorf("pebble not opened; call kv.OpenPebble first")
	}
	if p.walOff {
		logger.Debug("pebble_force_sync_noop_wal_disabled")
		return nil
	}
	val := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	if err := p.db.Set([]byte(syncMarkerKey), val, pebble.Sync); err != nil {
		logger.Error("pebble_force_sync_failed", "error", err)
		return err
	}
	return nil
}
