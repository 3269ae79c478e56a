// Package cache wraps a kv.Store with a bounded read cache. When the entry
// limit would be exceeded the whole cache is cleared; there is no per-key
// eviction.
//
// A read miss only fills the cache when no write to the same key and no
// clear happened while its backing read was in flight, so a completed
// write is never shadowed by an older value.
package cache

import (
	"context"
	"sync"

	"chatstore/pkg/state/logger"
	"chatstore/pkg/store/kv"
	"chatstore/pkg/store/metrics"

	"github.com/puzpuzpuz/xsync/v3"
)

type entry struct {
	value []byte
	found bool
}

// Store is a kv.Store that caches read outcomes, absence included.
type Store struct {
	backing kv.Store
	limit   int
	entries *xsync.MapOf[string, entry]

	// serializes inserts so the limit check and the insert agree; also
	// guards epoch and writeGen
	insertMu sync.Mutex
	// bumped on every clear
	epoch uint64
	// per-key count of cache updates by Write since the last clear
	writeGen map[string]uint64
	metrics  *metrics.Store
}

type Option func(*Store)

func WithMetrics(ms *metrics.Store) Option {
	return func(s *Store) { s.metrics = ms }
}

// New wraps backing. A limit of zero or less disables caching.
func New(backing kv.Store, limit int, opts ...Option) *Store {
	s := &Store{
		backing:  backing,
		limit:    limit,
		entries:  xsync.NewMapOf[string, entry](),
		writeGen: make(map[string]uint64),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ kv.Store = (*Store)(nil)

func (s *Store) Read(ctx context.Context, key []byte) ([]byte, bool, error) {
	if s.limit <= 0 {
		return s.backing.Read(ctx, key)
	}
	if e, ok := s.entries.Load(string(key)); ok {
		s.metrics.CacheHit()
		return clone(e.value), e.found, nil
	}
	s.metrics.CacheMiss()
	k := string(key)
	s.insertMu.Lock()
	epoch, gen := s.epoch, s.writeGen[k]
	s.insertMu.Unlock()

	v, found, err := s.backing.Read(ctx, key)
	if err != nil {
		return nil, false, err
	}
	s.fill(k, entry{value: clone(v), found: found}, epoch, gen)
	return v, found, nil
}

// fill caches a read result unless a write or a clear landed after the
// read was issued. The value read is still returned to the caller.
func (s *Store) fill(key string, e entry, epoch, gen uint64) {
	s.insertMu.Lock()
	defer s.insertMu.Unlock()
	if s.epoch != epoch || s.writeGen[key] != gen {
		logger.Debug("read_cache_fill_skipped", "key", key)
		return
	}
	if _, ok := s.entries.Load(key); ok {
		return
	}
	s.storeLocked(key, e)
}

func (s *Store) Write(ctx context.Context, key, value []byte) error {
	if err := s.backing.Write(ctx, key, value); err != nil {
		return err
	}
	if s.limit <= 0 {
		return nil
	}
	k := string(key)
	s.insertMu.Lock()
	defer s.insertMu.Unlock()
	s.storeLocked(k, entry{value: clone(value), found: true})
	s.writeGen[k]++
	return nil
}

// storeLocked inserts e, clearing the cache first when key is new and the
// limit is reached. The caller holds insertMu.
func (s *Store) storeLocked(key string, e entry) {
	if _, ok := s.entries.Load(key); !ok && s.entries.Size() >= s.limit {
		logger.Debug("read_cache_flushed", "entries", s.entries.Size(), "limit", s.limit)
		s.clearLocked()
		s.metrics.CacheFlush()
	}
	s.entries.Store(key, e)
	s.metrics.CacheSize(s.entries.Size())
}

func (s *Store) clearLocked() {
	s.entries.Clear()
	s.epoch++
	clear(s.writeGen)
}

// Len is the number of cached keys.
func (s *Store) Len() int {
	return s.entries.Size()
}

// Purge drops every cached entry.
func (s *Store) Purge() {
	s.insertMu.Lock()
	defer s.insertMu.Unlock()
	s.clearLocked()
	s.metrics.CacheSize(0)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
