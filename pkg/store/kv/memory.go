package kv

import (
	"context"
	"sync"
	"sync/atomic"

	"chatstore/pkg/store/metrics"
)

// Memory is an in-process Store. Besides embedded use it backs most unit
// tests: it counts operations and can be told to fail.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte

	reads  atomic.Int64
	writes atomic.Int64

	failMu    sync.RWMutex
	readFail  error
	writeFail error

	metrics *metrics.Store
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// WithMetrics attaches kv operation counters.
func (m *Memory) WithMetrics(ms *metrics.Store) *Memory {
	m.metrics = ms
	return m
}

func (m *Memory) Read(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if len(key) == 0 {
		return nil, false, ErrEmptyKey
	}
	m.reads.Add(1)
	m.failMu.RLock()
	fail := m.readFail
	m.failMu.RUnlock()
	if fail != nil {
		m.metrics.KV("read", metrics.ResultError)
		return nil, false, fail
	}
	m.mu.RLock()
	v, ok := m.data[string(key)]
	m.mu.RUnlock()
	if !ok {
		m.metrics.KV("read", metrics.ResultMiss)
		return nil, false, nil
	}
	m.metrics.KV("read", metrics.ResultOK)
	return clone(v), true, nil
}

func (m *Memory) Write(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	m.writes.Add(1)
	m.failMu.RLock()
	fail := m.writeFail
	m.failMu.RUnlock()
	if fail != nil {
		m.metrics.KV("write", metrics.ResultError)
		return fail
	}
	m.mu.Lock()
	m.data[string(key)] = clone(value)
	m.mu.Unlock()
	m.metrics.KV("write", metrics.ResultOK)
	return nil
}

// FailReads makes every subsequent Read return err. Pass nil to clear.
func (m *Memory) FailReads(err error) {
	m.failMu.Lock()
	m.readFail = err
	m.failMu.Unlock()
}

// FailWrites makes every subsequent Write return err. Pass nil to clear.
func (m *Memory) FailWrites(err error) {
	m.failMu.Lock()
	m.writeFail = err
	m.failMu.Unlock()
}

// Reads is the number of Read calls that reached the store.
func (m *Memory) Reads() int64 { return m.reads.Load() }

// Writes is the number of Write calls that reached the store.
func (m *Memory) Writes() int64 { return m.writes.Load() }

// Len is the number of distinct keys ever written.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Keys returns a snapshot of all keys, for diagnostics.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out
}
