// Package locks hands out named mutexes for callers that must serialize
// mutations per entity.
package locks

import (
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Keyed is a set of mutexes addressed by name. An entry exists only while
// someone holds or waits on it. The zero value is ready to use.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

// Lock blocks until the mutex for name is held and returns the function
// that releases it. The returned function must be called exactly once.
func (k *Keyed) Lock(name string) func() {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[string]*entry)
	}
	e, ok := k.entries[name]
	if !ok {
		e = &entry{}
		k.entries[name] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.entries, name)
			}
			k.mu.Unlock()
		})
	}
}

// Len is the number of names currently held or awaited.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
