// Package keylock serialises work on composite keys. Each key in use owns a
// mutex; callers on different keys never wait for each other, and a key's
// mutex is dropped once its last holder or waiter unlocks.
package keylock

import (
	"strings"
	"sync"
)

// Map hands out per-key locks. The zero value is ready to use.
type Map struct {
	mu   sync.Mutex
	keys map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until the key made of parts is free and returns the function
// that releases it.
func (m *Map) Lock(parts ...string) (unlock func()) {
	key := strings.Join(parts, "\x00")

	m.mu.Lock()
	if m.keys == nil {
		m.keys = make(map[string]*entry)
	}
	e, ok := m.keys[key]
	if !ok {
		e = &entry{}
		m.keys[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		m.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(m.keys, key)
		}
		m.mu.Unlock()
	}
}

// Len reports how many keys are held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}
