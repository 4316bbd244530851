package keylock

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLock_SerialisesSameKey(t *testing.T) {
	var m Map
	var wg sync.WaitGroup
	n := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("p1", "bol.com")
			n++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, n)
	assert.Equal(t, 0, m.Len())
}

func TestLock_DifferentKeysDoNotBlock(t *testing.T) {
	var m Map
	unlock := m.Lock("coolblue.nl", "price", ".sales-price")
	defer unlock()

	done := make(chan struct{})
	go func() {
		for i := range 500 {
			m.Lock("coolblue.nl", "price", ".sel-"+strconv.Itoa(i))()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("a different key waited on a held lock")
	}
	assert.Equal(t, 1, m.Len())
}

func TestLock_SameKeyWaits(t *testing.T) {
	var m Map
	unlock := m.Lock("kettle", "shop")

	acquired := make(chan struct{})
	go func() {
		m.Lock("kettle", "shop")()
		close(acquired)
	}()
	select {
	case <-acquired:
		t.Fatal("second holder got a held key")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never got the key")
	}
	assert.Equal(t, 0, m.Len())
}

func TestLock_PartsAreSeparated(t *testing.T) {
	var m Map
	unlock := m.Lock("ab", "c")
	defer unlock()

	done := make(chan struct{})
	go func() {
		m.Lock("a", "bc")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("keys with different part boundaries shared a lock")
	}
}
