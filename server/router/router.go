package router

import (
	"errors"
	"sync"
)

var (
	ErrExists   = errors.New("prefix already registered")
	ErrNotFound = errors.New("prefix not registered")
)

// Table maps literal path prefixes to values, lookup picks the longest prefix.
// It is safe for concurrent use, lookups don't block each other.
type Table[V any] struct {
	mu   sync.RWMutex
	root node[V]
	n    int
}

// init a new table
func New[V any]() *Table[V] {
	return &Table[V]{}
}

func (t *Table[V]) Insert(prefix string, v V) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.root.insert(prefix, v) {
		return ErrExists
	}
	t.n++
	return nil
}

func (t *Table[V]) Remove(prefix string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.root.remove(prefix) {
		return ErrNotFound
	}
	t.n--
	return nil
}

func (t *Table[V]) Match(path string) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root.match(path)
}

func (t *Table[V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.n
}
