package store

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Memory implements a simple in-memory version of a store. It is useful
// for testing, and as a destination for small fetched files.
type Memory struct {
	m     sync.RWMutex
	store map[string][]byte
}

var (
	// ensure Memory satisfies the Store interface
	_ Store = &Memory{}
)

// NewMemory returns a new, empty memory store.
func NewMemory() *Memory {
	return &Memory{store: make(map[string][]byte)}
}

// ListPrefix returns all the keys which begin with the given prefix, sorted.
func (ms *Memory) ListPrefix(prefix string) ([]string, error) {
	var result []string
	ms.m.RLock()
	for k := range ms.store {
		if strings.HasPrefix(k, prefix) {
			result = append(result, k)
		}
	}
	ms.m.RUnlock()
	sort.Strings(result)
	return result, nil
}

// Open returns a ReadAtCloser and the size of the given item. The content
// is a snapshot; replacing the key later does not change what is read.
func (ms *Memory) Open(key string) (ReadAtCloser, int64, error) {
	ms.m.RLock()
	v, ok := ms.store[key]
	ms.m.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("No item %s: %w", key, ErrNotExist)
	}
	return &buf{b: v}, int64(len(v)), nil
}

type buf struct {
	b []byte
}

func (r *buf) Close() error { return nil }

func (r *buf) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(r.b)) {
		return 0, io.EOF
	}
	n := copy(p, r.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Create returns a writer to save data into the store. Nothing is visible
// until the writer is closed.
func (ms *Memory) Create(key string) (Writer, error) {
	return &memWriter{ms: ms, key: key}, nil
}

type memWriter struct {
	ms   *Memory
	key  string
	b    []byte
	done bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, io.ErrClosedPipe
	}
	w.b = append(w.b, p...)
	return len(p), nil
}

func (w *memWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	w.ms.m.Lock()
	w.ms.store[w.key] = w.b
	w.ms.m.Unlock()
	return nil
}

func (w *memWriter) Abort() error {
	w.done = true
	w.b = nil
	return nil
}

// Delete the given key from the store. It is not an error if the item does
// not exist in the store.
func (ms *Memory) Delete(key string) error {
	ms.m.Lock()
	delete(ms.store, key)
	ms.m.Unlock()
	return nil
}

// Dump writes a listing of the contents of the store to the given writer.
// This is intended for testing and debugging.
func (ms *Memory) Dump(w io.Writer) {
	keys, _ := ms.ListPrefix("")
	ms.m.RLock()
	for _, k := range keys {
		s := ms.store[k]
		if len(s) > 300 {
			s = s[:50]
		}
		fmt.Fprintf(w, "%s: %s\n", k, string(s))
	}
	ms.m.RUnlock()
}
