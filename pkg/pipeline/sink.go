package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Sink receives serialized batches. Keys are slash-separated object keys.
type Sink interface {
	Put(ctx context.Context, key string, body []byte) error
}

// MemorySink keeps batches in a map
type MemorySink struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{objects: make(map[string][]byte)}
}

// Put implements Sink
func (m *MemorySink) Put(_ context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), body...)
	return nil
}

// Get returns a stored object
func (m *MemorySink) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[key]
	return body, ok
}

// Keys lists stored keys in lexical order
func (m *MemorySink) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DirSink writes each batch as a file under Root
type DirSink struct {
	Root string
}

// Put implements Sink
func (d DirSink) Put(_ context.Context, key string, body []byte) error {
	if strings.Contains(key, "..") {
		return fmt.Errorf("invalid object key %q", key)
	}
	path := filepath.Join(d.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o644)
}

// PrefixSink namespaces the keys of a shared sink
type PrefixSink struct {
	Prefix string
	Sink   Sink
}

// Put implements Sink
func (p PrefixSink) Put(ctx context.Context, key string, body []byte) error {
	return p.Sink.Put(ctx, p.Prefix+"/"+key, body)
}
