// Package cache defines the best-effort content addressed cache used for
// solver and routing responses.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kilianp07/fleetsim/core/factory"
)

// Store is a key/value cache. Concurrent writers of the same key race and
// the last one wins.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
}

// Key hashes the JSON encoding of parts into a hex sha256 digest.
func Key(parts ...any) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, p := range parts {
		if err := enc.Encode(p); err != nil {
			return "", fmt.Errorf("cache key: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte) error         { return nil }

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory { return &Memory{data: make(map[string][]byte)} }

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte) error {
	m.mu.Lock()
	m.data[key] = append([]byte(nil), val...)
	m.mu.Unlock()
	return nil
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

var registry = factory.NewRegistry[Store]()

func init() {
	_ = Register("nop", func(map[string]any) (Store, error) { return Nop{}, nil })
	_ = Register("memory", func(map[string]any) (Store, error) { return NewMemory(), nil })
}

// Register adds a cache backend factory.
func Register(name string, f factory.Factory[Store]) error {
	return registry.Register(name, f)
}

// New builds the configured backend. An empty type yields Nop.
func New(cfg factory.ModuleConfig) (Store, error) {
	if cfg.Type == "" {
		return Nop{}, nil
	}
	return registry.Create(cfg)
}
