package memo

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Memory is an in-process Store backed by an LRU cache
type Memory struct {
	cache *lru.Cache[string, []byte]
}

// NewMemory creates a memory store holding at most size entries
func NewMemory(size int) (*Memory, error) {
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create memo cache: %w", err)
	}
	return &Memory{cache: cache}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := m.cache.Get(key)
	return value, ok, nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.cache.Add(key, value)
	return nil
}

// Len returns the number of memoized entries
func (m *Memory) Len() int {
	return m.cache.Len()
}
