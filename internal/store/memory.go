package store

import (
	"context"
	"sort"
	"sync"

	"github.com/lamim/medibill/pkg/models"
)

// Memory is an in-process Repository used for offline runs and tests
type Memory struct {
	mu     sync.RWMutex
	items  map[int64]models.BillItem
	nextID int64
}

// NewMemory creates a repository holding items. Items without an id get one.
func NewMemory(items ...models.BillItem) *Memory {
	m := &Memory{items: make(map[int64]models.BillItem), nextID: 1}
	for _, item := range items {
		if item.ID == 0 {
			item.ID = m.nextID
		}
		if item.ID >= m.nextID {
			m.nextID = item.ID + 1
		}
		m.items[item.ID] = item
	}
	return m
}

func (m *Memory) List(_ context.Context) ([]models.BillItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]models.BillItem, 0, len(m.items))
	for _, item := range m.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *Memory) Get(_ context.Context, id int64) (models.BillItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		return models.BillItem{}, ErrNotFound
	}
	return item, nil
}

func (m *Memory) Insert(_ context.Context, item models.BillItem) (models.BillItem, error) {
	if err := validateItem(item); err != nil {
		return models.BillItem{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	item.ID = m.nextID
	m.nextID++
	m.items[item.ID] = item
	return item, nil
}
