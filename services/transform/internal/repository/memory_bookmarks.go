package repository

import (
	"context"
	"sync"
)

// MemoryBookmarks keeps bookmarks for the lifetime of the process only.
type MemoryBookmarks struct {
	mu   sync.Mutex
	rows map[string]int
}

func NewMemoryBookmarks() *MemoryBookmarks {
	return &MemoryBookmarks{rows: make(map[string]int)}
}

func (m *MemoryBookmarks) IsProcessed(_ context.Context, fileKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.rows[fileKey]
	return ok, nil
}

// ProcessOnce serialises actions, matching the row lock of the database
// implementation.
func (m *MemoryBookmarks) ProcessOnce(
	ctx context.Context,
	fileKey string,
	action func(ctx context.Context) (int, error),
) (bool, error) {
	if fileKey == "" {
		return false, ErrEmptyFileKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[fileKey]; ok {
		return false, nil
	}

	rows, err := action(ctx)
	if err != nil {
		return false, err
	}

	m.rows[fileKey] = rows

	return true, nil
}

// Rows reports the rows recorded for fileKey.
func (m *MemoryBookmarks) Rows(fileKey string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.rows[fileKey]
	return rows, ok
}
