package database

import (
	"context"
	"sort"
	"sync"

	"github.com/ponytojas/go-cr310-ingest/internal/ingest"
	"github.com/ponytojas/go-cr310-ingest/internal/models"
)

type memoryKey struct {
	equipo    string
	timestamp string
}

type memoryRow struct {
	seq     uint64
	reading models.Reading
}

// MemoryStore keeps readings in process memory. Uniqueness is enforced under
// a single lock, which makes Insert one atomic check-and-write.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[memoryKey]struct{}
	rows []memoryRow
	seq  uint64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[memoryKey]struct{})}
}

var _ ingest.Store = (*MemoryStore)(nil)

// Insert stores r unless its (equipo, timestamp) pair already exists.
func (m *MemoryStore) Insert(ctx context.Context, r *models.Reading) error {
	if err := ctx.Err(); err != nil {
		return &models.UnavailableError{Op: "insert", Err: err}
	}

	key := memoryKey{equipo: r.EquipmentID, timestamp: r.Timestamp}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.keys[key]; exists {
		return &models.DuplicateError{EquipmentID: r.EquipmentID, Timestamp: r.Timestamp}
	}
	m.seq++
	m.keys[key] = struct{}{}
	m.rows = append(m.rows, memoryRow{seq: m.seq, reading: *r})
	return nil
}

// Query returns the matching page, newest first.
func (m *MemoryStore) Query(ctx context.Context, f models.QueryFilter) (*models.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, &models.UnavailableError{Op: "query", Err: err}
	}

	m.mu.RLock()
	matches := make([]memoryRow, 0, len(m.rows))
	for _, row := range m.rows {
		if matchesFilter(&row.reading, f) {
			matches = append(matches, row)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if !a.reading.TimestampAt.Equal(b.reading.TimestampAt) {
			return a.reading.TimestampAt.After(b.reading.TimestampAt)
		}
		return a.seq < b.seq
	})

	page := &models.Page{Readings: []models.Reading{}, Total: int64(len(matches))}
	if f.Offset >= len(matches) {
		return page, nil
	}
	end := len(matches)
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	for _, row := range matches[f.Offset:end] {
		page.Readings = append(page.Readings, row.reading)
	}
	return page, nil
}

func matchesFilter(r *models.Reading, f models.QueryFilter) bool {
	if f.EquipmentID != "" && r.EquipmentID != f.EquipmentID {
		return false
	}
	if f.Start != nil && r.TimestampAt.Before(*f.Start) {
		return false
	}
	if f.End != nil && !r.TimestampAt.Before(*f.End) {
		return false
	}
	return true
}

// Ping only fails once ctx is done.
func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
