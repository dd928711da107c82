package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ponytojas/go-cr310-ingest/internal/models"
)

func seedMemory(t *testing.T, readings ...models.Reading) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	for i := range readings {
		require.NoError(t, store.Insert(context.Background(), &readings[i]))
	}
	return store
}

func TestMemoryInsert_Duplicate(t *testing.T) {
	store := NewMemoryStore()
	r := storedReading("T101", "2025-10-27 18:30:00")
	require.NoError(t, store.Insert(context.Background(), &r))

	again := storedReading("T101", "2025-10-27 18:30:00")
	again.ID = "another"
	err := store.Insert(context.Background(), &again)

	var dup *models.DuplicateError
	require.True(t, errors.As(err, &dup))

	page, err := store.Query(context.Background(), models.QueryFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, r.ID, page.Readings[0].ID)
}

func TestMemoryInsert_ConcurrentDuplicatesSucceedOnce(t *testing.T) {
	store := NewMemoryStore()
	const writers = 64

	var ok, dups atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := storedReading("T101", "2025-10-27 18:30:00")
			err := store.Insert(context.Background(), &r)
			var dup *models.DuplicateError
			switch {
			case err == nil:
				ok.Add(1)
			case errors.As(err, &dup):
				dups.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(writers-1), dups.Load())
}

func TestMemoryQuery_OrderingAndTies(t *testing.T) {
	a := storedReading("T101", "2025-10-27 18:00:00")
	b := storedReading("T102", "2025-10-27 18:30:00")
	c := storedReading("T103", "2025-10-27 18:00:00")
	d := storedReading("T102", "2025-10-27 17:00:00")
	store := seedMemory(t, a, b, c, d)

	page, err := store.Query(context.Background(), models.QueryFilter{Limit: 10})
	require.NoError(t, err)

	ids := make([]string, len(page.Readings))
	for i, r := range page.Readings {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{b.ID, a.ID, c.ID, d.ID}, ids)
	assert.Equal(t, int64(4), page.Total)
}

func TestMemoryQuery_PaginationIsStable(t *testing.T) {
	var readings []models.Reading
	for _, ts := range []string{"2025-10-27 18:00:00", "2025-10-27 18:10:00", "2025-10-27 18:20:00"} {
		readings = append(readings, storedReading("T101", ts), storedReading("T102", ts))
	}
	store := seedMemory(t, readings...)
	ctx := context.Background()

	first, err := store.Query(ctx, models.QueryFilter{Limit: 1, Offset: 0})
	require.NoError(t, err)
	second, err := store.Query(ctx, models.QueryFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	both, err := store.Query(ctx, models.QueryFilter{Limit: 2, Offset: 0})
	require.NoError(t, err)

	require.Len(t, both.Readings, 2)
	assert.Equal(t, both.Readings[0], first.Readings[0])
	assert.Equal(t, both.Readings[1], second.Readings[0])
}

func TestMemoryQuery_Filters(t *testing.T) {
	store := seedMemory(t,
		storedReading("T101", "2025-10-26 23:59:59"),
		storedReading("T101", "2025-10-27 00:00:00"),
		storedReading("T101", "2025-10-27 12:00:00"),
		storedReading("T101", "2025-10-28 00:00:00"),
		storedReading("T102", "2025-10-27 12:00:00"),
	)

	start := time.Date(2025, 10, 27, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 10, 28, 0, 0, 0, 0, time.UTC)
	page, err := store.Query(context.Background(), models.QueryFilter{
		EquipmentID: "T101", Start: &start, End: &end, Limit: 10,
	})
	require.NoError(t, err)

	require.Len(t, page.Readings, 2)
	assert.Equal(t, "2025-10-27 12:00:00", page.Readings[0].Timestamp)
	assert.Equal(t, "2025-10-27 00:00:00", page.Readings[1].Timestamp)
	assert.Equal(t, int64(2), page.Total)
}

func TestMemoryQuery_OffsetPastEnd(t *testing.T) {
	store := seedMemory(t, storedReading("T101", "2025-10-27 18:00:00"))

	page, err := store.Query(context.Background(), models.QueryFilter{Limit: 10, Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, page.Readings)
	assert.Equal(t, int64(1), page.Total)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := storedReading("T101", "2025-10-27 18:00:00")
	var unavailable *models.UnavailableError
	assert.True(t, errors.As(store.Insert(ctx, &r), &unavailable))
	assert.Error(t, store.Ping(ctx))
	assert.NoError(t, store.Ping(context.Background()))
}
