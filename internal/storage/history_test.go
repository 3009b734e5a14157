package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volley/internal/runner"
	"volley/internal/stats"
)

func summary(id string, total int64) runner.Summary {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return runner.Summary{
		ID: id,
		Config: runner.Config{
			URL:             "https://example.com",
			Method:          "POST",
			Headers:         runner.Headers{"X-Token": "t"},
			Body:            `{"a":1}`,
			ConcurrentUsers: 2,
			TotalRequests:   int(total),
		},
		Stats: stats.Snapshot{
			Running: stats.Running{
				TotalRequests:      total,
				SuccessfulRequests: total,
				StatusCodes:        map[int]int64{200: total},
				ResponseTimes:      []int64{3, 1, 2},
			},
			SuccessRate: 100,
		},
		State:           runner.StateCompleted,
		StartTime:       start,
		EndTime:         start.Add(1500 * time.Millisecond),
		DurationSeconds: 1.5,
	}
}

func openStores(t *testing.T, limit int) map[string]HistoryStore {
	t.Helper()
	dir := t.TempDir()

	file, err := Open("json", filepath.Join(dir, "history.json"), limit)
	require.NoError(t, err)
	bolt, err := Open("bolt", filepath.Join(dir, "history.db"), limit)
	require.NoError(t, err)

	t.Cleanup(func() {
		file.Close()
		bolt.Close()
	})
	return map[string]HistoryStore{"json": file, "bolt": bolt}
}

func TestHistoryStores(t *testing.T) {
	for name, store := range openStores(t, 3) {
		t.Run(name, func(t *testing.T) {
			items, err := store.List()
			require.NoError(t, err)
			assert.Empty(t, items)

			for i := 1; i <= 5; i++ {
				require.NoError(t, store.Save(summary(fmt.Sprintf("run-%d", i), int64(i))))
			}

			items, err = store.List()
			require.NoError(t, err)
			require.Len(t, items, 3)
			assert.Equal(t, "run-5", items[0].ID)
			assert.Equal(t, "run-4", items[1].ID)
			assert.Equal(t, "run-3", items[2].ID)

			got, err := store.Get("run-4")
			require.NoError(t, err)
			assert.EqualValues(t, 4, got.Stats.TotalRequests)
			assert.Equal(t, map[int]int64{200: 4}, got.Stats.StatusCodes)
			assert.Equal(t, runner.Headers{"X-Token": "t"}, got.Config.Headers)
			assert.Equal(t, runner.Body(`{"a":1}`), got.Config.Body)
			assert.Equal(t, "completed", got.State)
			assert.InDelta(t, 1.5, got.Duration, 1e-9)

			_, err = store.Get("run-1")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Delete("run-4"))
			assert.ErrorIs(t, store.Delete("run-4"), ErrNotFound)
			items, err = store.List()
			require.NoError(t, err)
			assert.Len(t, items, 2)

			require.NoError(t, store.Clear())
			items, err = store.List()
			require.NoError(t, err)
			assert.Empty(t, items)
		})
	}
}

func TestFileStoreReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.json")

	s, err := NewFileStore(path, 0)
	require.NoError(t, err)
	require.NoError(t, s.Save(summary("a", 1)))
	require.NoError(t, s.Save(summary("b", 2)))

	reopened, err := NewFileStore(path, 0)
	require.NoError(t, err)
	items, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].ID)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewFileStore(path, 10)
	assert.Error(t, err)
}

func TestBoltStoreReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := NewBoltStore(path, 10)
	require.NoError(t, err)
	require.NoError(t, s.Save(summary("a", 1)))
	require.NoError(t, s.Close())

	reopened, err := NewBoltStore(path, 10)
	require.NoError(t, err)
	defer reopened.Close()

	item, err := reopened.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", item.ID)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("redis", filepath.Join(t.TempDir(), "x"), 1)
	assert.Error(t, err)
}
