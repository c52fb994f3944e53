package runlog_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pseudomuto/stagekeeper/pkg/database"
	"github.com/pseudomuto/stagekeeper/pkg/runlog"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, opts ...runlog.Option) *runlog.SQLStore {
	t.Helper()

	store, err := runlog.Open(context.Background(), database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "logs", "runlog.db"),
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

// steppingClock returns each time in turn, repeating the last one.
func steppingClock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func TestSQLStore_StartEndSuccess(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	id, err := store.StartStep(ctx, "listings", "warehouse", 3)
	require.NoError(t, err)
	require.NotEqual(t, runlog.NoRun, id)

	running, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, runlog.StatusRunning, running.Status)
	require.Nil(t, running.EndTime)
	require.Zero(t, running.Duration())

	require.NoError(t, store.EndStep(ctx, id, runlog.Result{
		Status:           runlog.StatusSuccess,
		RecordsProcessed: 42,
	}))

	entries, err := store.List(ctx, "listings", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	require.Equal(t, id, entry.ID)
	require.Equal(t, "listings", entry.PipelineName)
	require.Equal(t, "warehouse", entry.StepName)
	require.Equal(t, 3, entry.StepOrder)
	require.Equal(t, runlog.StatusSuccess, entry.Status)
	require.EqualValues(t, 42, entry.RecordsProcessed)
	require.NotNil(t, entry.EndTime)
	require.False(t, entry.EndTime.Before(entry.StartTime))
	require.Nil(t, entry.ErrorMessage)
	require.Nil(t, entry.LogFilePath)
}

func TestSQLStore_FailedWithDetails(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	id, err := store.StartStep(ctx, "listings", "staging", 2)
	require.NoError(t, err)

	require.NoError(t, store.EndStep(ctx, id, runlog.Result{
		Status:       runlog.StatusFailed,
		ErrorMessage: "timeout: exceeded 1h0m0s",
		LogFilePath:  "logs/listings_2_staging.log",
	}))

	entry, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, runlog.StatusFailed, entry.Status)
	require.NotNil(t, entry.ErrorMessage)
	require.Equal(t, "timeout: exceeded 1h0m0s", *entry.ErrorMessage)
	require.NotNil(t, entry.LogFilePath)
	require.Equal(t, "logs/listings_2_staging.log", *entry.LogFilePath)
}

func TestSQLStore_EndTimeNeverBeforeStart(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// the clock jumps backwards between start and end
	store := openStore(t, runlog.WithClock(steppingClock(start, start.Add(-time.Hour))))

	id, err := store.StartStep(ctx, "listings", "mart", 4)
	require.NoError(t, err)
	require.NoError(t, store.EndStep(ctx, id, runlog.Result{Status: runlog.StatusSuccess}))

	entry, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, entry.StartTime.Equal(start))
	require.NotNil(t, entry.EndTime)
	require.True(t, entry.EndTime.Equal(start))
}

func TestSQLStore_EndStepTransitions(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	t.Run("sentinel is a no-op", func(t *testing.T) {
		require.NoError(t, store.EndStep(ctx, runlog.NoRun, runlog.Result{Status: runlog.StatusSuccess}))
	})

	t.Run("unknown id", func(t *testing.T) {
		err := store.EndStep(ctx, runlog.RunID("does-not-exist"), runlog.Result{Status: runlog.StatusSuccess})
		require.ErrorIs(t, err, runlog.ErrRunNotFound)
	})

	t.Run("non terminal status", func(t *testing.T) {
		id, err := store.StartStep(ctx, "p", "s", 1)
		require.NoError(t, err)

		err = store.EndStep(ctx, id, runlog.Result{Status: runlog.StatusRunning})
		require.ErrorIs(t, err, runlog.ErrInvalidStatus)
	})

	t.Run("terminal states are final", func(t *testing.T) {
		id, err := store.StartStep(ctx, "p", "s", 1)
		require.NoError(t, err)

		require.NoError(t, store.EndStep(ctx, id, runlog.Result{Status: runlog.StatusFailed, ErrorMessage: "boom"}))

		err = store.EndStep(ctx, id, runlog.Result{Status: runlog.StatusSuccess, RecordsProcessed: 9})
		require.ErrorIs(t, err, runlog.ErrAlreadyClosed)

		entry, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, runlog.StatusFailed, entry.Status)
		require.Zero(t, entry.RecordsProcessed)
	})
}

func TestSQLStore_List(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	store := openStore(t, runlog.WithClock(steppingClock(
		base,
		base.Add(time.Minute),
		base.Add(2*time.Minute),
		base.Add(3*time.Minute),
	)))

	for i, step := range []string{"capture", "staging", "warehouse"} {
		_, err := store.StartStep(ctx, "listings", step, i+1)
		require.NoError(t, err)
	}

	_, err := store.StartStep(ctx, "other", "capture", 1)
	require.NoError(t, err)

	entries, err := store.List(ctx, "listings", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "capture", entries[0].StepName)
	require.Equal(t, "warehouse", entries[2].StepName)

	latest, err := store.List(ctx, "listings", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	require.Equal(t, "staging", latest[0].StepName)
	require.Equal(t, "warehouse", latest[1].StepName)
}

func TestSQLStore_RepeatedRunsAppend(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	for range 2 {
		id, err := store.StartStep(ctx, "listings", "capture", 1)
		require.NoError(t, err)
		require.NoError(t, store.EndStep(ctx, id, runlog.Result{Status: runlog.StatusSuccess}))
	}

	entries, err := store.List(ctx, "listings", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NotEqual(t, entries[0].ID, entries[1].ID)
}

func TestSQLStore_ReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	cfg := database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "runlog.db"),
	}

	store, err := runlog.Open(ctx, cfg)
	require.NoError(t, err)
	id, err := store.StartStep(ctx, "listings", "capture", 1)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = runlog.Open(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.EndStep(ctx, id, runlog.Result{Status: runlog.StatusSuccess}))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := runlog.Open(context.Background(), database.Config{
		Driver: database.DriverClickHouse,
		DSN:    "clickhouse://localhost:9000",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "run log does not support driver")
}

func TestDiscard(t *testing.T) {
	var store runlog.Store = runlog.Discard{}

	id, err := store.StartStep(context.Background(), "p", "s", 1)
	require.NoError(t, err)
	require.Equal(t, runlog.NoRun, id)
	require.NoError(t, store.EndStep(context.Background(), id, runlog.Result{Status: runlog.StatusSuccess}))
}

func TestStatus_Terminal(t *testing.T) {
	require.False(t, runlog.StatusRunning.Terminal())
	require.True(t, runlog.StatusSuccess.Terminal())
	require.True(t, runlog.StatusFailed.Terminal())
}
