package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/vendorflow/internal/domain"
)

func TestSchedulerTickProcessesInputDir(t *testing.T) {
	ctx := context.Background()
	runner, _ := newTestRunner(t)
	dir := t.TempDir()
	writeFile(t, dir, "orders.csv", ordersCSV)
	scheduler := NewScheduler(runner, dir, nil)

	batch, ran := scheduler.Tick(ctx)
	require.True(t, ran)
	assert.Equal(t, domain.BatchStatusSuccess, batch.Status)
	assert.Equal(t, 3, batch.TotalRows)

	// Unchanged files are skipped on the next tick.
	batch, ran = scheduler.Tick(ctx)
	require.True(t, ran)
	require.Len(t, batch.Files, 1)
	assert.True(t, batch.Files[0].Skipped)
}

func TestSchedulerTickEmptyDir(t *testing.T) {
	runner, _ := newTestRunner(t)
	scheduler := NewScheduler(runner, t.TempDir(), nil)

	batch, ran := scheduler.Tick(context.Background())
	assert.True(t, ran)
	assert.Empty(t, batch.ID)
}

func TestSchedulerSkipsOverlappingTicks(t *testing.T) {
	runner, _ := newTestRunner(t)
	scheduler := NewScheduler(runner, t.TempDir(), nil)
	scheduler.running = true

	_, ran := scheduler.Tick(context.Background())
	assert.False(t, ran)
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	runner, _ := newTestRunner(t)
	scheduler := NewScheduler(runner, t.TempDir(), nil)

	assert.Error(t, scheduler.Start(context.Background(), "every now and then"))
	require.NoError(t, scheduler.Start(context.Background(), "@every 1h"))
	scheduler.Stop()
}
