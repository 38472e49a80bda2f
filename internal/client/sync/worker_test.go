package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/api"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/models"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/common"
)

func TestBackoffFor_DoublesUpToCap(t *testing.T) {
	assert.Equal(t, 10*time.Second, backoffFor(1))
	assert.Equal(t, 20*time.Second, backoffFor(2))
	assert.Equal(t, 40*time.Second, backoffFor(3))
	assert.Equal(t, 80*time.Second, backoffFor(4))
	assert.Equal(t, backoffCap, backoffFor(20))
}

func newTestWorker(t *testing.T) (*Worker, *testEnv) {
	t.Helper()
	env := setup(t)
	w := NewWorker(env.svc, time.Minute, env.svc.logger)
	return w, env
}

func TestDrainQueue_DeliversInOrder(t *testing.T) {
	w, env := newTestWorker(t)
	ctx := context.Background()

	require.NoError(t, env.svc.QueueUpload(ctx, "contacts", "rec1", []byte("p1"), []byte("n")))
	require.NoError(t, env.svc.QueueUpload(ctx, "contacts", "rec2", []byte("p2"), []byte("n")))

	var order []string
	env.transport.UploadFunc = func(_ context.Context, _ string, req *api.UploadRequest) (*api.UploadResponse, error) {
		order = append(order, req.Changes[0].RecordID)
		return &api.UploadResponse{
			Results: []api.UploadItemResult{{RecordID: req.Changes[0].RecordID, Status: api.ItemCommitted, Version: 1}},
		}, nil
	}

	w.drainQueue(ctx)

	assert.Equal(t, []string{"rec1", "rec2"}, order)

	completed, err := env.queue.ListByStatus(ctx, models.QueueStatusCompleted)
	require.NoError(t, err)
	assert.Len(t, completed, 2)
}

func TestDrainQueue_TransientFailureStopsDrain(t *testing.T) {
	w, env := newTestWorker(t)
	ctx := context.Background()

	require.NoError(t, env.svc.QueueUpload(ctx, "contacts", "rec1", []byte("p1"), []byte("n")))
	require.NoError(t, env.svc.QueueUpload(ctx, "contacts", "rec2", []byte("p2"), []byte("n")))

	calls := 0
	env.transport.UploadFunc = func(_ context.Context, _ string, _ *api.UploadRequest) (*api.UploadResponse, error) {
		calls++
		return nil, common.ErrRetryable
	}

	w.drainQueue(ctx)

	// rec2 must not overtake rec1
	assert.Equal(t, 1, calls)

	pending, err := env.queue.ListByStatus(ctx, models.QueueStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	// the failed item is rescheduled with backoff, not due yet
	assert.Equal(t, 1, pending[0].AttemptCount)
	assert.True(t, pending[0].NextAttemptAt.After(base))
	assert.Equal(t, 0, pending[1].AttemptCount)
}

func TestDrainQueue_ExhaustedItemParksAsFailed(t *testing.T) {
	w, env := newTestWorker(t)
	ctx := context.Background()

	require.NoError(t, env.svc.QueueUpload(ctx, "contacts", "rec1", []byte("p1"), []byte("n")))

	env.transport.UploadFunc = func(_ context.Context, _ string, _ *api.UploadRequest) (*api.UploadResponse, error) {
		return nil, common.ErrRetryable
	}

	// walk the clock past each backoff so every attempt is due
	now := base
	env.svc.now = func() time.Time { return now }
	for i := 0; i < maxAttempts; i++ {
		w.drainQueue(ctx)
		now = now.Add(backoffCap)
	}

	failed, err := env.queue.ListByStatus(ctx, models.QueueStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, common.ErrRetryExhausted.Error(), failed[0].LastError)
	assert.Equal(t, maxAttempts, failed[0].AttemptCount)

	// failed items stay until someone retries them
	require.NoError(t, env.queue.Retry(ctx, failed[0].ID))
	pending, err := env.queue.ListByStatus(ctx, models.QueueStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestWorker_StartStop(t *testing.T) {
	w, env := newTestWorker(t)

	env.transport.UploadFunc = func(_ context.Context, _ string, req *api.UploadRequest) (*api.UploadResponse, error) {
		return &api.UploadResponse{
			Results: []api.UploadItemResult{{RecordID: req.Changes[0].RecordID, Status: api.ItemCommitted, Version: 1}},
		}, nil
	}

	downloads := make(chan string, len(common.DataTypes))
	env.transport.DownloadFunc = func(_ context.Context, dataType string, _ time.Time, _, _ int) (*api.DownloadResponse, error) {
		select {
		case downloads <- dataType:
		default:
		}
		return &api.DownloadResponse{}, nil
	}

	w.Start(context.Background())

	// the startup cycle pulls every data type
	seen := map[string]bool{}
	for range common.DataTypes {
		select {
		case dt := <-downloads:
			seen[dt] = true
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for startup cycle")
		}
	}
	for _, dt := range common.DataTypes {
		assert.True(t, seen[string(dt)], "expected pull for %s", dt)
	}

	w.Stop()
}
