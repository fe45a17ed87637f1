package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupQueue(t *testing.T) (*Queue, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewQueue(client, "hh:test_jobs"), client
}

func TestQueue_PushPop(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	job, err := NewJob(JobSendEmail, SendEmailPayload{Kind: EmailPaymentReceipt, Reference: "HH-1"})
	require.NoError(t, err)
	require.NoError(t, q.Push(ctx, job))

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	got, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, JobSendEmail, got.Type)

	var payload SendEmailPayload
	require.NoError(t, got.Decode(&payload))
	assert.Equal(t, "HH-1", payload.Reference)
	assert.Equal(t, EmailPaymentReceipt, payload.Kind)
}

func TestQueue_FIFO(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := NewJob(JobPaymentRecheck, PaymentRecheckPayload{Reference: "HH"})
		require.NoError(t, err)
		require.NoError(t, q.Push(ctx, job))
		ids = append(ids, job.ID)
	}

	for _, id := range ids {
		got, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
	}
}

func TestQueue_PushAt(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	job, err := NewJob(JobPaymentRecheck, PaymentRecheckPayload{Reference: "HH-2"})
	require.NoError(t, err)

	runAt := time.Now().Add(30 * time.Second)
	require.NoError(t, q.PushAt(ctx, job, runAt))

	delayed, err := q.DelayedLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), delayed)

	// 未到期不移动
	moved, err := q.PromoteDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, moved)

	moved, err = q.PromoteDue(ctx, runAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	delayed, err = q.DelayedLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), delayed)
}

func TestQueue_PopPromotesDueJobs(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	job, err := NewJob(JobPaymentRecheck, PaymentRecheckPayload{Reference: "HH-3"})
	require.NoError(t, err)
	require.NoError(t, q.PushAt(ctx, job, time.Now().Add(-time.Second)))

	got, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.False(t, got.RunAt.IsZero())
}

func TestQueue_PopTimeout(t *testing.T) {
	q, _ := setupQueue(t)

	got, err := q.Pop(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}
