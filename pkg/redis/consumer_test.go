package redis

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/redis/redistest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	code := m.Run()
	redistest.Terminate()
	os.Exit(code)
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := Connect(context.Background(), zaptest.NewLogger(t), redistest.Options(t), 100)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// recorder is a DeliveryHandler that fails the first failures[cycleID] deliveries of an event.
type recorder struct {
	mu         sync.Mutex
	failures   map[string]int
	deliveries []Delivery
}

func (r *recorder) handle(_ context.Context, d Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, d)
	if r.failures[d.Event.CycleID] > 0 {
		r.failures[d.Event.CycleID]--
		return errors.New("dispatch failed")
	}
	return nil
}

func (r *recorder) snapshot() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// pendingCount returns -1 until the group exists.
func pendingCount(c *Client, group string) int64 {
	p, err := c.rdb.XPending(context.Background(), IngestStream, group).Result()
	if err != nil {
		return -1
	}
	return p.Count
}

func runConsumer(t *testing.T, c *Client, config IngestConsumerConfig, handler DeliveryHandler) {
	t.Helper()
	ic, err := NewIngestConsumer(c, zaptest.NewLogger(t), config)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ic.Run(ctx, handler) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
}

func TestIngestConsumer_RedeliversFailedEntries(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	require.NoError(t, c.PublishIngest(ctx, IngestEvent{CycleID: "c1", UserIDs: []string{"alice"}}))
	require.NoError(t, c.PublishIngest(ctx, IngestEvent{CycleID: "c2", UserIDs: []string{"bob"}}))

	rec := &recorder{failures: map[string]int{"c1": 1}}
	runConsumer(t, c, IngestConsumerConfig{
		Group: "aggregator", Consumer: "a1",
		Block: 50 * time.Millisecond, ReclaimInterval: 100 * time.Millisecond, MinIdle: 50 * time.Millisecond,
	}, rec.handle)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 3 && pendingCount(c, "aggregator") == 0
	}, 10*time.Second, 20*time.Millisecond)

	got := rec.snapshot()
	assert.Equal(t, "c1", got[0].Event.CycleID)
	assert.False(t, got[0].Redelivered)
	assert.Equal(t, "c2", got[1].Event.CycleID)
	assert.Equal(t, "c1", got[2].Event.CycleID)
	assert.True(t, got[2].Redelivered)
	assert.Equal(t, got[0].ID, got[2].ID)
}

func TestIngestConsumer_ReplaysOwnPendingOnStart(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	require.NoError(t, c.PublishIngest(ctx, IngestEvent{CycleID: "c1", UserIDs: []string{"alice"}}))

	// A previous run read the entry and stopped before acknowledging it.
	ic, err := NewIngestConsumer(c, zaptest.NewLogger(t), IngestConsumerConfig{Group: "aggregator", Consumer: "a1"})
	require.NoError(t, err)
	require.NoError(t, ic.ensureGroup(ctx))
	read, err := ic.read(ctx, ">", 0)
	require.NoError(t, err)
	require.Len(t, read, 1)
	require.Equal(t, int64(1), pendingCount(c, "aggregator"))

	rec := &recorder{}
	runConsumer(t, c, IngestConsumerConfig{
		Group: "aggregator", Consumer: "a1",
		Block: 50 * time.Millisecond, ReclaimInterval: time.Hour, MinIdle: time.Hour,
	}, rec.handle)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1 && pendingCount(c, "aggregator") == 0
	}, 10*time.Second, 20*time.Millisecond)
	got := rec.snapshot()[0]
	assert.Equal(t, read[0].ID, got.ID)
	assert.True(t, got.Redelivered)
}

func TestIngestConsumer_DropsMalformedAndExhaustedEntries(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	require.NoError(t, c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: IngestStream,
		Values: map[string]interface{}{"data": "{"},
	}).Err())
	require.NoError(t, c.PublishIngest(ctx, IngestEvent{CycleID: "poison", UserIDs: []string{"alice"}}))

	rec := &recorder{failures: map[string]int{"poison": 100}}
	runConsumer(t, c, IngestConsumerConfig{
		Group: "aggregator", Consumer: "a1", MaxDeliveries: 2,
		Block: 50 * time.Millisecond, ReclaimInterval: 100 * time.Millisecond, MinIdle: 50 * time.Millisecond,
	}, rec.handle)

	require.Eventually(t, func() bool {
		return pendingCount(c, "aggregator") == 0
	}, 10*time.Second, 20*time.Millisecond)

	got := rec.snapshot()
	require.Len(t, got, 2)
	for _, d := range got {
		assert.Equal(t, "poison", d.Event.CycleID)
	}
}

func TestIngestBacklog(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	n, err := c.IngestBacklog(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.PublishIngest(ctx, IngestEvent{CycleID: "c"}))
	}
	n, err = c.IngestBacklog(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
