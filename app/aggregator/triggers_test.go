package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kenkoooo/AtCoderProblems-sub000/app/aggregator/types"
	agg "github.com/kenkoooo/AtCoderProblems-sub000/pkg/aggregator"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/memdb"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/crawl"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingDispatcher struct {
	inputs []types.WorkflowAggregateInput
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, input types.WorkflowAggregateInput) error {
	d.inputs = append(d.inputs, input)
	return d.err
}

func delivery(id string, event redis.IngestEvent) redis.Delivery {
	return redis.Delivery{ID: id, Event: event}
}

func TestIngestHandler(t *testing.T) {
	ctx := context.Background()
	d := &recordingDispatcher{}
	handler := IngestHandler(zaptest.NewLogger(t), d, true)

	require.NoError(t, handler(ctx, delivery("1-0", redis.IngestEvent{
		CycleID: "c1", Cycle: "recent", UserIDs: []string{"alice", "bob"}, Submissions: 3,
	})))
	require.NoError(t, handler(ctx, delivery("2-0", redis.IngestEvent{CycleID: "c2"})))
	require.NoError(t, handler(ctx, delivery("3-0", redis.IngestEvent{UserIDs: []string{"carol"}})))

	assert.Equal(t, []types.WorkflowAggregateInput{
		{RunID: "c1", Mode: stats.ModeDelta, UserIDs: []string{"alice", "bob"}, RefreshLeaderboard: true},
		{RunID: "3-0", Mode: stats.ModeDelta, UserIDs: []string{"carol"}, RefreshLeaderboard: true},
	}, d.inputs)

	d.err = errors.New("temporal unavailable")
	err := handler(ctx, delivery("5-0", redis.IngestEvent{CycleID: "c5", UserIDs: []string{"dave"}}))
	assert.ErrorIs(t, err, d.err)

	d.err = nil
	retry := delivery("5-0", redis.IngestEvent{CycleID: "c5", UserIDs: []string{"dave"}})
	retry.Redelivered = true
	require.NoError(t, handler(ctx, retry))
	assert.Equal(t, "c5", d.inputs[len(d.inputs)-1].RunID)
}

func TestLocalDispatcher(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	require.NoError(t, store.UpsertSubmissions(ctx, []crawl.Submission{
		{ID: 1, EpochSecond: time.Now().Unix(), ProblemID: "abc100_a", ContestID: "abc100", UserID: "alice",
			Language: "Go (1.14.1)", Length: 10, Result: crawl.ResultAccepted},
	}))
	engine := agg.New(zaptest.NewLogger(t), store, store, 2)
	t.Cleanup(engine.Close)
	d := &LocalDispatcher{Engine: engine, Rankings: store, Logger: zaptest.NewLogger(t)}

	require.NoError(t, d.Dispatch(ctx, types.WorkflowAggregateInput{
		RunID: "r1", Mode: stats.ModeDelta, UserIDs: []string{"alice"}, RefreshLeaderboard: true,
	}))
	assert.Equal(t, []stats.AcceptedCount{{UserID: "alice", ProblemCount: 1}}, store.AcceptedCounts())

	store.Fail = func(op string) error {
		if op == "ReplaceLanguageCountsForUsers" {
			return errors.New("locked")
		}
		return nil
	}
	err := d.Dispatch(ctx, types.WorkflowAggregateInput{RunID: "r2", Mode: stats.ModeDelta, UserIDs: []string{"alice"}})
	assert.ErrorContains(t, err, "language_count")
}

func TestSetupSchedulerRejectsBadSpec(t *testing.T) {
	_, err := SetupScheduler(context.Background(), zaptest.NewLogger(t), &recordingDispatcher{}, "every tuesday", time.Minute, false)
	assert.Error(t, err)

	c, err := SetupScheduler(context.Background(), zaptest.NewLogger(t), &recordingDispatcher{}, "0 0 */6 * * *", time.Minute, false)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
}
