package aggregator

import (
	"context"
	"errors"
	"fmt"

	"github.com/kenkoooo/AtCoderProblems-sub000/app/aggregator/types"
	"github.com/kenkoooo/AtCoderProblems-sub000/app/aggregator/workflow"
	agg "github.com/kenkoooo/AtCoderProblems-sub000/pkg/aggregator"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/rank"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/temporal"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

// Dispatcher starts an aggregation run.
type Dispatcher interface {
	Dispatch(ctx context.Context, input types.WorkflowAggregateInput) error
}

// TemporalDispatcher runs aggregations as AggregateWorkflow executions on the aggregate queue.
type TemporalDispatcher struct {
	Client *temporal.Client
	Logger *zap.Logger
}

func (d *TemporalDispatcher) Dispatch(ctx context.Context, input types.WorkflowAggregateInput) error {
	id := temporal.AggregateWorkflowID(input.Mode == stats.ModeFull, input.RunID)
	run, err := d.Client.TClient.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: d.Client.AggregateQueue,
	}, workflow.AggregateWorkflowName, input)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			d.Logger.Debug("aggregation already running", zap.String("workflowId", id))
			return nil
		}
		return fmt.Errorf("start %s: %w", id, err)
	}
	d.Logger.Info("aggregation workflow started",
		zap.String("workflowId", run.GetID()),
		zap.String("runId", run.GetRunID()),
		zap.String("mode", string(input.Mode)),
		zap.Int("users", len(input.UserIDs)))
	return nil
}

// LocalDispatcher runs aggregations in process and waits for them.
type LocalDispatcher struct {
	Engine      *agg.Engine
	Leaderboard *rank.Cache
	Rankings    db.RankSnapshotter
	Logger      *zap.Logger
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, input types.WorkflowAggregateInput) error {
	run := d.Engine.Run(ctx, input.Mode, input.UserIDs, input.Tables)
	failed := run.Failed()
	if input.RefreshLeaderboard && d.Leaderboard != nil && len(failed) < len(run.Tables) {
		if _, err := d.Leaderboard.Refresh(ctx, d.Rankings); err != nil {
			d.Logger.Warn("leaderboard refresh failed", zap.String("runId", input.RunID), zap.Error(err))
		}
	}
	if err := run.Err(); err != nil {
		return fmt.Errorf("aggregation %s: %w", input.RunID, err)
	}
	return nil
}
