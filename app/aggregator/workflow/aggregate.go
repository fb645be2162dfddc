package workflow

import (
	"errors"
	"time"

	"github.com/kenkoooo/AtCoderProblems-sub000/app/aggregator/types"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"
)

// AggregateWorkflow recomputes the requested tables in parallel, one activity per table. A table
// that exhausts its retries is reported in the output without failing the run; the leaderboard
// cache is refreshed afterwards when requested and at least one table succeeded.
func (wc *Context) AggregateWorkflow(ctx workflow.Context, input types.WorkflowAggregateInput) (types.WorkflowAggregateOutput, error) {
	start := workflow.Now(ctx)
	logger := workflow.GetLogger(ctx)

	tables := input.Tables
	if len(tables) == 0 {
		tables = stats.AllTables
	}

	logger.Info("Starting aggregation",
		zap.String("runId", input.RunID),
		zap.String("mode", string(input.Mode)),
		zap.Int("users", len(input.UserIDs)),
		zap.Int("tables", len(tables)))

	tableCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: wc.Config.TableTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    wc.Config.TableMaxAttempts,
		},
	})

	futures := make([]workflow.Future, len(tables))
	for i, table := range tables {
		futures[i] = workflow.ExecuteActivity(tableCtx, wc.ActivityContext.RecomputeTable, types.ActivityRecomputeTableInput{
			Table:   table,
			Mode:    input.Mode,
			UserIDs: input.UserIDs,
		})
	}

	out := types.WorkflowAggregateOutput{Tables: make([]types.TableOutcome, len(tables))}
	for i, f := range futures {
		var res types.ActivityRecomputeTableOutput
		if err := f.Get(ctx, &res); err != nil {
			out.Tables[i] = types.TableOutcome{Table: tables[i], Error: failureType(err)}
			out.Failed = append(out.Failed, tables[i])
			logger.Error("Table recompute failed",
				zap.String("runId", input.RunID),
				zap.String("table", string(tables[i])),
				zap.Error(err))
			continue
		}
		out.Tables[i] = types.TableOutcome{Table: tables[i], Rows: res.Rows, DurationMs: res.DurationMs}
	}

	if input.RefreshLeaderboard && len(out.Failed) < len(tables) {
		refreshCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: wc.Config.RefreshTimeout,
			RetryPolicy: &temporal.RetryPolicy{
				InitialInterval:    time.Second,
				BackoffCoefficient: 2.0,
				MaximumInterval:    time.Minute,
				MaximumAttempts:    wc.Config.RefreshMaxAttempts,
			},
		})
		var refreshed types.ActivityRefreshLeaderboardOutput
		if err := workflow.ExecuteActivity(refreshCtx, wc.ActivityContext.RefreshLeaderboard).Get(ctx, &refreshed); err != nil {
			out.CacheFailed = true
			logger.Warn("Leaderboard refresh failed", zap.String("runId", input.RunID), zap.Error(err))
		} else {
			out.CacheRows = refreshed.Rows
		}
	}

	out.DurationMs = float64(workflow.Now(ctx).Sub(start).Milliseconds())
	logger.Info("Aggregation completed",
		zap.String("runId", input.RunID),
		zap.Int("failed", len(out.Failed)),
		zap.Float64("durationMs", out.DurationMs))
	return out, nil
}

// failureType extracts the application error type of a failed activity, falling back to the message.
func failureType(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() != "" {
		return appErr.Type()
	}
	return err.Error()
}
