package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kenkoooo/AtCoderProblems-sub000/app/aggregator/types"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"
)

// RecomputeErrorType is the application error type of a failed table, e.g. "recompute:streak".
func RecomputeErrorType(table stats.Table) string {
	return "recompute:" + string(table)
}

// RecomputeTable rebuilds one derived table. Invalid inputs fail without retry.
func (ac *Context) RecomputeTable(ctx context.Context, input types.ActivityRecomputeTableInput) (types.ActivityRecomputeTableOutput, error) {
	start := time.Now()

	if _, err := stats.ParseTable(string(input.Table)); err != nil {
		return types.ActivityRecomputeTableOutput{}, temporal.NewNonRetryableApplicationError(
			"invalid table", RecomputeErrorType(input.Table), err)
	}
	if input.Mode != stats.ModeFull && input.Mode != stats.ModeDelta {
		return types.ActivityRecomputeTableOutput{}, temporal.NewNonRetryableApplicationError(
			"invalid mode", RecomputeErrorType(input.Table), fmt.Errorf("unknown aggregation mode %q", input.Mode))
	}

	rows, err := ac.Engine.Recompute(ctx, input.Table, input.Mode, input.UserIDs)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return types.ActivityRecomputeTableOutput{}, err
		}
		return types.ActivityRecomputeTableOutput{}, temporal.NewApplicationErrorWithCause(
			fmt.Sprintf("recompute %s failed", input.Table), RecomputeErrorType(input.Table), err)
	}

	durationMs := float64(time.Since(start).Microseconds()) / 1000.0
	ac.Logger.Info("table recomputed",
		zap.String("table", string(input.Table)),
		zap.String("mode", string(input.Mode)),
		zap.Int("users", len(input.UserIDs)),
		zap.Int("rows", rows),
		zap.Float64("durationMs", durationMs))

	return types.ActivityRecomputeTableOutput{Table: input.Table, Rows: rows, DurationMs: durationMs}, nil
}
