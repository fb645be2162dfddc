package aggregator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kenkoooo/AtCoderProblems-sub000/app/aggregator/types"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/redis"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// IngestHandler turns ingest events into delta runs. A failed dispatch leaves the entry pending.
func IngestHandler(logger *zap.Logger, dispatcher Dispatcher, refresh bool) redis.DeliveryHandler {
	return func(ctx context.Context, d redis.Delivery) error {
		event := d.Event
		if len(event.UserIDs) == 0 {
			return nil
		}
		runID := event.CycleID
		if runID == "" {
			runID = d.ID
		}
		if d.Redelivered {
			logger.Info("retrying ingest event", zap.String("id", d.ID), zap.String("runId", runID))
		}
		return dispatcher.Dispatch(ctx, types.WorkflowAggregateInput{
			RunID:              runID,
			Mode:               stats.ModeDelta,
			UserIDs:            event.UserIDs,
			RefreshLeaderboard: refresh,
		})
	}
}

// SetupScheduler registers the periodic full rebuild on a seconds-resolution cron.
func SetupScheduler(ctx context.Context, logger *zap.Logger, dispatcher Dispatcher, spec string, timeout time.Duration, refresh bool) (*cron.Cron, error) {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cronLogger), cron.Recover(cronLogger)))

	_, err := c.AddFunc(spec, func() {
		rctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		input := types.WorkflowAggregateInput{
			RunID:              uuid.NewString(),
			Mode:               stats.ModeFull,
			RefreshLeaderboard: refresh,
		}
		if err := dispatcher.Dispatch(rctx, input); err != nil {
			logger.Error("full rebuild failed", zap.String("runId", input.RunID), zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
