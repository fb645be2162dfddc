package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	store "github.com/kenkoooo/AtCoderProblems-sub000/pkg/db"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/postgres"
	"go.uber.org/zap"
)

var (
	_ store.StatsStore      = (*DB)(nil)
	_ store.RankSnapshotter = (*DB)(nil)
)

// DB holds the derived tables. Only the aggregation engine writes here.
type DB struct {
	postgres.Client
	Name string
}

// NewWithPoolConfig connects to the named database and creates the derived tables.
func NewWithPoolConfig(ctx context.Context, logger *zap.Logger, name string, poolConfig postgres.PoolConfig) (*DB, error) {
	client, err := postgres.New(ctx, logger.With(
		zap.String("db", name),
		zap.String("component", poolConfig.Component),
	), name, &poolConfig)
	if err != nil {
		return nil, err
	}

	statsDB := &DB{
		Client: client,
		Name:   name,
	}

	if err := statsDB.InitializeDB(ctx); err != nil {
		statsDB.Close()
		return nil, err
	}

	return statsDB, nil
}

// InitializeDB creates the derived tables in parallel.
func (db *DB) InitializeDB(ctx context.Context) error {
	initStart := time.Now()

	initOps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"accepted_count", db.initAcceptedCount},
		{"language_count", db.initLanguageCount},
		{"rated_point_sum", db.initRatedPointSum},
		{"max_streak", db.initStreak},
		{"solution_records", db.initSolutionRecords},
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(initOps))

	for _, op := range initOps {
		wg.Add(1)
		go func(name string, fn func(context.Context) error) {
			defer wg.Done()
			db.Logger.Debug("Initializing table", zap.String("table", name))
			if err := fn(ctx); err != nil {
				errChan <- fmt.Errorf("init %s: %w", name, err)
			}
		}(op.name, op.fn)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		if err != nil {
			return err
		}
	}

	db.Logger.Info("Stats database initialized",
		zap.String("database", db.Name),
		zap.Duration("duration", time.Since(initStart)))
	return nil
}
