package crawl

import (
	"context"
	"fmt"
	"sync"
	"time"

	store "github.com/kenkoooo/AtCoderProblems-sub000/pkg/db"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/postgres"
	"go.uber.org/zap"
)

var _ store.RawStore = (*DB)(nil)

// DB is the raw store: submissions plus contest, problem and virtual contest metadata.
type DB struct {
	postgres.Client
	Name string
}

// NewWithPoolConfig connects to the named database and creates the raw tables.
func NewWithPoolConfig(ctx context.Context, logger *zap.Logger, name string, poolConfig postgres.PoolConfig) (*DB, error) {
	client, err := postgres.New(ctx, logger.With(
		zap.String("db", name),
		zap.String("component", poolConfig.Component),
	), name, &poolConfig)
	if err != nil {
		return nil, err
	}

	rawDB := &DB{
		Client: client,
		Name:   name,
	}

	if err := rawDB.InitializeDB(ctx); err != nil {
		rawDB.Close()
		return nil, err
	}

	return rawDB, nil
}

// InitializeDB creates every raw table in parallel. Tables carry no foreign keys so order is free.
func (db *DB) InitializeDB(ctx context.Context) error {
	initStart := time.Now()

	initOps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"submissions", db.initSubmissions},
		{"contests", db.initContests},
		{"problems", db.initProblems},
		{"contest_problems", db.initContestProblems},
		{"virtual_contests", db.initVirtualContests},
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

	db.Logger.Info("Raw database initialized",
		zap.String("database", db.Name),
		zap.Duration("duration", time.Since(initStart)))
	return nil
}
