// Package aggregator derives the statistics tables from accepted submissions. Each table is
// recomputed independently, either as a full rebuild or restricted to a set of touched users.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/crawl"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// DefaultWorkers bounds how many tables are recomputed at once by Run.
const DefaultWorkers = 4

// TableResult is the outcome of recomputing one table.
type TableResult struct {
	Table    stats.Table   `json:"table"`
	Mode     stats.Mode    `json:"mode"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
	Finished time.Time     `json:"finished"`
}

// RunResult collects the per-table outcomes of one Run, in the order the tables were requested.
type RunResult struct {
	Tables []TableResult
}

// Failed lists the tables whose recompute returned an error.
func (r RunResult) Failed() []stats.Table {
	out := make([]stats.Table, 0)
	for _, t := range r.Tables {
		if t.Err != nil {
			out = append(out, t.Table)
		}
	}
	return out
}

// Err joins the per-table errors, or returns nil when every table succeeded.
func (r RunResult) Err() error {
	var errs []error
	for _, t := range r.Tables {
		if t.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Table, t.Err))
		}
	}
	return errors.Join(errs...)
}

type Engine struct {
	Logger *zap.Logger
	Source db.AcceptedSource
	Stats  db.StatsStore

	pool   pond.Pool
	status *xsync.Map[stats.Table, TableResult]
}

func New(logger *zap.Logger, source db.AcceptedSource, statsStore db.StatsStore, workers int) *Engine {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Engine{
		Logger: logger,
		Source: source,
		Stats:  statsStore,
		pool:   pond.NewPool(workers),
		status: xsync.NewMap[stats.Table, TableResult](),
	}
}

// Close waits for running recomputes and releases the worker pool.
func (e *Engine) Close() {
	e.pool.StopAndWait()
}

// Status returns the last recorded result of a table.
func (e *Engine) Status(table stats.Table) (TableResult, bool) {
	return e.status.Load(table)
}

// Run recomputes the given tables (every table when empty) in parallel. A failing table does
// not stop the others; its error is carried in the result.
func (e *Engine) Run(ctx context.Context, mode stats.Mode, users []string, tables []stats.Table) RunResult {
	if len(tables) == 0 {
		tables = stats.AllTables
	}
	results := make([]TableResult, len(tables))

	group := e.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i, table := range tables {
		group.Submit(func() {
			results[i] = e.recompute(groupCtx, table, mode, users)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		e.Logger.Warn("aggregation group stopped", zap.Error(err))
	}

	run := RunResult{Tables: results}
	if failed := run.Failed(); len(failed) > 0 {
		e.Logger.Warn("aggregation finished with failures",
			zap.String("mode", string(mode)),
			zap.Any("failed", failed),
		)
	}
	return run
}

// Recompute rebuilds one table and returns the number of rows written.
func (e *Engine) Recompute(ctx context.Context, table stats.Table, mode stats.Mode, users []string) (int, error) {
	res := e.recompute(ctx, table, mode, users)
	return res.Rows, res.Err
}

func (e *Engine) recompute(ctx context.Context, table stats.Table, mode stats.Mode, users []string) TableResult {
	start := time.Now()
	rows, err := e.recomputeTable(ctx, table, mode, users)
	res := TableResult{
		Table:    table,
		Mode:     mode,
		Rows:     rows,
		Duration: time.Since(start),
		Err:      err,
		Finished: time.Now(),
	}
	e.status.Store(table, res)

	logger := e.Logger.With(
		zap.String("table", string(table)),
		zap.String("mode", string(mode)),
		zap.Int("users", len(users)),
	)
	if err != nil {
		logger.Error("table recompute failed", zap.Error(err))
	} else {
		logger.Debug("table recomputed", zap.Int("rows", rows), zap.Duration("duration", res.Duration))
	}
	return res
}

func (e *Engine) recomputeTable(ctx context.Context, table stats.Table, mode stats.Mode, users []string) (int, error) {
	switch mode {
	case stats.ModeFull, stats.ModeDelta:
	default:
		return 0, fmt.Errorf("unknown aggregation mode %q", mode)
	}
	if mode == stats.ModeDelta && len(users) == 0 {
		return 0, nil
	}

	subs, err := e.loadAccepted(ctx, mode, users)
	if err != nil {
		return 0, err
	}
	full := mode == stats.ModeFull

	switch table {
	case stats.TableAcceptedCount:
		rows := AcceptedCounts(subs)
		if full {
			return len(rows), e.Stats.ReplaceAcceptedCounts(ctx, rows)
		}
		return len(rows), e.Stats.ReplaceAcceptedCountsForUsers(ctx, users, rows)

	case stats.TableLanguageCount:
		rows := LanguageCounts(subs)
		if full {
			return len(rows), e.Stats.ReplaceLanguageCounts(ctx, rows)
		}
		return len(rows), e.Stats.ReplaceLanguageCountsForUsers(ctx, users, rows)

	case stats.TableRatedPointSum:
		contests, err := e.Source.LoadContests(ctx)
		if err != nil {
			return 0, fmt.Errorf("load contests: %w", err)
		}
		links, err := e.Source.LoadContestProblems(ctx)
		if err != nil {
			return 0, fmt.Errorf("load contest problems: %w", err)
		}
		rows := RatedPointSums(subs, RatedProblemIDs(contests, links))
		if full {
			return len(rows), e.Stats.ReplaceRatedPointSums(ctx, rows)
		}
		return len(rows), e.Stats.ReplaceRatedPointSumsForUsers(ctx, users, rows)

	case stats.TableStreak:
		rows := Streaks(subs)
		if full {
			return len(rows), e.Stats.ReplaceStreaks(ctx, rows)
		}
		return len(rows), e.Stats.ReplaceStreaksForUsers(ctx, users, rows)

	case stats.TableFirst:
		return e.recomputeRecords(ctx, stats.RecordFirst, full, subs)
	case stats.TableFastest:
		return e.recomputeRecords(ctx, stats.RecordFastest, full, subs)
	case stats.TableShortest:
		return e.recomputeRecords(ctx, stats.RecordShortest, full, subs)
	}
	return 0, fmt.Errorf("unknown derived table %q", table)
}

func (e *Engine) loadAccepted(ctx context.Context, mode stats.Mode, users []string) ([]crawl.Submission, error) {
	if mode == stats.ModeFull {
		subs, err := e.Source.LoadAllAccepted(ctx)
		if err != nil {
			return nil, fmt.Errorf("load accepted submissions: %w", err)
		}
		return subs, nil
	}
	subs, err := e.Source.LoadAcceptedForUsers(ctx, users)
	if err != nil {
		return nil, fmt.Errorf("load accepted submissions of %d users: %w", len(users), err)
	}
	return subs, nil
}

// recomputeRecords replaces the record table from scratch in full mode; in delta mode it merges
// the candidates into the stored winners and writes only the problems whose winner changed.
func (e *Engine) recomputeRecords(ctx context.Context, kind stats.RecordKind, full bool, subs []crawl.Submission) (int, error) {
	contests, err := e.Source.LoadContests(ctx)
	if err != nil {
		return 0, fmt.Errorf("load contests: %w", err)
	}

	if full {
		merged, _ := MergeRecords(kind, nil, subs, contests)
		return len(merged), e.Stats.ReplaceSolutionRecords(ctx, kind, merged)
	}

	stored, err := e.Stats.LoadSolutionRecords(ctx, kind)
	if err != nil {
		return 0, fmt.Errorf("load %s records: %w", kind, err)
	}
	_, changed := MergeRecords(kind, stored, subs, contests)
	if len(changed) == 0 {
		return 0, nil
	}
	return len(changed), e.Stats.UpsertSolutionRecords(ctx, kind, changed)
}
