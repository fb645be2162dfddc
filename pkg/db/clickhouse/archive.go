package clickhouse

import (
	"context"
	"fmt"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/crawl"
	"go.uber.org/zap"
)

var _ db.SubmissionArchive = (*Archive)(nil)

// Archive mirrors ingested submissions into an append-only table for analytics. Re-ingested ids
// collapse on merge through ReplacingMergeTree versioned by ingestion time.
type Archive struct {
	Client
}

// NewArchive connects and creates the archive table.
func NewArchive(ctx context.Context, logger *zap.Logger, name string, poolConfig *PoolConfig) (*Archive, error) {
	client, err := New(ctx, logger.With(zap.String("db", name)), name, poolConfig)
	if err != nil {
		return nil, err
	}
	a := &Archive{Client: client}
	if err := a.initSubmissions(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) initSubmissions(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id Int64,
			epoch_second Int64,
			problem_id String,
			contest_id LowCardinality(String),
			user_id String,
			language LowCardinality(String),
			point Float64,
			length Int64,
			result LowCardinality(String),
			execution_time Nullable(Int64),
			ingested_at DateTime64(3) DEFAULT now64(3)
		) ENGINE = %s(ingested_at)
		ORDER BY id
	`, crawl.SubmissionsTableName, ReplacingMergeTree)
	return a.Exec(ctx, query)
}

// ArchiveSubmissions appends one page of submissions.
func (a *Archive) ArchiveSubmissions(ctx context.Context, subs []crawl.Submission) error {
	if len(subs) == 0 {
		return nil
	}

	batch, err := a.PrepareBatch(ctx, fmt.Sprintf(`INSERT INTO %s (
		id, epoch_second, problem_id, contest_id, user_id, language, point, length, result, execution_time
	)`, crawl.SubmissionsTableName))
	if err != nil {
		return fmt.Errorf("prepare archive batch: %w", err)
	}
	defer func() { _ = batch.Abort() }()

	for i := range subs {
		if err := batch.AppendStruct(&subs[i]); err != nil {
			return fmt.Errorf("append submission %d: %w", subs[i].ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send archive batch: %w", err)
	}
	return nil
}
