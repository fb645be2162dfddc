package stats

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
)

var solutionRecordColumns = []string{"problem_id", "contest_id", "submission_id", "metric"}

func (db *DB) initSolutionRecords(ctx context.Context) error {
	for _, kind := range []stats.RecordKind{stats.RecordFirst, stats.RecordFastest, stats.RecordShortest} {
		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				problem_id TEXT PRIMARY KEY,
				contest_id TEXT NOT NULL,
				submission_id BIGINT NOT NULL,
				metric BIGINT NOT NULL
			)
		`, pgx.Identifier{kind.TableName()}.Sanitize())
		if err := db.Exec(ctx, query); err != nil {
			return fmt.Errorf("create %s: %w", kind.TableName(), err)
		}
	}
	return nil
}

func (db *DB) LoadSolutionRecords(ctx context.Context, kind stats.RecordKind) ([]stats.SolutionRecord, error) {
	query := fmt.Sprintf(`SELECT problem_id, contest_id, submission_id, metric FROM %s`,
		pgx.Identifier{kind.TableName()}.Sanitize())

	rows, err := db.GetExecutor(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind.TableName(), err)
	}
	defer rows.Close()

	var out []stats.SolutionRecord
	for rows.Next() {
		var r stats.SolutionRecord
		if err := rows.Scan(&r.ProblemID, &r.ContestID, &r.SubmissionID, &r.Metric); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind.TableName(), err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) ReplaceSolutionRecords(ctx context.Context, kind stats.RecordKind, rows []stats.SolutionRecord) error {
	return db.replaceTable(ctx, kind.TableName(), solutionRecordColumns, len(rows), func(i int) []any {
		return []any{rows[i].ProblemID, rows[i].ContestID, rows[i].SubmissionID, rows[i].Metric}
	})
}

// UpsertSolutionRecords keeps the stored winner unless the new row has a smaller metric, or the
// same metric and a smaller submission id.
func (db *DB) UpsertSolutionRecords(ctx context.Context, kind stats.RecordKind, rows []stats.SolutionRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s AS t (problem_id, contest_id, submission_id, metric) VALUES ($1, $2, $3, $4)
		ON CONFLICT (problem_id) DO UPDATE SET
			contest_id = EXCLUDED.contest_id,
			submission_id = EXCLUDED.submission_id,
			metric = EXCLUDED.metric
		WHERE (EXCLUDED.metric, EXCLUDED.submission_id) < (t.metric, t.submission_id)
	`, pgx.Identifier{kind.TableName()}.Sanitize())
	return db.upsertRows(ctx, kind.TableName(), query, len(rows), func(i int) []any {
		return []any{rows[i].ProblemID, rows[i].ContestID, rows[i].SubmissionID, rows[i].Metric}
	})
}
