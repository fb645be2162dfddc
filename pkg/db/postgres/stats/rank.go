package stats

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	store "github.com/kenkoooo/AtCoderProblems-sub000/pkg/db"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/postgres"
)

// metricSource maps a ranking onto its SQL table and value column.
type metricSource struct {
	table    string
	column   string
	integer  bool
	language bool
}

func sourceOf(t stats.MetricTable) (metricSource, error) {
	switch t {
	case stats.MetricAcceptedCount:
		return metricSource{table: stats.AcceptedCountTableName, column: "problem_count", integer: true}, nil
	case stats.MetricLanguageCount:
		return metricSource{table: stats.LanguageCountTableName, column: "problem_count", integer: true, language: true}, nil
	case stats.MetricRatedPointSum:
		return metricSource{table: stats.RatedPointSumTableName, column: "point_sum"}, nil
	case stats.MetricStreak:
		return metricSource{table: stats.StreakTableName, column: "streak", integer: true}, nil
	default:
		return metricSource{}, fmt.Errorf("unknown metric table %q", t)
	}
}

// threshold converts value to a parameter of the column's type. For integer columns
// "> v" is the same as "> floor(v)", which keeps the rank index usable. Values outside the
// BIGINT range clamp to its bounds; NaN compares above every number, as it does in Postgres.
func (s metricSource) threshold(value float64) any {
	if !s.integer {
		return value
	}
	switch {
	case math.IsNaN(value) || value >= math.MaxInt64:
		return int64(math.MaxInt64)
	case value < math.MinInt64:
		return int64(math.MinInt64)
	}
	return int64(math.Floor(value))
}

// ReadSnapshot runs fn inside a REPEATABLE READ READ ONLY transaction so every read sees one snapshot.
func (db *DB) ReadSnapshot(ctx context.Context, fn func(store.RankReader) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return db.BeginTxFunc(ctx, opts, func(ctx context.Context, tx pgx.Tx) error {
		return fn(&rankReader{exec: tx})
	})
}

type rankReader struct {
	exec postgres.Executor
}

func (r *rankReader) CountGreater(ctx context.Context, q stats.MetricQuery, value float64) (int64, error) {
	src, err := sourceOf(q.Table)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s > $1`, src.table, src.column)
	args := []any{src.threshold(value)}
	if src.language {
		query += ` AND simplified_language = $2`
		args = append(args, q.Language)
	}

	var n int64
	if err := r.exec.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s above %v: %w", src.table, value, err)
	}
	return n, nil
}

func (r *rankReader) LoadRange(ctx context.Context, q stats.MetricQuery, offset, limit int) ([]stats.MetricRow, error) {
	src, err := sourceOf(q.Table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT user_id, %s::DOUBLE PRECISION FROM %s`, src.column, src.table)
	var args []any
	if src.language {
		query += ` WHERE simplified_language = $1`
		args = append(args, q.Language)
	}
	query += fmt.Sprintf(` ORDER BY %s DESC, user_id ASC OFFSET %d`, src.column, max(offset, 0))
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := r.exec.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", src.table, err)
	}
	defer rows.Close()

	var out []stats.MetricRow
	for rows.Next() {
		row := stats.MetricRow{Language: q.Language}
		if err := rows.Scan(&row.UserID, &row.Value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", src.table, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *rankReader) ValueOf(ctx context.Context, q stats.MetricQuery, userID string) (float64, bool, error) {
	src, err := sourceOf(q.Table)
	if err != nil {
		return 0, false, err
	}

	query := fmt.Sprintf(`SELECT %s::DOUBLE PRECISION FROM %s WHERE user_id = $1`, src.column, src.table)
	args := []any{userID}
	if src.language {
		query += ` AND simplified_language = $2`
		args = append(args, q.Language)
	}

	var v float64
	if err := r.exec.QueryRow(ctx, query, args...).Scan(&v); err != nil {
		if postgres.IsNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("value of %s in %s: %w", userID, src.table, err)
	}
	return v, true, nil
}

func (r *rankReader) Languages(ctx context.Context) ([]string, error) {
	rows, err := r.exec.Query(ctx, `SELECT DISTINCT simplified_language FROM language_count ORDER BY simplified_language`)
	if err != nil {
		return nil, fmt.Errorf("query languages: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var lang string
		if err := rows.Scan(&lang); err != nil {
			return nil, fmt.Errorf("scan language: %w", err)
		}
		out = append(out, lang)
	}
	return out, rows.Err()
}
