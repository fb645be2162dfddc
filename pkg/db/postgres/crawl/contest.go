package crawl

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/crawl"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/postgres"
)

func (db *DB) initContests(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS contests (
			id TEXT PRIMARY KEY,
			start_epoch_second BIGINT NOT NULL,
			duration_second BIGINT NOT NULL,
			title TEXT NOT NULL,
			rate_change TEXT NOT NULL
		)
	`
	return db.Exec(ctx, query)
}

func (db *DB) initProblems(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS problems (
			id TEXT PRIMARY KEY,
			contest_id TEXT NOT NULL,
			title TEXT NOT NULL,
			position TEXT NOT NULL DEFAULT ''
		)
	`
	return db.Exec(ctx, query)
}

func (db *DB) initContestProblems(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS contest_problems (
			contest_id TEXT NOT NULL,
			problem_id TEXT NOT NULL,
			position TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (contest_id, problem_id)
		)
	`
	return db.Exec(ctx, query)
}

func (db *DB) LoadContests(ctx context.Context) ([]crawl.Contest, error) {
	rows, err := db.GetExecutor(ctx).Query(ctx, `
		SELECT id, start_epoch_second, duration_second, title, rate_change
		FROM contests
		ORDER BY start_epoch_second DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query contests: %w", err)
	}
	defer rows.Close()

	var out []crawl.Contest
	for rows.Next() {
		var c crawl.Contest
		if err := rows.Scan(&c.ID, &c.StartEpochSecond, &c.DurationSecond, &c.Title, &c.RateChange); err != nil {
			return nil, fmt.Errorf("scan contest: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (db *DB) UpsertContests(ctx context.Context, contests []crawl.Contest) error {
	if len(contests) == 0 {
		return nil
	}

	query := `
		INSERT INTO contests (id, start_epoch_second, duration_second, title, rate_change)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			start_epoch_second = EXCLUDED.start_epoch_second,
			duration_second = EXCLUDED.duration_second,
			title = EXCLUDED.title,
			rate_change = EXCLUDED.rate_change
	`

	batch := &pgx.Batch{}
	for _, c := range contests {
		batch.Queue(query, c.ID, c.StartEpochSecond, c.DurationSecond, c.Title, c.RateChange)
	}

	return db.BeginFunc(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := postgres.ExecuteBatch(ctx, tx, batch); err != nil {
			return fmt.Errorf("upsert contests: %w", err)
		}
		return nil
	})
}

// UpsertProblems stores problems and their contest links together. An existing problem keeps the
// contest it was first seen in; only its title is refreshed.
func (db *DB) UpsertProblems(ctx context.Context, problems []crawl.Problem) error {
	if len(problems) == 0 {
		return nil
	}

	problemQuery := `
		INSERT INTO problems (id, contest_id, title, position)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title
	`
	linkQuery := `
		INSERT INTO contest_problems (contest_id, problem_id, position)
		VALUES ($1, $2, $3)
		ON CONFLICT (contest_id, problem_id) DO UPDATE SET position = EXCLUDED.position
	`

	batch := &pgx.Batch{}
	for _, p := range problems {
		batch.Queue(problemQuery, p.ID, p.ContestID, p.Title, p.Position)
	}
	for _, link := range crawl.ContestProblems(problems) {
		batch.Queue(linkQuery, link.ContestID, link.ProblemID, link.Position)
	}

	return db.BeginFunc(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := postgres.ExecuteBatch(ctx, tx, batch); err != nil {
			return fmt.Errorf("upsert problems: %w", err)
		}
		return nil
	})
}

func (db *DB) LoadProblems(ctx context.Context) ([]crawl.Problem, error) {
	rows, err := db.GetExecutor(ctx).Query(ctx, `SELECT id, contest_id, title, position FROM problems`)
	if err != nil {
		return nil, fmt.Errorf("query problems: %w", err)
	}
	defer rows.Close()

	var out []crawl.Problem
	for rows.Next() {
		var p crawl.Problem
		if err := rows.Scan(&p.ID, &p.ContestID, &p.Title, &p.Position); err != nil {
			return nil, fmt.Errorf("scan problem: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) LoadContestProblems(ctx context.Context) ([]crawl.ContestProblem, error) {
	rows, err := db.GetExecutor(ctx).Query(ctx, `SELECT contest_id, problem_id, position FROM contest_problems`)
	if err != nil {
		return nil, fmt.Errorf("query contest problems: %w", err)
	}
	defer rows.Close()

	var out []crawl.ContestProblem
	for rows.Next() {
		var cp crawl.ContestProblem
		if err := rows.Scan(&cp.ContestID, &cp.ProblemID, &cp.Position); err != nil {
			return nil, fmt.Errorf("scan contest problem: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// ContestsWithoutProblems lists contests that have no contest_problems link yet.
func (db *DB) ContestsWithoutProblems(ctx context.Context) ([]string, error) {
	return db.queryIDs(ctx, `
		SELECT c.id
		FROM contests c
		WHERE NOT EXISTS (SELECT 1 FROM contest_problems cp WHERE cp.contest_id = c.id)
		ORDER BY c.start_epoch_second DESC
	`)
}

func (db *DB) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := db.GetExecutor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
