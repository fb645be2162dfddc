package crawl

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/crawl"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/postgres"
)

const submissionColumns = `id, epoch_second, problem_id, contest_id, user_id, language, point, length, result, execution_time`

func (db *DB) initSubmissions(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS submissions (
			id BIGINT PRIMARY KEY,
			epoch_second BIGINT NOT NULL,
			problem_id TEXT NOT NULL,
			contest_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			language TEXT NOT NULL,
			point DOUBLE PRECISION NOT NULL,
			length BIGINT NOT NULL,
			result TEXT NOT NULL,
			execution_time BIGINT
		);
		CREATE INDEX IF NOT EXISTS submissions_contest_id_idx ON submissions (contest_id);
		CREATE INDEX IF NOT EXISTS submissions_user_id_idx ON submissions (user_id);
		CREATE INDEX IF NOT EXISTS submissions_accepted_idx ON submissions (user_id, problem_id) WHERE result = 'AC';
	`
	return db.Exec(ctx, query)
}

// UpsertSubmissions writes the page in one transaction. A conflicting id only refreshes the
// fields a rejudge or rename can change; problem, contest, language and length stay as first stored.
func (db *DB) UpsertSubmissions(ctx context.Context, subs []crawl.Submission) error {
	if len(subs) == 0 {
		return nil
	}

	query := `
		INSERT INTO submissions (` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			result = EXCLUDED.result,
			point = EXCLUDED.point,
			execution_time = EXCLUDED.execution_time
	`

	batch := &pgx.Batch{}
	for _, s := range subs {
		batch.Queue(query,
			s.ID, s.EpochSecond, s.ProblemID, s.ContestID, s.UserID,
			s.Language, s.Point, s.Length, s.Result, s.ExecutionTime,
		)
	}

	return db.BeginFunc(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := postgres.ExecuteBatch(ctx, tx, batch); err != nil {
			return fmt.Errorf("upsert submissions: %w", err)
		}
		return nil
	})
}

// LookupSubmissions returns the stored owner and verdict of the ids already present.
func (db *DB) LookupSubmissions(ctx context.Context, ids []int64) (map[int64]crawl.StoredSubmission, error) {
	found := make(map[int64]crawl.StoredSubmission)
	if len(ids) == 0 {
		return found, nil
	}

	rows, err := db.GetExecutor(ctx).Query(ctx,
		`SELECT id, user_id, result FROM submissions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query submission ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id int64
			s  crawl.StoredSubmission
		)
		if err := rows.Scan(&id, &s.UserID, &s.Result); err != nil {
			return nil, fmt.Errorf("scan submission id: %w", err)
		}
		found[id] = s
	}
	return found, rows.Err()
}

func (db *DB) CountContestSubmissions(ctx context.Context, contestID string) (int64, error) {
	var n int64
	err := db.GetExecutor(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE contest_id = $1`, contestID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count submissions of %s: %w", contestID, err)
	}
	return n, nil
}

// LoadAllAccepted returns every AC submission.
func (db *DB) LoadAllAccepted(ctx context.Context) ([]crawl.Submission, error) {
	return db.querySubmissions(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE result = $1`,
		crawl.ResultAccepted)
}

// LoadAcceptedForUsers returns every AC submission of the given users.
func (db *DB) LoadAcceptedForUsers(ctx context.Context, userIDs []string) ([]crawl.Submission, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return db.querySubmissions(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE result = $1 AND user_id = ANY($2)`,
		crawl.ResultAccepted, userIDs)
}

func (db *DB) querySubmissions(ctx context.Context, query string, args ...any) ([]crawl.Submission, error) {
	rows, err := db.GetExecutor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []crawl.Submission
	for rows.Next() {
		var s crawl.Submission
		if err := rows.Scan(
			&s.ID, &s.EpochSecond, &s.ProblemID, &s.ContestID, &s.UserID,
			&s.Language, &s.Point, &s.Length, &s.Result, &s.ExecutionTime,
		); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}
