package crawl

import (
	"context"
)

// initVirtualContests creates the tables written by the public API. The crawler only reads them.
func (db *DB) initVirtualContests(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS virtual_contests (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			owner_user_id TEXT NOT NULL DEFAULT '',
			start_epoch_second BIGINT NOT NULL,
			duration_second BIGINT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS virtual_contest_problems (
			internal_virtual_contest_id TEXT NOT NULL,
			problem_id TEXT NOT NULL,
			user_defined_point BIGINT,
			user_defined_order BIGINT,
			PRIMARY KEY (internal_virtual_contest_id, problem_id)
		)
	`
	return db.Exec(ctx, query)
}

// RunningVirtualContestIDs returns the platform contests whose problems appear in a virtual
// contest running at nowEpoch.
func (db *DB) RunningVirtualContestIDs(ctx context.Context, nowEpoch int64) ([]string, error) {
	return db.queryIDs(ctx, `
		SELECT DISTINCT cp.contest_id
		FROM virtual_contests vc
		JOIN virtual_contest_problems vcp ON vcp.internal_virtual_contest_id = vc.id
		JOIN contest_problems cp ON cp.problem_id = vcp.problem_id
		WHERE vc.start_epoch_second <= $1
		  AND $1 < vc.start_epoch_second + vc.duration_second
		ORDER BY cp.contest_id
	`, nowEpoch)
}
