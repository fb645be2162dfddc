package stats

import (
	"context"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
)

func (db *DB) initAcceptedCount(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS accepted_count (
			user_id TEXT PRIMARY KEY,
			problem_count BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS accepted_count_rank_idx ON accepted_count (problem_count DESC, user_id);
	`
	return db.Exec(ctx, query)
}

func (db *DB) initLanguageCount(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS language_count (
			user_id TEXT NOT NULL,
			simplified_language TEXT NOT NULL,
			problem_count BIGINT NOT NULL,
			PRIMARY KEY (user_id, simplified_language)
		);
		CREATE INDEX IF NOT EXISTS language_count_rank_idx ON language_count (simplified_language, problem_count DESC, user_id);
	`
	return db.Exec(ctx, query)
}

func (db *DB) initRatedPointSum(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS rated_point_sum (
			user_id TEXT PRIMARY KEY,
			point_sum DOUBLE PRECISION NOT NULL
		);
		CREATE INDEX IF NOT EXISTS rated_point_sum_rank_idx ON rated_point_sum (point_sum DESC, user_id);
	`
	return db.Exec(ctx, query)
}

func (db *DB) initStreak(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS max_streak (
			user_id TEXT PRIMARY KEY,
			streak BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS max_streak_rank_idx ON max_streak (streak DESC, user_id);
	`
	return db.Exec(ctx, query)
}

var (
	acceptedCountColumns = []string{"user_id", "problem_count"}
	languageCountColumns = []string{"user_id", "simplified_language", "problem_count"}
	ratedPointSumColumns = []string{"user_id", "point_sum"}
	streakColumns        = []string{"user_id", "streak"}
)

func (db *DB) ReplaceAcceptedCounts(ctx context.Context, rows []stats.AcceptedCount) error {
	return db.replaceTable(ctx, stats.AcceptedCountTableName, acceptedCountColumns, len(rows), func(i int) []any {
		return []any{rows[i].UserID, rows[i].ProblemCount}
	})
}

func (db *DB) ReplaceAcceptedCountsForUsers(ctx context.Context, users []string, rows []stats.AcceptedCount) error {
	query := `
		INSERT INTO accepted_count (user_id, problem_count) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET problem_count = EXCLUDED.problem_count
	`
	return db.replaceUserRows(ctx, stats.AcceptedCountTableName, users, query, len(rows), func(i int) []any {
		return []any{rows[i].UserID, rows[i].ProblemCount}
	})
}

func (db *DB) ReplaceLanguageCounts(ctx context.Context, rows []stats.LanguageCount) error {
	return db.replaceTable(ctx, stats.LanguageCountTableName, languageCountColumns, len(rows), func(i int) []any {
		return []any{rows[i].UserID, rows[i].SimplifiedLanguage, rows[i].ProblemCount}
	})
}

func (db *DB) ReplaceLanguageCountsForUsers(ctx context.Context, users []string, rows []stats.LanguageCount) error {
	query := `
		INSERT INTO language_count (user_id, simplified_language, problem_count) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, simplified_language) DO UPDATE SET problem_count = EXCLUDED.problem_count
	`
	return db.replaceUserRows(ctx, stats.LanguageCountTableName, users, query, len(rows), func(i int) []any {
		return []any{rows[i].UserID, rows[i].SimplifiedLanguage, rows[i].ProblemCount}
	})
}

func (db *DB) ReplaceRatedPointSums(ctx context.Context, rows []stats.RatedPointSum) error {
	return db.replaceTable(ctx, stats.RatedPointSumTableName, ratedPointSumColumns, len(rows), func(i int) []any {
		return []any{rows[i].UserID, rows[i].PointSum}
	})
}

func (db *DB) ReplaceRatedPointSumsForUsers(ctx context.Context, users []string, rows []stats.RatedPointSum) error {
	query := `
		INSERT INTO rated_point_sum (user_id, point_sum) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET point_sum = EXCLUDED.point_sum
	`
	return db.replaceUserRows(ctx, stats.RatedPointSumTableName, users, query, len(rows), func(i int) []any {
		return []any{rows[i].UserID, rows[i].PointSum}
	})
}

func (db *DB) ReplaceStreaks(ctx context.Context, rows []stats.Streak) error {
	return db.replaceTable(ctx, stats.StreakTableName, streakColumns, len(rows), func(i int) []any {
		return []any{rows[i].UserID, rows[i].Streak}
	})
}

func (db *DB) ReplaceStreaksForUsers(ctx context.Context, users []string, rows []stats.Streak) error {
	query := `
		INSERT INTO max_streak (user_id, streak) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET streak = EXCLUDED.streak
	`
	return db.replaceUserRows(ctx, stats.StreakTableName, users, query, len(rows), func(i int) []any {
		return []any{rows[i].UserID, rows[i].Streak}
	})
}
