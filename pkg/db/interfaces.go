package db

import (
	"context"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/crawl"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
)

// SubmissionStore is the raw submission table as seen by the crawler.
type SubmissionStore interface {
	// UpsertSubmissions inserts or updates the batch in one transaction.
	UpsertSubmissions(ctx context.Context, subs []crawl.Submission) error
	// LookupSubmissions returns the stored owner and verdict of the ids already present.
	LookupSubmissions(ctx context.Context, ids []int64) (map[int64]crawl.StoredSubmission, error)
	CountContestSubmissions(ctx context.Context, contestID string) (int64, error)
}

// ContestStore holds contest and problem metadata.
type ContestStore interface {
	LoadContests(ctx context.Context) ([]crawl.Contest, error)
	UpsertContests(ctx context.Context, contests []crawl.Contest) error
	// UpsertProblems stores the problems and their contest links in one transaction.
	UpsertProblems(ctx context.Context, problems []crawl.Problem) error
	LoadProblems(ctx context.Context) ([]crawl.Problem, error)
	LoadContestProblems(ctx context.Context) ([]crawl.ContestProblem, error)
	ContestsWithoutProblems(ctx context.Context) ([]string, error)
	// RunningVirtualContestIDs returns the platform contests referenced by virtual contests
	// that are running at nowEpoch.
	RunningVirtualContestIDs(ctx context.Context, nowEpoch int64) ([]string, error)
}

// AcceptedSource feeds the aggregation engine.
type AcceptedSource interface {
	LoadContests(ctx context.Context) ([]crawl.Contest, error)
	LoadContestProblems(ctx context.Context) ([]crawl.ContestProblem, error)
	LoadAllAccepted(ctx context.Context) ([]crawl.Submission, error)
	LoadAcceptedForUsers(ctx context.Context, userIDs []string) ([]crawl.Submission, error)
}

// RawStore is everything the crawl side persists.
type RawStore interface {
	SubmissionStore
	ContestStore
	LoadAllAccepted(ctx context.Context) ([]crawl.Submission, error)
	LoadAcceptedForUsers(ctx context.Context, userIDs []string) ([]crawl.Submission, error)
}

// StatsStore is the write side of the derived tables. Every call is one transaction.
// Replace* swaps the whole table. Replace*ForUsers swaps the rows of the given users only, so a
// user absent from rows loses its rows.
type StatsStore interface {
	ReplaceAcceptedCounts(ctx context.Context, rows []stats.AcceptedCount) error
	ReplaceAcceptedCountsForUsers(ctx context.Context, users []string, rows []stats.AcceptedCount) error
	ReplaceLanguageCounts(ctx context.Context, rows []stats.LanguageCount) error
	ReplaceLanguageCountsForUsers(ctx context.Context, users []string, rows []stats.LanguageCount) error
	ReplaceRatedPointSums(ctx context.Context, rows []stats.RatedPointSum) error
	ReplaceRatedPointSumsForUsers(ctx context.Context, users []string, rows []stats.RatedPointSum) error
	ReplaceStreaks(ctx context.Context, rows []stats.Streak) error
	ReplaceStreaksForUsers(ctx context.Context, users []string, rows []stats.Streak) error
	LoadSolutionRecords(ctx context.Context, kind stats.RecordKind) ([]stats.SolutionRecord, error)
	ReplaceSolutionRecords(ctx context.Context, kind stats.RecordKind, rows []stats.SolutionRecord) error
	// UpsertSolutionRecords stores a row only when it beats the stored winner of its problem,
	// so concurrent writers commute.
	UpsertSolutionRecords(ctx context.Context, kind stats.RecordKind, rows []stats.SolutionRecord) error
}

// RankReader answers ranking queries against one snapshot of a metric table.
type RankReader interface {
	// CountGreater counts rows whose metric is strictly greater than value.
	CountGreater(ctx context.Context, q stats.MetricQuery, value float64) (int64, error)
	// LoadRange returns rows ordered by metric descending, user id ascending. A limit <= 0
	// returns every row from offset on.
	LoadRange(ctx context.Context, q stats.MetricQuery, offset, limit int) ([]stats.MetricRow, error)
	// ValueOf returns the metric of one user, or false when the user has no row.
	ValueOf(ctx context.Context, q stats.MetricQuery, userID string) (float64, bool, error)
	// Languages lists the simplified languages present in the language table.
	Languages(ctx context.Context) ([]string, error)
}

// RankSnapshotter runs fn against a single consistent snapshot.
type RankSnapshotter interface {
	ReadSnapshot(ctx context.Context, fn func(RankReader) error) error
}

// SubmissionArchive receives a copy of every ingested page. It is optional and best-effort.
type SubmissionArchive interface {
	ArchiveSubmissions(ctx context.Context, subs []crawl.Submission) error
}
