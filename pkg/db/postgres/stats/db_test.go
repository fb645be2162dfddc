package stats

import (
	"context"
	"os"
	"sort"
	"testing"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/postgres"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/postgres/pgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	code := m.Run()
	pgtest.Terminate()
	os.Exit(code)
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	t.Setenv("POSTGRES_URL", pgtest.URL(t))

	db, err := NewWithPoolConfig(context.Background(), zaptest.NewLogger(t), pgtest.DBName(t), postgres.PoolConfig{
		MinConns: 1, MaxConns: 4, Component: "test",
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func loadAcceptedCounts(t *testing.T, db *DB) map[string]int64 {
	t.Helper()
	rows, err := db.Pool.Query(context.Background(), `SELECT user_id, problem_count FROM accepted_count`)
	require.NoError(t, err)
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var (
			user string
			n    int64
		)
		require.NoError(t, rows.Scan(&user, &n))
		out[user] = n
	}
	require.NoError(t, rows.Err())
	return out
}

func loadLanguageCounts(t *testing.T, db *DB) []stats.LanguageCount {
	t.Helper()
	rows, err := db.Pool.Query(context.Background(),
		`SELECT user_id, simplified_language, problem_count FROM language_count ORDER BY user_id, simplified_language`)
	require.NoError(t, err)
	defer rows.Close()

	var out []stats.LanguageCount
	for rows.Next() {
		var r stats.LanguageCount
		require.NoError(t, rows.Scan(&r.UserID, &r.SimplifiedLanguage, &r.ProblemCount))
		out = append(out, r)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestReplaceSwapsWholeTable(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.ReplaceAcceptedCounts(ctx, []stats.AcceptedCount{
		{UserID: "alice", ProblemCount: 3},
		{UserID: "bob", ProblemCount: 2},
	}))
	require.NoError(t, db.ReplaceAcceptedCounts(ctx, []stats.AcceptedCount{
		{UserID: "bob", ProblemCount: 5},
		{UserID: "carol", ProblemCount: 1},
	}))
	assert.Equal(t, map[string]int64{"bob": 5, "carol": 1}, loadAcceptedCounts(t, db))

	require.NoError(t, db.ReplaceAcceptedCounts(ctx, nil))
	assert.Empty(t, loadAcceptedCounts(t, db))
}

func TestReplaceForUsersTouchesOnlyThoseUsers(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.ReplaceLanguageCounts(ctx, []stats.LanguageCount{
		{UserID: "alice", SimplifiedLanguage: "C++", ProblemCount: 4},
		{UserID: "alice", SimplifiedLanguage: "Rust", ProblemCount: 1},
		{UserID: "bob", SimplifiedLanguage: "Go", ProblemCount: 2},
		{UserID: "carol", SimplifiedLanguage: "Python", ProblemCount: 7},
	}))

	// alice dropped Rust, bob lost every AC, dave is new and carol is untouched.
	require.NoError(t, db.ReplaceLanguageCountsForUsers(ctx, []string{"alice", "bob", "dave"}, []stats.LanguageCount{
		{UserID: "alice", SimplifiedLanguage: "C++", ProblemCount: 5},
		{UserID: "dave", SimplifiedLanguage: "Go", ProblemCount: 1},
	}))
	assert.Equal(t, []stats.LanguageCount{
		{UserID: "alice", SimplifiedLanguage: "C++", ProblemCount: 5},
		{UserID: "carol", SimplifiedLanguage: "Python", ProblemCount: 7},
		{UserID: "dave", SimplifiedLanguage: "Go", ProblemCount: 1},
	}, loadLanguageCounts(t, db))

	require.NoError(t, db.ReplaceAcceptedCounts(ctx, []stats.AcceptedCount{{UserID: "alice", ProblemCount: 1}}))
	require.NoError(t, db.ReplaceAcceptedCountsForUsers(ctx, nil, []stats.AcceptedCount{{UserID: "zed", ProblemCount: 9}}))
	assert.Equal(t, map[string]int64{"alice": 1}, loadAcceptedCounts(t, db), "an empty user set writes nothing")
}

func sortedRecords(rows []stats.SolutionRecord) []stats.SolutionRecord {
	sort.Slice(rows, func(i, j int) bool { return rows[i].ProblemID < rows[j].ProblemID })
	return rows
}

func TestUpsertSolutionRecordsKeepsBestWinner(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.ReplaceSolutionRecords(ctx, stats.RecordShortest, []stats.SolutionRecord{
		{ProblemID: "p1", ContestID: "c1", SubmissionID: 10, Metric: 50},
	}))
	require.NoError(t, db.UpsertSolutionRecords(ctx, stats.RecordShortest, []stats.SolutionRecord{
		{ProblemID: "p1", ContestID: "c1", SubmissionID: 5, Metric: 60},
		{ProblemID: "p1", ContestID: "c1", SubmissionID: 11, Metric: 50},
		{ProblemID: "p2", ContestID: "c1", SubmissionID: 12, Metric: 70},
	}))
	got, err := db.LoadSolutionRecords(ctx, stats.RecordShortest)
	require.NoError(t, err)
	assert.Equal(t, []stats.SolutionRecord{
		{ProblemID: "p1", ContestID: "c1", SubmissionID: 10, Metric: 50},
		{ProblemID: "p2", ContestID: "c1", SubmissionID: 12, Metric: 70},
	}, sortedRecords(got))

	require.NoError(t, db.UpsertSolutionRecords(ctx, stats.RecordShortest, []stats.SolutionRecord{
		{ProblemID: "p1", ContestID: "c2", SubmissionID: 9, Metric: 50},
	}))
	got, err = db.LoadSolutionRecords(ctx, stats.RecordShortest)
	require.NoError(t, err)
	assert.Equal(t, stats.SolutionRecord{ProblemID: "p1", ContestID: "c2", SubmissionID: 9, Metric: 50}, sortedRecords(got)[0])
}

func TestUpsertSolutionRecordsCommute(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	a := []stats.SolutionRecord{
		{ProblemID: "p1", ContestID: "c", SubmissionID: 30, Metric: 10},
		{ProblemID: "p2", ContestID: "c", SubmissionID: 31, Metric: 500},
	}
	b := []stats.SolutionRecord{
		{ProblemID: "p1", ContestID: "c", SubmissionID: 40, Metric: 200},
		{ProblemID: "p2", ContestID: "c", SubmissionID: 41, Metric: 20},
	}

	require.NoError(t, db.UpsertSolutionRecords(ctx, stats.RecordShortest, a))
	require.NoError(t, db.UpsertSolutionRecords(ctx, stats.RecordShortest, b))
	require.NoError(t, db.UpsertSolutionRecords(ctx, stats.RecordFastest, b))
	require.NoError(t, db.UpsertSolutionRecords(ctx, stats.RecordFastest, a))

	ab, err := db.LoadSolutionRecords(ctx, stats.RecordShortest)
	require.NoError(t, err)
	ba, err := db.LoadSolutionRecords(ctx, stats.RecordFastest)
	require.NoError(t, err)

	want := []stats.SolutionRecord{a[0], b[1]}
	assert.Equal(t, want, sortedRecords(ab))
	assert.Equal(t, want, sortedRecords(ba))
}
