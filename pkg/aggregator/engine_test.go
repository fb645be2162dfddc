package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/memdb"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/crawl"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var contestStart = time.Date(2020, time.March, 1, 21, 0, 0, 0, jst)

func seedStore(t *testing.T, store *memdb.DB, subs []crawl.Submission) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.UpsertContests(ctx, []crawl.Contest{
		{ID: "abc100", StartEpochSecond: contestStart.Unix(), DurationSecond: 6000, RateChange: " ~ 1999"},
		{ID: "abc101", StartEpochSecond: contestStart.Add(7 * 24 * time.Hour).Unix(), DurationSecond: 6000, RateChange: "-"},
	}))
	require.NoError(t, store.UpsertProblems(ctx, []crawl.Problem{
		{ID: "abc100_a", ContestID: "abc100", Position: "A"},
		{ID: "abc100_b", ContestID: "abc100", Position: "B"},
		{ID: "abc101_a", ContestID: "abc101", Position: "A"},
	}))
	require.NoError(t, store.UpsertSubmissions(ctx, subs))
}

type subOpt func(*crawl.Submission)

func sub(id int64, user, problem string, day int, opts ...subOpt) crawl.Submission {
	contest := problem[:6]
	s := crawl.Submission{
		ID:          id,
		EpochSecond: contestStart.Add(time.Duration(day)*24*time.Hour + time.Duration(id)*time.Second).Unix(),
		ProblemID:   problem,
		ContestID:   contest,
		UserID:      user,
		Language:    "Python3 (3.4.3)",
		Point:       100,
		Length:      1000 - id,
		Result:      crawl.ResultAccepted,
	}
	ms := 100 + id%7
	s.ExecutionTime = &ms
	for _, o := range opts {
		o(&s)
	}
	return s
}

func baseSubmissions() []crawl.Submission {
	return []crawl.Submission{
		sub(1, "alice", "abc100_a", 0),
		sub(2, "alice", "abc100_b", 1, func(s *crawl.Submission) { s.Point = 300 }),
		sub(3, "bob", "abc100_a", 0, func(s *crawl.Submission) { s.Language = "Perl (5)" }),
		sub(4, "carol", "abc101_a", 7),
		sub(5, "dave", "abc100_b", 2, func(s *crawl.Submission) { s.Result = "WA" }),
	}
}

func newSubmissions() []crawl.Submission {
	return []crawl.Submission{
		sub(6, "alice", "abc101_a", 2),
		sub(7, "carol", "abc100_a", 8, func(s *crawl.Submission) { s.Length = 10 }),
		sub(8, "carol", "abc100_b", 9, func(s *crawl.Submission) { s.Language = "C++14 (GCC 5.4.1)" }),
		sub(9, "dave", "abc100_b", 2, func(s *crawl.Submission) { s.Result = "TLE" }),
	}
}

func newTestEngine(t *testing.T, store *memdb.DB) *Engine {
	t.Helper()
	e := New(zaptest.NewLogger(t), store, store, 2)
	t.Cleanup(e.Close)
	return e
}

func TestDeltaMatchesFullRebuild(t *testing.T) {
	ctx := context.Background()

	incremental := memdb.New()
	seedStore(t, incremental, baseSubmissions())
	engine := newTestEngine(t, incremental)
	require.NoError(t, engine.Run(ctx, stats.ModeFull, nil, nil).Err())

	require.NoError(t, incremental.UpsertSubmissions(ctx, newSubmissions()))
	touched := crawl.AcceptedUserIDs(newSubmissions())
	assert.ElementsMatch(t, []string{"alice", "carol"}, touched)
	require.NoError(t, engine.Run(ctx, stats.ModeDelta, touched, nil).Err())

	rebuilt := memdb.New()
	seedStore(t, rebuilt, append(baseSubmissions(), newSubmissions()...))
	require.NoError(t, newTestEngine(t, rebuilt).Run(ctx, stats.ModeFull, nil, nil).Err())

	assert.Equal(t, rebuilt.AcceptedCounts(), incremental.AcceptedCounts())
	assert.Equal(t, rebuilt.LanguageCounts(), incremental.LanguageCounts())
	assert.Equal(t, rebuilt.RatedPointSums(), incremental.RatedPointSums())
	assert.Equal(t, rebuilt.Streaks(), incremental.Streaks())
	for _, kind := range []stats.RecordKind{stats.RecordFirst, stats.RecordFastest, stats.RecordShortest} {
		assert.Equal(t, rebuilt.SolutionRecords(kind), incremental.SolutionRecords(kind), string(kind))
	}

	assert.Equal(t, []stats.AcceptedCount{
		{UserID: "alice", ProblemCount: 3},
		{UserID: "bob", ProblemCount: 1},
		{UserID: "carol", ProblemCount: 3},
	}, incremental.AcceptedCounts())
	// abc101 is unrated, so only abc100 problems count.
	assert.Equal(t, []stats.RatedPointSum{
		{UserID: "alice", PointSum: 400},
		{UserID: "bob", PointSum: 100},
		{UserID: "carol", PointSum: 200},
	}, incremental.RatedPointSums())
	assert.Equal(t, int64(7), incremental.SolutionRecords(stats.RecordShortest)["abc100_a"].SubmissionID)
}

func TestDeltaUpsertsOnlyChangedRecords(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	seedStore(t, store, baseSubmissions())
	engine := newTestEngine(t, store)
	require.NoError(t, engine.Run(ctx, stats.ModeFull, nil, nil).Err())

	// A longer solution by alice changes no shortest record.
	require.NoError(t, store.UpsertSubmissions(ctx, []crawl.Submission{
		sub(20, "alice", "abc100_a", 3, func(s *crawl.Submission) { s.Length = 5000 }),
	}))
	rows, err := engine.Recompute(ctx, stats.TableShortest, stats.ModeDelta, []string{"alice"})
	require.NoError(t, err)
	assert.Zero(t, rows)
	assert.Zero(t, store.Calls("UpsertSolutionRecords"))
}

func TestDeltaWithoutUsersIsNoop(t *testing.T) {
	store := memdb.New()
	engine := newTestEngine(t, store)

	run := engine.Run(context.Background(), stats.ModeDelta, nil, nil)
	require.NoError(t, run.Err())
	assert.Len(t, run.Tables, len(stats.AllTables))
	assert.Zero(t, store.Calls("LoadAcceptedForUsers"))
}

func TestFailingTableDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	seedStore(t, store, baseSubmissions())
	boom := errors.New("disk full")
	store.Fail = func(op string) error {
		if op == "ReplaceStreaks" {
			return boom
		}
		return nil
	}
	engine := newTestEngine(t, store)

	run := engine.Run(ctx, stats.ModeFull, nil, nil)
	assert.Equal(t, []stats.Table{stats.TableStreak}, run.Failed())
	require.ErrorIs(t, run.Err(), boom)

	assert.Len(t, store.AcceptedCounts(), 3)
	assert.Empty(t, store.Streaks())
	assert.Len(t, store.SolutionRecords(stats.RecordShortest), 3)

	status, ok := engine.Status(stats.TableStreak)
	require.True(t, ok)
	assert.ErrorIs(t, status.Err, boom)
	status, ok = engine.Status(stats.TableAcceptedCount)
	require.True(t, ok)
	assert.NoError(t, status.Err)
	assert.Equal(t, 3, status.Rows)
}

func TestRecomputeRejectsUnknownInputs(t *testing.T) {
	engine := newTestEngine(t, memdb.New())

	_, err := engine.Recompute(context.Background(), stats.Table("nope"), stats.ModeFull, nil)
	assert.Error(t, err)
	_, err = engine.Recompute(context.Background(), stats.TableStreak, stats.Mode("partial"), []string{"alice"})
	assert.Error(t, err)
}

// staleRecords serves record tables captured earlier, as a delta does when another delta
// commits between its load and its write.
type staleRecords struct {
	*memdb.DB
	stored map[stats.RecordKind][]stats.SolutionRecord
}

func (s *staleRecords) LoadSolutionRecords(_ context.Context, kind stats.RecordKind) ([]stats.SolutionRecord, error) {
	return s.stored[kind], nil
}

func TestOverlappingRecordDeltasKeepBestWinner(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	seedStore(t, store, baseSubmissions())
	require.NoError(t, newTestEngine(t, store).Run(ctx, stats.ModeFull, nil, nil).Err())

	stale := &staleRecords{DB: store, stored: map[stats.RecordKind][]stats.SolutionRecord{}}
	for _, kind := range []stats.RecordKind{stats.RecordFirst, stats.RecordFastest, stats.RecordShortest} {
		rows, err := store.LoadSolutionRecords(ctx, kind)
		require.NoError(t, err)
		stale.stored[kind] = rows
	}

	later := []crawl.Submission{
		sub(30, "bob", "abc100_a", 4, func(s *crawl.Submission) { s.Length = 10 }),
		sub(31, "carol", "abc100_a", 5, func(s *crawl.Submission) { s.Length = 200 }),
	}
	require.NoError(t, store.UpsertSubmissions(ctx, later))

	// bob's delta commits first; carol's delta merged against the winners read before it
	_, err := newTestEngine(t, store).Recompute(ctx, stats.TableShortest, stats.ModeDelta, []string{"bob"})
	require.NoError(t, err)
	staleEngine := New(zaptest.NewLogger(t), store, stale, 1)
	t.Cleanup(staleEngine.Close)
	_, err = staleEngine.Recompute(ctx, stats.TableShortest, stats.ModeDelta, []string{"carol"})
	require.NoError(t, err)

	rebuilt := memdb.New()
	seedStore(t, rebuilt, append(baseSubmissions(), later...))
	require.NoError(t, newTestEngine(t, rebuilt).Run(ctx, stats.ModeFull, nil, nil).Err())

	assert.Equal(t, rebuilt.SolutionRecords(stats.RecordShortest), store.SolutionRecords(stats.RecordShortest))
	assert.Equal(t, int64(30), store.SolutionRecords(stats.RecordShortest)["abc100_a"].SubmissionID)
}

func TestDeltaDropsRowsOfUsersWhoLostAccepted(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	seedStore(t, store, baseSubmissions())
	engine := newTestEngine(t, store)
	require.NoError(t, engine.Run(ctx, stats.ModeFull, nil, nil).Err())

	// alice's abc100_a is rejudged to WA and carol renames herself
	page := []crawl.Submission{
		sub(1, "alice", "abc100_a", 0, func(s *crawl.Submission) { s.Result = "WA" }),
		sub(4, "carol_new", "abc101_a", 7),
	}
	stored, err := store.LookupSubmissions(ctx, []int64{1, 4})
	require.NoError(t, err)
	affected := crawl.AffectedUserIDs(page, stored)
	assert.ElementsMatch(t, []string{"carol_new", "alice", "carol"}, affected)

	require.NoError(t, store.UpsertSubmissions(ctx, page))
	require.NoError(t, engine.Run(ctx, stats.ModeDelta, affected, nil).Err())

	rebuilt := memdb.New()
	seedStore(t, rebuilt, []crawl.Submission{
		page[0],
		baseSubmissions()[1],
		baseSubmissions()[2],
		page[1],
		baseSubmissions()[4],
	})
	require.NoError(t, newTestEngine(t, rebuilt).Run(ctx, stats.ModeFull, nil, nil).Err())

	assert.Equal(t, rebuilt.AcceptedCounts(), store.AcceptedCounts())
	assert.Equal(t, rebuilt.LanguageCounts(), store.LanguageCounts())
	assert.Equal(t, rebuilt.RatedPointSums(), store.RatedPointSums())
	assert.Equal(t, rebuilt.Streaks(), store.Streaks())
	assert.Equal(t, []stats.AcceptedCount{
		{UserID: "alice", ProblemCount: 1},
		{UserID: "bob", ProblemCount: 1},
		{UserID: "carol_new", ProblemCount: 1},
	}, store.AcceptedCounts())
}
