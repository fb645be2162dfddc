package aggregator

import (
	"testing"
	"time"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/crawl"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jst = time.FixedZone("JST", 9*60*60)

func ac(id int64, user, problem string, at time.Time) crawl.Submission {
	return crawl.Submission{
		ID:          id,
		EpochSecond: at.Unix(),
		ProblemID:   problem,
		ContestID:   "abc100",
		UserID:      user,
		Language:    "C++14 (GCC 5.4.1)",
		Point:       100,
		Length:      100,
		Result:      crawl.ResultAccepted,
	}
}

func jstAt(month time.Month, day, hour int) time.Time {
	return time.Date(2019, month, day, hour, 0, 0, 0, jst)
}

func TestStreaks(t *testing.T) {
	tests := []struct {
		name string
		subs []crawl.Submission
		want int64
	}{
		{
			name: "four consecutive days after a gap",
			subs: []crawl.Submission{
				ac(1, "u", "p1", jstAt(time.November, 28, 10)),
				ac(2, "u", "p2", jstAt(time.November, 28, 20)),
				ac(3, "u", "p3", jstAt(time.December, 1, 10)),
				ac(4, "u", "p4", jstAt(time.December, 2, 10)),
				ac(5, "u", "p5", jstAt(time.December, 3, 10)),
				ac(6, "u", "p6", jstAt(time.December, 4, 10)),
			},
			want: 4,
		},
		{
			name: "single accepted",
			subs: []crawl.Submission{ac(1, "u", "p1", jstAt(time.December, 1, 10))},
			want: 1,
		},
		{
			name: "one day apart",
			subs: []crawl.Submission{
				ac(1, "u", "p1", jstAt(time.December, 1, 10)),
				ac(2, "u", "p2", jstAt(time.December, 2, 10)),
			},
			want: 2,
		},
		{
			name: "two days apart",
			subs: []crawl.Submission{
				ac(1, "u", "p1", jstAt(time.December, 1, 10)),
				ac(2, "u", "p2", jstAt(time.December, 3, 10)),
			},
			want: 1,
		},
		{
			name: "days split at JST midnight",
			subs: []crawl.Submission{
				ac(1, "u", "p1", time.Date(2019, time.December, 1, 23, 30, 0, 0, jst)),
				ac(2, "u", "p2", time.Date(2019, time.December, 2, 0, 30, 0, 0, jst)),
			},
			want: 2,
		},
		{
			name: "re-solving a problem does not extend the streak",
			subs: []crawl.Submission{
				ac(1, "u", "p1", jstAt(time.December, 1, 10)),
				ac(2, "u", "p1", jstAt(time.December, 2, 10)),
			},
			want: 1,
		},
		{
			name: "earliest accepted wins regardless of order",
			subs: []crawl.Submission{
				ac(2, "u", "p1", jstAt(time.December, 5, 10)),
				ac(1, "u", "p1", jstAt(time.December, 1, 10)),
				ac(3, "u", "p2", jstAt(time.December, 2, 10)),
			},
			want: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Streaks(tt.subs)
			require.Len(t, got, 1)
			assert.Equal(t, stats.Streak{UserID: "u", Streak: tt.want}, got[0])
		})
	}
}

func TestStreaksIgnoresRejected(t *testing.T) {
	wa := ac(1, "u", "p1", jstAt(time.December, 1, 10))
	wa.Result = "WA"
	assert.Empty(t, Streaks([]crawl.Submission{wa}))
}

func TestAcceptedAndLanguageCounts(t *testing.T) {
	at := jstAt(time.December, 1, 10)
	perl := ac(3, "alice", "p2", at)
	perl.Language = "Perl (5)"
	wa := ac(4, "bob", "p1", at)
	wa.Result = "WA"
	subs := []crawl.Submission{
		ac(1, "alice", "p1", at),
		ac(2, "alice", "p1", at),
		perl,
		wa,
		ac(5, "bob", "p3", at),
	}

	assert.Equal(t, []stats.AcceptedCount{
		{UserID: "alice", ProblemCount: 2},
		{UserID: "bob", ProblemCount: 1},
	}, AcceptedCounts(subs))

	assert.Equal(t, []stats.LanguageCount{
		{UserID: "alice", SimplifiedLanguage: "C++", ProblemCount: 1},
		{UserID: "alice", SimplifiedLanguage: "Perl", ProblemCount: 1},
		{UserID: "bob", SimplifiedLanguage: "C++", ProblemCount: 1},
	}, LanguageCounts(subs))
}

func TestRatedPointSums(t *testing.T) {
	contests := []crawl.Contest{
		{ID: "abc100", StartEpochSecond: crawl.RatedEpochSecond + 100, RateChange: " ~ 1199"},
		{ID: "unrated", StartEpochSecond: crawl.RatedEpochSecond + 100, RateChange: crawl.UnratedRateChange},
		{ID: "arc001", StartEpochSecond: crawl.RatedEpochSecond - 1, RateChange: "All"},
	}
	links := []crawl.ContestProblem{
		{ContestID: "abc100", ProblemID: "abc100_a"},
		{ContestID: "abc100", ProblemID: "abc100_b"},
		{ContestID: "unrated", ProblemID: "unrated_a"},
		{ContestID: "arc001", ProblemID: "arc001_a"},
	}
	rated := RatedProblemIDs(contests, links)
	assert.Equal(t, map[string]struct{}{"abc100_a": {}, "abc100_b": {}}, rated)

	at := jstAt(time.December, 1, 10)
	withPoint := func(id int64, user, problem string, point float64) crawl.Submission {
		s := ac(id, user, problem, at)
		s.Point = point
		return s
	}
	subs := []crawl.Submission{
		withPoint(1, "alice", "abc100_a", 100),
		withPoint(2, "alice", "abc100_a", 300),
		withPoint(3, "alice", "abc100_b", 200),
		withPoint(4, "alice", "unrated_a", 1000),
		withPoint(5, "alice", "arc001_a", 1000),
		withPoint(6, "bob", "unrated_a", 500),
	}

	assert.Equal(t, []stats.RatedPointSum{{UserID: "alice", PointSum: 500}}, RatedPointSums(subs, rated))
}

func TestMergeRecordsShortestTieBreak(t *testing.T) {
	at := jstAt(time.December, 1, 10)
	later := ac(10, "alice", "p1", at)
	later.Length = 50
	earlier := ac(5, "bob", "p1", at)
	earlier.Length = 50
	longer := ac(1, "carol", "p1", at)
	longer.Length = 80

	merged, changed := MergeRecords(stats.RecordShortest, nil, []crawl.Submission{later, longer, earlier}, nil)
	want := stats.SolutionRecord{ProblemID: "p1", ContestID: "abc100", SubmissionID: 5, Metric: 50}
	assert.Equal(t, []stats.SolutionRecord{want}, merged)
	assert.Equal(t, []stats.SolutionRecord{want}, changed)
}

func TestMergeRecordsKeepsStoredWinner(t *testing.T) {
	stored := []stats.SolutionRecord{
		{ProblemID: "p1", ContestID: "abc100", SubmissionID: 3, Metric: 40},
		{ProblemID: "p2", ContestID: "abc100", SubmissionID: 4, Metric: 90},
	}
	at := jstAt(time.December, 1, 10)
	worse := ac(20, "alice", "p1", at)
	worse.Length = 45
	better := ac(21, "alice", "p2", at)
	better.Length = 60
	same := ac(3, "bob", "p1", at)
	same.Length = 40

	merged, changed := MergeRecords(stats.RecordShortest, stored, []crawl.Submission{worse, better, same}, nil)
	assert.Equal(t, []stats.SolutionRecord{
		{ProblemID: "p1", ContestID: "abc100", SubmissionID: 3, Metric: 40},
		{ProblemID: "p2", ContestID: "abc100", SubmissionID: 21, Metric: 60},
	}, merged)
	assert.Equal(t, []stats.SolutionRecord{
		{ProblemID: "p2", ContestID: "abc100", SubmissionID: 21, Metric: 60},
	}, changed)
}

func TestMergeRecordsFirstRequiresSubmissionAfterStart(t *testing.T) {
	start := jstAt(time.December, 1, 21)
	contests := []crawl.Contest{{ID: "abc100", StartEpochSecond: start.Unix(), DurationSecond: 6000}}

	atStart := ac(1, "writer", "p1", start)
	inContest := ac(7, "alice", "p1", start.Add(time.Minute))
	unknown := ac(2, "bob", "p2", start.Add(time.Minute))
	unknown.ContestID = "missing"

	merged, _ := MergeRecords(stats.RecordFirst, nil, []crawl.Submission{atStart, inContest, unknown}, contests)
	assert.Equal(t, []stats.SolutionRecord{
		{ProblemID: "p1", ContestID: "abc100", SubmissionID: 7, Metric: 7},
	}, merged)
}

func TestMergeRecordsFastestRequiresExecutionTime(t *testing.T) {
	at := jstAt(time.December, 1, 10)
	judging := ac(1, "alice", "p1", at)
	ms := int64(12)
	timed := ac(2, "bob", "p1", at)
	timed.ExecutionTime = &ms

	merged, _ := MergeRecords(stats.RecordFastest, nil, []crawl.Submission{judging, timed}, nil)
	assert.Equal(t, []stats.SolutionRecord{
		{ProblemID: "p1", ContestID: "abc100", SubmissionID: 2, Metric: 12},
	}, merged)
}
