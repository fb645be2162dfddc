package stats

import (
	"context"
	"math"
	"testing"

	store "github.com/kenkoooo/AtCoderProblems-sub000/pkg/db"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreshold(t *testing.T) {
	integer := metricSource{integer: true}
	tests := []struct {
		name  string
		value float64
		want  any
	}{
		{"whole", 10, int64(10)},
		{"fraction", 10.7, int64(10)},
		{"negative fraction", -0.5, int64(-1)},
		{"above range", 1e30, int64(math.MaxInt64)},
		{"positive infinity", math.Inf(1), int64(math.MaxInt64)},
		{"not a number", math.NaN(), int64(math.MaxInt64)},
		{"below range", -1e30, int64(math.MinInt64)},
		{"negative infinity", math.Inf(-1), int64(math.MinInt64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, integer.threshold(tt.value))
		})
	}

	assert.Equal(t, 1e30, metricSource{}.threshold(1e30))
}

func seedRankTables(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.ReplaceAcceptedCounts(ctx, []stats.AcceptedCount{
		{UserID: "alice", ProblemCount: 30},
		{UserID: "bob", ProblemCount: 20},
		{UserID: "carol", ProblemCount: 20},
		{UserID: "dave", ProblemCount: 10},
	}))
	require.NoError(t, db.ReplaceLanguageCounts(ctx, []stats.LanguageCount{
		{UserID: "alice", SimplifiedLanguage: "C++", ProblemCount: 25},
		{UserID: "bob", SimplifiedLanguage: "C++", ProblemCount: 28},
		{UserID: "bob", SimplifiedLanguage: "Rust", ProblemCount: 3},
	}))
	require.NoError(t, db.ReplaceRatedPointSums(ctx, []stats.RatedPointSum{
		{UserID: "alice", PointSum: 1500.5},
		{UserID: "bob", PointSum: 1500},
	}))
}

func TestReadSnapshot_Ranking(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedRankTables(t, db)

	accepted := stats.MetricQuery{Table: stats.MetricAcceptedCount}
	cpp := stats.MetricQuery{Table: stats.MetricLanguageCount, Language: "C++"}
	points := stats.MetricQuery{Table: stats.MetricRatedPointSum}

	err := db.ReadSnapshot(ctx, func(r store.RankReader) error {
		for _, tt := range []struct {
			q     stats.MetricQuery
			value float64
			want  int64
		}{
			{accepted, 30, 0},
			{accepted, 20, 1},
			{accepted, 19.5, 3},
			{accepted, 10, 3},
			{accepted, 0, 4},
			{accepted, 1e30, 0},
			{accepted, -1e30, 4},
			{cpp, 25, 1},
			{points, 1500, 1},
			{points, 1500.25, 1},
		} {
			n, err := r.CountGreater(ctx, tt.q, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n, "%s > %v", tt.q.Table, tt.value)
		}

		rows, err := r.LoadRange(ctx, accepted, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, []stats.MetricRow{
			{UserID: "bob", Value: 20},
			{UserID: "carol", Value: 20},
		}, rows)

		rows, err = r.LoadRange(ctx, cpp, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, []stats.MetricRow{
			{UserID: "bob", Language: "C++", Value: 28},
			{UserID: "alice", Language: "C++", Value: 25},
		}, rows)

		v, ok, err := r.ValueOf(ctx, points, "alice")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1500.5, v)

		_, ok, err = r.ValueOf(ctx, accepted, "nobody")
		require.NoError(t, err)
		assert.False(t, ok)

		langs, err := r.Languages(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"C++", "Rust"}, langs)
		return nil
	})
	require.NoError(t, err)
}

func TestReadSnapshot_IgnoresConcurrentReplace(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedRankTables(t, db)

	accepted := stats.MetricQuery{Table: stats.MetricAcceptedCount}
	err := db.ReadSnapshot(ctx, func(r store.RankReader) error {
		before, err := r.CountGreater(ctx, accepted, 0)
		require.NoError(t, err)

		require.NoError(t, db.ReplaceAcceptedCounts(ctx, []stats.AcceptedCount{{UserID: "erin", ProblemCount: 1}}))

		after, err := r.CountGreater(ctx, accepted, 0)
		require.NoError(t, err)
		assert.Equal(t, before, after)
		return nil
	})
	require.NoError(t, err)

	var n int64
	require.NoError(t, db.ReadSnapshot(ctx, func(r store.RankReader) error {
		var err error
		n, err = r.CountGreater(ctx, accepted, 0)
		return err
	}))
	assert.Equal(t, int64(1), n)
}
