package crawl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContestRated(t *testing.T) {
	cases := []struct {
		name    string
		contest Contest
		rated   bool
	}{
		{"rated after epoch", Contest{StartEpochSecond: RatedEpochSecond, RateChange: " ~ 1999"}, true},
		{"unrated sentinel", Contest{StartEpochSecond: RatedEpochSecond + 1, RateChange: UnratedRateChange}, false},
		{"before epoch", Contest{StartEpochSecond: RatedEpochSecond - 1, RateChange: "All"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.rated, tc.contest.Rated())
		})
	}
}

func TestMinIDAndAcceptedUsers(t *testing.T) {
	subs := []Submission{
		{ID: 30, UserID: "alice", Result: "AC"},
		{ID: 10, UserID: "bob", Result: "WA"},
		{ID: 20, UserID: "alice", Result: "AC"},
		{ID: 40, UserID: "carol", Result: "AC"},
	}

	lowest, ok := MinID(subs)
	require.True(t, ok)
	require.Equal(t, int64(10), lowest)

	_, ok = MinID(nil)
	require.False(t, ok)

	require.Equal(t, []string{"alice", "carol"}, AcceptedUserIDs(subs))
}

func TestAffectedUserIDs(t *testing.T) {
	subs := []Submission{
		{ID: 1, UserID: "alice", Result: "WA"},
		{ID: 2, UserID: "bob_renamed", Result: "AC"},
		{ID: 3, UserID: "carol", Result: "AC"},
		{ID: 4, UserID: "dave", Result: "TLE"},
	}
	stored := map[int64]StoredSubmission{
		1: {UserID: "alice", Result: "AC"},
		2: {UserID: "bob", Result: "AC"},
		4: {UserID: "dave", Result: "WA"},
	}
	require.Equal(t, []string{"bob_renamed", "carol", "alice", "bob"}, AffectedUserIDs(subs, stored))
	require.Equal(t, []string{"bob_renamed", "carol"}, AffectedUserIDs(subs, nil))
}
