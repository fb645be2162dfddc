// Package memdb is an in-memory implementation of the store interfaces. Every call takes the
// same lock, so a ReadSnapshot callback observes no concurrent writes.
package memdb

import (
	"sort"
	"sync"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/crawl"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
)

var (
	_ db.RawStore        = (*DB)(nil)
	_ db.StatsStore      = (*DB)(nil)
	_ db.RankSnapshotter = (*DB)(nil)
)

type languageKey struct {
	userID   string
	language string
}

type DB struct {
	mu sync.RWMutex

	submissions     map[int64]crawl.Submission
	contests        map[string]crawl.Contest
	problems        map[string]crawl.Problem
	contestProblems map[[2]string]crawl.ContestProblem
	virtual         map[string]crawl.VirtualContest
	virtualProblems map[string][]string

	acceptedCounts map[string]stats.AcceptedCount
	languageCounts map[languageKey]stats.LanguageCount
	ratedPointSums map[string]stats.RatedPointSum
	streaks        map[string]stats.Streak
	records        map[stats.RecordKind]map[string]stats.SolutionRecord

	// Fail, when set, is consulted with the method name before every call; a non-nil
	// result is returned instead of running the call.
	Fail func(op string) error

	calls map[string]int
}

func New() *DB {
	return &DB{
		submissions:     make(map[int64]crawl.Submission),
		contests:        make(map[string]crawl.Contest),
		problems:        make(map[string]crawl.Problem),
		contestProblems: make(map[[2]string]crawl.ContestProblem),
		virtual:         make(map[string]crawl.VirtualContest),
		virtualProblems: make(map[string][]string),
		acceptedCounts:  make(map[string]stats.AcceptedCount),
		languageCounts:  make(map[languageKey]stats.LanguageCount),
		ratedPointSums:  make(map[string]stats.RatedPointSum),
		streaks:         make(map[string]stats.Streak),
		records: map[stats.RecordKind]map[string]stats.SolutionRecord{
			stats.RecordFirst:    {},
			stats.RecordFastest:  {},
			stats.RecordShortest: {},
		},
		calls: make(map[string]int),
	}
}

// enter records the call and applies the failure hook. Callers hold mu.
func (m *DB) enter(op string) error {
	m.calls[op]++
	if m.Fail != nil {
		return m.Fail(op)
	}
	return nil
}

// Calls returns how many times op was invoked.
func (m *DB) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// sortedValues returns the map values ordered by less.
func sortedValues[K comparable, V any](in map[K]V, less func(a, b V) bool) []V {
	out := make([]V, 0, len(in))
	for _, v := range in {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// AddVirtualContest registers a virtual contest and its problems.
func (m *DB) AddVirtualContest(vc crawl.VirtualContest, problemIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.virtual[vc.ID] = vc
	m.virtualProblems[vc.ID] = append([]string(nil), problemIDs...)
}

// Submission returns a stored submission.
func (m *DB) Submission(id int64) (crawl.Submission, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.submissions[id]
	return s, ok
}

// SubmissionCount returns the number of stored submissions.
func (m *DB) SubmissionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.submissions)
}
