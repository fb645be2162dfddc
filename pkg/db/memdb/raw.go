package memdb

import (
	"context"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/crawl"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/utils"
)

// UpsertSubmissions keeps problem, contest, language and length of an existing row.
func (m *DB) UpsertSubmissions(_ context.Context, subs []crawl.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpsertSubmissions"); err != nil {
		return err
	}
	for _, s := range subs {
		if old, ok := m.submissions[s.ID]; ok {
			old.UserID = s.UserID
			old.Result = s.Result
			old.Point = s.Point
			old.ExecutionTime = s.ExecutionTime
			m.submissions[s.ID] = old
			continue
		}
		m.submissions[s.ID] = s
	}
	return nil
}

func (m *DB) LookupSubmissions(_ context.Context, ids []int64) (map[int64]crawl.StoredSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("LookupSubmissions"); err != nil {
		return nil, err
	}
	out := make(map[int64]crawl.StoredSubmission)
	for _, id := range ids {
		if s, ok := m.submissions[id]; ok {
			out[id] = crawl.StoredSubmission{UserID: s.UserID, Result: s.Result}
		}
	}
	return out, nil
}

func (m *DB) CountContestSubmissions(_ context.Context, contestID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CountContestSubmissions"); err != nil {
		return 0, err
	}
	var n int64
	for _, s := range m.submissions {
		if s.ContestID == contestID {
			n++
		}
	}
	return n, nil
}

func (m *DB) LoadContests(_ context.Context) ([]crawl.Contest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("LoadContests"); err != nil {
		return nil, err
	}
	return sortedValues(m.contests, func(a, b crawl.Contest) bool {
		if a.StartEpochSecond != b.StartEpochSecond {
			return a.StartEpochSecond > b.StartEpochSecond
		}
		return a.ID < b.ID
	}), nil
}

func (m *DB) UpsertContests(_ context.Context, contests []crawl.Contest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpsertContests"); err != nil {
		return err
	}
	for _, c := range contests {
		m.contests[c.ID] = c
	}
	return nil
}

// UpsertProblems keeps the first contest a problem was seen in.
func (m *DB) UpsertProblems(_ context.Context, problems []crawl.Problem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpsertProblems"); err != nil {
		return err
	}
	for _, p := range problems {
		if old, ok := m.problems[p.ID]; ok {
			old.Title = p.Title
			m.problems[p.ID] = old
		} else {
			m.problems[p.ID] = p
		}
	}
	for _, link := range crawl.ContestProblems(problems) {
		m.contestProblems[[2]string{link.ContestID, link.ProblemID}] = link
	}
	return nil
}

func (m *DB) LoadProblems(_ context.Context) ([]crawl.Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("LoadProblems"); err != nil {
		return nil, err
	}
	return sortedValues(m.problems, func(a, b crawl.Problem) bool { return a.ID < b.ID }), nil
}

func (m *DB) LoadContestProblems(_ context.Context) ([]crawl.ContestProblem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("LoadContestProblems"); err != nil {
		return nil, err
	}
	return sortedValues(m.contestProblems, func(a, b crawl.ContestProblem) bool {
		if a.ContestID != b.ContestID {
			return a.ContestID < b.ContestID
		}
		return a.ProblemID < b.ProblemID
	}), nil
}

func (m *DB) ContestsWithoutProblems(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ContestsWithoutProblems"); err != nil {
		return nil, err
	}
	linked := make(map[string]struct{})
	for k := range m.contestProblems {
		linked[k[0]] = struct{}{}
	}
	var out []string
	for _, c := range sortedValues(m.contests, func(a, b crawl.Contest) bool {
		if a.StartEpochSecond != b.StartEpochSecond {
			return a.StartEpochSecond > b.StartEpochSecond
		}
		return a.ID < b.ID
	}) {
		if _, ok := linked[c.ID]; !ok {
			out = append(out, c.ID)
		}
	}
	return out, nil
}

func (m *DB) RunningVirtualContestIDs(_ context.Context, nowEpoch int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("RunningVirtualContestIDs"); err != nil {
		return nil, err
	}
	ids := make(map[string]struct{})
	for id, vc := range m.virtual {
		if !vc.Running(nowEpoch) {
			continue
		}
		for _, problemID := range m.virtualProblems[id] {
			for k := range m.contestProblems {
				if k[1] == problemID {
					ids[k[0]] = struct{}{}
				}
			}
		}
	}
	return utils.SortedKeys(ids), nil
}

func (m *DB) LoadAllAccepted(_ context.Context) ([]crawl.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("LoadAllAccepted"); err != nil {
		return nil, err
	}
	return m.accepted(func(crawl.Submission) bool { return true }), nil
}

func (m *DB) LoadAcceptedForUsers(_ context.Context, userIDs []string) ([]crawl.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("LoadAcceptedForUsers"); err != nil {
		return nil, err
	}
	users := make(map[string]struct{}, len(userIDs))
	for _, u := range userIDs {
		users[u] = struct{}{}
	}
	return m.accepted(func(s crawl.Submission) bool {
		_, ok := users[s.UserID]
		return ok
	}), nil
}

// accepted returns AC submissions matching keep, ordered by id.
func (m *DB) accepted(keep func(crawl.Submission) bool) []crawl.Submission {
	var out []crawl.Submission
	for _, s := range m.submissions {
		if s.Accepted() && keep(s) {
			out = append(out, s)
		}
	}
	sortSubmissions(out)
	return out
}
