package memdb

import (
	"context"
	"fmt"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
)

func (m *DB) ReplaceAcceptedCounts(_ context.Context, rows []stats.AcceptedCount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ReplaceAcceptedCounts"); err != nil {
		return err
	}
	m.acceptedCounts = make(map[string]stats.AcceptedCount, len(rows))
	for _, r := range rows {
		m.acceptedCounts[r.UserID] = r
	}
	return nil
}

func (m *DB) ReplaceAcceptedCountsForUsers(_ context.Context, users []string, rows []stats.AcceptedCount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ReplaceAcceptedCountsForUsers"); err != nil {
		return err
	}
	replaceForUsers(m.acceptedCounts, users, rows, func(r stats.AcceptedCount) string { return r.UserID }, func(k string) string { return k })
	return nil
}

func (m *DB) ReplaceLanguageCounts(_ context.Context, rows []stats.LanguageCount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ReplaceLanguageCounts"); err != nil {
		return err
	}
	m.languageCounts = make(map[languageKey]stats.LanguageCount, len(rows))
	for _, r := range rows {
		m.languageCounts[languageKey{r.UserID, r.SimplifiedLanguage}] = r
	}
	return nil
}

func (m *DB) ReplaceLanguageCountsForUsers(_ context.Context, users []string, rows []stats.LanguageCount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ReplaceLanguageCountsForUsers"); err != nil {
		return err
	}
	replaceForUsers(m.languageCounts, users, rows, func(r stats.LanguageCount) languageKey { return languageKey{r.UserID, r.SimplifiedLanguage} }, func(k languageKey) string { return k.userID })
	return nil
}

func (m *DB) ReplaceRatedPointSums(_ context.Context, rows []stats.RatedPointSum) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ReplaceRatedPointSums"); err != nil {
		return err
	}
	m.ratedPointSums = make(map[string]stats.RatedPointSum, len(rows))
	for _, r := range rows {
		m.ratedPointSums[r.UserID] = r
	}
	return nil
}

func (m *DB) ReplaceRatedPointSumsForUsers(_ context.Context, users []string, rows []stats.RatedPointSum) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ReplaceRatedPointSumsForUsers"); err != nil {
		return err
	}
	replaceForUsers(m.ratedPointSums, users, rows, func(r stats.RatedPointSum) string { return r.UserID }, func(k string) string { return k })
	return nil
}

func (m *DB) ReplaceStreaks(_ context.Context, rows []stats.Streak) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ReplaceStreaks"); err != nil {
		return err
	}
	m.streaks = make(map[string]stats.Streak, len(rows))
	for _, r := range rows {
		m.streaks[r.UserID] = r
	}
	return nil
}

func (m *DB) ReplaceStreaksForUsers(_ context.Context, users []string, rows []stats.Streak) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ReplaceStreaksForUsers"); err != nil {
		return err
	}
	replaceForUsers(m.streaks, users, rows, func(r stats.Streak) string { return r.UserID }, func(k string) string { return k })
	return nil
}

func (m *DB) recordTable(kind stats.RecordKind) (map[string]stats.SolutionRecord, error) {
	t, ok := m.records[kind]
	if !ok {
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
	return t, nil
}

func (m *DB) LoadSolutionRecords(_ context.Context, kind stats.RecordKind) ([]stats.SolutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("LoadSolutionRecords"); err != nil {
		return nil, err
	}
	t, err := m.recordTable(kind)
	if err != nil {
		return nil, err
	}
	return sortedValues(t, func(a, b stats.SolutionRecord) bool { return a.ProblemID < b.ProblemID }), nil
}

func (m *DB) ReplaceSolutionRecords(_ context.Context, kind stats.RecordKind, rows []stats.SolutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ReplaceSolutionRecords"); err != nil {
		return err
	}
	if _, err := m.recordTable(kind); err != nil {
		return err
	}
	t := make(map[string]stats.SolutionRecord, len(rows))
	for _, r := range rows {
		t[r.ProblemID] = r
	}
	m.records[kind] = t
	return nil
}

func (m *DB) UpsertSolutionRecords(_ context.Context, kind stats.RecordKind, rows []stats.SolutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpsertSolutionRecords"); err != nil {
		return err
	}
	t, err := m.recordTable(kind)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if cur, ok := t[r.ProblemID]; ok && !r.Beats(cur) {
			continue
		}
		t[r.ProblemID] = r
	}
	return nil
}

// replaceForUsers drops every row owned by users and stores rows. Callers hold mu.
func replaceForUsers[K comparable, V any](t map[K]V, users []string, rows []V, keyOf func(V) K, userOf func(K) string) {
	drop := make(map[string]struct{}, len(users))
	for _, u := range users {
		drop[u] = struct{}{}
	}
	for k := range t {
		if _, ok := drop[userOf(k)]; ok {
			delete(t, k)
		}
	}
	for _, r := range rows {
		t[keyOf(r)] = r
	}
}

// AcceptedCounts returns the accepted_count table ordered by user.
func (m *DB) AcceptedCounts() []stats.AcceptedCount {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedValues(m.acceptedCounts, func(a, b stats.AcceptedCount) bool { return a.UserID < b.UserID })
}

// LanguageCounts returns the language_count table ordered by user then language.
func (m *DB) LanguageCounts() []stats.LanguageCount {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedValues(m.languageCounts, func(a, b stats.LanguageCount) bool {
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.SimplifiedLanguage < b.SimplifiedLanguage
	})
}

// RatedPointSums returns the rated_point_sum table ordered by user.
func (m *DB) RatedPointSums() []stats.RatedPointSum {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedValues(m.ratedPointSums, func(a, b stats.RatedPointSum) bool { return a.UserID < b.UserID })
}

// Streaks returns the max_streak table ordered by user.
func (m *DB) Streaks() []stats.Streak {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedValues(m.streaks, func(a, b stats.Streak) bool { return a.UserID < b.UserID })
}

// SolutionRecords returns one record table keyed by problem.
func (m *DB) SolutionRecords(kind stats.RecordKind) map[string]stats.SolutionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]stats.SolutionRecord, len(m.records[kind]))
	for k, v := range m.records[kind] {
		out[k] = v
	}
	return out
}
