package memdb

import (
	"context"
	"fmt"
	"sort"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
)

// ReadSnapshot holds the read lock for the whole callback.
func (m *DB) ReadSnapshot(_ context.Context, fn func(db.RankReader) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(snapshot{m})
}

type snapshot struct {
	m *DB
}

// rows materializes a ranking ordered by value descending, user ascending. Callers hold the lock.
func (s snapshot) rows(q stats.MetricQuery) ([]stats.MetricRow, error) {
	var out []stats.MetricRow
	switch q.Table {
	case stats.MetricAcceptedCount:
		for _, r := range s.m.acceptedCounts {
			out = append(out, stats.MetricRow{UserID: r.UserID, Value: float64(r.ProblemCount)})
		}
	case stats.MetricRatedPointSum:
		for _, r := range s.m.ratedPointSums {
			out = append(out, stats.MetricRow{UserID: r.UserID, Value: r.PointSum})
		}
	case stats.MetricStreak:
		for _, r := range s.m.streaks {
			out = append(out, stats.MetricRow{UserID: r.UserID, Value: float64(r.Streak)})
		}
	case stats.MetricLanguageCount:
		for _, r := range s.m.languageCounts {
			if r.SimplifiedLanguage == q.Language {
				out = append(out, stats.MetricRow{UserID: r.UserID, Language: q.Language, Value: float64(r.ProblemCount)})
			}
		}
	default:
		return nil, fmt.Errorf("unknown metric table %q", q.Table)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s snapshot) CountGreater(_ context.Context, q stats.MetricQuery, value float64) (int64, error) {
	rows, err := s.rows(q)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, r := range rows {
		if r.Value > value {
			n++
		}
	}
	return n, nil
}

func (s snapshot) LoadRange(_ context.Context, q stats.MetricQuery, offset, limit int) ([]stats.MetricRow, error) {
	rows, err := s.rows(q)
	if err != nil {
		return nil, err
	}
	offset = max(offset, 0)
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s snapshot) ValueOf(_ context.Context, q stats.MetricQuery, userID string) (float64, bool, error) {
	rows, err := s.rows(q)
	if err != nil {
		return 0, false, err
	}
	for _, r := range rows {
		if r.UserID == userID {
			return r.Value, true, nil
		}
	}
	return 0, false, nil
}

func (s snapshot) Languages(_ context.Context) ([]string, error) {
	set := make(map[string]struct{})
	for k := range s.m.languageCounts {
		set[k.language] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}
