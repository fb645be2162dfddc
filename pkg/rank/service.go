// Package rank answers ranking queries over the derived metric tables. Every answer that
// combines several reads is taken from one snapshot of the backing store.
package rank

import (
	"context"
	"errors"
	"fmt"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
	"go.uber.org/zap"
)

var (
	ErrUnknownTable     = errors.New("unknown ranking table")
	ErrLanguageRequired = errors.New("language ranking needs a language")
	ErrUserNotRanked    = errors.New("user has no row in this ranking")
)

// MaxRangeLimit caps the rows returned by one Range call.
const MaxRangeLimit = 1000

// Entry is one ranked row. Rank counts the users with a strictly greater value, so the
// leader has rank 0 and equal values share a rank.
type Entry struct {
	Rank   int64   `json:"rank"`
	UserID string  `json:"user_id"`
	Value  float64 `json:"value"`
}

type Service struct {
	Logger *zap.Logger
	Store  db.RankSnapshotter
}

func NewService(logger *zap.Logger, store db.RankSnapshotter) *Service {
	return &Service{Logger: logger, Store: store}
}

// Query validates a table name and language and builds the store query.
func Query(table, language string) (stats.MetricQuery, error) {
	t, err := stats.ParseMetricTable(table)
	if err != nil {
		return stats.MetricQuery{}, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	q := stats.MetricQuery{Table: t}
	if t == stats.MetricLanguageCount {
		if language == "" {
			return stats.MetricQuery{}, ErrLanguageRequired
		}
		q.Language = language
	}
	return q, nil
}

// Snapshot runs fn against one consistent view of the rankings.
func (s *Service) Snapshot(ctx context.Context, fn func(db.RankReader) error) error {
	return s.Store.ReadSnapshot(ctx, fn)
}

// Rank counts the rows whose metric is strictly greater than value.
func (s *Service) Rank(ctx context.Context, q stats.MetricQuery, value float64) (int64, error) {
	var n int64
	err := s.Snapshot(ctx, func(r db.RankReader) error {
		var err error
		n, err = r.CountGreater(ctx, q, value)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("rank %s: %w", q.Table, err)
	}
	return n, nil
}

// Range returns rows ordered by metric descending then user id, with their ranks.
func (s *Service) Range(ctx context.Context, q stats.MetricQuery, offset, limit int) ([]Entry, error) {
	offset = max(offset, 0)
	if limit <= 0 || limit > MaxRangeLimit {
		limit = MaxRangeLimit
	}

	var out []Entry
	err := s.Snapshot(ctx, func(r db.RankReader) error {
		rows, err := r.LoadRange(ctx, q, offset, limit)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			out = []Entry{}
			return nil
		}
		first, err := r.CountGreater(ctx, q, rows[0].Value)
		if err != nil {
			return err
		}
		out = rankRows(rows, offset, first)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", q.Table, err)
	}
	return out, nil
}

// rankRows assigns ranks to an ordered slice that starts at position offset and whose first
// row has rank firstRank.
func rankRows(rows []stats.MetricRow, offset int, firstRank int64) []Entry {
	out := make([]Entry, len(rows))
	for i, row := range rows {
		rank := firstRank
		if i > 0 {
			rank = out[i-1].Rank
			if row.Value != rows[i-1].Value {
				rank = int64(offset + i)
			}
		}
		out[i] = Entry{Rank: rank, UserID: row.UserID, Value: row.Value}
	}
	return out
}

// UserRank reads a user's value and rank from the same snapshot.
func (s *Service) UserRank(ctx context.Context, q stats.MetricQuery, userID string) (Entry, error) {
	var out Entry
	err := s.Snapshot(ctx, func(r db.RankReader) error {
		value, ok, err := r.ValueOf(ctx, q, userID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUserNotRanked
		}
		n, err := r.CountGreater(ctx, q, value)
		if err != nil {
			return err
		}
		out = Entry{Rank: n, UserID: userID, Value: value}
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("rank of %s in %s: %w", userID, q.Table, err)
	}
	return out, nil
}

// Languages lists the languages that have a ranking.
func (s *Service) Languages(ctx context.Context) ([]string, error) {
	var out []string
	err := s.Snapshot(ctx, func(r db.RankReader) error {
		var err error
		out, err = r.Languages(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("languages: %w", err)
	}
	return out, nil
}
