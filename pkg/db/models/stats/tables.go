package stats

import "fmt"

const (
	AcceptedCountTableName = "accepted_count"
	LanguageCountTableName = "language_count"
	RatedPointSumTableName = "rated_point_sum"
	StreakTableName        = "max_streak"
	FirstTableName         = "first_submission"
	FastestTableName       = "fastest_submission"
	ShortestTableName      = "shortest_submission"
)

// Table names one derived table maintained by the aggregation engine.
type Table string

const (
	TableAcceptedCount Table = "accepted_count"
	TableLanguageCount Table = "language_count"
	TableRatedPointSum Table = "rated_point_sum"
	TableStreak        Table = "streak"
	TableFirst         Table = "first"
	TableFastest       Table = "fastest"
	TableShortest      Table = "shortest"
)

// AllTables lists every derived table in recompute order.
var AllTables = []Table{
	TableAcceptedCount,
	TableLanguageCount,
	TableRatedPointSum,
	TableStreak,
	TableFirst,
	TableFastest,
	TableShortest,
}

// ParseTable validates a table name coming from configuration or a workflow input.
func ParseTable(s string) (Table, error) {
	for _, t := range AllTables {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown derived table %q", s)
}

// Mode selects between a full rebuild and a recompute restricted to touched users.
type Mode string

const (
	ModeFull  Mode = "full"
	ModeDelta Mode = "delta"
)

// RecordKind selects one of the per-problem solution record tables.
type RecordKind string

const (
	RecordFirst    RecordKind = "first"
	RecordFastest  RecordKind = "fastest"
	RecordShortest RecordKind = "shortest"
)

// TableName returns the SQL table that stores the records of this kind.
func (k RecordKind) TableName() string {
	switch k {
	case RecordFirst:
		return FirstTableName
	case RecordFastest:
		return FastestTableName
	default:
		return ShortestTableName
	}
}
