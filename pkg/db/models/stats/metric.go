package stats

import "fmt"

// MetricTable is a user-keyed derived table that can be ranked.
type MetricTable string

const (
	MetricAcceptedCount MetricTable = "accepted_count"
	MetricRatedPointSum MetricTable = "rated_point_sum"
	MetricStreak        MetricTable = "streak"
	MetricLanguageCount MetricTable = "language_count"
)

var metricTables = []MetricTable{MetricAcceptedCount, MetricRatedPointSum, MetricStreak, MetricLanguageCount}

func ParseMetricTable(s string) (MetricTable, error) {
	for _, t := range metricTables {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown metric table %q", s)
}

// MetricRow is one ranked row. Language is set only for the language table.
type MetricRow struct {
	UserID   string  `json:"user_id"`
	Language string  `json:"language,omitempty"`
	Value    float64 `json:"value"`
}

// MetricQuery identifies the ranking being read.
type MetricQuery struct {
	Table    MetricTable
	Language string
}
