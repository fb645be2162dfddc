package types

import "github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"

// WorkflowAggregateInput starts one aggregation run. Tables defaults to every derived table.
type WorkflowAggregateInput struct {
	RunID              string        `json:"run_id"`
	Mode               stats.Mode    `json:"mode"`
	UserIDs            []string      `json:"user_ids,omitempty"`
	Tables             []stats.Table `json:"tables,omitempty"`
	RefreshLeaderboard bool          `json:"refresh_leaderboard"`
}

type TableOutcome struct {
	Table      stats.Table `json:"table"`
	Rows       int         `json:"rows"`
	DurationMs float64     `json:"duration_ms"`
	Error      string      `json:"error,omitempty"`
}

type WorkflowAggregateOutput struct {
	Tables      []TableOutcome `json:"tables"`
	Failed      []stats.Table  `json:"failed,omitempty"`
	CacheRows   int            `json:"cache_rows"`
	CacheFailed bool           `json:"cache_failed,omitempty"`
	DurationMs  float64        `json:"duration_ms"`
}

type ActivityRecomputeTableInput struct {
	Table   stats.Table `json:"table"`
	Mode    stats.Mode  `json:"mode"`
	UserIDs []string    `json:"user_ids,omitempty"`
}

type ActivityRecomputeTableOutput struct {
	Table      stats.Table `json:"table"`
	Rows       int         `json:"rows"`
	DurationMs float64     `json:"duration_ms"`
}

type ActivityRefreshLeaderboardOutput struct {
	Version string `json:"version"`
	Sets    int    `json:"sets"`
	Rows    int    `json:"rows"`
}
