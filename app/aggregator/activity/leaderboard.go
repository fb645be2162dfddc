package activity

import (
	"context"

	"github.com/kenkoooo/AtCoderProblems-sub000/app/aggregator/types"
	"go.temporal.io/sdk/temporal"
)

// RefreshLeaderboard republishes the Redis rank cache from the derived tables.
func (ac *Context) RefreshLeaderboard(ctx context.Context) (types.ActivityRefreshLeaderboardOutput, error) {
	if ac.Leaderboard == nil || ac.Rankings == nil {
		return types.ActivityRefreshLeaderboardOutput{}, nil
	}
	res, err := ac.Leaderboard.Refresh(ctx, ac.Rankings)
	if err != nil {
		return types.ActivityRefreshLeaderboardOutput{}, temporal.NewApplicationErrorWithCause(
			"leaderboard refresh failed", "leaderboard_refresh", err)
	}
	return types.ActivityRefreshLeaderboardOutput{Version: res.Version, Sets: res.Sets, Rows: res.Rows}, nil
}
