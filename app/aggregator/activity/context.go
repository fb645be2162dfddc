package activity

import (
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/aggregator"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/rank"
	"go.uber.org/zap"
)

type Context struct {
	Logger *zap.Logger
	Engine *aggregator.Engine
	// Leaderboard and Rankings are nil when the Redis cache is disabled.
	Leaderboard *rank.Cache
	Rankings    db.RankSnapshotter
}
