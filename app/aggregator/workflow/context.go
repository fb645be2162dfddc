package workflow

import (
	"time"

	"github.com/kenkoooo/AtCoderProblems-sub000/app/aggregator/activity"
)

const AggregateWorkflowName = "AggregateWorkflow"

// Config holds the workflow configuration.
type Config struct {
	TableTimeout       time.Duration
	TableMaxAttempts   int32
	RefreshTimeout     time.Duration
	RefreshMaxAttempts int32
}

func DefaultConfig() Config {
	return Config{
		TableTimeout:       30 * time.Minute,
		TableMaxAttempts:   3,
		RefreshTimeout:     5 * time.Minute,
		RefreshMaxAttempts: 2,
	}
}

// Context holds the workflow context.
type Context struct {
	ActivityContext *activity.Context
	Config          Config
}
