package crawler

import (
	"time"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/retry"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/source"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/utils"
)

// Config tunes pagination and pacing.
type Config struct {
	// PageDelay separates consecutive page fetches.
	PageDelay time.Duration
	// RecentWindow selects the contests crawled by RecentCycle.
	RecentWindow time.Duration
	// ForwardMaxPages is the page ceiling of forward mode.
	ForwardMaxPages int
	// StreakPages is how many consecutive overlapping pages end a streak-mode walk.
	StreakPages int
	// OlderBatch caps the contests crawled by one OlderCycle.
	OlderBatch int
	// OlderRevisit is how often OlderCycle walks an older contest whole again to pick up late
	// rejudges. Zero disables the periodic revisit.
	OlderRevisit time.Duration
	// DiscoveryMaxPages bounds the contest list walk.
	DiscoveryMaxPages int
	Retry             retry.Config
}

func DefaultConfig() Config {
	cfg := retry.FetchConfig()
	cfg.Retryable = source.IsRetryable
	return Config{
		PageDelay:         200 * time.Millisecond,
		RecentWindow:      72 * time.Hour,
		ForwardMaxPages:   20,
		StreakPages:       5,
		OlderBatch:        10,
		OlderRevisit:      7 * 24 * time.Hour,
		DiscoveryMaxPages: 200,
		Retry:             cfg,
	}
}

// ConfigFromEnv overrides the defaults with CRAWL_* environment variables.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.PageDelay = utils.EnvDuration("CRAWL_PAGE_DELAY", cfg.PageDelay)
	cfg.RecentWindow = utils.EnvDuration("CRAWL_RECENT_WINDOW", cfg.RecentWindow)
	cfg.ForwardMaxPages = utils.EnvInt("CRAWL_FORWARD_MAX_PAGES", cfg.ForwardMaxPages)
	cfg.StreakPages = utils.EnvInt("CRAWL_STREAK_PAGES", cfg.StreakPages)
	cfg.OlderBatch = utils.EnvInt("CRAWL_OLDER_BATCH", cfg.OlderBatch)
	cfg.OlderRevisit = utils.EnvDuration("CRAWL_OLDER_REVISIT", cfg.OlderRevisit)
	cfg.DiscoveryMaxPages = utils.EnvInt("CRAWL_DISCOVERY_MAX_PAGES", cfg.DiscoveryMaxPages)
	cfg.Retry.MaxAttempts = utils.EnvInt("CRAWL_RETRY_ATTEMPTS", cfg.Retry.MaxAttempts)
	cfg.Retry.JitterEnabled = utils.EnvBool("CRAWL_RETRY_JITTER", cfg.Retry.JitterEnabled)
	return cfg
}
