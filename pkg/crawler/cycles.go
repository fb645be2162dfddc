package crawler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/crawl"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/redis"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/utils"
	"go.uber.org/zap"
)

const (
	CycleRecent    = "recent"
	CycleOlder     = "older"
	CycleVirtual   = "virtual"
	CycleDiscovery = "discovery"
)

// target is one contest scheduled in a cycle.
type target struct {
	contestID string
	mode      Mode
}

// sortNewestFirst orders contests by start time descending, id ascending on ties.
func sortNewestFirst(contests []crawl.Contest) {
	sort.SliceStable(contests, func(i, j int) bool {
		if contests[i].StartEpochSecond != contests[j].StartEpochSecond {
			return contests[i].StartEpochSecond > contests[j].StartEpochSecond
		}
		return contests[i].ID < contests[j].ID
	})
}

// splitRecent partitions started contests into the recent set (the newest one plus every contest
// that started inside the window) and the rest. Contests that have not started are dropped.
func splitRecent(contests []crawl.Contest, now time.Time, window time.Duration) (recent, older []crawl.Contest) {
	sortNewestFirst(contests)
	nowEpoch := now.Unix()
	windowStart := now.Add(-window).Unix()
	for _, c := range contests {
		if c.StartEpochSecond > nowEpoch {
			continue
		}
		if len(recent) == 0 || c.StartEpochSecond >= windowStart {
			recent = append(recent, c)
			continue
		}
		older = append(older, c)
	}
	return recent, older
}

// runTargets crawls each target in order. A failing contest is logged and counted; the cycle goes on.
func (c *Controller) runTargets(ctx context.Context, cycle string, targets []target) CycleResult {
	result := CycleResult{Cycle: cycle, CycleID: uuid.NewString()}
	touched := make(map[string]struct{})
	logger := c.Logger.With(zap.String("cycle", cycle), zap.String("cycle_id", result.CycleID))

	for i, t := range targets {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			if err := c.pause(ctx); err != nil {
				break
			}
		}

		res, err := c.CrawlContest(ctx, t.contestID, t.mode)
		result.Contests++
		result.Upserted += res.Upserted
		for _, u := range res.TouchedUsers {
			touched[u] = struct{}{}
		}
		if err != nil {
			result.Failed++
			logger.Warn("Contest crawl failed",
				zap.String("contest_id", t.contestID),
				zap.String("mode", string(t.mode)),
				zap.Error(err))
			continue
		}
		now := c.Clock.Now()
		c.lastCrawled.Store(t.contestID, now)
		if t.mode == ModeWhole {
			c.lastWhole.Store(t.contestID, now)
		}
	}

	result.TouchedUsers = utils.SortedKeys(touched)
	c.publish(ctx, logger, result)

	logger.Info("Crawl cycle finished",
		zap.Int("contests", result.Contests),
		zap.Int("failed", result.Failed),
		zap.Int("upserted", result.Upserted),
		zap.Int("touched_users", len(result.TouchedUsers)))
	return result
}

// publish hands the touched users to the aggregation side. Publishing is best-effort: the
// scheduled full rebuild covers anything a lost event misses.
func (c *Controller) publish(ctx context.Context, logger *zap.Logger, result CycleResult) {
	if c.Publisher == nil || len(result.TouchedUsers) == 0 {
		return
	}
	event := redis.IngestEvent{
		CycleID:     result.CycleID,
		Cycle:       result.Cycle,
		UserIDs:     result.TouchedUsers,
		Submissions: result.Upserted,
		At:          c.Clock.Now().UTC(),
	}
	if err := c.Publisher.PublishIngest(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn("Failed to publish ingest event", zap.Error(err))
	}
}

// RecentCycle crawls the newest contest and every contest that started inside the recency window
// in forward mode.
func (c *Controller) RecentCycle(ctx context.Context) (CycleResult, error) {
	contests, err := c.Store.LoadContests(ctx)
	if err != nil {
		return CycleResult{Cycle: CycleRecent}, fmt.Errorf("load contests: %w", err)
	}

	recent, _ := splitRecent(contests, c.Clock.Now(), c.Config.RecentWindow)
	targets := make([]target, 0, len(recent))
	for _, ct := range recent {
		targets = append(targets, target{contestID: ct.ID, mode: ModeForward})
	}
	return c.runTargets(ctx, CycleRecent, targets), nil
}

// OlderCycle crawls up to OlderBatch contests outside the recency window, least recently crawled
// first. See olderMode for how each one is walked.
func (c *Controller) OlderCycle(ctx context.Context) (CycleResult, error) {
	contests, err := c.Store.LoadContests(ctx)
	if err != nil {
		return CycleResult{Cycle: CycleOlder}, fmt.Errorf("load contests: %w", err)
	}

	_, older := splitRecent(contests, c.Clock.Now(), c.Config.RecentWindow)
	// stable over the newest-first order, so never crawled contests go newest first
	sort.SliceStable(older, func(i, j int) bool {
		ti, _ := c.lastCrawled.Load(older[i].ID)
		tj, _ := c.lastCrawled.Load(older[j].ID)
		return ti.Before(tj)
	})
	if c.Config.OlderBatch > 0 && len(older) > c.Config.OlderBatch {
		older = older[:c.Config.OlderBatch]
	}

	targets := make([]target, 0, len(older))
	for _, ct := range older {
		n, err := c.Store.CountContestSubmissions(ctx, ct.ID)
		if err != nil {
			c.Logger.Warn("Failed to count stored submissions",
				zap.String("contest_id", ct.ID),
				zap.Error(err))
			continue
		}
		targets = append(targets, target{contestID: ct.ID, mode: c.olderMode(ct, n)})
	}
	return c.runTargets(ctx, CycleOlder, targets), nil
}

// olderMode walks a contest whole when nothing is stored, when it has not been walked whole since
// it ended (pages past the forward ceiling may be missing), or when the last whole walk is older
// than OlderRevisit. Otherwise forward mode picks up what is new on the first pages.
func (c *Controller) olderMode(ct crawl.Contest, stored int64) Mode {
	if stored == 0 {
		return ModeWhole
	}
	last, ok := c.lastWhole.Load(ct.ID)
	if !ok || last.Unix() < ct.EndEpochSecond() {
		return ModeWhole
	}
	if c.Config.OlderRevisit > 0 && c.Clock.Now().Sub(last) >= c.Config.OlderRevisit {
		return ModeWhole
	}
	return ModeForward
}

// VirtualCycle crawls, in streak mode, the contests used by currently running virtual contests.
func (c *Controller) VirtualCycle(ctx context.Context) (CycleResult, error) {
	ids, err := c.Store.RunningVirtualContestIDs(ctx, c.Clock.Now().Unix())
	if err != nil {
		return CycleResult{Cycle: CycleVirtual}, fmt.Errorf("load running virtual contests: %w", err)
	}

	targets := make([]target, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, target{contestID: id, mode: ModeStreak})
	}
	return c.runTargets(ctx, CycleVirtual, targets), nil
}

// DiscoveryCycle walks the contest list until an empty page and then fetches the problem list of
// every contest that has none yet.
func (c *Controller) DiscoveryCycle(ctx context.Context) (CycleResult, error) {
	result := CycleResult{Cycle: CycleDiscovery, CycleID: uuid.NewString()}
	logger := c.Logger.With(zap.String("cycle", CycleDiscovery), zap.String("cycle_id", result.CycleID))

	for page := 1; c.Config.DiscoveryMaxPages <= 0 || page <= c.Config.DiscoveryMaxPages; page++ {
		if page > 1 {
			if err := c.pause(ctx); err != nil {
				return result, nil
			}
		}
		contests, err := fetchWithRetry(ctx, c, "fetch_contests", func(ctx context.Context) ([]crawl.Contest, error) {
			return c.Fetcher.ContestPage(ctx, page)
		})
		outcome, cerr := c.classify(ctx, logger.With(zap.Int("page", page)), err)
		if cerr != nil {
			return result, nil
		}
		if outcome == pageSkipped {
			continue
		}
		if outcome == pageEmpty || len(contests) == 0 {
			break
		}
		if err := c.Store.UpsertContests(context.WithoutCancel(ctx), contests); err != nil {
			return result, fmt.Errorf("upsert contests of page %d: %w", page, err)
		}
		result.Contests += len(contests)
	}

	ids, err := c.Store.ContestsWithoutProblems(ctx)
	if err != nil {
		return result, fmt.Errorf("load contests without problems: %w", err)
	}
	for _, id := range ids {
		if err := c.pause(ctx); err != nil {
			return result, nil
		}
		problems, err := fetchWithRetry(ctx, c, "fetch_problems", func(ctx context.Context) ([]crawl.Problem, error) {
			return c.Fetcher.ProblemList(ctx, id)
		})
		if _, cerr := c.classify(ctx, logger.With(zap.String("contest_id", id)), err); cerr != nil {
			return result, nil
		}
		if err != nil || len(problems) == 0 {
			continue
		}
		if err := c.Store.UpsertProblems(context.WithoutCancel(ctx), problems); err != nil {
			result.Failed++
			logger.Warn("Failed to store problems", zap.String("contest_id", id), zap.Error(err))
			continue
		}
	}

	logger.Info("Discovery cycle finished",
		zap.Int("contests", result.Contests),
		zap.Int("contests_without_problems", len(ids)),
		zap.Int("failed", result.Failed))
	return result, nil
}

// Loop runs cycle every interval until ctx is cancelled. Cycle errors are logged and the loop
// keeps going.
func (c *Controller) Loop(ctx context.Context, name string, interval time.Duration, cycle func(context.Context) (CycleResult, error)) error {
	logger := c.Logger.With(zap.String("loop", name))
	logger.Info("Crawl loop started", zap.Duration("interval", interval))
	for {
		if _, err := cycle(ctx); err != nil {
			logger.Error("Crawl cycle failed", zap.Error(err))
		}
		if err := c.Clock.Sleep(ctx, interval); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Info("Crawl loop stopped")
				return nil
			}
			return err
		}
	}
}

// LastCrawled returns when a contest was last crawled successfully by this controller.
func (c *Controller) LastCrawled(contestID string) (time.Time, bool) {
	return c.lastCrawled.Load(contestID)
}
