package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/clock"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/crawl"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/redis"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/retry"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/source"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/utils"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// Store is the part of the raw store the crawler writes to.
type Store interface {
	db.SubmissionStore
	db.ContestStore
}

// Publisher announces finished ingestion cycles to the aggregation side.
type Publisher interface {
	PublishIngest(ctx context.Context, event redis.IngestEvent) error
}

// Controller decides what to fetch and writes it to the raw store. Each method is sequential;
// the crawl loops run concurrently on one Controller.
type Controller struct {
	Logger    *zap.Logger
	Store     Store
	Fetcher   source.Fetcher
	Clock     clock.Clock
	Config    Config
	Archive   db.SubmissionArchive
	Publisher Publisher

	lastCrawled *xsync.Map[string, time.Time]
	// lastWhole is when each contest was last walked whole.
	lastWhole *xsync.Map[string, time.Time]
}

// Option customizes a Controller.
type Option func(*Controller)

func WithClock(c clock.Clock) Option {
	return func(ctrl *Controller) { ctrl.Clock = c }
}

func WithArchive(a db.SubmissionArchive) Option {
	return func(ctrl *Controller) { ctrl.Archive = a }
}

func WithPublisher(p Publisher) Option {
	return func(ctrl *Controller) { ctrl.Publisher = p }
}

func New(logger *zap.Logger, store Store, fetcher source.Fetcher, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		Logger:      logger,
		Store:       store,
		Fetcher:     fetcher,
		Clock:       clock.Real(),
		Config:      cfg,
		lastCrawled: xsync.NewMap[string, time.Time](),
		lastWhole:   xsync.NewMap[string, time.Time](),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Config.Retry.Clock = c.Clock
	if c.Config.Retry.Retryable == nil {
		c.Config.Retry.Retryable = source.IsRetryable
	}
	return c
}

// pageOutcome classifies a fetched page after retries.
type pageOutcome int

const (
	pageOK pageOutcome = iota
	// pageEmpty covers real empty pages, not-found and exhausted retries.
	pageEmpty
	// pageSkipped is a page that could not be parsed.
	pageSkipped
)

// fetchWithRetry runs fn under the fetch retry policy. An attempt in flight runs detached from
// ctx and is bounded by the HTTP timeout, so shutdown never discards a page already on its way;
// cancellation is observed before each attempt and during the backoff waits.
func fetchWithRetry[T any](ctx context.Context, c *Controller, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	attemptCtx := context.WithoutCancel(ctx)
	err := retry.WithBackoff(ctx, c.Config.Retry, c.Logger, op, func() error {
		v, err := fn(attemptCtx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// classify maps a fetch error onto a page outcome. Cancellation is returned as an error.
func (c *Controller) classify(ctx context.Context, logger *zap.Logger, err error) (pageOutcome, error) {
	if err == nil {
		return pageOK, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return pageEmpty, ctxErr
	}
	switch {
	case errors.Is(err, source.ErrNotFound):
		logger.Debug("Page not found")
		return pageEmpty, nil
	case errors.Is(err, source.ErrParse):
		logger.Warn("Skipping unparseable page", zap.Error(err))
		return pageSkipped, nil
	default:
		logger.Warn("Fetch failed, treating page as empty for this cycle",
			zap.String("class", source.Classify(err)),
			zap.Error(err))
		return pageEmpty, nil
	}
}

func (c *Controller) fetchSubmissions(ctx context.Context, contestID string, page int) (source.SubmissionPage, pageOutcome, error) {
	logger := c.Logger.With(zap.String("contest_id", contestID), zap.Int("page", page))
	sp, err := fetchWithRetry(ctx, c, "fetch_submissions", func(ctx context.Context) (source.SubmissionPage, error) {
		return c.Fetcher.SubmissionPage(ctx, contestID, page)
	})
	outcome, cerr := c.classify(ctx, logger, err)
	if cerr != nil {
		return source.SubmissionPage{}, outcome, cerr
	}
	if outcome == pageOK && len(sp.Submissions) == 0 {
		outcome = pageEmpty
	}
	return sp, outcome, nil
}

// walk accumulates the results of one contest crawl.
type walk struct {
	result  CrawlResult
	touched map[string]struct{}
}

func (w *walk) finish(stop StopReason) CrawlResult {
	w.result.Stop = stop
	w.result.TouchedUsers = utils.SortedKeys(w.touched)
	return w.result
}

// ingest computes the overlap signal of a page, upserts it and records the affected users. The write runs detached from
// ctx so a page that was fetched is always stored even when shutdown starts.
func (c *Controller) ingest(ctx context.Context, w *walk, subs []crawl.Submission) (bool, error) {
	writeCtx := context.WithoutCancel(ctx)

	ids := make([]int64, len(subs))
	for i := range subs {
		ids[i] = subs[i].ID
	}
	stored, err := c.Store.LookupSubmissions(writeCtx, ids)
	if err != nil {
		return false, fmt.Errorf("check overlap of %s: %w", w.result.ContestID, err)
	}
	minID, _ := crawl.MinID(subs)
	_, overlap := stored[minID]

	if err := c.Store.UpsertSubmissions(writeCtx, subs); err != nil {
		return false, fmt.Errorf("upsert %d submissions of %s: %w", len(subs), w.result.ContestID, err)
	}

	if c.Archive != nil {
		if err := c.Archive.ArchiveSubmissions(writeCtx, subs); err != nil {
			c.Logger.Warn("Failed to archive submissions",
				zap.String("contest_id", w.result.ContestID),
				zap.Int("count", len(subs)),
				zap.Error(err))
		}
	}

	w.result.Upserted += len(subs)
	for _, u := range crawl.AffectedUserIDs(subs, stored) {
		w.touched[u] = struct{}{}
	}
	return overlap, nil
}

// pause sleeps the politeness delay. Together with the retry loop it is where a walk observes cancellation.
func (c *Controller) pause(ctx context.Context) error {
	return c.Clock.Sleep(ctx, c.Config.PageDelay)
}

// CrawlContest walks the submission listing of one contest. Store errors abort the walk and are
// returned with the partial result; fetch failures only shorten it.
func (c *Controller) CrawlContest(ctx context.Context, contestID string, mode Mode) (CrawlResult, error) {
	w := &walk{
		result:  CrawlResult{ContestID: contestID, Mode: mode},
		touched: make(map[string]struct{}),
	}

	var (
		stop StopReason
		err  error
	)
	switch mode {
	case ModeWhole:
		stop, err = c.crawlWhole(ctx, w)
	case ModeForward:
		stop, err = c.crawlFromFirst(ctx, w, c.Config.ForwardMaxPages, 1)
	case ModeStreak:
		stop, err = c.crawlFromFirst(ctx, w, 0, max(c.Config.StreakPages, 1))
	default:
		return w.finish(StopCompleted), fmt.Errorf("unknown crawl mode %q", mode)
	}

	result := w.finish(stop)
	c.Logger.Debug("Contest crawled",
		zap.String("contest_id", contestID),
		zap.String("mode", string(mode)),
		zap.Int("pages", result.PagesFetched),
		zap.Int("upserted", result.Upserted),
		zap.Int("touched_users", len(result.TouchedUsers)),
		zap.String("stop", string(result.Stop)))

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return result, nil
	}
	return result, err
}

// crawlFromFirst walks 1..N. It stops after streak consecutive overlapping pages, at an empty
// page, past max_page, or after ceiling pages when ceiling > 0.
func (c *Controller) crawlFromFirst(ctx context.Context, w *walk, ceiling, streak int) (StopReason, error) {
	maxPage := 0
	consecutive := 0
	for page := 1; ; page++ {
		if ceiling > 0 && page > ceiling {
			return StopPageCeiling, nil
		}
		if maxPage > 0 && page > maxPage {
			return StopMaxPage, nil
		}
		if page > 1 {
			if err := c.pause(ctx); err != nil {
				return StopCancelled, err
			}
		}

		sp, outcome, err := c.fetchSubmissions(ctx, w.result.ContestID, page)
		if err != nil {
			return StopCancelled, err
		}
		w.result.PagesFetched++
		if sp.MaxPage > 0 {
			maxPage = sp.MaxPage
		}

		switch outcome {
		case pageEmpty:
			return StopEmptyPage, nil
		case pageSkipped:
			consecutive = 0
			continue
		}

		overlap, err := c.ingest(ctx, w, sp.Submissions)
		if err != nil {
			return StopStoreError, err
		}
		if !overlap {
			consecutive = 0
			continue
		}
		consecutive++
		if consecutive >= streak {
			if streak == 1 {
				return StopOverlap, nil
			}
			return StopStreak, nil
		}
	}
}

// crawlWhole discovers max_page through page 1 and then walks max_page down to 1, reusing page 1.
func (c *Controller) crawlWhole(ctx context.Context, w *walk) (StopReason, error) {
	first, firstOutcome, err := c.fetchSubmissions(ctx, w.result.ContestID, 1)
	if err != nil {
		return StopCancelled, err
	}
	w.result.PagesFetched++
	if firstOutcome == pageEmpty {
		return StopEmptyPage, nil
	}

	for page := max(first.MaxPage, 1); page >= 1; page-- {
		sp, outcome := first, firstOutcome
		if page > 1 {
			if err := c.pause(ctx); err != nil {
				return StopCancelled, err
			}
			sp, outcome, err = c.fetchSubmissions(ctx, w.result.ContestID, page)
			if err != nil {
				return StopCancelled, err
			}
			w.result.PagesFetched++
		}
		if outcome != pageOK {
			continue
		}
		if _, err := c.ingest(ctx, w, sp.Submissions); err != nil {
			return StopStoreError, err
		}
	}
	return StopCompleted, nil
}
