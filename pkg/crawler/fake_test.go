package crawler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/clock"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/memdb"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/crawl"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/redis"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/source"
	"go.uber.org/zap/zaptest"
)

type pageKey struct {
	contestID string
	page      int
}

// fakeFetcher serves scripted listing pages and records every request.
type fakeFetcher struct {
	mu sync.Mutex

	pages    map[string][][]crawl.Submission
	errs     map[pageKey][]error
	sticky   map[pageKey]error
	contests [][]crawl.Contest
	problems map[string][]crawl.Problem

	calls        []pageKey
	contestCalls []int
	problemCalls []string

	onFetch func(key pageKey)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:    map[string][][]crawl.Submission{},
		errs:     map[pageKey][]error{},
		sticky:   map[pageKey]error{},
		problems: map[string][]crawl.Problem{},
	}
}

// SubmissionPage fails with the context error when ctx is cancelled while the hook runs, the
// way an HTTP request aborts mid-flight.
func (f *fakeFetcher) SubmissionPage(ctx context.Context, contestID string, page int) (source.SubmissionPage, error) {
	f.mu.Lock()
	key := pageKey{contestID, page}
	f.calls = append(f.calls, key)
	hook := f.onFetch
	var err error
	if e, ok := f.sticky[key]; ok {
		err = e
	} else if queue := f.errs[key]; len(queue) > 0 {
		err = queue[0]
		f.errs[key] = queue[1:]
	}
	pages := f.pages[contestID]
	f.mu.Unlock()

	if hook != nil {
		hook(key)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return source.SubmissionPage{}, ctxErr
	}
	if err != nil {
		return source.SubmissionPage{}, err
	}
	if page < 1 || page > len(pages) {
		return source.SubmissionPage{MaxPage: len(pages)}, nil
	}
	return source.SubmissionPage{Submissions: pages[page-1], MaxPage: len(pages)}, nil
}

func (f *fakeFetcher) ContestPage(_ context.Context, page int) ([]crawl.Contest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contestCalls = append(f.contestCalls, page)
	if page < 1 || page > len(f.contests) {
		return nil, nil
	}
	return f.contests[page-1], nil
}

func (f *fakeFetcher) ProblemList(_ context.Context, contestID string) ([]crawl.Problem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.problemCalls = append(f.problemCalls, contestID)
	problems, ok := f.problems[contestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", source.ErrNotFound, contestID)
	}
	return problems, nil
}

// pagesRequested lists the pages fetched for one contest in request order.
func (f *fakeFetcher) pagesRequested(contestID string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, c := range f.calls {
		if c.contestID == contestID {
			out = append(out, c.page)
		}
	}
	return out
}

func (f *fakeFetcher) contestsRequested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, c := range f.calls {
		if !seen[c.contestID] {
			seen[c.contestID] = true
			out = append(out, c.contestID)
		}
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []redis.IngestEvent
}

func (p *fakePublisher) PublishIngest(_ context.Context, event redis.IngestEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// listing builds pages of submissions for a contest. Ids descend across pages like the real
// listing: page 1 holds the newest.
func listing(contestID string, firstID int64, pages, perPage int, user func(id int64) string) [][]crawl.Submission {
	out := make([][]crawl.Submission, 0, pages)
	id := firstID
	for p := 0; p < pages; p++ {
		page := make([]crawl.Submission, 0, perPage)
		for i := 0; i < perPage; i++ {
			page = append(page, submission(contestID, id, user(id), crawl.ResultAccepted))
			id--
		}
		out = append(out, page)
	}
	return out
}

func submission(contestID string, id int64, user, result string) crawl.Submission {
	return crawl.Submission{
		ID:          id,
		EpochSecond: 1_600_000_000 + id,
		ProblemID:   contestID + "_a",
		ContestID:   contestID,
		UserID:      user,
		Language:    "Go (1.14.1)",
		Point:       100,
		Length:      512,
		Result:      result,
	}
}

func constUser(name string) func(int64) string {
	return func(int64) string { return name }
}

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestController(t *testing.T, store *memdb.DB, fetcher source.Fetcher, opts ...Option) (*Controller, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(testNow)
	opts = append([]Option{WithClock(clk)}, opts...)
	return New(zaptest.NewLogger(t), store, fetcher, DefaultConfig(), opts...), clk
}
