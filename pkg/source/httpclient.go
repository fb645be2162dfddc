package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/crawl"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/utils"
	"golang.org/x/time/rate"
)

// HTTPClient fetches listing pages through a token-bucket limiter and a per-endpoint circuit breaker.
type HTTPClient struct {
	endpoints []string
	client    *http.Client
	parser    Parser
	limiter   *rate.Limiter
	userAgent string

	// circuit-breaker
	mu       sync.Mutex
	failures map[string]int
	opened   map[string]time.Time

	breakerThreshold int
	breakerCooldown  time.Duration
}

var _ Fetcher = (*HTTPClient)(nil)

// Opts is the set of options for a new HTTPClient.
type Opts struct {
	Endpoints       []string
	Timeout         time.Duration
	RPS             float64
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	UserAgent       string
	Parser          Parser
	HTTPClient      *http.Client
}

// NewHTTPWithOpts creates a new HTTPClient with the given options.
func NewHTTPWithOpts(o Opts) *HTTPClient {
	if o.RPS <= 0 {
		o.RPS = 2
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 5
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 30 * time.Second
	}
	if o.Parser == nil {
		o.Parser = JSONParser{}
	}
	if o.UserAgent == "" {
		o.UserAgent = "atcoder-problems-crawler"
	}

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}

	endpoints := make([]string, 0, len(o.Endpoints))
	for _, ep := range utils.Dedup(o.Endpoints) {
		endpoints = append(endpoints, strings.TrimRight(ep, "/"))
	}

	return &HTTPClient{
		endpoints:        endpoints,
		client:           client,
		parser:           o.Parser,
		limiter:          rate.NewLimiter(rate.Limit(o.RPS), o.Burst),
		userAgent:        o.UserAgent,
		failures:         map[string]int{},
		opened:           map[string]time.Time{},
		breakerThreshold: o.BreakerFailures,
		breakerCooldown:  o.BreakerCooldown,
	}
}

func (c *HTTPClient) SubmissionPage(ctx context.Context, contestID string, page int) (SubmissionPage, error) {
	body, err := c.get(ctx, submissionsPath(contestID, page))
	if err != nil {
		return SubmissionPage{}, err
	}
	return c.parser.ParseSubmissions(contestID, body)
}

func (c *HTTPClient) ContestPage(ctx context.Context, page int) ([]crawl.Contest, error) {
	body, err := c.get(ctx, contestsPath(page))
	if err != nil {
		return nil, err
	}
	return c.parser.ParseContests(body)
}

func (c *HTTPClient) ProblemList(ctx context.Context, contestID string) ([]crawl.Problem, error) {
	body, err := c.get(ctx, problemsPath(contestID))
	if err != nil {
		return nil, err
	}
	return c.parser.ParseProblems(contestID, body)
}

// isOpen returns true while the endpoint's breaker is OPEN.
func (c *HTTPClient) isOpen(ep string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.opened[ep]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.opened, ep)
		c.failures[ep] = 0
		return false
	}
	return true
}

// noteFailure counts a failure and opens the breaker once the threshold is reached.
func (c *HTTPClient) noteFailure(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep]++
	if c.failures[ep] >= c.breakerThreshold {
		c.opened[ep] = time.Now().Add(c.breakerCooldown)
	}
}

func (c *HTTPClient) noteSuccess(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep] = 0
}

// get fetches path from the first healthy endpoint. 404 maps to ErrNotFound; network errors,
// 429 and 5xx map to ErrTransient after every endpoint has been tried.
func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	if len(c.endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints configured")
	}

	var lastErr error
	for _, ep := range c.endpoints {
		if c.isOpen(ep) {
			continue
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = fmt.Errorf("%w: %s: %v", ErrTransient, path, err)
			c.noteFailure(ep)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			_ = utils.DrainAndClose(resp.Body)
			c.noteSuccess(ep)
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			_ = utils.DrainAndClose(resp.Body)
			lastErr = fmt.Errorf("%w: %s: server %d", ErrTransient, path, resp.StatusCode)
			c.noteFailure(ep)
			continue
		case resp.StatusCode >= 300:
			_ = utils.DrainAndClose(resp.Body)
			return nil, fmt.Errorf("%s: http %d", path, resp.StatusCode)
		}

		body, readErr := io.ReadAll(resp.Body)
		if cerr := utils.DrainAndClose(resp.Body); cerr != nil && readErr == nil {
			readErr = cerr
		}
		if readErr != nil {
			lastErr = fmt.Errorf("%w: %s: read body: %v", ErrTransient, path, readErr)
			c.noteFailure(ep)
			continue
		}

		c.noteSuccess(ep)
		return body, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: %s: every endpoint is cooling down", ErrTransient, path)
	}
	return nil, lastErr
}

// Classify names the error class of a fetch error for logs.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrParse):
		return "parse"
	default:
		return "other"
	}
}
