package source

import (
	"context"
	"errors"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/crawl"
)

var (
	// ErrNotFound means the page does not exist. Callers treat it as an empty page.
	ErrNotFound = errors.New("page not found")
	// ErrTransient covers network failures and 5xx responses; worth retrying.
	ErrTransient = errors.New("transient fetch failure")
	// ErrParse means the page was fetched but its content could not be decoded.
	ErrParse = errors.New("page parse failure")
)

// SubmissionPage is one page of a contest's submission listing.
type SubmissionPage struct {
	Submissions []crawl.Submission `json:"submissions"`
	// MaxPage is the last page number the listing advertises.
	MaxPage int `json:"max_page"`
}

// Fetcher retrieves and parses pages from the contest platform. Errors are classified with
// ErrNotFound, ErrTransient and ErrParse.
type Fetcher interface {
	SubmissionPage(ctx context.Context, contestID string, page int) (SubmissionPage, error)
	ContestPage(ctx context.Context, page int) ([]crawl.Contest, error)
	ProblemList(ctx context.Context, contestID string) ([]crawl.Problem, error)
}

// Parser turns raw page bodies into records. Implementations wrap failures with ErrParse.
type Parser interface {
	ParseSubmissions(contestID string, body []byte) (SubmissionPage, error)
	ParseContests(body []byte) ([]crawl.Contest, error)
	ParseProblems(contestID string, body []byte) ([]crawl.Problem, error)
}

// IsRetryable reports whether err should be retried with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
