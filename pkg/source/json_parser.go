package source

import (
	"encoding/json"
	"fmt"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/crawl"
)

// JSONParser decodes the JSON rendition of the listing pages.
type JSONParser struct{}

var _ Parser = JSONParser{}

func (JSONParser) ParseSubmissions(contestID string, body []byte) (SubmissionPage, error) {
	var page SubmissionPage
	if err := json.Unmarshal(body, &page); err != nil {
		return SubmissionPage{}, fmt.Errorf("%w: submissions of %s: %v", ErrParse, contestID, err)
	}
	for i := range page.Submissions {
		s := &page.Submissions[i]
		if s.ID <= 0 {
			return SubmissionPage{}, fmt.Errorf("%w: submissions of %s: row %d has no id", ErrParse, contestID, i)
		}
		if s.ContestID == "" {
			s.ContestID = contestID
		}
	}
	if page.MaxPage < 1 && len(page.Submissions) > 0 {
		page.MaxPage = 1
	}
	return page, nil
}

func (JSONParser) ParseContests(body []byte) ([]crawl.Contest, error) {
	var contests []crawl.Contest
	if err := json.Unmarshal(body, &contests); err != nil {
		return nil, fmt.Errorf("%w: contests: %v", ErrParse, err)
	}
	for i, c := range contests {
		if c.ID == "" {
			return nil, fmt.Errorf("%w: contests: row %d has no id", ErrParse, i)
		}
	}
	return contests, nil
}

func (JSONParser) ParseProblems(contestID string, body []byte) ([]crawl.Problem, error) {
	var problems []crawl.Problem
	if err := json.Unmarshal(body, &problems); err != nil {
		return nil, fmt.Errorf("%w: problems of %s: %v", ErrParse, contestID, err)
	}
	for i := range problems {
		if problems[i].ID == "" {
			return nil, fmt.Errorf("%w: problems of %s: row %d has no id", ErrParse, contestID, i)
		}
		problems[i].ContestID = contestID
	}
	return problems, nil
}
