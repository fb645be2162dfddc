package source

import (
	"fmt"
	"net/url"
)

// Listing paths on the platform mirror.
const (
	submissionsPathFmt = "/contests/%s/submissions?page=%d"
	contestsPathFmt    = "/contests/archive?page=%d"
	problemsPathFmt    = "/contests/%s/tasks"
)

func submissionsPath(contestID string, page int) string {
	return fmt.Sprintf(submissionsPathFmt, url.PathEscape(contestID), page)
}

func contestsPath(page int) string {
	return fmt.Sprintf(contestsPathFmt, page)
}

func problemsPath(contestID string) string {
	return fmt.Sprintf(problemsPathFmt, url.PathEscape(contestID))
}
