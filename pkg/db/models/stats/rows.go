package stats

type AcceptedCount struct {
	UserID       string `json:"user_id"`
	ProblemCount int64  `json:"problem_count"`
}

type LanguageCount struct {
	UserID             string `json:"user_id"`
	SimplifiedLanguage string `json:"simplified_language"`
	ProblemCount       int64  `json:"problem_count"`
}

type RatedPointSum struct {
	UserID   string  `json:"user_id"`
	PointSum float64 `json:"point_sum"`
}

type Streak struct {
	UserID string `json:"user_id"`
	Streak int64  `json:"streak"`
}

// SolutionRecord is the winning submission of a problem for one record kind. Metric is the
// submission id (first), execution time in ms (fastest) or code length (shortest).
type SolutionRecord struct {
	ProblemID    string `json:"problem_id"`
	ContestID    string `json:"contest_id"`
	SubmissionID int64  `json:"submission_id"`
	Metric       int64  `json:"metric"`
}

// Beats reports whether r wins over other: smaller metric first, smaller submission id on ties.
func (r SolutionRecord) Beats(other SolutionRecord) bool {
	if r.Metric != other.Metric {
		return r.Metric < other.Metric
	}
	return r.SubmissionID < other.SubmissionID
}
