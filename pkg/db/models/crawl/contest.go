package crawl

const (
	ContestsTableName        = "contests"
	ProblemsTableName        = "problems"
	ContestProblemsTableName = "contest_problems"
)

const (
	// RatedEpochSecond is the first contest start time eligible for rating (2016-07-16 12:00 UTC).
	RatedEpochSecond int64 = 1468670400
	// UnratedRateChange marks a contest that does not change anyone's rating.
	UnratedRateChange = "-"
)

type Contest struct {
	ID               string `json:"id"`
	StartEpochSecond int64  `json:"start_epoch_second"`
	DurationSecond   int64  `json:"duration_second"`
	Title            string `json:"title"`
	RateChange       string `json:"rate_change"`
}

// Rated reports whether the contest counts toward ratings.
func (c *Contest) Rated() bool {
	return c.StartEpochSecond >= RatedEpochSecond && c.RateChange != UnratedRateChange
}

// EndEpochSecond is the moment the contest closes.
func (c *Contest) EndEpochSecond() int64 {
	return c.StartEpochSecond + c.DurationSecond
}

type Problem struct {
	ID        string `json:"id"`
	ContestID string `json:"contest_id"`
	Title     string `json:"title"`
	Position  string `json:"position"`
}

// ContestProblem links a problem to every contest it appears in.
type ContestProblem struct {
	ContestID string `json:"contest_id"`
	ProblemID string `json:"problem_id"`
	Position  string `json:"position"`
}

// ContestProblems derives the contest links of a freshly fetched problem list.
func ContestProblems(problems []Problem) []ContestProblem {
	out := make([]ContestProblem, 0, len(problems))
	for _, p := range problems {
		out = append(out, ContestProblem{ContestID: p.ContestID, ProblemID: p.ID, Position: p.Position})
	}
	return out
}

// VirtualContest is a user-defined contest built from platform problems.
type VirtualContest struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	OwnerUserID      string `json:"owner_user_id"`
	StartEpochSecond int64  `json:"start_epoch_second"`
	DurationSecond   int64  `json:"duration_second"`
}

// Running reports whether the virtual contest is open at nowEpoch.
func (v *VirtualContest) Running(nowEpoch int64) bool {
	return v.StartEpochSecond <= nowEpoch && nowEpoch < v.StartEpochSecond+v.DurationSecond
}
