package crawl

const SubmissionsTableName = "submissions"

// ResultAccepted is the verdict of a submission that passed every test.
const ResultAccepted = "AC"

// Submission is one row of a contest's submission listing.
//
// ID is the identity. UserID, Result, Point and ExecutionTime are overwritten on re-ingest
// (renames and rejudges); ProblemID, ContestID, Language and Length never change once stored.
type Submission struct {
	ID          int64   `ch:"id" json:"id"`
	EpochSecond int64   `ch:"epoch_second" json:"epoch_second"`
	ProblemID   string  `ch:"problem_id" json:"problem_id"`
	ContestID   string  `ch:"contest_id" json:"contest_id"`
	UserID      string  `ch:"user_id" json:"user_id"`
	Language    string  `ch:"language" json:"language"`
	Point       float64 `ch:"point" json:"point"`
	Length      int64   `ch:"length" json:"length"`
	Result      string  `ch:"result" json:"result"`
	// ExecutionTime is in milliseconds; nil while judging or for compile errors.
	ExecutionTime *int64 `ch:"execution_time" json:"execution_time,omitempty"`
}

// Accepted reports whether the verdict is AC.
func (s *Submission) Accepted() bool {
	return s.Result == ResultAccepted
}

// MinID returns the smallest submission id of a page, or false for an empty page.
func MinID(subs []Submission) (int64, bool) {
	if len(subs) == 0 {
		return 0, false
	}
	lowest := subs[0].ID
	for _, s := range subs[1:] {
		if s.ID < lowest {
			lowest = s.ID
		}
	}
	return lowest, true
}

// StoredSubmission is the mutable part of a stored row that decides whose statistics a
// re-ingest can change.
type StoredSubmission struct {
	UserID string
	Result string
}

// AffectedUserIDs returns the users whose statistics can change when subs overwrite the stored
// rows: the users of accepted submissions in subs plus the previous owners of overwritten
// accepted rows. A rejudge away from AC and a rename both reach the old owner this way.
func AffectedUserIDs(subs []Submission, stored map[int64]StoredSubmission) []string {
	out := AcceptedUserIDs(subs)
	seen := make(map[string]struct{}, len(out))
	for _, u := range out {
		seen[u] = struct{}{}
	}
	for i := range subs {
		prev, ok := stored[subs[i].ID]
		if !ok || prev.Result != ResultAccepted {
			continue
		}
		if _, dup := seen[prev.UserID]; dup {
			continue
		}
		seen[prev.UserID] = struct{}{}
		out = append(out, prev.UserID)
	}
	return out
}

// AcceptedUserIDs returns the distinct user ids of the accepted submissions in subs.
func AcceptedUserIDs(subs []Submission) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for i := range subs {
		if !subs[i].Accepted() {
			continue
		}
		if _, ok := seen[subs[i].UserID]; ok {
			continue
		}
		seen[subs[i].UserID] = struct{}{}
		out = append(out, subs[i].UserID)
	}
	return out
}
