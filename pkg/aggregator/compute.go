package aggregator

import (
	"sort"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/crawl"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
)

// jstOffsetSeconds shifts epoch seconds to Japan Standard Time (UTC+9), the calendar streaks use.
const jstOffsetSeconds int64 = 9 * 60 * 60

const secondsPerDay int64 = 24 * 60 * 60

type userProblem struct {
	userID    string
	problemID string
}

// AcceptedCounts counts the distinct problems each user has solved.
func AcceptedCounts(subs []crawl.Submission) []stats.AcceptedCount {
	solved := make(map[string]map[string]struct{})
	for i := range subs {
		s := &subs[i]
		if !s.Accepted() {
			continue
		}
		problems, ok := solved[s.UserID]
		if !ok {
			problems = make(map[string]struct{})
			solved[s.UserID] = problems
		}
		problems[s.ProblemID] = struct{}{}
	}

	out := make([]stats.AcceptedCount, 0, len(solved))
	for user, problems := range solved {
		out = append(out, stats.AcceptedCount{UserID: user, ProblemCount: int64(len(problems))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// LanguageCounts counts distinct solved problems per user and simplified language.
func LanguageCounts(subs []crawl.Submission) []stats.LanguageCount {
	type key struct {
		userID   string
		language string
	}
	solved := make(map[key]map[string]struct{})
	for i := range subs {
		s := &subs[i]
		if !s.Accepted() {
			continue
		}
		k := key{userID: s.UserID, language: SimplifyLanguage(s.Language)}
		problems, ok := solved[k]
		if !ok {
			problems = make(map[string]struct{})
			solved[k] = problems
		}
		problems[s.ProblemID] = struct{}{}
	}

	out := make([]stats.LanguageCount, 0, len(solved))
	for k, problems := range solved {
		out = append(out, stats.LanguageCount{
			UserID:             k.userID,
			SimplifiedLanguage: k.language,
			ProblemCount:       int64(len(problems)),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].SimplifiedLanguage < out[j].SimplifiedLanguage
	})
	return out
}

// RatedProblemIDs returns the problems that appear in at least one rated contest.
func RatedProblemIDs(contests []crawl.Contest, links []crawl.ContestProblem) map[string]struct{} {
	rated := make(map[string]struct{})
	for i := range contests {
		if contests[i].Rated() {
			rated[contests[i].ID] = struct{}{}
		}
	}
	problems := make(map[string]struct{})
	for _, link := range links {
		if _, ok := rated[link.ContestID]; ok {
			problems[link.ProblemID] = struct{}{}
		}
	}
	return problems
}

// RatedPointSums sums, per user, the best point earned on each rated problem.
func RatedPointSums(subs []crawl.Submission, ratedProblems map[string]struct{}) []stats.RatedPointSum {
	best := make(map[userProblem]float64)
	for i := range subs {
		s := &subs[i]
		if !s.Accepted() {
			continue
		}
		if _, ok := ratedProblems[s.ProblemID]; !ok {
			continue
		}
		k := userProblem{userID: s.UserID, problemID: s.ProblemID}
		if p, ok := best[k]; !ok || s.Point > p {
			best[k] = s.Point
		}
	}

	sums := make(map[string]float64)
	for k, p := range best {
		sums[k.userID] += p
	}
	out := make([]stats.RatedPointSum, 0, len(sums))
	for user, sum := range sums {
		out = append(out, stats.RatedPointSum{UserID: user, PointSum: sum})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// jstDay maps epoch seconds to a day index on the JST calendar.
func jstDay(epochSecond int64) int64 {
	shifted := epochSecond + jstOffsetSeconds
	day := shifted / secondsPerDay
	if shifted%secondsPerDay < 0 {
		day--
	}
	return day
}

// Streaks returns the longest run of consecutive JST days on which each user solved a problem
// for the first time.
func Streaks(subs []crawl.Submission) []stats.Streak {
	firstAC := make(map[userProblem]int64)
	for i := range subs {
		s := &subs[i]
		if !s.Accepted() {
			continue
		}
		k := userProblem{userID: s.UserID, problemID: s.ProblemID}
		if e, ok := firstAC[k]; !ok || s.EpochSecond < e {
			firstAC[k] = s.EpochSecond
		}
	}

	days := make(map[string]map[int64]struct{})
	for k, epoch := range firstAC {
		set, ok := days[k.userID]
		if !ok {
			set = make(map[int64]struct{})
			days[k.userID] = set
		}
		set[jstDay(epoch)] = struct{}{}
	}

	out := make([]stats.Streak, 0, len(days))
	for user, set := range days {
		out = append(out, stats.Streak{UserID: user, Streak: longestRun(set)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func longestRun(set map[int64]struct{}) int64 {
	sorted := make([]int64, 0, len(set))
	for d := range set {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var longest, current int64
	for i, d := range sorted {
		if i > 0 && d == sorted[i-1]+1 {
			current++
		} else {
			current = 1
		}
		if current > longest {
			longest = current
		}
	}
	return longest
}

// recordCandidate turns an accepted submission into a record of the given kind, or reports
// false when the submission is not eligible.
func recordCandidate(kind stats.RecordKind, s *crawl.Submission, starts map[string]int64) (stats.SolutionRecord, bool) {
	rec := stats.SolutionRecord{ProblemID: s.ProblemID, ContestID: s.ContestID, SubmissionID: s.ID}
	switch kind {
	case stats.RecordFirst:
		start, ok := starts[s.ContestID]
		if !ok || s.EpochSecond <= start {
			return rec, false
		}
		rec.Metric = s.ID
	case stats.RecordFastest:
		if s.ExecutionTime == nil {
			return rec, false
		}
		rec.Metric = *s.ExecutionTime
	default:
		rec.Metric = s.Length
	}
	return rec, true
}

// MergeRecords folds candidate submissions into the stored winners of one record kind. It
// returns the full merged table and the winners that differ from stored, both ordered by
// problem id.
func MergeRecords(
	kind stats.RecordKind,
	stored []stats.SolutionRecord,
	candidates []crawl.Submission,
	contests []crawl.Contest,
) (merged, changed []stats.SolutionRecord) {
	starts := make(map[string]int64, len(contests))
	for i := range contests {
		starts[contests[i].ID] = contests[i].StartEpochSecond
	}

	winners := make(map[string]stats.SolutionRecord, len(stored))
	for _, r := range stored {
		winners[r.ProblemID] = r
	}
	dirty := make(map[string]struct{})
	for i := range candidates {
		s := &candidates[i]
		if !s.Accepted() {
			continue
		}
		rec, ok := recordCandidate(kind, s, starts)
		if !ok {
			continue
		}
		if cur, ok := winners[rec.ProblemID]; ok && !rec.Beats(cur) {
			continue
		}
		winners[rec.ProblemID] = rec
		dirty[rec.ProblemID] = struct{}{}
	}

	merged = make([]stats.SolutionRecord, 0, len(winners))
	for _, r := range winners {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProblemID < merged[j].ProblemID })

	changed = make([]stats.SolutionRecord, 0, len(dirty))
	for _, r := range merged {
		if _, ok := dirty[r.ProblemID]; ok {
			changed = append(changed, r)
		}
	}
	return merged, changed
}
