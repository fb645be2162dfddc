package crawler

// Mode selects how a contest's submission listing is walked.
type Mode string

const (
	// ModeWhole walks max_page down to 1 unconditionally. Used to seed cold contests.
	ModeWhole Mode = "whole"
	// ModeForward walks from page 1 and stops at the first overlapping page.
	ModeForward Mode = "forward"
	// ModeStreak walks from page 1 and stops after K consecutive overlapping pages.
	ModeStreak Mode = "streak"
)

// StopReason records why a walk ended.
type StopReason string

const (
	StopEmptyPage   StopReason = "empty_page"
	StopOverlap     StopReason = "overlap"
	StopStreak      StopReason = "overlap_streak"
	StopPageCeiling StopReason = "page_ceiling"
	StopMaxPage     StopReason = "max_page"
	StopCompleted   StopReason = "completed"
	StopCancelled   StopReason = "cancelled"
	StopStoreError  StopReason = "store_error"
)

// CrawlResult summarizes one contest walk.
type CrawlResult struct {
	ContestID    string
	Mode         Mode
	PagesFetched int
	Upserted     int
	// TouchedUsers are the distinct users with an accepted submission among the upserted rows,
	// plus the previous owners of accepted rows the walk overwrote.
	TouchedUsers []string
	Stop         StopReason
}

// CycleResult summarizes one pass of a crawl loop.
type CycleResult struct {
	Cycle        string
	CycleID      string
	Contests     int
	Failed       int
	Upserted     int
	TouchedUsers []string
}
