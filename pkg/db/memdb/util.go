package memdb

import (
	"sort"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/crawl"
)

func sortSubmissions(subs []crawl.Submission) {
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
}
