package controller

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/rank"
	"go.uber.org/zap"
)

type rankResponse struct {
	Table    stats.MetricTable `json:"table"`
	Language string            `json:"language,omitempty"`
	Value    float64           `json:"value"`
	Rank     int64             `json:"rank"`
}

type rankingResponse struct {
	Table    stats.MetricTable `json:"table"`
	Language string            `json:"language,omitempty"`
	Offset   int               `json:"offset"`
	Limit    int               `json:"limit"`
	Data     []rank.Entry      `json:"data"`
}

type userRankResponse struct {
	Table    stats.MetricTable `json:"table"`
	Language string            `json:"language,omitempty"`
	rank.Entry
}

// query resolves the {table} route variable and the language parameter, writing the error
// response itself when they are invalid.
func (c *Controller) query(w http.ResponseWriter, r *http.Request) (stats.MetricQuery, bool) {
	q, err := rank.Query(mux.Vars(r)["table"], r.URL.Query().Get("language"))
	if err != nil {
		c.writeRankError(w, err)
		return stats.MetricQuery{}, false
	}
	return q, true
}

// HandleRank answers how many users have a strictly greater metric than value.
func (c *Controller) HandleRank(w http.ResponseWriter, r *http.Request) {
	q, ok := c.query(w, r)
	if !ok {
		return
	}
	value, err := parseValue(r)
	if err != nil {
		c.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := c.Service.Rank(r.Context(), q, value)
	if err != nil {
		c.writeRankError(w, err)
		return
	}
	c.writeJSON(w, http.StatusOK, rankResponse{Table: q.Table, Language: q.Language, Value: value, Rank: n})
}

// HandleRanking returns one page of a ranking.
func (c *Controller) HandleRanking(w http.ResponseWriter, r *http.Request) {
	q, ok := c.query(w, r)
	if !ok {
		return
	}
	spec, err := parseRangeSpec(r)
	if err != nil {
		c.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := c.Service.Range(r.Context(), q, spec.Offset, spec.Limit)
	if err != nil {
		c.writeRankError(w, err)
		return
	}
	c.writeJSON(w, http.StatusOK, rankingResponse{
		Table:    q.Table,
		Language: q.Language,
		Offset:   spec.Offset,
		Limit:    spec.Limit,
		Data:     entries,
	})
}

// HandleUserRank returns a user's value and rank, read from one snapshot.
func (c *Controller) HandleUserRank(w http.ResponseWriter, r *http.Request) {
	q, ok := c.query(w, r)
	if !ok {
		return
	}
	entry, err := c.Service.UserRank(r.Context(), q, mux.Vars(r)["user"])
	if err != nil {
		c.writeRankError(w, err)
		return
	}
	c.writeJSON(w, http.StatusOK, userRankResponse{Table: q.Table, Language: q.Language, Entry: entry})
}

func (c *Controller) HandleLanguages(w http.ResponseWriter, r *http.Request) {
	langs, err := c.Service.Languages(r.Context())
	if err != nil {
		c.writeRankError(w, err)
		return
	}
	c.writeJSON(w, http.StatusOK, map[string][]string{"languages": langs})
}

func (c *Controller) writeRankError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rank.ErrUnknownTable), errors.Is(err, rank.ErrUserNotRanked):
		c.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rank.ErrLanguageRequired):
		c.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, rank.ErrCacheEmpty):
		c.writeError(w, http.StatusServiceUnavailable, "rankings not available yet")
	default:
		c.Logger.Error("rank query failed", zap.Error(err))
		c.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
