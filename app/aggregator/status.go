package aggregator

import (
	"encoding/json"
	"net/http"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
	"go.uber.org/zap"
)

type tableStatus struct {
	Table      stats.Table `json:"table"`
	Mode       stats.Mode  `json:"mode,omitempty"`
	Rows       int         `json:"rows"`
	DurationMs int64       `json:"duration_ms"`
	Finished   string      `json:"finished,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type statusResponse struct {
	IngestStreamLen int64         `json:"ingest_stream_len"`
	Tables          []tableStatus `json:"tables"`
}

// handleStatus reports the ingest backlog and the last in-process recompute of every table.
func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	out := make([]tableStatus, 0, len(stats.AllTables))
	for _, table := range stats.AllTables {
		st := tableStatus{Table: table}
		if res, ok := a.Engine.Status(table); ok {
			st.Mode = res.Mode
			st.Rows = res.Rows
			st.DurationMs = res.Duration.Milliseconds()
			st.Finished = res.Finished.UTC().Format("2006-01-02T15:04:05Z")
			if res.Err != nil {
				st.Error = res.Err.Error()
			}
		}
		out = append(out, st)
	}
	resp := statusResponse{IngestStreamLen: -1, Tables: out}
	if a.Redis != nil {
		if n, err := a.Redis.IngestBacklog(r.Context()); err == nil {
			resp.IngestStreamLen = n
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.Logger.Warn("encode status", zap.Error(err))
	}
}
