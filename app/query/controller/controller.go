package controller

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/rank"
	"go.uber.org/zap"
)

type Controller struct {
	Logger  *zap.Logger
	Service *rank.Service
	// Ping checks the backing store for /readyz.
	Ping func(ctx context.Context) error
}

func NewController(logger *zap.Logger, service *rank.Service, ping func(ctx context.Context) error) *Controller {
	return &Controller{Logger: logger, Service: service, Ping: ping}
}

// WithCORS allows read-only cross-origin access.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the rank routes.
func (c *Controller) NewRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }).Methods(http.MethodGet)
	r.HandleFunc("/readyz", c.HandleReady).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/rank/{table}", c.HandleRank).Methods(http.MethodGet)
	v1.HandleFunc("/ranking/{table}", c.HandleRanking).Methods(http.MethodGet)
	v1.HandleFunc("/users/{user}/rank/{table}", c.HandleUserRank).Methods(http.MethodGet)
	v1.HandleFunc("/languages", c.HandleLanguages).Methods(http.MethodGet)

	return r
}

func (c *Controller) HandleReady(w http.ResponseWriter, r *http.Request) {
	if c.Ping != nil {
		if err := c.Ping(r.Context()); err != nil {
			c.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "errored", "error": "store unavailable"})
			return
		}
	}
	c.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response
func (c *Controller) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		c.Logger.Debug("write response", zap.Error(err))
	}
}

// writeError writes an error response
func (c *Controller) writeError(w http.ResponseWriter, statusCode int, message string) {
	c.writeJSON(w, statusCode, map[string]string{"error": message})
}
