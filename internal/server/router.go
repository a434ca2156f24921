package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/desertthunder/radiosync/internal/metrics"
	"github.com/desertthunder/radiosync/internal/shared"
)

// CheckpointReader is the read side of checkpoint.Store.
type CheckpointReader interface {
	Key() string
	Get(ctx context.Context) (time.Time, error)
	Transient() *time.Time
}

// RouterOptions holds the router's collaborators. Nil fields disable their routes.
type RouterOptions struct {
	Checkpoints CheckpointReader
	Status      *RunStatus
	Metrics     *metrics.Metrics
	Logger      *log.Logger
}

// NewRouter builds the status router.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	if opts.Logger != nil {
		r.Use(RequestLogger(opts.Logger))
	}
	if opts.Metrics != nil {
		r.Use(metrics.RequestMiddleware(opts.Metrics))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if opts.Checkpoints != nil {
		r.Get("/checkpoint", checkpointHandler(opts.Checkpoints))
	}
	if opts.Status != nil {
		r.Get("/runs/last", lastRunHandler(opts.Status))
	}
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler(func() {
			if opts.Checkpoints == nil {
				return
			}
			if ts, err := opts.Checkpoints.Get(context.Background()); err == nil {
				opts.Metrics.SetCheckpoint(ts)
			}
		}))
	}
	return r
}

type checkpointResponse struct {
	Key       string     `json:"key"`
	Durable   *time.Time `json:"durable"`
	Transient *time.Time `json:"transient,omitempty"`
}

func checkpointHandler(cp CheckpointReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := checkpointResponse{Key: cp.Key(), Transient: cp.Transient()}

		ts, err := cp.Get(r.Context())
		switch {
		case err == nil:
			resp.Durable = &ts
		case errors.Is(err, shared.ErrCheckpointNotFound):
		default:
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type lastRunResponse struct {
	Runs int         `json:"runs"`
	Last *RunSummary `json:"last"`
}

func lastRunHandler(status *RunStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, total, ok := status.Last()
		resp := lastRunResponse{Runs: total}
		if ok {
			summary := NewRunSummary(run)
			resp.Last = &summary
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
