// Package control serves the progress of a running blast over HTTP so a
// detached display can poll it and request an abort.
package control

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/pure-golang/mailblast/blast"
	"github.com/pure-golang/mailblast/httpserver/middleware"
	"github.com/pure-golang/mailblast/logger"
)

// Run is the part of *blast.Coordinator the handler needs.
type Run interface {
	Snapshot() blast.Snapshot
	Workers() []blast.WorkerState
	RunID() string
	Abort()
}

type Status struct {
	RunID               string         `json:"run_id"`
	Label               string         `json:"label"`
	Total               int            `json:"total"`
	Sent                int            `json:"sent"`
	Remaining           int            `json:"remaining"`
	ActiveConnections   int            `json:"active_connections"`
	Reconnects          int            `json:"reconnects"`
	Failures            int            `json:"failures"`
	Rate                float64        `json:"rate"`
	AvgLatencyMs        int64          `json:"avg_latency_ms"`
	ETASeconds          float64        `json:"eta_seconds"`
	EstimatedCompletion *time.Time     `json:"estimated_completion,omitempty"`
	Running             bool           `json:"running"`
	Done                bool           `json:"done"`
	Aborted             bool           `json:"aborted"`
	Workers             []WorkerStatus `json:"workers"`
}

type WorkerStatus struct {
	Index    int    `json:"index"`
	Account  string `json:"account"`
	Assigned int    `json:"assigned"`
	Sent     int    `json:"sent"`
	Retries  int    `json:"retries"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// NewHandler returns the control API:
//
//	GET  /status  progress snapshot with per-worker state
//	POST /abort   request a cooperative abort
func NewHandler(run Run, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	log = log.WithGroup("control")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, status(run))
	})
	mux.HandleFunc("POST /abort", func(w http.ResponseWriter, r *http.Request) {
		run.Abort()
		logger.FromContext(r.Context()).Info("abort requested over control api", "run_id", run.RunID())
		writeJSON(w, r, http.StatusAccepted, map[string]string{"run_id": run.RunID(), "status": "aborting"})
	})

	return middleware.Monitoring(log)(middleware.Recovery(mux))
}

func status(run Run) Status {
	snap := run.Snapshot()
	st := Status{
		RunID:             run.RunID(),
		Label:             snap.Label(),
		Total:             snap.Total,
		Sent:              snap.Sent,
		Remaining:         snap.Remaining,
		ActiveConnections: snap.ActiveConnections,
		Reconnects:        snap.Reconnects,
		Failures:          snap.Failures,
		Rate:              snap.Rate,
		AvgLatencyMs:      snap.AvgLatency.Milliseconds(),
		ETASeconds:        snap.ETA.Seconds(),
		Running:           snap.Running,
		Done:              snap.Done,
		Aborted:           snap.Aborted,
		Workers:           []WorkerStatus{},
	}
	if !snap.EstimatedCompletion.IsZero() {
		t := snap.EstimatedCompletion
		st.EstimatedCompletion = &t
	}
	for _, ws := range run.Workers() {
		w := WorkerStatus{
			Index:    ws.Index,
			Account:  ws.Account,
			Assigned: ws.Assigned,
			Sent:     ws.Sent,
			Retries:  ws.Retries,
			Done:     ws.Done,
		}
		if ws.Err != nil {
			w.Error = ws.Err.Error()
		}
		st.Workers = append(st.Workers, w)
	}
	return st
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContextWithErr(r.Context(), err).Warn("failed to write response")
	}
}
