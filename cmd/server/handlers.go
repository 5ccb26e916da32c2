package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketpulse/internal/market"
	"marketpulse/internal/refresh"
	"marketpulse/internal/store"
)

const maxTickers = 100

// refresher is the part of the orchestrator the API needs.
type refresher interface {
	Request(ctx context.Context, input []string) (*refresh.Ticket, error)
	State() refresh.State
}

type api struct {
	store    *store.Store
	refresh  refresher
	breakers func() map[string]string
	timeout  time.Duration
	log      *zap.Logger
}

type snapshotResponse struct {
	UpdatedAt *time.Time            `json:"updated_at"`
	Version   uint64                `json:"version"`
	Records   []market.TickerRecord `json:"records"`
}

type refreshRequest struct {
	Tickers []string `json:"tickers"`
	Input   string   `json:"input"`
}

type refreshResponse struct {
	Accepted []string              `json:"accepted"`
	Pending  bool                  `json:"pending,omitempty"`
	Version  uint64                `json:"version"`
	Records  []market.TickerRecord `json:"records"`
}

type healthResponse struct {
	Status   string            `json:"status"`
	State    refresh.State     `json:"state"`
	Version  uint64            `json:"version"`
	Records  int               `json:"records"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

func (a *api) routes(maxBody int64) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/data", a.handleData)
	mux.HandleFunc("/api/quotes", a.handleQuotes)
	mux.HandleFunc("/api/refresh", a.handleRefresh)
	return a.logRequests(withJSONHeaders(withGzip(recoverPanic(a.log, limitBody(maxBody, mux)))))
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := a.store.Load()
	resp := healthResponse{Status: "ok", State: a.refresh.State(), Version: snap.Version, Records: snap.Len()}
	if a.breakers != nil {
		resp.Breakers = a.breakers()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleData returns the full snapshot.
func (a *api) handleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap := a.store.Load()
	writeJSON(w, http.StatusOK, snapshotResponse{
		UpdatedAt: updatedAt(snap),
		Version:   snap.Version,
		Records:   snap.Read(),
	})
}

// handleQuotes filters the cache without fetching anything.
func (a *api) handleQuotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query().Get("tickers")
	if q == "" {
		q = r.URL.Query().Get("symbols")
	}
	tickers := market.ParseTickers(q)
	if len(tickers) > maxTickers {
		writeError(w, http.StatusBadRequest, "too many tickers")
		return
	}
	snap := a.store.Load()
	writeJSON(w, http.StatusOK, snapshotResponse{
		UpdatedAt: updatedAt(snap),
		Version:   snap.Version,
		Records:   snap.Read(tickers...),
	})
}

// handleRefresh refetches the requested tickers, waits for the publish and
// returns the fresh records. Unknown tickers are dropped.
func (a *api) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body refreshRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	input := append([]string{body.Input}, body.Tickers...)
	if n := len(market.ParseTickers(input...)); n > maxTickers {
		writeError(w, http.StatusBadRequest, "too many tickers")
		return
	}

	ticket, err := a.refresh.Request(r.Context(), input)
	switch {
	case errors.Is(err, refresh.ErrQueueClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, "refresh not accepted")
		return
	case ticket == nil:
		writeJSON(w, http.StatusOK, refreshResponse{Accepted: []string{}, Version: a.store.Load().Version, Records: []market.TickerRecord{}})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()
	status, pending := http.StatusOK, false
	if err := ticket.Wait(ctx); errors.Is(err, refresh.ErrQueueClosed) {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	} else if err != nil {
		a.log.Info("refresh still running at response time", zap.String("run_id", ticket.ID), zap.Error(err))
		status, pending = http.StatusAccepted, true
	}
	snap := a.store.Load()
	writeJSON(w, status, refreshResponse{
		Accepted: ticket.Tickers,
		Pending:  pending,
		Version:  snap.Version,
		Records:  snap.Read(ticket.Tickers...),
	})
}

func updatedAt(s *store.Snapshot) *time.Time {
	if s.UpdatedAt.IsZero() {
		return nil
	}
	t := s.UpdatedAt
	return &t
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(msg)})
}
