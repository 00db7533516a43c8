package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/muurk/mypv/internal/coordinator"
	"github.com/muurk/mypv/internal/device"
	"github.com/muurk/mypv/internal/logging"
	"github.com/muurk/mypv/internal/snapshot"
	"github.com/muurk/mypv/internal/version"
)

const maxRequestBody = 1 << 10

type errorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDeviceError maps a write failure onto a gateway status.
func writeDeviceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case device.IsTimeout(err):
		status = http.StatusGatewayTimeout
	case device.IsUnreachable(err), device.IsBadStatus(err), device.IsMalformedBody(err):
		status = http.StatusBadGateway
	case errors.Is(err, coordinator.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorResponse{Error: device.ShortMessage(err), Hint: device.Hint(err)})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	devices := make(map[string]string, len(s.devices))
	healthy := true
	for _, d := range s.devices {
		st := status(d.Snapshot())
		devices[d.Host()] = st
		if st == "stale" {
			healthy = false
		}
	}

	code := http.StatusOK
	overall := "ok"
	if !healthy {
		code = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, code, map[string]any{
		"status":            overall,
		"version":           version.Version,
		"devices":           devices,
		"websocket_clients": s.GetActiveConnections(),
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	out := make([]deviceSummary, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, summarize(d, d.Snapshot()))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	writeJSON(w, http.StatusOK, out)
}

// snapshotView is the JSON form of a snapshot
type snapshotView struct {
	deviceSummary
	Data           snapshot.Resource `json:"data"`
	Info           snapshot.Resource `json:"info"`
	Setup          snapshot.Resource `json:"setup"`
	DataFetchedAt  *time.Time        `json:"data_fetched_at,omitempty"`
	SetupFetchedAt *time.Time        `json:"setup_fetched_at,omitempty"`
	Failures       map[string]string `json:"failures,omitempty"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request, d Device) {
	snap := d.Snapshot()
	view := snapshotView{
		deviceSummary:  summarize(d, snap),
		Data:           snap.Data,
		Info:           snap.Info,
		Setup:          snap.Setup,
		DataFetchedAt:  timePtr(snap.DataFetchedAt),
		SetupFetchedAt: timePtr(snap.SetupFetchedAt),
	}
	if len(snap.Failures) > 0 {
		view.Failures = make(map[string]string, len(snap.Failures))
		for kind, err := range snap.Failures {
			view.Failures[kind.String()] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleEntities(w http.ResponseWriter, _ *http.Request, d Device) {
	writeJSON(w, http.StatusOK, statesFor(d, d.Snapshot()))
}

func (s *Server) handleBoost(w http.ResponseWriter, r *http.Request, d Device) {
	if err := d.TriggerBoost(r.Context()); err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type modeRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request, d Device) {
	var req modeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, `missing "enabled"`)
		return
	}

	if err := d.SetMode(r.Context(), *req.Enabled); err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"enabled": *req.Enabled})
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack hands the connection to the WebSocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.LogHTTPRequest(s.logger, r.RemoteAddr, r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
