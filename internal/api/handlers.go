package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/fanlink/internal/fan"
)

// defaultTransmissionLimit bounds history queries with no explicit limit.
const defaultTransmissionLimit = 50

// maxTransmissionLimit caps history queries regardless of the requested limit.
const maxTransmissionLimit = 500

// StateResponse is the fan state as exposed over HTTP.
type StateResponse struct {
	FanID     string   `json:"fan_id"`
	On        bool     `json:"on"`
	Speed     float64  `json:"speed"`
	Band      fan.Band `json:"band"`
	Connected bool     `json:"connected"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

// StateRequest is a partial state write. Absent fields are left unchanged.
type StateRequest struct {
	On    *bool    `json:"on,omitempty"`
	Speed *float64 `json:"speed,omitempty"`
}

// handleGetState returns the latest requested fan state.
func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stateResponse())
}

// handleSetState applies a partial state write to the fan.
//
// Speed is applied before power so that an "on at speed X" request
// settles into a single band transmission rather than two.
func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	var req StateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.On == nil && req.Speed == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "at least one of on, speed is required")
		return
	}

	if req.Speed != nil {
		if err := s.fc.SetSpeed(*req.Speed); err != nil {
			s.writeFanError(w, err)
			return
		}
	}
	if req.On != nil {
		if err := s.fc.SetOn(*req.On); err != nil {
			s.writeFanError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, s.stateResponse())
}

// handleListSignals returns the names of all catalogued IR signals.
func (s *Server) handleListSignals(w http.ResponseWriter, _ *http.Request) {
	if s.catalog == nil {
		writeJSON(w, http.StatusOK, map[string]any{"signals": []string{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"signals": s.catalog.Names()})
}

// handleGetSignal returns one catalogued signal, samples included.
func (s *Server) handleGetSignal(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeNotFound(w, "signal catalog not loaded")
		return
	}

	name := chi.URLParam(r, "name")
	sig, err := s.catalog.Get(name)
	if err != nil {
		writeNotFound(w, "unknown signal: "+name)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

// handleListTransmissions returns recent transmission log entries, newest first.
func (s *Server) handleListTransmissions(w http.ResponseWriter, r *http.Request) {
	if s.txLog == nil {
		writeJSON(w, http.StatusOK, map[string]any{"transmissions": []fan.TransmissionRecord{}})
		return
	}

	limit := defaultTransmissionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxTransmissionLimit {
		limit = maxTransmissionLimit
	}

	records, err := s.txLog.RecentTransmissions(r.Context(), s.fanID, limit)
	if err != nil {
		s.logger.Error("transmission history query failed", "error", err)
		writeInternalError(w, "querying transmission history")
		return
	}
	if records == nil {
		records = []fan.TransmissionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transmissions": records})
}

// handleMetrics returns link, engine, and WebSocket runtime statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{}

	if s.link != nil {
		ls := s.link.Stats()
		resp["link"] = map[string]any{
			"connected":        ls.Connected,
			"device":           ls.Device,
			"bytes_tx":         ls.BytesTx,
			"lines_rx":         ls.LinesRx,
			"errors_total":     ls.ErrorsTotal,
			"reconnects_total": ls.ReconnectsTotal,
		}
	}
	if s.engine != nil {
		es := s.engine.Stats()
		resp["engine"] = map[string]any{
			"transmissions_total":  es.TransmissionsTotal,
			"transmissions_failed": es.TransmissionsFailed,
			"chunks_tx":            es.ChunksTx,
			"retries_total":        es.RetriesTotal,
		}
	}
	if s.hub != nil {
		resp["websocket_clients"] = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, resp)
}

// stateResponse builds the state payload from the fan controller.
func (s *Server) stateResponse() StateResponse {
	st := s.fc.State()
	connected := false
	if s.link != nil {
		connected = s.link.Stats().Connected
	}

	resp := StateResponse{
		FanID:     s.fanID,
		On:        st.On,
		Speed:     st.Speed,
		Band:      s.fc.Band(),
		Connected: connected,
	}
	if !st.UpdatedAt.IsZero() {
		resp.UpdatedAt = st.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// writeFanError maps fan errors to HTTP responses.
func (s *Server) writeFanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fan.ErrNotConnected):
		writeUnavailable(w, "IR transmitter is not connected")
	case errors.Is(err, fan.ErrInvalidSpeed):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "speed must be between 0 and 100")
	default:
		s.logger.Error("fan command failed", "error", err)
		writeInternalError(w, "applying fan command")
	}
}
