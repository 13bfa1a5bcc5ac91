package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fleetglass/fleetglass-core/internal/history"
)

// historyMaxLimit caps how many samples one query may return.
const historyMaxLimit = 1000

// handleDeviceHistory returns persisted readings for one device,
// newest first. Supports ?limit= and ?since= (epoch milliseconds).
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history store not configured")
		return
	}

	deviceID := chi.URLParam(r, "id")
	limit, since, err := historyParams(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	samples, err := s.history.DeviceHistory(r.Context(), deviceID, limit, since)
	if errors.Is(err, history.ErrDeviceUnknown) {
		writeNotFound(w, "device not found: "+deviceID)
		return
	}
	if err != nil {
		s.logger.Error("device history query failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "history query failed")
		return
	}

	if samples == nil {
		samples = []history.DeviceSample{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deviceId": deviceID,
		"samples":  samples,
	})
}

// handleSystemHistory returns persisted fleet health samples, newest
// first. Supports ?limit= and ?since= (epoch milliseconds).
func (s *Server) handleSystemHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history store not configured")
		return
	}

	limit, since, err := historyParams(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	samples, err := s.history.SystemHistory(r.Context(), limit, since)
	if err != nil {
		s.logger.Error("system history query failed", "error", err)
		writeInternalError(w, "history query failed")
		return
	}

	if samples == nil {
		samples = []history.SystemSample{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"samples": samples,
	})
}

// historyParams parses the shared limit/since query parameters.
func historyParams(r *http.Request) (limit int, since int64, err error) {
	limit = 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		if limit > historyMaxLimit {
			limit = historyMaxLimit
		}
	}

	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || since < 0 {
			return 0, 0, errors.New("since must be a non-negative epoch millisecond timestamp")
		}
	}

	return limit, since, nil
}
