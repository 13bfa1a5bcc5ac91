package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetglass/fleetglass-core/internal/command"
	"github.com/fleetglass/fleetglass-core/internal/telemetry"
)

// toggleRequest is the body for POST /devices/{id}/toggle.
type toggleRequest struct {
	TargetStatus string `json:"targetStatus"`
}

// batchToggleRequest is the body for POST /devices/batch-toggle.
type batchToggleRequest struct {
	DeviceIDs    []string `json:"deviceIds"`
	TargetStatus string   `json:"targetStatus"`
}

// handleToggle dispatches a single toggle command.
//
// The dispatch is optimistic: the handler returns 202 as soon as the
// command is on the fabric, and the outcome arrives over the WebSocket
// stream (or shows up in the next snapshot). A device targeted by a
// still-processing batch is rejected with 409 so interleaved toggles
// don't race the batch outcome.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !telemetry.ValidStatus(telemetry.DeviceStatus(req.TargetStatus)) {
		writeBadRequest(w, "targetStatus must be a valid device status")
		return
	}

	if s.ledger.ActiveForDevice(deviceID) {
		writeConflict(w, "device is part of a batch operation still processing")
		return
	}

	commandID, _, err := s.dispatcher.Send(deviceID, req.TargetStatus, s.cmdTimeout)
	switch {
	case errors.Is(err, command.ErrDeviceNotFound):
		writeNotFound(w, "device not found: "+deviceID)
		return
	case errors.Is(err, command.ErrTransportUnavailable):
		writeUnavailable(w, "command fabric unavailable")
		return
	case err != nil:
		s.logger.Error("toggle dispatch failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "dispatch failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"commandId":    commandID,
		"deviceId":     deviceID,
		"targetStatus": req.TargetStatus,
	})
}

// handleBatchToggle dispatches one toggle per listed device under a
// shared batch id and returns the operation in its processing state.
func (s *Server) handleBatchToggle(w http.ResponseWriter, r *http.Request) {
	if s.batch == nil {
		writeUnavailable(w, "batch dispatch not configured")
		return
	}

	var req batchToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !telemetry.ValidStatus(telemetry.DeviceStatus(req.TargetStatus)) {
		writeBadRequest(w, "targetStatus must be a valid device status")
		return
	}

	op, err := s.batch.SendBatch(req.DeviceIDs, req.TargetStatus, s.cmdTimeout)

	var missing *command.MissingDevicesError
	switch {
	case errors.As(err, &missing):
		writeJSON(w, http.StatusNotFound, Error{
			Status:  http.StatusNotFound,
			Code:    ErrCodeNotFound,
			Message: missing.Error(),
		})
		return
	case errors.Is(err, command.ErrEmptyBatch),
		errors.Is(err, command.ErrBatchTooLarge),
		errors.Is(err, command.ErrDuplicateDevices):
		writeBadRequest(w, err.Error())
		return
	case errors.Is(err, command.ErrTransportUnavailable):
		writeUnavailable(w, "command fabric unavailable")
		return
	case err != nil:
		s.logger.Error("batch dispatch failed", "devices", len(req.DeviceIDs), "error", err)
		writeInternalError(w, "batch dispatch failed")
		return
	}

	writeJSON(w, http.StatusAccepted, op)
}
