package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleGetOperation returns a batch operation by id. Dashboards poll
// this after a restart or a missed WebSocket push; records expire with
// the ledger TTL.
func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	op, ok := s.ledger.Get(id)
	if !ok {
		writeNotFound(w, "operation not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, op)
}
