package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus exposition
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/snapshot", s.handleSnapshot)

		r.Route("/devices", func(r chi.Router) {
			r.Post("/batch-toggle", s.handleBatchToggle)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/toggle", s.handleToggle)
				r.Get("/history", s.handleDeviceHistory)
			})
		})

		r.Get("/system/history", s.handleSystemHistory)
		r.Get("/operations/{id}", s.handleGetOperation)

		// WebSocket (path configurable via websocket.path)
		wsPath := s.wsCfg.Path
		if wsPath == "" {
			wsPath = "/ws"
		}
		r.Get(wsPath, s.handleWebSocket)
	})

	return r
}

// handleHealth returns the health of the server and its backing services.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}

	if s.mqtt != nil {
		if err := s.mqtt.HealthCheck(ctx); err != nil {
			checks["mqtt"] = err.Error()
			healthy = false
		} else {
			checks["mqtt"] = "ok"
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}

// handleStatus returns a quick operational summary for dashboards.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	fabricConnected := s.mqtt != nil && s.mqtt.IsConnected()

	writeJSON(w, http.StatusOK, map[string]any{
		"version":          s.version,
		"fabricConnected":  fabricConnected,
		"trackedDevices":   s.telemetry.DeviceCount(),
		"pendingCommands":  s.dispatcher.PendingCount(),
		"connectedClients": s.clientCount(),
	})
}

// handleSnapshot returns the current merged fleet snapshot.
func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.telemetry.Snapshot())
}

func (s *Server) clientCount() int {
	if s.hub == nil {
		return 0
	}
	return s.hub.ClientCount()
}
