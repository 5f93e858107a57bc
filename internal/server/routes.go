package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Schedules
	mux.HandleFunc("/api/schedules", s.handleSchedulesRoute)
	mux.HandleFunc("/api/schedules/", s.handleScheduleRoutes)

	// API routes - Runs
	mux.HandleFunc("/api/run/start", s.app.RunHandler.StartHandler)
	mux.HandleFunc("/api/run/stop", s.app.RunHandler.StopHandler)
	mux.HandleFunc("/api/status", s.app.RunHandler.StatusHandler)

	// API routes - Execution history
	mux.HandleFunc("/api/executions", s.app.HistoryHandler.ListHandler)
	mux.HandleFunc("/api/executions/", s.app.HistoryHandler.GetHandler)

	// API routes - Sync queue
	mux.HandleFunc("/api/sync/status", s.app.SyncQueueHandler.StatusHandler)
	mux.HandleFunc("/api/sync/process", s.app.SyncQueueHandler.ProcessHandler)
	mux.HandleFunc("/api/sync/failed", s.app.SyncQueueHandler.ClearFailedHandler)
	mux.HandleFunc("/api/sync/failed/retry", s.app.SyncQueueHandler.RetryFailedHandler)

	// API routes - Webhook notifications
	mux.HandleFunc("/api/webhook", s.app.WebhookHandler.ConfigHandler)
	mux.HandleFunc("/api/webhook/test", s.app.WebhookHandler.TestHandler)

	// API routes - Source mapping cache
	mux.HandleFunc("/api/mapping/refresh", s.app.MappingHandler.RefreshHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleSchedulesRoute routes /api/schedules requests (list and create)
func (s *Server) handleSchedulesRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.ScheduleHandler.ListHandler(w, r)
	case "POST":
		s.app.ScheduleHandler.CreateHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleScheduleRoutes routes /api/schedules/{id} requests and subpaths
func (s *Server) handleScheduleRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// POST /api/schedules/{id}/trigger
	if strings.HasSuffix(path, "/trigger") {
		s.app.ScheduleHandler.TriggerHandler(w, r)
		return
	}

	switch r.Method {
	case "GET":
		s.app.ScheduleHandler.GetHandler(w, r)
	case "PUT":
		s.app.ScheduleHandler.UpdateHandler(w, r)
	case "DELETE":
		s.app.ScheduleHandler.DeleteHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
