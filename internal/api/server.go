// Package api provides the HTTP API for the colony simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lordpba/AEON/internal/engine"
	"github.com/lordpba/AEON/internal/environment"
	"github.com/lordpba/AEON/internal/events"
	"github.com/lordpba/AEON/internal/feed"
	"github.com/lordpba/AEON/internal/maintenance"
	"github.com/lordpba/AEON/internal/persistence"
	"github.com/lordpba/AEON/internal/resources"
)

// Server serves the colony state over HTTP.
type Server struct {
	Engine   *engine.Engine
	DB       *persistence.DB   // nil disables save/audit endpoints
	Hub      *feed.Hub         // nil disables the websocket feed
	Metrics  http.Handler      // nil disables /metrics
	Env      *environment.Model
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	httpSrv *http.Server
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	// Commands are cheap but stateful; one limiter keeps a stuck client
	// from hammering the control plane.
	commandLimiter := NewRateLimiter(120, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only — anyone can check in on the colony).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/resources", s.handleResources)
	mux.HandleFunc("/api/v1/forecast", s.handleForecast)
	mux.HandleFunc("/api/v1/components", s.handleComponents)
	mux.HandleFunc("/api/v1/queue", s.handleQueue)
	mux.HandleFunc("/api/v1/anomalies", s.handleAnomalies)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/events/audit", s.handleEventAudit)
	mux.HandleFunc("/api/v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/v1/saves", s.handleListSaves)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/allocate", s.adminOnly(RateLimitMiddleware(commandLimiter, s.handleAllocate)))
	mux.HandleFunc("/api/v1/repair", s.adminOnly(RateLimitMiddleware(commandLimiter, s.handleRepair)))
	mux.HandleFunc("/api/v1/repair/next", s.adminOnly(RateLimitMiddleware(commandLimiter, s.handleRepairNext)))
	mux.HandleFunc("/api/v1/repair/emergency", s.adminOnly(RateLimitMiddleware(commandLimiter, s.handleEmergencyRepair)))
	mux.HandleFunc("/api/v1/events/resolve", s.adminOnly(RateLimitMiddleware(commandLimiter, s.handleResolveEvent)))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/pause", s.adminOnly(s.handlePause))
	mux.HandleFunc("/api/v1/resume", s.adminOnly(s.handleResume))
	mux.HandleFunc("/api/v1/save", s.adminOnly(s.handleSave))
	mux.HandleFunc("/api/v1/restore", s.adminOnly(s.handleRestore))

	if s.Hub != nil {
		mux.HandleFunc("/api/v1/feed", s.Hub.ServeWS)
	}
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics)
	}

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Handler()}

	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins;
// localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no AEON_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

// writeError maps domain errors onto HTTP status codes; everything the
// simulation rejects cleanly comes back as a client error, not a 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, resources.ErrUnknownKind),
		errors.Is(err, maintenance.ErrUnknownComponent),
		errors.Is(err, events.ErrNotFound),
		errors.Is(err, persistence.ErrNoSaves):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, resources.ErrInsufficient),
		errors.Is(err, maintenance.ErrInsufficientBudget),
		errors.Is(err, engine.ErrInvalidState),
		errors.Is(err, engine.ErrIncompatibleState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Engine.Snapshot()

	stocks := make(map[string]string, len(snap.Resources))
	for _, res := range snap.Resources {
		stocks[string(res.Kind)] = fmt.Sprintf("%s %s", humanize.CommafWithDigits(res.Quantity, 1), res.Unit)
	}

	status := map[string]any{
		"colony":         snap.Colony,
		"sol":            snap.Clock.Sol,
		"local_time":     s.Engine.LocalTime(),
		"speed":          snap.Clock.Speed,
		"paused":         snap.Clock.Paused,
		"overall_health": snap.OverallHealth,
		"repair_queue":   len(snap.Queue),
		"resources":      stocks,
	}
	if s.Env != nil {
		status["environment"] = map[string]any{
			"dust_level":     s.Env.DustLevel(snap.Clock.Sol),
			"solar_activity": s.Env.SolarActivity(snap.Clock.Sol),
		}
	}
	writeJSON(w, status)
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Engine.Snapshot().Resources)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	// ?horizon=<sols> bounds the projection; absent or invalid means
	// unbounded.
	horizon, _ := strconv.ParseFloat(r.URL.Query().Get("horizon"), 64)
	writeJSON(w, s.Engine.Forecast(horizon))
}

func (s *Server) handleComponents(w http.ResponseWriter, r *http.Request) {
	type componentView struct {
		maintenance.Component
		Status string `json:"status"`
	}
	comps := s.Engine.Components()
	out := make([]componentView, 0, len(comps))
	for _, c := range comps {
		out = append(out, componentView{Component: c, Status: c.Status().String()})
	}
	writeJSON(w, out)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Engine.Queue())
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Engine.Anomalies())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("active") == "true" {
		writeJSON(w, s.Engine.ActiveEvents())
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	writeJSON(w, s.Engine.RecentEvents(limit))
}

func (s *Server) handleEventAudit(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	evs, err := s.DB.RecentEvents(limit)
	if err != nil {
		slog.Error("event audit query failed", "error", err)
		http.Error(w, "audit query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, evs)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Engine.Snapshot())
}

func (s *Server) handleListSaves(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	infos, err := s.DB.ListSaves(50)
	if err != nil {
		slog.Error("save listing failed", "error", err)
		http.Error(w, "save listing failed", http.StatusInternalServerError)
		return
	}
	if infos == nil {
		infos = []persistence.SaveInfo{}
	}
	writeJSON(w, infos)
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Kind   resources.Kind `json:"kind"`
		Amount float64        `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.Engine.AllocateResource(req.Kind, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"allocated": req.Amount, "kind": req.Kind})
}

func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ComponentID string `json:"component_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	taskID, err := s.Engine.ScheduleRepair(req.ComponentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"task_id": taskID, "component_id": req.ComponentID})
}

func (s *Server) handleRepairNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	c, ok := s.Engine.ServiceNextRepair()
	if !ok {
		writeJSON(w, map[string]any{"repaired": false})
		return
	}
	writeJSON(w, map[string]any{"repaired": true, "component": c})
}

func (s *Server) handleEmergencyRepair(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ComponentID string `json:"component_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.Engine.EmergencyRepair(req.ComponentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"component_id": req.ComponentID, "status": "repaired"})
}

func (s *Server) handleResolveEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.Engine.ResolveEvent(req.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"id": req.ID, "status": "resolved"})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := s.Engine.SetSpeed(req.Speed); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, map[string]float64{"speed": s.Engine.Speed()})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	s.Engine.Pause()
	writeJSON(w, map[string]bool{"paused": true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	s.Engine.Resume()
	writeJSON(w, map[string]bool{"paused": false})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	doc := s.Engine.Save()
	if err := s.DB.StoreSave(doc); err != nil {
		slog.Error("save failed", "error", err)
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"save_id": doc.ID, "sol": doc.Clock.Sol})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		SaveID string `json:"save_id"` // empty = latest
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	var (
		doc engine.SaveDocument
		err error
	)
	if req.SaveID == "" {
		doc, err = s.DB.LoadLatest()
	} else {
		doc, err = s.DB.LoadSave(req.SaveID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Engine.Restore(doc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"restored": doc.ID, "sol": doc.Clock.Sol})
}
