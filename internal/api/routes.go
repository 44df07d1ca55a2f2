package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/homehub/hubctl/internal/audit"
)

// RegisterRoutes registers the v1 endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	apiV1 := "/api/v1"

	mux.HandleFunc(apiV1+"/health", s.handleHealth)
	mux.HandleFunc(apiV1+"/commands", s.handleCommands)
	mux.HandleFunc(apiV1+"/state", s.handleState)
	mux.HandleFunc(apiV1+"/recover", s.handleRecover)
	mux.HandleFunc(apiV1+"/catalog", s.handleCatalog)
	mux.HandleFunc(apiV1+"/telemetry", s.handleTelemetry)
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	WriteError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
		fmt.Sprintf("Only %s method is allowed", method), nil)
	return false
}

// commandRequest is the body of POST /commands.
type commandRequest struct {
	Command string `json:"command"`
	Action  string `json:"action,omitempty"`
	// Wait holds the response until the command has run.
	Wait bool `json:"wait,omitempty"`
}

type commandResponse struct {
	Seq      uint64 `json:"seq"`
	Command  string `json:"command"`
	Action   string `json:"action,omitempty"`
	Category string `json:"category"`
	Outcome  string `json:"outcome,omitempty"`
}

// handleCommands handles POST /commands.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if s.deps.Orchestrator == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "Orchestrator not available", nil)
		return
	}

	var req commandRequest
	if err := decodeStrict(r.Body, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		writeErr(w, r, fmt.Errorf("command is required: %w", ErrBadRequest))
		return
	}

	ctx := audit.WithOrigin(r.Context(), "api:"+CorrelationID(r.Context()))
	ticket, err := s.deps.Orchestrator.Submit(ctx, req.Command, req.Action)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	resp := commandResponse{
		Seq:      ticket.Command.Seq,
		Command:  ticket.Command.Name,
		Action:   ticket.Command.Action,
		Category: ticket.Command.Category.String(),
	}
	if !req.Wait {
		WriteStatus(w, r, http.StatusAccepted, resp)
		return
	}

	outcome, err := ticket.Wait(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	resp.Outcome = outcome.String()
	WriteSuccess(w, r, resp)
}

func decodeStrict(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("malformed JSON or unknown fields: %v: %w", err, ErrBadRequest)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("trailing data after JSON object: %w", ErrBadRequest)
	}
	return nil
}

// handleState handles GET /state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if s.deps.Orchestrator == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "Orchestrator not available", nil)
		return
	}
	snap, err := s.deps.Orchestrator.Snapshot(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	WriteSuccess(w, r, snap)
}

// handleRecover handles POST /recover.
func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if s.deps.Orchestrator == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "Orchestrator not available", nil)
		return
	}
	if err := s.deps.Orchestrator.Recover(r.Context()); err != nil {
		writeErr(w, r, err)
		return
	}
	s.logger.Warn("recover requested", zap.String("correlationId", CorrelationID(r.Context())))
	WriteSuccess(w, r, map[string]bool{"recovered": true})
}

// handleCatalog handles GET /catalog.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	c := s.deps.Catalog
	if c == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "Catalog not available", nil)
		return
	}

	type entry struct {
		Alias    string   `json:"alias"`
		ID       string   `json:"id"`
		Name     string   `json:"name"`
		Commands []string `json:"commands,omitempty"`
	}
	activities := make([]entry, 0, len(c.Activities))
	for _, k := range c.ActivityKeys() {
		a := c.Activities[k]
		activities = append(activities, entry{Alias: k, ID: a.ID, Name: a.Name})
	}
	devices := make([]entry, 0, len(c.Devices))
	for _, k := range c.DeviceKeys() {
		d := c.Devices[k]
		devices = append(devices, entry{Alias: k, ID: d.ID, Name: d.Name, Commands: d.Commands})
	}
	audio := make(map[string]string, len(c.AudioCommands))
	for _, k := range c.AudioKeys() {
		audio[k] = c.AudioCommands[k]
	}

	WriteSuccess(w, r, map[string]any{
		"activities":      activities,
		"activityAliases": c.ActivityAliases,
		"devices":         devices,
		"audioCommands":   audio,
		"audioDevice":     c.AudioDevice,
	})
}

// handleTelemetry handles GET /telemetry.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if s.deps.Telemetry == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "Telemetry not available", nil)
		return
	}
	// The stream outlives the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	if err := s.deps.Telemetry.Subscribe(r.Context(), w, r); err != nil {
		s.logger.Debug("telemetry subscription ended", zap.Error(err))
	}
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	// A disconnected hub is not unhealthy: the client reconnects on the
	// next command.
	hubState := "unknown"
	if s.deps.Hub != nil {
		hubState = s.deps.Hub.State().String()
	}
	healthy := s.deps.Orchestrator != nil

	health := map[string]any{
		"status":    "ok",
		"uptimeSec": time.Since(s.startTime).Seconds(),
		"hub":       hubState,
	}
	if !healthy {
		health["status"] = "degraded"
		WriteError(w, r, http.StatusServiceUnavailable, "SERVICE_DEGRADED", "Orchestrator or hub link unavailable", health)
		return
	}
	WriteSuccess(w, r, health)
}
