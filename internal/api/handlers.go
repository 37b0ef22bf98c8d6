package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/herald/internal/command"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		Connection:    "unknown",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	if s.deps.Registry != nil {
		resp.Commands = s.deps.Registry.Load().Len()
	}
	if s.deps.State != nil {
		resp.Connection = string(s.deps.State.State())
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if s.deps.Registry == nil {
		s.writeError(w, http.StatusServiceUnavailable, "registry not available")
		return
	}
	reg := s.deps.Registry.Load()
	resp := CommandsResponse{Prefix: reg.Prefix(), Commands: []CommandInfo{}}

	category := r.URL.Query().Get("category")
	for _, d := range reg.Primaries() {
		if category != "" && d.Category != category {
			continue
		}
		resp.Commands = append(resp.Commands, commandInfo(d))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.deps.Registry == nil {
		s.writeError(w, http.StatusServiceUnavailable, "registry not available")
		return
	}
	name := chi.URLParam(r, "name")
	d, ok := s.deps.Registry.Load().Resolve(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "command not found: "+name)
		return
	}
	respondJSON(w, http.StatusOK, commandInfo(d))
}

func commandInfo(d *command.Descriptor) CommandInfo {
	info := CommandInfo{
		Name:        d.Name,
		Aliases:     d.Aliases,
		Category:    d.Category,
		Description: d.Description,
		Usage:       d.Usage,
		Cooldown:    d.CooldownSeconds(),
		Wait:        d.Wait,
		Source:      d.Source,
	}
	for _, p := range []struct {
		set  bool
		name string
	}{
		{d.RequiresOwner, "owner"},
		{d.RequiresAdmin, "admin"},
		{d.RequiresGroup, "group"},
		{d.RequiresPrivate, "private"},
		{d.RequiresBotAdmin, "bot_admin"},
	} {
		if p.set {
			info.Permissions = append(info.Permissions, p.name)
		}
	}
	return info
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reloader == nil {
		s.writeError(w, http.StatusServiceUnavailable, "reload not available")
		return
	}
	n, failures, err := s.deps.Reloader.Reload(r.Context())
	if err != nil {
		s.logger.Error("reload via API failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "reload failed: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, ReloadResponse{Commands: n, Failures: failures})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		s.writeError(w, http.StatusServiceUnavailable, "command history disabled")
		return
	}
	limit := defaultAuditLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}

	records, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read command history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read command history")
		return
	}
	resp := AuditResponse{Records: make([]AuditEntry, 0, len(records))}
	for _, rec := range records {
		resp.Records = append(resp.Records, AuditEntry{
			ID:         rec.ID,
			Command:    rec.Command,
			Sender:     rec.Sender,
			Chat:       rec.Chat,
			IsGroup:    rec.IsGroup,
			Outcome:    rec.Outcome,
			Reason:     rec.Reason,
			Error:      rec.Error,
			StartedAt:  rec.StartedAt,
			DurationMs: rec.Duration.Milliseconds(),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// respondJSON is a helper to write JSON responses.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
