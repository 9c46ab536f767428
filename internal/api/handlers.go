package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/modhost/internal/display"
	"github.com/mattjoyce/modhost/internal/module"
)

const maxHistoryLimit = 500

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	pending := 0
	for _, c := range module.Categories() {
		if s.deps.Registry.State(c) != module.Done {
			pending++
		}
	}
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		BootID:        s.config.BootID,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		ModulesLoaded: len(s.deps.Modules.Modules()),
		Pending:       pending,
	})
}

// handleCategories handles GET /v1/categories.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats := module.Categories()
	out := make([]CategoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, s.category(c))
	}
	respondJSON(w, http.StatusOK, out)
}

// handleCategory handles GET /v1/categories/{category}.
func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	c, err := module.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.category(c))
}

func (s *Server) category(c module.Category) CategoryResponse {
	entries := s.deps.Registry.Entries(c)
	resp := CategoryResponse{
		Name:    c.String(),
		State:   s.deps.Registry.State(c).String(),
		Entries: make([]EntryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, EntryResponse{Name: e.Name, Origin: string(e.Origin)})
	}
	return resp
}

// handleModules handles GET /v1/modules.
func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	mods := s.deps.Modules.Modules()
	out := make([]ModuleResponse, 0, len(mods))
	for _, m := range mods {
		resp := ModuleResponse{ID: m.ID, Origin: string(m.Origin), Path: m.Path}
		if !m.LoadedAt.IsZero() {
			t := m.LoadedAt
			resp.LoadedAt = &t
		}
		out = append(out, resp)
	}
	respondJSON(w, http.StatusOK, out)
}

// handleModuleHistory handles GET /v1/modules/{id}/history?limit=N.
func (s *Server) handleModuleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		s.writeError(w, http.StatusNotFound, "load journal is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	id := chi.URLParam(r, "id")
	attempts, err := s.deps.History.Recent(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("failed to read load journal", "module", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read load journal")
		return
	}
	respondJSON(w, http.StatusOK, HistoryResponse{Module: id, Attempts: attempts})
}

// handleSubsystems handles GET /v1/subsystems.
func (s *Server) handleSubsystems(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Subsystems.Status())
}

// handleDisplay handles GET /v1/display.
func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	if s.deps.Display == nil {
		s.writeError(w, http.StatusNotFound, "display subsystem not configured")
		return
	}

	resp := DisplayResponse{Bound: s.deps.Display.Bound()}
	info, err := s.deps.Display.Ops().Query()
	switch {
	case errors.Is(err, display.ErrUnavailable):
		resp.Error = err.Error()
	case err != nil:
		s.logger.Error("display query failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "display query failed")
		return
	default:
		resp.Info = info
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
