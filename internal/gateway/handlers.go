package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/soyeahso/depot/internal/plugin"
	"github.com/soyeahso/depot/internal/store"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Version string         `json:"version"`
	Uptime  string         `json:"uptime"`
	Clients []ClientInfo   `json:"clients"`
	Plugins map[string]int `json:"plugins"` // kind plural → count
}

// HistoryResponse is returned by GET /api/history.
type HistoryResponse struct {
	Runs []store.Run `json:"runs"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeLookupError maps registry errors onto HTTP statuses.
func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, plugin.ErrPluginNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int, len(plugin.Kinds))
	for _, k := range plugin.Kinds {
		if v, ok := s.loader.View(k); ok {
			counts[k.Plural()] = v.Len()
		}
	}
	var uptime time.Duration
	if !s.startedAt.IsZero() {
		uptime = time.Since(s.startedAt).Truncate(time.Second)
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Version: s.version,
		Uptime:  uptime.String(),
		Clients: s.clients.List(),
		Plugins: counts,
	})
}

// view resolves the {kind} path segment, writing a 404 when it is unknown.
func (s *Server) view(w http.ResponseWriter, r *http.Request) (plugin.View, bool) {
	kind, ok := plugin.ParseKind(r.PathValue("kind"))
	if !ok {
		handleNotFound(w, r)
		return nil, false
	}
	return s.loader.View(kind)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, v.Snapshot())
}

func (s *Server) handleGetByName(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	d, err := v.Describe(r.PathValue("name"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleGetByType(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	d, err := v.DescribeType(r.PathValue("type"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	removed, err := s.loader.Remove(v.Kind(), name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.log.Info().Str("kind", string(v.Kind())).Str("name", name).Bool("removed", removed).Msg("plugin removal requested")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	kind := v.Kind()
	root := s.roots[kind]
	if root == "" {
		writeError(w, http.StatusConflict, "no plugin root configured for "+kind.Plural())
		return
	}

	report, err := s.loader.Reload(r.Context(), kind, root)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.runs != nil {
		if err := s.runs.Record(r.Context(), report); err != nil {
			s.log.Warn().Err(err).Str("id", report.ID).Msg("failed to record discovery run")
		}
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "discovery history is not recorded")
		return
	}

	q := r.URL.Query()
	kind := q.Get("kind")
	if kind != "" {
		k, ok := plugin.ParseKind(kind)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown plugin kind: "+kind)
			return
		}
		kind = string(k)
	}
	limit := 20
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.runs.List(r.Context(), kind, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Runs: runs})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}
