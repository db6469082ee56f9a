package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aatumaykin/stockpilot/internal/ledger"
)

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, errTypeInvalidRequest, err.Error())
		return
	}
	q := r.URL.Query()
	entries, err := s.ledger.List(r.Context(), ledger.Filter{
		AgentKind: q.Get("agentKind"),
		Name:      q.Get("taskName"),
		Limit:     limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, errTypeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries, "count": len(entries)})
}

func (s *Server) recentLogs(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days")
	if err != nil {
		writeError(w, http.StatusBadRequest, errTypeInvalidRequest, err.Error())
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, errTypeInvalidRequest, err.Error())
		return
	}
	entries, err := s.ledger.Recent(r.Context(), days, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errTypeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries, "count": len(entries)})
}

func (s *Server) logStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errTypeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getLog(w http.ResponseWriter, r *http.Request) {
	e, err := s.ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, http.StatusNotFound, errTypeNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, errTypeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, e)
}
