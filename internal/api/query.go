package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aatumaykin/stockpilot/internal/agent"
	"github.com/aatumaykin/stockpilot/internal/agent/session"
)

// queryStatus maps an orchestrator result type to the response code.
func queryStatus(t agent.ResultType) int {
	switch t {
	case agent.TypeQuickQuery, agent.TypeAIResponse:
		return http.StatusOK
	case agent.TypeConfigError:
		return http.StatusServiceUnavailable
	case agent.TypeAPIError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req agent.Request
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, errTypeInvalidRequest, err.Error())
		return
	}

	res, err := s.queries.Process(r.Context(), req)
	if errors.Is(err, agent.ErrEmptyQuery) {
		writeError(w, http.StatusBadRequest, errTypeInvalidRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, string(agent.TypeError), err.Error())
		return
	}
	writeJSON(w, queryStatus(res.Type), res)
}

func (s *Server) clearConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationId")
	if err := s.queries.ClearConversation(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, errTypeNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, errTypeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "conversationId": id})
}
