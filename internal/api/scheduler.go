package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aatumaykin/stockpilot/internal/cron"
	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/tasks"
)

type triggerReq struct {
	ActorID string `json:"actorId"`
}

type enabledReq struct {
	Enabled *bool `json:"enabled"`
}

type scheduleReq struct {
	ScheduleExpression string `json:"scheduleExpression"`
}

// writeTaskError maps scheduler and registry errors to a status code.
func (s *Server) writeTaskError(w http.ResponseWriter, r *http.Request, err error) {
	var herr *tasks.HandlerError
	switch {
	case errors.Is(err, tasks.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, errTypeNotFound, err.Error())
	case errors.Is(err, cron.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, errTypeInvalidSchedule, err.Error())
	case errors.Is(err, tasks.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, errTypeInvalidConfig, err.Error())
	case errors.As(err, &herr):
		writeError(w, http.StatusInternalServerError, errTypeHandler, err.Error())
	default:
		s.logger.ErrorCtx(r.Context(), "scheduler request failed", err, logger.Field{Key: "path", Value: r.URL.Path})
		writeError(w, http.StatusInternalServerError, errTypeInternal, err.Error())
	}
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	st, err := s.scheduler.Status(r.Context())
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	list, err := s.scheduler.Tasks(r.Context())
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": list, "count": len(list)})
}

func (s *Server) trigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "taskName")
	var req triggerReq
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, errTypeInvalidRequest, err.Error())
		return
	}

	res, err := s.scheduler.Trigger(r.Context(), name, req.ActorID)
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "taskName": name, "result": res})
}

func (s *Server) setEnabled(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "taskName")
	var req enabledReq
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, errTypeInvalidRequest, err.Error())
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, errTypeInvalidRequest, "enabled is required")
		return
	}

	var err error
	if *req.Enabled {
		err = s.scheduler.Enable(r.Context(), name)
	} else {
		err = s.scheduler.Disable(r.Context(), name)
	}
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "taskName": name, "enabled": *req.Enabled})
}

func (s *Server) setSchedule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "taskName")
	var req scheduleReq
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, errTypeInvalidRequest, err.Error())
		return
	}
	if req.ScheduleExpression == "" {
		writeError(w, http.StatusBadRequest, errTypeInvalidRequest, "scheduleExpression is required")
		return
	}

	if err := s.scheduler.Reschedule(r.Context(), name, req.ScheduleExpression); err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"taskName":           name,
		"scheduleExpression": req.ScheduleExpression,
	})
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "taskName")
	var partial map[string]any
	if err := decodeJSON(r, &partial, false); err != nil {
		writeError(w, http.StatusBadRequest, errTypeInvalidRequest, err.Error())
		return
	}
	if len(partial) == 0 {
		writeError(w, http.StatusBadRequest, errTypeInvalidRequest, "config must be a non-empty object")
		return
	}

	merged, err := s.scheduler.UpdateConfig(r.Context(), name, partial)
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "taskName": name, "config": merged})
}

func (s *Server) startScheduler(w http.ResponseWriter, r *http.Request) {
	// timers outlive the request
	if err := s.scheduler.Start(context.WithoutCancel(r.Context())); err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	s.status(w, r)
}

func (s *Server) stopScheduler(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Stop()
	s.status(w, r)
}
