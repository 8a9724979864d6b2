// Package httpapi exposes the REST surface: record ingestion, dashboard
// aggregates and the AI chat endpoint.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"sitecheck/analytics"
	"sitecheck/chat"
	"sitecheck/store"
)

type Server struct {
	st     *store.Store
	engine *analytics.Engine
	chat   *chat.Service
	log    *logrus.Logger
}

func NewServer(st *store.Store, engine *analytics.Engine, chatSvc *chat.Service, log *logrus.Logger) *Server {
	return &Server{st: st, engine: engine, chat: chatSvc, log: log}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/projects", s.handleListProjects)

		r.Post("/acceptance", s.handleUpsertAcceptance)
		r.Get("/acceptance", s.handleListAcceptance)
		r.Get("/acceptance/{id}", s.handleGetAcceptance)
		r.Post("/acceptance/{id}/verify", s.handleVerifyAcceptance)

		r.Post("/issues", s.handleUpsertIssue)
		r.Get("/issues", s.handleListIssues)
		r.Get("/issues/{id}", s.handleGetIssue)
		r.Post("/issues/{id}/close", s.handleCloseIssue)

		r.Post("/actions", s.handleAddAction)
		r.Get("/actions/{targetType}/{targetID}", s.handleListActions)

		r.Get("/dashboard/summary", s.handleSummary)
		r.Get("/dashboard/focus", s.handleFocus)
		r.Post("/dashboard/backfill", s.handleBackfill)

		r.Post("/ai/chat", s.handleChat)
		r.Get("/ai/status", s.handleAIStatus)
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"status":  ww.Status(),
			"elapsed": time.Since(start).Round(time.Millisecond).String(),
		}).Info("http request")
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, store.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		s.log.WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errors.Join(store.ErrInvalidInput, err)
	}
	return nil
}
