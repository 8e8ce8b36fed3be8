package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/CharanSaiVaddi/purrctl/internal/job"
	"github.com/CharanSaiVaddi/purrctl/internal/storage"
)

// Store is what the development API serves from.
type Store interface {
	storage.JobStore
	storage.Catalog
}

// Server is a development stand-in for the remote jobs API. It stores job
// documents and returns them; something else has to move jobs to a terminal
// status (an operator, or a backend worker using the update path).
type Server struct {
	store Store
	log   *logrus.Entry
}

func New(store Store, log *logrus.Entry) *Server {
	return &Server{store: store, log: log}
}

// Routes mounts the API at the root and under the stage prefixes the hosted
// API uses (/prod, /dev, /test).
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(authorize)

	api := func(r chi.Router) {
		r.Post("/jobs", s.handlePostJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/repos", s.handleGetRepos)
		r.Post("/repos", s.handlePostRepo)
		r.Post("/rasters", s.handlePostRasters)
		r.Post("/search", s.handleSearch)
	}
	api(r)
	for _, stage := range []string{"/prod", "/dev", "/test"} {
		r.Route(stage, api)
	}
	return r
}

// POST /jobs creates a job, or updates it when the body carries an id.
func (s *Server) handlePostJob(w http.ResponseWriter, r *http.Request) {
	var body any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	doc, ok := body.(map[string]any)
	if !ok {
		writeError(w, http.StatusBadRequest, "Job data must be a single object")
		return
	}
	if _, ok := doc["ttl"]; !ok {
		writeError(w, http.StatusBadRequest, "TTL attribute is required")
		return
	}

	snap := job.Snapshot(doc)
	if id := snap.ID(); id != "" {
		updated, err := s.store.UpdateJob(id, snap)
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		if err != nil {
			s.log.WithError(err).WithField("job_id", id).Error("job update failed")
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.log.WithFields(logrus.Fields{"job_id": id, "status": updated.Status()}).Info("job updated")
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Job updated successfully",
			"id":      id,
			"ttl":     doc["ttl"],
		})
		return
	}

	saved, err := s.store.SaveJob(snap)
	if err != nil {
		s.log.WithError(err).Error("job create failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.WithFields(logrus.Fields{"job_id": saved.ID(), "directive": saved["directive"]}).Info("job created")
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Job created successfully",
		"id":      saved.ID(),
		"ttl":     saved["ttl"],
	})
}

// GET /jobs/{id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.store.GetJobByID(id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GET /jobs?status=pending
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		writeError(w, http.StatusBadRequest, "status query parameter is required")
		return
	}
	docs, err := s.store.ListByStatus(job.Status(status))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []job.Snapshot{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// authorize only checks that a token is present; validating it belongs to
// the hosted gateway.
func authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
