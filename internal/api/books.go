package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vampirenirmal/bookforge/internal/core"
	"github.com/vampirenirmal/bookforge/internal/domain/book"
	"github.com/vampirenirmal/bookforge/internal/jobs"
)

const maxRequestBytes = 8 << 20

// CreateBookResponse is returned when a book job is accepted.
type CreateBookResponse struct {
	JobID     string      `json:"job_id"`
	ProjectID string      `json:"project_id"`
	Status    jobs.Status `json:"status"`
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req book.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	for _, c := range req.Characters {
		// Server-side paths are never read on behalf of a remote caller.
		if c.ImagePath != "" {
			s.Error(w, http.StatusBadRequest, "character "+c.Name+": image_path is not accepted, send image_data")
			return
		}
	}

	job, err := s.runner.Submit(r.Context(), req)
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		s.Error(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("submit failed", "error", err)
		s.Error(w, http.StatusInternalServerError, "failed to start book")
		return
	}

	s.Success(w, http.StatusAccepted, CreateBookResponse{
		JobID:     job.ID,
		ProjectID: job.ProjectID,
		Status:    job.Status,
	})
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := s.jobs.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list jobs failed", "error", err)
		s.Error(w, http.StatusInternalServerError, "failed to list books")
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}
	s.Success(w, http.StatusOK, list)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.Success(w, http.StatusOK, job)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if job.Status != jobs.StatusSucceeded || job.Document == "" {
		s.Error(w, http.StatusConflict, "document not ready: job is "+string(job.Status))
		return
	}
	http.ServeFile(w, r, job.Document)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*jobs.Job, bool) {
	id := chi.URLParam(r, "id")
	job, err := s.jobs.Get(r.Context(), id)
	if errors.Is(err, core.ErrNotFound) {
		s.Error(w, http.StatusNotFound, "book not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("get job failed", "job_id", id, "error", err)
		s.Error(w, http.StatusInternalServerError, "failed to load book")
		return nil, false
	}
	return job, true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}
