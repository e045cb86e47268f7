package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/entrhq/webpilot/pkg/config"
	"github.com/entrhq/webpilot/pkg/supervisor"
	"github.com/entrhq/webpilot/pkg/types"
)

const maxRunBodyBytes int64 = 64 << 10

// Response texts of POST /agent/run.
const (
	StatusRunStarted = "Agent run started."
	StatusRunBusy    = "An agent is already running."
)

type runResponse struct {
	Status string `json:"status"`
	Task   string `json:"task,omitempty"`
	RunID  string `json:"run_id,omitempty"`
}

type statusResponse struct {
	Running   bool       `json:"running"`
	RunID     string     `json:"run_id,omitempty"`
	Task      string     `json:"task,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Observers int        `json:"observers"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, s.assets, "index.html")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, config.DisplayNames())
}

func (s *Server) handleProviderModels(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := config.LookupProvider(id)
	if !ok {
		respondStatus(w, http.StatusNotFound, fmt.Sprintf("unknown provider: %s", id))
		return
	}
	models := p.Models
	if models == nil {
		models = []string{}
	}
	respondJSON(w, http.StatusOK, models)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Observers: s.hub.Count()}
	if run := s.sup.Current(); run != nil {
		started := run.StartedAt
		resp.Running = true
		resp.RunID = run.ID
		resp.Task = run.Request.Task
		resp.StartedAt = &started
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req types.RunRequest
	if status, err := decodeJSONBody(w, r, &req, maxRunBodyBytes); err != nil {
		respondStatus(w, status, err.Error())
		return
	}
	s.applyDefaults(&req)

	run, err := s.sup.Start(req)
	switch {
	case errors.Is(err, supervisor.ErrRunInProgress):
		respondStatus(w, http.StatusConflict, StatusRunBusy)
	case errors.Is(err, supervisor.ErrShuttingDown):
		respondStatus(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		respondStatus(w, http.StatusBadRequest, err.Error())
	default:
		respondJSON(w, http.StatusOK, runResponse{
			Status: StatusRunStarted,
			Task:   run.Request.Task,
			RunID:  run.ID,
		})
	}
}

// applyDefaults fills request fields the UI omitted from the server config.
func (s *Server) applyDefaults(req *types.RunRequest) {
	if req.Provider == "" {
		req.Provider = s.cfg.LLM.DefaultProvider
	}
	if req.Temperature == nil {
		t := s.cfg.LLM.Temperature
		req.Temperature = &t
	}
}

func setJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

// respondJSON sends payload as JSON with the given status.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	setJSONHeaders(w)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondStatus sends {"status": msg}, the shape the UI renders for both
// success and failure.
func respondStatus(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, runResponse{Status: msg})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) (int, error) {
	if r.Body == nil {
		return http.StatusBadRequest, errors.New("request body required")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return http.StatusRequestEntityTooLarge, fmt.Errorf("request body too large (max %d bytes)", maxBytes)
		case errors.Is(err, io.EOF):
			return http.StatusBadRequest, errors.New("request body required")
		default:
			return http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err)
		}
	}
	return 0, nil
}
