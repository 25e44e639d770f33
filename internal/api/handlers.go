package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storyreel/renderd/internal/models"
	"github.com/storyreel/renderd/internal/pipeline"
	"github.com/storyreel/renderd/internal/registry"
	"github.com/storyreel/renderd/internal/services"
	"github.com/storyreel/renderd/internal/store"
)

type Handler struct {
	registry   *registry.Registry
	pipeline   *pipeline.Pipeline
	projects   *store.Store
	transcribe *services.TranscriptionService // nil when no OpenAI key is configured
	outputDir  string
}

func NewHandler(reg *registry.Registry, pipe *pipeline.Pipeline, projects *store.Store, transcribe *services.TranscriptionService, outputDir string) *Handler {
	return &Handler{
		registry:   reg,
		pipeline:   pipe,
		projects:   projects,
		transcribe: transcribe,
		outputDir:  outputDir,
	}
}

// StartRender handles POST /api/render
func (h *Handler) StartRender(w http.ResponseWriter, r *http.Request) {
	var req models.RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if reason := req.Validate(); reason != "" {
		respondError(w, http.StatusBadRequest, reason)
		return
	}

	jobID := h.pipeline.Submit(req)
	respondJSON(w, http.StatusOK, models.RenderResponse{
		Success: true,
		JobID:   jobID,
	})
}

// RenderStatus handles GET /api/render/{jobID}/status
func (h *Handler) RenderStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, ok := h.registry.Get(jobID)
	if !ok {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}

	respondJSON(w, http.StatusOK, models.JobStatusResponse{
		Success:  true,
		Status:   job.Status,
		Progress: job.Progress,
		Message:  job.Message,
		VideoURL: job.VideoURL,
		Error:    job.Error,
	})
}

// ServeVideo handles GET /api/video/{projectID}/{renderID} and streams
// the local backup copy of a finished render.
func (h *Handler) ServeVideo(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	renderID := chi.URLParam(r, "renderID")

	// Both identifiers become filesystem path segments; anything that
	// could climb out of the output directory is rejected outright.
	if !safePathSegment(projectID) || !safePathSegment(renderID) {
		respondError(w, http.StatusBadRequest, "Invalid video path")
		return
	}

	path := filepath.Join(h.outputDir, projectID, renderID+".mp4")
	if _, err := os.Stat(path); err != nil {
		respondError(w, http.StatusNotFound, "Video not found")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	http.ServeFile(w, r, path)
}

// CreateProject handles POST /api/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	project, err := h.projects.Create(req.Name)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, project)
}

// ListProjects handles GET /api/projects
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list projects")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"projects": projects,
	})
}

// GetProject handles GET /api/projects/{id}
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	project, found, err := h.projects.Get(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load project")
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}
	respondJSON(w, http.StatusOK, project)
}

// Transcribe handles POST /api/transcribe
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	if h.transcribe == nil {
		respondError(w, http.StatusServiceUnavailable, "Transcription is not configured")
		return
	}

	var req models.TranscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AudioURL == "" {
		respondError(w, http.StatusBadRequest, "audio_url is required")
		return
	}

	text, words, err := h.transcribe.TranscribeURL(r.Context(), req.AudioURL, req.Language)
	if err != nil {
		respondError(w, http.StatusBadGateway, "Transcription failed")
		return
	}
	respondJSON(w, http.StatusOK, models.TranscribeResponse{
		Success: true,
		Words:   words,
		Text:    text,
	})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// safePathSegment reports whether s can be used as a single directory
// or file name component: no traversal, no separators.
func safePathSegment(s string) bool {
	return s != "" && s != "." &&
		!strings.Contains(s, "..") &&
		!strings.ContainsAny(s, `/\`)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
