// Package server provides the HTTP API: health, summaries, backup
// download, and asynchronous post processing.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/reelsheet/reelsheet/internal/model"
	"github.com/reelsheet/reelsheet/pkg/backup"
	rserrors "github.com/reelsheet/reelsheet/pkg/errors"
	"github.com/reelsheet/reelsheet/pkg/ledger"
	"github.com/reelsheet/reelsheet/pkg/lifecycle"
	"github.com/reelsheet/reelsheet/pkg/pipeline"
)

// Server handles HTTP requests.
type Server struct {
	processor *pipeline.Processor
	backup    *backup.CSVBackup
	ledger    *ledger.Ledger
	jobs      sync.Map // jobID -> *Job
	mux       *http.ServeMux
	logger    *slog.Logger

	// Lifecycle, when set, tracks jobs as in-flight work so shutdown can
	// drain them. While draining, /health reports it and /api/process
	// refuses new jobs.
	Lifecycle *lifecycle.ShutdownManager
}

// Job tracks one asynchronous processing request.
type Job struct {
	ID        string           `json:"id"`
	Status    string           `json:"status"` // pending, running, completed, failed
	PostURL   string           `json:"post_url"`
	StartTime time.Time        `json:"start_time"`
	EndTime   *time.Time       `json:"end_time,omitempty"`
	Result    *pipeline.Result `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// NewServer creates the HTTP server. The ledger is optional; without it
// /api/summary falls back to backup-file counts.
func NewServer(processor *pipeline.Processor, bk *backup.CSVBackup, led *ledger.Ledger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		processor: processor,
		backup:    bk,
		ledger:    led,
		mux:       http.NewServeMux(),
		logger:    logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures HTTP handlers.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/summary", s.handleSummary)
	s.mux.HandleFunc("/api/download", s.handleDownload)
	s.mux.HandleFunc("/api/process", s.handleProcess)
	s.mux.HandleFunc("/api/job/", s.handleJob)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth reports liveness and, during shutdown, the drain state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Lifecycle != nil && s.Lifecycle.IsDraining() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "draining",
			"in_flight": s.Lifecycle.InFlightCount(),
		})
		return
	}
	jsonResponse(w, map[string]string{"status": "ok"})
}

// handleSummary returns run and item aggregates.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.ledger != nil {
		summary, err := s.ledger.Summarize(r.Context())
		if err != nil {
			s.logger.Error("server.summary.failed", "error", err)
			jsonError(w, "summary unavailable", http.StatusInternalServerError)
			return
		}
		jsonResponse(w, summary)
		return
	}

	count, err := s.backup.Count()
	if err != nil {
		jsonError(w, "summary unavailable", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]interface{}{"total_items": count})
}

// handleDownload serves the backup CSV.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	path := s.backup.Path()
	n, err := s.backup.Count()
	if err != nil || n == 0 {
		http.Error(w, "No backup file yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

// processRequest is the POST /api/process payload.
type processRequest struct {
	URL       string   `json:"url"`
	OriginLat *float64 `json:"origin_lat,omitempty"`
	OriginLng *float64 `json:"origin_lng,omitempty"`
}

// handleProcess starts a pipeline run in the background and returns the
// job ID immediately.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if !model.IsValidReelURL(req.URL) {
		jsonError(w, "Not a recognized reel or post URL", http.StatusBadRequest)
		return
	}
	if s.Lifecycle != nil && !s.Lifecycle.StartRun() {
		jsonError(w, "Shutting down, not accepting new work", http.StatusServiceUnavailable)
		return
	}

	job := &Job{
		ID:        fmt.Sprintf("job-%d", time.Now().UnixNano()),
		Status:    "pending",
		PostURL:   req.URL,
		StartTime: time.Now(),
	}
	s.jobs.Store(job.ID, job)

	go s.runJob(job, req)

	w.WriteHeader(http.StatusAccepted)
	jsonResponse(w, map[string]string{
		"job_id": job.ID,
		"status": "started",
	})
}

// runJob executes the pipeline for a queued job. The in-flight slot
// claimed by handleProcess is released when the job finishes.
func (s *Server) runJob(job *Job, req processRequest) {
	if s.Lifecycle != nil {
		defer s.Lifecycle.EndRun()
	}
	job.Status = "running"

	result, err := s.processor.Process(context.Background(), req.URL, req.OriginLat, req.OriginLng)
	now := time.Now()
	job.EndTime = &now
	job.Result = result

	if err != nil {
		job.Status = "failed"
		job.Error = rserrors.UserMessage(err, 500)
		s.logger.Error("server.job.failed", "job", job.ID, "error", err)
		return
	}
	job.Status = "completed"
}

// handleJob returns job status.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Path[len("/api/job/"):]
	if jobID == "" {
		jsonError(w, "Job ID required", http.StatusBadRequest)
		return
	}

	v, ok := s.jobs.Load(jobID)
	if !ok {
		jsonError(w, "Job not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, v.(*Job))
}

// Helper functions

func jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
