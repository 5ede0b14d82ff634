package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robofleet/orctl/internal/models"
	"github.com/robofleet/orctl/internal/trigger"
)

// runRequest is the JSON body for POST /api/runs.
type runRequest struct {
	Process      string   `json:"process"`
	Folder       string   `json:"folder"`
	Robots       []string `json:"robots,omitempty"`
	Machine      string   `json:"machine,omitempty"`
	Count        int      `json:"count,omitempty"`
	Priority     string   `json:"priority,omitempty"`
	Input        string   `json:"input,omitempty"`
	Wait         *bool    `json:"wait,omitempty"` // default true
	TimeoutSec   int      `json:"timeout_seconds,omitempty"`
	PollInterval int      `json:"poll_interval_seconds,omitempty"`
}

// CreateRun starts the trigger flow in the background and returns the run ID.
func (s *Server) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Process == "" {
		writeError(w, http.StatusBadRequest, "process is required")
		return
	}
	if req.Folder == "" {
		writeError(w, http.StatusBadRequest, "folder is required")
		return
	}
	if req.Input != "" && !json.Valid([]byte(req.Input)) {
		writeError(w, http.StatusBadRequest, "input must be valid JSON")
		return
	}

	opts := trigger.Options{
		Process:      req.Process,
		Folder:       req.Folder,
		Robots:       req.Robots,
		Machine:      req.Machine,
		Count:        req.Count,
		Priority:     req.Priority,
		Input:        req.Input,
		Wait:         req.Wait == nil || *req.Wait,
		Timeout:      s.Timeout,
		PollInterval: s.PollInterval,
	}
	if req.TimeoutSec > 0 {
		opts.Timeout = time.Duration(req.TimeoutSec) * time.Second
	}
	if req.PollInterval > 0 {
		opts.PollInterval = time.Duration(req.PollInterval) * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := s.Runs.Create(req.Process, req.Folder, cancel)

	go func() {
		defer cancel()
		run.AppendLog(fmt.Sprintf("Triggering %q in folder %q on %s", req.Process, req.Folder, s.Target.Name))
		result, err := s.Launcher.Launch(ctx, opts, run.AppendLog)
		if result != nil {
			run.SetJobs(jobSummaries(result))
		}
		switch {
		case err != nil:
			run.AppendLog("ERROR: " + err.Error())
			run.Fail(err.Error())
		case result.Outcome == trigger.OutcomeTimedOut:
			run.Fail("timed out waiting for jobs")
		case result.Outcome == trigger.OutcomeJobsFailed:
			run.Fail("one or more jobs failed")
		default:
			run.Complete()
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID})
}

func jobSummaries(result *trigger.Result) []models.JobSummary {
	summaries := make([]models.JobSummary, 0, len(result.Jobs))
	for _, j := range result.Jobs {
		summaries = append(summaries, models.JobSummary{
			ID:    j.ID,
			Key:   j.Key,
			State: j.State,
			Info:  j.Info,
		})
	}
	return summaries
}

func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Runs.List())
}

func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run := s.Runs.Get(id)
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// CancelRun stops a waiting run. Jobs already submitted keep running on the
// Orchestrator side; only local polling stops.
func (s *Server) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run := s.Runs.Get(id)
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if run.CurrentStatus() != models.RunStatusRunning {
		writeError(w, http.StatusConflict, "run is not running")
		return
	}
	run.Cancel()
	run.AppendLog("CANCELLED: polling stopped by user")
	writeJSON(w, http.StatusOK, map[string]string{"status": models.RunStatusCancelled})
}
