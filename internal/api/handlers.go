package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/mux"

	"vidsight/internal/analysis"
	"vidsight/internal/jobs"
	"vidsight/internal/logging"
	"vidsight/internal/orchestrator"
	"vidsight/internal/report"
)

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SourceURL) == "" {
		s.writeError(w, http.StatusBadRequest, "source_url is required")
		return
	}
	if _, err := analysis.ParseVideoID(req.SourceURL); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported source URL: %v", err))
		return
	}

	job, err := s.store.Create(r.Context(), req.SourceURL, req.Options)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("source_url", job.SourceURL))
	s.writeJSON(w, http.StatusAccepted, FromJob(job, s.graph.Steps()))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []jobs.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := jobs.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}

	list, err := s.store.ListByStatus(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := JobListResponse{Jobs: make([]Job, 0, len(list))}
	for _, job := range list {
		resp.Jobs = append(resp.Jobs, FromJob(job, s.graph.Steps()))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, FromJob(job, s.graph.Steps()))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	err := s.orchestrator.Cancel(r.Context(), jobID)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
	case errors.Is(err, jobs.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, orchestrator.ErrJobFinished):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	if job.Status != jobs.StatusCompleted || len(job.Result) == 0 {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("job is %s; no result available", job.Status))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(job.Result)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	if job.Status != jobs.StatusCompleted || len(job.Result) == 0 {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("job is %s; nothing to export", job.Status))
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "json"
	}
	switch format {
	case "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID+"-report.json"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(job.Result)
	case "markdown", "md":
		var rep report.Report
		if err := json.Unmarshal(job.Result, &rep); err != nil {
			s.writeError(w, http.StatusInternalServerError, "stored result is not a valid report")
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID+"-report.md"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(report.Markdown(rep)))
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported export format %q", format))
	}
}

// handleEvents streams a job's event feed as server-sent events. A snapshot
// of the job's current state is sent first so late subscribers are not left
// waiting for a stream that already ended.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before the snapshot read. Events published between the two
	// land in the subscription instead of falling into a gap.
	sub := s.hub.Subscribe(mux.Vars(r)["id"])
	defer sub.Close()

	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, "snapshot", FromJob(job, s.graph.Steps()))
	flusher.Flush()
	if job.Status.Terminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			writeSSE(w, string(ev.Type), ev)
			flusher.Flush()
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts := make(map[string]int, len(stats))
	for status, n := range stats {
		counts[string(status)] = n
	}

	var steps []StepHealth
	for _, h := range s.orchestrator.Health(r.Context()) {
		steps = append(steps, StepHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}

	s.writeJSON(w, http.StatusOK, StatusResponse{
		Running: true,
		PID:     os.Getpid(),
		Jobs:    counts,
		Steps:   steps,
	})
}

func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (*jobs.Job, bool) {
	jobID := mux.Vars(r)["id"]
	job, err := s.store.GetByID(r.Context(), jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return job, true
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
