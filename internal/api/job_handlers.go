package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argushq/argus/internal/monitor"
	"github.com/argushq/argus/internal/service"
	"github.com/argushq/argus/internal/store"
)

type submitJobRequest struct {
	PipelineID uuid.UUID   `json:"pipeline_id"`
	LibraryID  uuid.UUID   `json:"library_id"`
	ImageIDs   []uuid.UUID `json:"image_ids"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PipelineID == uuid.Nil || req.LibraryID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "pipeline_id and library_id are required")
		return
	}
	job, err := s.jobs.Submit(r.Context(), s.caller(r), service.SubmitJobRequest{
		PipelineID: req.PipelineID,
		LibraryID:  req.LibraryID,
		ImageIDs:   req.ImageIDs,
	})
	if err != nil {
		s.writeServiceError(w, err, "failed to submit job")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"job": toJobDTO(job)})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultListLimit, maxListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var filter store.JobFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := store.JobStatus(raw)
		if !store.ValidJobStatus(status) {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = &status
	}
	pipelineID, err := parseOptionalUUID(r, "pipeline_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.PipelineID = pipelineID

	jobs, err := s.jobs.List(r.Context(), filter, limit, offset)
	if err != nil {
		s.writeServiceError(w, err, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": toJobDTOs(jobs)})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseUUIDParam(r, "job_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		s.writeServiceError(w, err, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": toJobDTO(job)})
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseUUIDParam(r, "job_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.monitor.CancelJob(r.Context(), jobID); err != nil {
		s.writeServiceError(w, err, "failed to cancel job")
		return
	}
	s.audit.Record(r.Context(), s.caller(r), "job.cancel", "job", jobID.String(), nil)
	writeJSON(w, http.StatusOK, map[string]string{
		"job_id": jobID.String(),
		"status": string(store.JobCanceled),
	})
}

func (s *Server) getJobSummary(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseUUIDParam(r, "job_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := s.monitor.Summary(r.Context(), jobID)
	if err != nil {
		s.writeServiceError(w, err, "failed to load job summary")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": toJobSummaryDTO(sum)})
}

func (s *Server) listJobStages(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseUUIDParam(r, "job_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stages, err := s.monitor.Stages(r.Context(), jobID)
	if err != nil {
		s.writeServiceError(w, err, "failed to list job stages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stages": toStageSummaryDTOs(stages)})
}

func (s *Server) listJobErrors(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseUUIDParam(r, "job_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultErrorsLimit, maxErrorsLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	errs, err := s.monitor.StageErrors(r.Context(), jobID, limit, offset)
	if err != nil {
		s.writeServiceError(w, err, "failed to list job errors")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": toStageErrorDTOs(errs)})
}

type stageEventRequest struct {
	Type        string     `json:"type"`
	DoneDelta   int64      `json:"done_delta"`
	FailedDelta int64      `json:"failed_delta"`
	ImageID     *uuid.UUID `json:"image_id"`
	Message     string     `json:"message"`
	Detail      string     `json:"detail"`
}

// recordStageEvent is the worker ingest path: one reported state transition,
// progress delta, or error against a (job, stage) pair.
func (s *Server) recordStageEvent(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseUUIDParam(r, "job_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stageID, err := parseUUIDParam(r, "stage_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req stageEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev := monitor.StageEvent{
		Type:        monitor.EventType(req.Type),
		DoneDelta:   req.DoneDelta,
		FailedDelta: req.FailedDelta,
		ImageID:     req.ImageID,
		Message:     req.Message,
		Detail:      req.Detail,
	}
	if err := s.monitor.RecordStageEvent(r.Context(), jobID, stageID, ev); err != nil {
		s.writeServiceError(w, err, "failed to record stage event")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// streamJobEvents serves the live update stream over SSE. Updates a slow
// client misses are dropped, not buffered without bound.
func (s *Server) streamJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseUUIDParam(r, "job_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.jobs.Get(r.Context(), jobID); err != nil {
		s.writeServiceError(w, err, "failed to load job")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := s.monitor.Subscribe(jobID)
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case u, open := <-sub.C:
			if !open {
				return
			}
			if err := writeSSE(w, u); err != nil {
				s.logger.Debug("sse write failed",
					zap.String("job_id", jobID.String()), zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, u monitor.Update) error {
	payload, err := json.Marshal(toJobUpdateDTO(u))
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", u.Kind, payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
