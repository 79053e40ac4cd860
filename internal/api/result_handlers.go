package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/argushq/argus/internal/service"
	"github.com/argushq/argus/internal/store"
)

var errInvalidMinConfidence = errors.New("invalid min_confidence")

type resultEntryRequest struct {
	StageID      uuid.UUID `json:"stage_id"`
	ImageID      uuid.UUID `json:"image_id"`
	ResponseText string    `json:"response_text"`
	Confidence   float64   `json:"confidence"`
	LatencyMS    int64     `json:"latency_ms"`
	Model        string    `json:"model"`
}

type recordResultsRequest struct {
	Results []resultEntryRequest `json:"results"`
}

// recordResults is the worker ingest path for model outputs: a batch of
// per-image per-stage records for one job.
func (s *Server) recordResults(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseUUIDParam(r, "job_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req recordResultsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries := make([]service.ResultEntry, 0, len(req.Results))
	for _, e := range req.Results {
		entries = append(entries, service.ResultEntry{
			StageID:      e.StageID,
			ImageID:      e.ImageID,
			ResponseText: e.ResponseText,
			Confidence:   e.Confidence,
			LatencyMS:    e.LatencyMS,
			Model:        e.Model,
		})
	}
	results, err := s.results.Record(r.Context(), jobID, entries)
	if err != nil {
		s.writeServiceError(w, err, "failed to record results")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"results": toResultDTOs(results)})
}

func (s *Server) listJobResults(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseUUIDParam(r, "job_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultListLimit, maxListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter, err := parseResultFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results, err := s.results.ListByJob(r.Context(), jobID, filter, limit, offset)
	if err != nil {
		s.writeServiceError(w, err, "failed to list results")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": toResultDTOs(results)})
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "result_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.results.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "failed to load result")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": toResultDTO(result)})
}

func (s *Server) getValidation(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "result_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := s.validations.GetByResult(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "failed to load validation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"validation": toValidationDTO(v)})
}

// computeValidation recomputes the quality metrics synchronously instead of
// waiting for the background pool.
func (s *Server) computeValidation(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "result_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validations.Compute(r.Context(), id); err != nil {
		s.writeServiceError(w, err, "failed to compute validation")
		return
	}
	v, err := s.validations.GetByResult(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "failed to load validation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"validation": toValidationDTO(v)})
}

type reviewRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

func (s *Server) reviewResult(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "result_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validations.Review(r.Context(), s.caller(r), id, req.Approve, req.Note); err != nil {
		s.writeServiceError(w, err, "failed to review result")
		return
	}
	v, err := s.validations.GetByResult(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "failed to load validation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"validation": toValidationDTO(v)})
}

// listValidations serves the review queue; status defaults to needs_review.
func (s *Server) listValidations(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultListLimit, maxListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := store.ValidationNeedsReview
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status = store.ValidationStatus(raw)
	}
	vs, err := s.validations.ListByStatus(r.Context(), status, limit, offset)
	if err != nil {
		s.writeServiceError(w, err, "failed to list validations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"validations": toValidationDTOs(vs)})
}

type embeddingEntryRequest struct {
	ContentType string    `json:"content_type"`
	ContentID   uuid.UUID `json:"content_id"`
	Vector      []float32 `json:"vector"`
	Model       string    `json:"model"`
}

type upsertEmbeddingsRequest struct {
	Embeddings []embeddingEntryRequest `json:"embeddings"`
}

// upsertEmbeddings ingests vectors the external AI provider computed for
// images and result texts.
func (s *Server) upsertEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req upsertEmbeddingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries := make([]service.EmbeddingEntry, 0, len(req.Embeddings))
	for _, e := range req.Embeddings {
		entries = append(entries, service.EmbeddingEntry{
			ContentType: store.ContentType(e.ContentType),
			ContentID:   e.ContentID,
			Vector:      e.Vector,
			Model:       e.Model,
		})
	}
	n, err := s.embeddings.Upsert(r.Context(), entries)
	if err != nil {
		s.writeServiceError(w, err, "failed to upsert embeddings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"upserted": n})
}

func parseResultFilter(r *http.Request) (store.ResultFilter, error) {
	var filter store.ResultFilter
	stageID, err := parseOptionalUUID(r, "stage_id")
	if err != nil {
		return store.ResultFilter{}, err
	}
	filter.StageID = stageID
	imageID, err := parseOptionalUUID(r, "image_id")
	if err != nil {
		return store.ResultFilter{}, err
	}
	filter.ImageID = imageID
	if raw := strings.TrimSpace(r.URL.Query().Get("min_confidence")); raw != "" {
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil || val < 0 || val > 1 {
			return store.ResultFilter{}, errInvalidMinConfidence
		}
		filter.MinConfidence = &val
	}
	return filter, nil
}
