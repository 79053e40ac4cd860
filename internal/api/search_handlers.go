package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/argushq/argus/internal/search"
	"github.com/argushq/argus/internal/store"
)

type searchWeightsRequest struct {
	Similarity float64 `json:"similarity"`
	Recency    float64 `json:"recency"`
	Quality    float64 `json:"quality"`
}

type searchRequest struct {
	Vector    []float32             `json:"vector"`
	Types     []string              `json:"types"`
	LibraryID *uuid.UUID            `json:"library_id"`
	JobID     *uuid.UUID            `json:"job_id"`
	Weights   *searchWeightsRequest `json:"weights"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	types := make([]store.ContentType, 0, len(req.Types))
	for _, t := range req.Types {
		types = append(types, store.ContentType(t))
	}
	sreq := search.Request{
		Vector:    req.Vector,
		Types:     types,
		LibraryID: req.LibraryID,
		JobID:     req.JobID,
		Limit:     req.Limit,
		Offset:    req.Offset,
	}
	if req.Weights != nil {
		sreq.Weights = &search.Weights{
			Similarity: req.Weights.Similarity,
			Recency:    req.Weights.Recency,
			Quality:    req.Weights.Quality,
		}
	}
	resp, err := s.search.Search(r.Context(), sreq)
	if err != nil {
		s.writeServiceError(w, err, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, toSearchResponseDTO(resp))
}
