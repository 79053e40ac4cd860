package api

import (
	"net/http"

	"github.com/argushq/argus/internal/service"
)

type stageSpecRequest struct {
	Name       string `json:"name"`
	PromptName string `json:"prompt_name"`
	PromptText string `json:"prompt_text"`
	Model      string `json:"model"`
}

type createPipelineRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Stages      []stageSpecRequest `json:"stages"`
}

func (s *Server) createPipeline(w http.ResponseWriter, r *http.Request) {
	var req createPipelineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stages := make([]service.StageSpec, 0, len(req.Stages))
	for _, st := range req.Stages {
		stages = append(stages, service.StageSpec{
			Name:       st.Name,
			PromptName: st.PromptName,
			PromptText: st.PromptText,
			Model:      st.Model,
		})
	}
	pipe, err := s.pipelines.Create(r.Context(), s.caller(r), service.CreatePipelineRequest{
		Name:        req.Name,
		Description: req.Description,
		Stages:      stages,
	})
	if err != nil {
		s.writeServiceError(w, err, "failed to create pipeline")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"pipeline": toPipelineDTO(pipe)})
}

func (s *Server) listPipelines(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultListLimit, maxListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	pipes, err := s.pipelines.List(r.Context(), includeArchived, limit, offset)
	if err != nil {
		s.writeServiceError(w, err, "failed to list pipelines")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pipelines": toPipelineDTOs(pipes)})
}

func (s *Server) getPipeline(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "pipeline_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pipe, err := s.pipelines.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "failed to load pipeline")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pipeline": toPipelineDTO(pipe)})
}

func (s *Server) archivePipeline(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "pipeline_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.pipelines.Archive(r.Context(), s.caller(r), id); err != nil {
		s.writeServiceError(w, err, "failed to archive pipeline")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}
