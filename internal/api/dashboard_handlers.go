package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/argushq/argus/internal/store"
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

func (s *Server) dashboardOverview(w http.ResponseWriter, r *http.Request) {
	stats, err := s.dashboard.Overview(r.Context())
	if err != nil {
		s.writeServiceError(w, err, "failed to load overview")
		return
	}
	jobs := make(map[string]int64, len(stats.JobsByStatus))
	for status, count := range stats.JobsByStatus {
		jobs[string(status)] = count
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs_by_status": jobs,
		"library_count":  stats.LibraryCount,
		"image_count":    stats.ImageCount,
		"pipeline_count": stats.PipelineCount,
		"result_count":   stats.ResultCount,
		"recent_errors":  stats.RecentErrors,
		"running_stages": stats.RunningStages,
	})
}

func (s *Server) dashboardActivity(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultActivityLimit, maxActivityLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := s.dashboard.Activity(r.Context(), limit, offset)
	if err != nil {
		s.writeServiceError(w, err, "failed to load activity")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": toAuditEventDTOs(events)})
}

func (s *Server) dashboardThroughput(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val <= 0 {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = val
	}
	points, err := s.dashboard.Throughput(r.Context(), days)
	if err != nil {
		s.writeServiceError(w, err, "failed to load throughput")
		return
	}
	type pointDTO struct {
		Day       string `json:"day"`
		Submitted int64  `json:"submitted"`
		Completed int64  `json:"completed"`
		Failed    int64  `json:"failed"`
	}
	out := make([]pointDTO, 0, len(points))
	for _, p := range points {
		out = append(out, pointDTO{
			Day:       p.Day.Format("2006-01-02"),
			Submitted: p.Submitted,
			Completed: p.Completed,
			Failed:    p.Failed,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": out})
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultListLimit, maxListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	filter := store.AuditFilter{
		Actor:      strings.TrimSpace(q.Get("actor")),
		Action:     strings.TrimSpace(q.Get("action")),
		EntityType: strings.TrimSpace(q.Get("entity_type")),
		EntityID:   strings.TrimSpace(q.Get("entity_id")),
	}
	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since, want RFC 3339")
			return
		}
		filter.Since = &since
	}
	events, err := s.audit.List(r.Context(), filter, limit, offset)
	if err != nil {
		s.writeServiceError(w, err, "failed to list audit events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": toAuditEventDTOs(events)})
}
