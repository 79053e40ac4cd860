package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argushq/argus/internal/config"
	"github.com/argushq/argus/internal/monitor"
	"github.com/argushq/argus/internal/policy/ratelimit"
	"github.com/argushq/argus/internal/search"
	"github.com/argushq/argus/internal/service"
	"github.com/argushq/argus/internal/store"
	"github.com/argushq/argus/internal/telemetry"
)

// List paging bounds per route family.
const (
	defaultListLimit   = 50
	maxListLimit       = 500
	defaultImagesLimit = 100
	maxImagesLimit     = 1000
	defaultErrorsLimit = 100
	maxErrorsLimit     = 1000

	defaultRequestTimeout = 30 * time.Second
)

// Pinger reports backend reachability for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps bundles everything NewServer requires.
type Deps struct {
	Images      *service.ImageService
	Pipelines   *service.PipelineService
	Jobs        *service.JobService
	Results     *service.ResultService
	Validations *service.ValidationService
	Embeddings  *service.EmbeddingService
	Audit       *service.AuditService
	Dashboard   *service.DashboardService
	Monitor     *monitor.Service
	Search      *search.Engine
	// Limiter is optional; nil disables per-actor rate limiting.
	Limiter *ratelimit.Limiter
	// Pinger is optional; nil reports ready unconditionally.
	Pinger         Pinger
	Auth           config.AuthConfig
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Server wires HTTP handlers to the service layer.
type Server struct {
	router      chi.Router
	images      *service.ImageService
	pipelines   *service.PipelineService
	jobs        *service.JobService
	results     *service.ResultService
	validations *service.ValidationService
	embeddings  *service.EmbeddingService
	audit       *service.AuditService
	dashboard   *service.DashboardService
	monitor     *monitor.Service
	search      *search.Engine
	limiter     *ratelimit.Limiter
	pinger      Pinger
	auth        config.AuthConfig
	timeout     time.Duration
	logger      *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	s := &Server{
		images:      d.Images,
		pipelines:   d.Pipelines,
		jobs:        d.Jobs,
		results:     d.Results,
		validations: d.Validations,
		embeddings:  d.Embeddings,
		audit:       d.Audit,
		dashboard:   d.Dashboard,
		monitor:     d.Monitor,
		search:      d.Search,
		limiter:     d.Limiter,
		pinger:      d.Pinger,
		auth:        d.Auth,
		timeout:     timeout,
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(telemetry.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		if s.auth.Enabled {
			r.Use(s.authMiddleware)
		}
		if s.limiter != nil {
			r.Use(s.rateLimitMiddleware)
		}

		// The SSE stream lives outside the timeout group; its lifetime is
		// client-driven.
		r.Get("/jobs/{job_id}/events", s.streamJobEvents)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(s.timeout))

			r.Route("/libraries", func(r chi.Router) {
				r.Post("/", s.createLibrary)
				r.Get("/", s.listLibraries)
				r.Route("/{library_id}", func(r chi.Router) {
					r.Get("/", s.getLibrary)
					r.Post("/images", s.registerImage)
					r.Get("/images", s.listImages)
				})
			})
			r.Route("/images/{image_id}", func(r chi.Router) {
				r.Get("/", s.getImage)
				r.Delete("/", s.deleteImage)
			})

			r.Route("/pipelines", func(r chi.Router) {
				r.Post("/", s.createPipeline)
				r.Get("/", s.listPipelines)
				r.Route("/{pipeline_id}", func(r chi.Router) {
					r.Get("/", s.getPipeline)
					r.Post("/archive", s.archivePipeline)
				})
			})

			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", s.submitJob)
				r.Get("/", s.listJobs)
				r.Route("/{job_id}", func(r chi.Router) {
					r.Get("/", s.getJob)
					r.Post("/cancel", s.cancelJob)
					r.Get("/summary", s.getJobSummary)
					r.Get("/stages", s.listJobStages)
					r.Get("/errors", s.listJobErrors)
					r.Get("/results", s.listJobResults)
					r.Post("/results", s.recordResults)
					r.Post("/stages/{stage_id}/events", s.recordStageEvent)
				})
			})

			r.Route("/results/{result_id}", func(r chi.Router) {
				r.Get("/", s.getResult)
				r.Get("/validation", s.getValidation)
				r.Post("/validate", s.computeValidation)
				r.Post("/review", s.reviewResult)
			})
			r.Get("/validations", s.listValidations)

			r.Post("/embeddings", s.upsertEmbeddings)
			r.Post("/search", s.runSearch)

			r.Route("/dashboard", func(r chi.Router) {
				r.Get("/overview", s.dashboardOverview)
				r.Get("/activity", s.dashboardActivity)
				r.Get("/throughput", s.dashboardThroughput)
			})
			r.Get("/audit", s.listAudit)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.Warn("readiness ping failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// caller builds the audit attribution from request context.
func (s *Server) caller(r *http.Request) service.Caller {
	return service.Caller{
		Subject:   subjectFrom(r.Context()),
		RequestID: requestIDFrom(r.Context()),
	}
}

// writeServiceError maps the shared error taxonomy onto status codes. msg
// is the generic 500 text; sentinel errors surface their own message.
func (s *Server) writeServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, search.ErrInvalidRequest),
		errors.Is(err, monitor.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error(msg, zap.Error(err))
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON strictly decodes the request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return uuid.UUID{}, errors.New(name + " is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid " + name)
	}
	return id, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

// parseOptionalUUID reads a query parameter as a UUID pointer, nil when the
// parameter is absent.
func parseOptionalUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, errors.New("invalid " + name)
	}
	return &id, nil
}
