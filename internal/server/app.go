// Package server assembles the application: repositories, services, the
// monitoring hub, the validation pool, and the HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/argushq/argus/internal/api"
	"github.com/argushq/argus/internal/clock/system"
	"github.com/argushq/argus/internal/config"
	"github.com/argushq/argus/internal/dispatcher"
	iduuid "github.com/argushq/argus/internal/id/uuid"
	"github.com/argushq/argus/internal/monitor"
	"github.com/argushq/argus/internal/monitor/sinks"
	"github.com/argushq/argus/internal/policy/ratelimit"
	"github.com/argushq/argus/internal/publisher"
	memorypublisher "github.com/argushq/argus/internal/publisher/memory"
	gcppublisher "github.com/argushq/argus/internal/publisher/pubsub"
	"github.com/argushq/argus/internal/queue"
	"github.com/argushq/argus/internal/search"
	"github.com/argushq/argus/internal/service"
	"github.com/argushq/argus/internal/storage/gcs"
	memorystorage "github.com/argushq/argus/internal/storage/memory"
	pgstorage "github.com/argushq/argus/internal/storage/postgres"
	"github.com/argushq/argus/internal/store"
	"github.com/argushq/argus/internal/telemetry"
	"github.com/argushq/argus/internal/worker"
)

// App owns every long-lived component and shuts them down in order.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	hub       *monitor.Hub
	tasks     *queue.Queue
	pool      *pgxpool.Pool
	gcsClient *storage.Client
	pubsubPub *gcppublisher.Publisher
}

// repositories is the full persistence surface the services consume. Both
// the memory store and the Postgres store set fill it.
type repositories struct {
	libraries   store.LibraryRepository
	pipelines   store.PipelineRepository
	jobs        store.JobRepository
	progress    store.ProgressRepository
	results     store.ResultRepository
	validations store.ValidationRepository
	embeddings  store.EmbeddingRepository
	audit       store.AuditRepository
	stats       store.StatsRepository
}

// Build wires the application from configuration. An empty db.dsn selects
// the in-memory repositories; an empty storage.bucket selects the stub URL
// signer. Both fallbacks exist for local development.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	telemetry.Init()

	app := &App{cfg: cfg, logger: logger}
	clock := system.New()
	ids := iduuid.New()

	repos, err := app.setupRepositories(ctx)
	if err != nil {
		return nil, err
	}
	pub, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	signer, objects, err := app.setupSigner(ctx)
	if err != nil {
		return nil, err
	}

	app.hub, err = app.setupHub(ctx, pub)
	if err != nil {
		return nil, err
	}
	mon := monitor.NewService(monitor.Deps{
		Jobs:      repos.jobs,
		Pipelines: repos.pipelines,
		Progress:  repos.progress,
		Results:   repos.results,
		Hub:       app.hub,
		Clock:     clock,
		IDs:       ids,
		Logger:    logger.Named("monitor"),
	})

	audit := service.NewAuditService(repos.audit, clock, ids, logger.Named("audit"))
	images := service.NewImageService(service.ImageDeps{
		Libraries: repos.libraries,
		Signer:    signer,
		Objects:   objects,
		Audit:     audit,
		Clock:     clock,
		IDs:       ids,
		Config: service.ImageConfig{
			URLCacheSize:    cfg.Storage.URLCacheSize,
			VerifyChecksums: cfg.Storage.VerifyChecksums,
		},
		Logger: logger.Named("images"),
	})
	pipelines := service.NewPipelineService(service.PipelineDeps{
		Pipelines: repos.pipelines,
		Audit:     audit,
		Clock:     clock,
		IDs:       ids,
		Logger:    logger.Named("pipelines"),
	})
	jobs := service.NewJobService(service.JobDeps{
		Jobs:      repos.jobs,
		Pipelines: repos.pipelines,
		Libraries: repos.libraries,
		Publisher: pub,
		Audit:     audit,
		Clock:     clock,
		IDs:       ids,
		Logger:    logger.Named("jobs"),
	})
	validations := service.NewValidationService(service.ValidationDeps{
		Validations: repos.validations,
		Results:     repos.results,
		Audit:       audit,
		Clock:       clock,
		Config: service.ValidationConfig{
			MinResponseLen:   cfg.Validation.MinResponseLen,
			TruncationLen:    cfg.Validation.TruncationLen,
			ApproveThreshold: cfg.Validation.ApproveThreshold,
			ReviewThreshold:  cfg.Validation.ReviewThreshold,
			FlagPenalty:      cfg.Validation.FlagPenalty,
		},
		Logger: logger.Named("validation"),
	})
	embeddings := service.NewEmbeddingService(service.EmbeddingDeps{
		Embeddings: repos.embeddings,
		Libraries:  repos.libraries,
		Results:    repos.results,
		Clock:      clock,
		IDs:        ids,
		Logger:     logger.Named("embeddings"),
	})
	dashboard := service.NewDashboardService(repos.stats, repos.audit, clock)

	app.tasks = queue.New(cfg.Validation.QueueDepth)
	workers := make([]*worker.Worker, 0, cfg.Validation.Workers)
	for i := range cfg.Validation.Workers {
		workers = append(workers, worker.New(app.tasks, validations, worker.Config{},
			logger.Named("worker").With(zap.Int("index", i))))
	}
	app.dispatch = dispatcher.New(app.tasks, workers, logger.Named("dispatcher"))

	results := service.NewResultService(service.ResultDeps{
		Results:   repos.results,
		Jobs:      repos.jobs,
		Pipelines: repos.pipelines,
		Enqueuer:  app.dispatch,
		Clock:     clock,
		IDs:       ids,
		Logger:    logger.Named("results"),
	})

	engine := search.New(search.Deps{
		Embeddings:  repos.embeddings,
		Validations: repos.validations,
		Clock:       clock,
		Config: search.Config{
			DefaultLimit:     cfg.Search.DefaultLimit,
			MaxLimit:         cfg.Search.MaxLimit,
			RecencyHalfLife:  cfg.RecencyHalfLife(),
			WeightSimilarity: cfg.Search.WeightSimilarity,
			WeightRecency:    cfg.Search.WeightRecency,
			WeightQuality:    cfg.Search.WeightQuality,
		},
		Logger: logger.Named("search"),
	})

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst})
		logger.Info("rate limiter enabled",
			zap.Float64("rps", cfg.RateLimit.RPS), zap.Int("burst", cfg.RateLimit.Burst))
	}
	var pinger api.Pinger
	if app.pool != nil {
		pinger = app.pool
	}

	app.apiServer = api.NewServer(api.Deps{
		Images:         images,
		Pipelines:      pipelines,
		Jobs:           jobs,
		Results:        results,
		Validations:    validations,
		Embeddings:     embeddings,
		Audit:          audit,
		Dashboard:      dashboard,
		Monitor:        mon,
		Search:         engine,
		Limiter:        limiter,
		Pinger:         pinger,
		Auth:           cfg.Auth,
		RequestTimeout: cfg.RequestTimeout(),
		Logger:         logger.Named("api"),
	})

	return app, nil
}

// Run starts the validation pool and the HTTP server, then blocks until the
// context or a termination signal ends the process.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("validation pool started")
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close(shutdownCtx)
}

// Close drains the task queue, flushes the hub, and releases every client.
func (a *App) Close(ctx context.Context) error {
	if a.tasks != nil {
		a.tasks.Close()
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("monitor hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPub != nil {
		if err := a.pubsubPub.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) setupRepositories(ctx context.Context) (repositories, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no database dsn configured, using in-memory repositories")
		mem := memorystorage.New()
		return repositories{
			libraries:   mem,
			pipelines:   mem,
			jobs:        mem,
			progress:    mem,
			results:     mem,
			validations: mem,
			embeddings:  mem,
			audit:       mem,
			stats:       mem,
		}, nil
	}

	pool, err := pgstorage.Connect(ctx, pgstorage.Config{
		DSN:      a.cfg.DB.DSN,
		MaxConns: int32(a.cfg.DB.MaxConns),
		MinConns: int32(a.cfg.DB.MinConns),
	})
	if err != nil {
		return repositories{}, fmt.Errorf("postgres init failed: %w", err)
	}
	a.pool = pool
	if a.cfg.DB.EnsureSchema {
		if err := pgstorage.EnsureSchema(ctx, pool); err != nil {
			return repositories{}, fmt.Errorf("ensure schema failed: %w", err)
		}
		a.logger.Info("database schema ensured")
	}
	stores := pgstorage.NewStores(pool)
	a.logger.Info("postgres repositories initialized")
	return repositories{
		libraries:   stores.Libraries,
		pipelines:   stores.Pipelines,
		jobs:        stores.Jobs,
		progress:    stores.Progress,
		results:     stores.Results,
		validations: stores.Validations,
		embeddings:  stores.Embeddings,
		audit:       stores.Audit,
		stats:       stores.Stats,
	}, nil
}

func (a *App) setupPublisher(ctx context.Context) (publisher.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		a.logger.Warn("no pub/sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.New(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub init failed: %w", err)
	}
	a.pubsubPub = pub
	a.logger.Info("pub/sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName))
	return pub, nil
}

// setupSigner returns the URL signer and, when the bucket is reachable, the
// object store used to backfill and verify image metadata.
func (a *App) setupSigner(ctx context.Context) (service.Signer, service.ObjectStore, error) {
	if a.cfg.Storage.Bucket == "" {
		a.logger.Warn("no storage bucket configured, using stub URL signer")
		return memorystorage.NewSigner(a.cfg.SignedURLTTL()), nil, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("gcs client init failed: %w", err)
	}
	a.gcsClient = client
	signer, err := gcs.New(client, gcs.Config{
		Bucket: a.cfg.Storage.Bucket,
		Prefix: a.cfg.Storage.Prefix,
		URLTTL: a.cfg.SignedURLTTL(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("gcs signer init failed: %w", err)
	}
	a.logger.Info("gcs signer initialized", zap.String("bucket", a.cfg.Storage.Bucket))
	return signer, signer, nil
}

func (a *App) setupHub(ctx context.Context, pub publisher.Publisher) (*monitor.Hub, error) {
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList := []monitor.Sink{
		sinks.NewLogSink(a.logger.Named("monitor_log")),
		promSink,
		sinks.NewPublisherSink(pub, a.logger.Named("monitor_pubsub")),
	}
	hubCfg := monitor.Config{
		BufferSize:       a.cfg.Monitor.BufferSize,
		SubscriberBuffer: a.cfg.Monitor.SubscriberBuffer,
		MaxBatchEvents:   a.cfg.Monitor.MaxBatchEvents,
		MaxBatchWait:     time.Duration(a.cfg.Monitor.MaxBatchWaitMs) * time.Millisecond,
		SinkTimeout:      time.Duration(a.cfg.Monitor.SinkTimeoutMs) * time.Millisecond,
		BaseContext:      ctx,
		Logger:           a.logger.Named("monitor_hub"),
	}
	a.logger.Info("monitor hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait))
	return monitor.NewHub(hubCfg, sinkList...), nil
}
