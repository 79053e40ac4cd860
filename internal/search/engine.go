// Package search implements the blended similarity search: embeddings are
// fetched wholesale per content type, scored against the query vector in
// memory, and sorted. There is no index and no ANN; the corpus is assumed
// small enough for a linear scan.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/argushq/argus/internal/store"
	"github.com/argushq/argus/internal/telemetry"
)

// ErrInvalidRequest rejects requests whose fields fail validation.
var ErrInvalidRequest = errors.New("invalid search request")

// Neutral quality applied to images and to results without a validation row.
const neutralQuality = 0.5

// Config tunes limits and the default score blend.
type Config struct {
	DefaultLimit int
	MaxLimit     int
	// RecencyHalfLife is the age at which the recency component halves.
	RecencyHalfLife  time.Duration
	WeightSimilarity float64
	WeightRecency    float64
	WeightQuality    float64
}

// Weights overrides the blend for one request. They are renormalized to
// sum to 1 before scoring.
type Weights struct {
	Similarity float64
	Recency    float64
	Quality    float64
}

// Request is one similarity query. The vector is computed by the external
// AI provider; this service never embeds.
type Request struct {
	Vector []float32
	// Types defaults to both content types when empty.
	Types []store.ContentType
	// LibraryID and JobID optionally scope the scanned embeddings.
	LibraryID *uuid.UUID
	JobID     *uuid.UUID
	// Weights overrides the configured blend when set.
	Weights *Weights
	Limit   int
	Offset  int
}

// Item is one scored match with its component breakdown.
type Item struct {
	ContentType store.ContentType
	ContentID   uuid.UUID
	Score       float64
	Similarity  float64
	Recency     float64
	Quality     float64
	CreatedAt   time.Time
}

// Response carries the requested page plus scan accounting.
type Response struct {
	Items []Item
	// TotalMatched counts every scored embedding before paging.
	TotalMatched int
	// Skipped counts embeddings whose dimensions did not match the query.
	Skipped int
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Deps bundles the collaborators New requires.
type Deps struct {
	Embeddings  store.EmbeddingRepository
	Validations store.ValidationRepository
	Clock       Clock
	Config      Config
	Logger      *zap.Logger
}

// Engine runs the in-memory scans.
type Engine struct {
	embeddings  store.EmbeddingRepository
	validations store.ValidationRepository
	clock       Clock
	cfg         Config
	logger      *zap.Logger
}

// New wires the repositories into a search engine.
func New(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := d.Config
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if cfg.RecencyHalfLife <= 0 {
		cfg.RecencyHalfLife = 72 * time.Hour
	}
	if cfg.WeightSimilarity <= 0 && cfg.WeightRecency <= 0 && cfg.WeightQuality <= 0 {
		cfg.WeightSimilarity = 0.7
		cfg.WeightRecency = 0.15
		cfg.WeightQuality = 0.15
	}
	return &Engine{
		embeddings:  d.Embeddings,
		validations: d.Validations,
		clock:       d.Clock,
		cfg:         cfg,
		logger:      logger,
	}
}

type typeScan struct {
	contentType store.ContentType
	embeddings  []store.Embedding
}

// Search scans the requested content types concurrently, blends the scores,
// and returns one page sorted by blended score (ties: newer first).
func (e *Engine) Search(ctx context.Context, req Request) (Response, error) {
	start := e.clock.Now()
	types, weights, limit, err := e.normalize(&req)
	if err != nil {
		return Response{}, err
	}

	scope := store.EmbeddingScope{LibraryID: req.LibraryID, JobID: req.JobID}
	scans := make([]typeScan, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for i, ct := range types {
		g.Go(func() error {
			embs, err := e.embeddings.ListByType(gctx, ct, scope)
			if err != nil {
				return fmt.Errorf("list %s embeddings: %w", ct, err)
			}
			scans[i] = typeScan{contentType: ct, embeddings: embs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Response{}, err
	}

	items, skipped := e.score(req.Vector, scans, start)
	if err := e.applyQuality(ctx, items, weights); err != nil {
		return Response{}, err
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	resp := Response{TotalMatched: len(items), Skipped: skipped}
	if req.Offset < len(items) {
		end := req.Offset + limit
		if end > len(items) {
			end = len(items)
		}
		resp.Items = items[req.Offset:end]
	} else {
		resp.Items = []Item{}
	}
	telemetry.ObserveSearch(e.clock.Now().Sub(start))
	return resp, nil
}

// normalize validates the request and resolves defaults in place.
func (e *Engine) normalize(req *Request) ([]store.ContentType, Weights, int, error) {
	if len(req.Vector) == 0 || len(req.Vector) > store.MaxVectorDims {
		return nil, Weights{}, 0, fmt.Errorf("%w: vector must have 1 to %d dimensions", ErrInvalidRequest, store.MaxVectorDims)
	}
	if req.Offset < 0 {
		return nil, Weights{}, 0, fmt.Errorf("%w: offset must not be negative", ErrInvalidRequest)
	}

	types := req.Types
	if len(types) == 0 {
		types = []store.ContentType{store.ContentImage, store.ContentResult}
	}
	seen := make(map[store.ContentType]struct{}, len(types))
	deduped := make([]store.ContentType, 0, len(types))
	for _, ct := range types {
		if !store.ValidContentType(ct) {
			return nil, Weights{}, 0, fmt.Errorf("%w: unknown content type %q", ErrInvalidRequest, ct)
		}
		if _, dup := seen[ct]; dup {
			continue
		}
		seen[ct] = struct{}{}
		deduped = append(deduped, ct)
	}

	weights := Weights{
		Similarity: e.cfg.WeightSimilarity,
		Recency:    e.cfg.WeightRecency,
		Quality:    e.cfg.WeightQuality,
	}
	if req.Weights != nil {
		weights = *req.Weights
	}
	if weights.Similarity < 0 || weights.Recency < 0 || weights.Quality < 0 {
		return nil, Weights{}, 0, fmt.Errorf("%w: weights must not be negative", ErrInvalidRequest)
	}
	sum := weights.Similarity + weights.Recency + weights.Quality
	if sum <= 0 {
		return nil, Weights{}, 0, fmt.Errorf("%w: at least one weight must be positive", ErrInvalidRequest)
	}
	weights.Similarity /= sum
	weights.Recency /= sum
	weights.Quality /= sum

	limit := req.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}
	return deduped, weights, limit, nil
}

// score computes the similarity and recency components for every embedding
// whose dimensions match the query. Quality is filled in later.
func (e *Engine) score(query []float32, scans []typeScan, now time.Time) ([]Item, int) {
	var (
		mu      sync.Mutex
		items   []Item
		skipped int
	)
	var wg sync.WaitGroup
	for _, scan := range scans {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]Item, 0, len(scan.embeddings))
			miss := 0
			for _, emb := range scan.embeddings {
				sim, ok := cosine(query, emb.Vector)
				if !ok {
					miss++
					continue
				}
				local = append(local, Item{
					ContentType: scan.contentType,
					ContentID:   emb.ContentID,
					Similarity:  (sim + 1) / 2,
					Recency:     e.recency(emb.CreatedAt, now),
					CreatedAt:   emb.CreatedAt,
				})
			}
			mu.Lock()
			items = append(items, local...)
			skipped += miss
			mu.Unlock()
		}()
	}
	wg.Wait()
	return items, skipped
}

// applyQuality bulk-loads validation scores for result items and finalizes
// the blended score. Images and unvalidated results score neutral.
func (e *Engine) applyQuality(ctx context.Context, items []Item, w Weights) error {
	resultIDs := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		if it.ContentType == store.ContentResult {
			resultIDs = append(resultIDs, it.ContentID)
		}
	}
	scores := map[uuid.UUID]float64{}
	if len(resultIDs) > 0 {
		var err error
		scores, err = e.validations.OverallScores(ctx, resultIDs)
		if err != nil {
			return fmt.Errorf("load validation scores: %w", err)
		}
	}
	for i := range items {
		quality := neutralQuality
		if items[i].ContentType == store.ContentResult {
			if s, ok := scores[items[i].ContentID]; ok {
				quality = s
			}
		}
		items[i].Quality = quality
		items[i].Score = w.Similarity*items[i].Similarity +
			w.Recency*items[i].Recency +
			w.Quality*items[i].Quality
	}
	return nil
}

// recency decays exponentially with age: 1.0 now, 0.5 at one half-life.
func (e *Engine) recency(createdAt, now time.Time) float64 {
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1
	}
	return math.Exp2(-age.Hours() / e.cfg.RecencyHalfLife.Hours())
}

// cosine returns the cosine similarity of two vectors, or false when the
// dimensions differ or either vector has zero magnitude.
func cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
