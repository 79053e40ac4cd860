package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argushq/argus/internal/store"
	"github.com/argushq/argus/internal/telemetry"
)

// Content flags attached by validation.
const (
	FlagEmptyResponse     = "empty_response"
	FlagShortResponse     = "short_response"
	FlagRefusalDetected   = "refusal_detected"
	FlagTruncatedResponse = "truncated_response"
)

// Component weights of the overall score.
const (
	weightConfidence  = 0.5
	weightConsistency = 0.3
	weightContent     = 0.2
)

var refusalPhrases = []string{
	"i cannot",
	"i can't",
	"i am unable",
	"i'm unable",
	"as an ai",
	"i apologize, but",
}

// ValidationConfig tunes the quality scoring.
type ValidationConfig struct {
	// MinResponseLen is the rune count below which a response is short.
	MinResponseLen int
	// TruncationLen is the rune count from which an unterminated response
	// counts as truncated.
	TruncationLen int
	// ApproveThreshold auto-approves results scoring at or above it.
	ApproveThreshold float64
	// ReviewThreshold sends results scoring at or below it to human review.
	ReviewThreshold float64
	// FlagPenalty is subtracted from the content component per flag.
	FlagPenalty float64
}

// ValidationDeps bundles the collaborators NewValidationService requires.
type ValidationDeps struct {
	Validations store.ValidationRepository
	Results     store.ResultRepository
	Audit       *AuditService
	Clock       Clock
	Config      ValidationConfig
	Logger      *zap.Logger
}

// ValidationService derives quality metrics for results and manages the
// human review queue.
type ValidationService struct {
	validations store.ValidationRepository
	results     store.ResultRepository
	audit       *AuditService
	clock       Clock
	cfg         ValidationConfig
	logger      *zap.Logger
}

// NewValidationService wires the repositories into a validation service.
func NewValidationService(d ValidationDeps) *ValidationService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := d.Config
	if cfg.MinResponseLen <= 0 {
		cfg.MinResponseLen = 20
	}
	if cfg.TruncationLen <= 0 {
		cfg.TruncationLen = 4000
	}
	if cfg.ApproveThreshold <= 0 {
		cfg.ApproveThreshold = 0.8
	}
	if cfg.ReviewThreshold <= 0 {
		cfg.ReviewThreshold = 0.4
	}
	if cfg.FlagPenalty <= 0 {
		cfg.FlagPenalty = 0.25
	}
	return &ValidationService{
		validations: d.Validations,
		results:     d.Results,
		audit:       d.Audit,
		clock:       d.Clock,
		cfg:         cfg,
		logger:      logger,
	}
}

// Compute derives and stores the quality metrics for one result. Rows that
// already carry a human review keep their status; only scores refresh.
func (s *ValidationService) Compute(ctx context.Context, resultID uuid.UUID) error {
	r, err := s.results.GetResult(ctx, resultID)
	if err != nil {
		return fmt.Errorf("load result: %w", err)
	}
	siblings, err := s.results.ListSiblings(ctx, r.JobID, r.ImageID, r.ID)
	if err != nil {
		return fmt.Errorf("load sibling results: %w", err)
	}

	confidence := clamp01(r.Confidence)
	consistency := s.consistency(r.ResponseText, siblings)
	flags := s.contentFlags(r.ResponseText)
	content := 1 - s.cfg.FlagPenalty*float64(len(flags))
	if content < 0 {
		content = 0
	}
	overall := weightConfidence*confidence + weightConsistency*consistency + weightContent*content

	status := store.ValidationPending
	switch {
	case overall >= s.cfg.ApproveThreshold:
		status = store.ValidationApproved
	case overall <= s.cfg.ReviewThreshold:
		status = store.ValidationNeedsReview
	}

	v := store.ResultValidation{
		ResultID:         resultID,
		ConfidenceScore:  confidence,
		ConsistencyScore: consistency,
		ContentFlags:     flags,
		OverallScore:     overall,
		Status:           status,
		ComputedAt:       s.clock.Now(),
	}
	if err := s.validations.UpsertValidation(ctx, v); err != nil {
		return fmt.Errorf("upsert validation: %w", err)
	}
	telemetry.ObserveValidation(string(status))
	return nil
}

// GetByResult loads the validation row for one result.
func (s *ValidationService) GetByResult(ctx context.Context, resultID uuid.UUID) (store.ResultValidation, error) {
	return s.validations.GetByResult(ctx, resultID)
}

// ListByStatus returns the review queue for one status, oldest first.
func (s *ValidationService) ListByStatus(ctx context.Context, status store.ValidationStatus, limit, offset int) ([]store.ResultValidation, error) {
	if !store.ValidValidationStatus(status) {
		return nil, fmt.Errorf("%w: unknown validation status %q", ErrInvalidInput, status)
	}
	return s.validations.ListByStatus(ctx, status, limit, offset)
}

// Review applies a human decision to a pending or needs_review row.
func (s *ValidationService) Review(ctx context.Context, caller Caller, resultID uuid.UUID, approve bool, note string) error {
	status := store.ValidationRejected
	if approve {
		status = store.ValidationApproved
	}
	if err := s.validations.SetReview(ctx, resultID, status, caller.actor(), note, s.clock.Now()); err != nil {
		return fmt.Errorf("set review: %w", err)
	}
	s.audit.Record(ctx, caller, "result.review", "result", resultID.String(), map[string]string{
		"approved": strconv.FormatBool(approve),
	})
	return nil
}

// consistency is the mean Jaccard similarity between this response's token
// set and each sibling's. A result with no siblings is fully consistent.
func (s *ValidationService) consistency(text string, siblings []store.JobResult) float64 {
	if len(siblings) == 0 {
		return 1
	}
	own := tokenSet(text)
	var sum float64
	for _, sib := range siblings {
		sum += jaccard(own, tokenSet(sib.ResponseText))
	}
	return sum / float64(len(siblings))
}

func (s *ValidationService) contentFlags(text string) []string {
	var flags []string
	trimmed := strings.TrimSpace(text)
	runes := utf8.RuneCountInString(trimmed)
	switch {
	case trimmed == "":
		flags = append(flags, FlagEmptyResponse)
	case runes < s.cfg.MinResponseLen:
		flags = append(flags, FlagShortResponse)
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			flags = append(flags, FlagRefusalDetected)
			break
		}
	}
	if runes >= s.cfg.TruncationLen && !endsTerminated(trimmed) {
		flags = append(flags, FlagTruncatedResponse)
	}
	return flags
}

// endsTerminated reports whether the text closes with terminal punctuation,
// ignoring trailing quotes and brackets.
func endsTerminated(text string) bool {
	text = strings.TrimRight(text, "\"')]}`")
	if text == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(text)
	return strings.ContainsRune(".!?…", last)
}

// tokenSet lowercases the text and splits it into a set of alphanumeric
// tokens.
func tokenSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// jaccard is |a ∩ b| / |a ∪ b|; two empty sets count as identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for token := range a {
		if _, ok := b[token]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
