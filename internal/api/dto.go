package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/argushq/argus/internal/monitor"
	"github.com/argushq/argus/internal/search"
	"github.com/argushq/argus/internal/service"
	"github.com/argushq/argus/internal/store"
)

type libraryDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
}

func toLibraryDTO(l store.Library) libraryDTO {
	return libraryDTO{
		ID:          l.ID,
		Name:        l.Name,
		Description: l.Description,
		Owner:       l.Owner,
		CreatedAt:   l.CreatedAt,
	}
}

func toLibraryDTOs(in []store.Library) []libraryDTO {
	out := make([]libraryDTO, 0, len(in))
	for _, l := range in {
		out = append(out, toLibraryDTO(l))
	}
	return out
}

type imageDTO struct {
	ID          uuid.UUID         `json:"id"`
	LibraryID   uuid.UUID         `json:"library_id"`
	ObjectPath  string            `json:"object_path"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	Checksum    string            `json:"checksum,omitempty"`
	Width       int               `json:"width,omitempty"`
	Height      int               `json:"height,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	URL         string            `json:"url,omitempty"`
	URLExpires  *time.Time        `json:"url_expires,omitempty"`
}

func toImageDTO(img store.Image) imageDTO {
	return imageDTO{
		ID:          img.ID,
		LibraryID:   img.LibraryID,
		ObjectPath:  img.ObjectPath,
		ContentType: img.ContentType,
		SizeBytes:   img.SizeBytes,
		Checksum:    img.Checksum,
		Width:       img.Width,
		Height:      img.Height,
		Labels:      img.Labels,
		CreatedAt:   img.CreatedAt,
	}
}

func toImageWithURLDTO(img service.ImageWithURL) imageDTO {
	dto := toImageDTO(img.Image)
	dto.URL = img.URL
	if !img.URLExpires.IsZero() {
		expires := img.URLExpires
		dto.URLExpires = &expires
	}
	return dto
}

func toImageDTOs(in []store.Image) []imageDTO {
	out := make([]imageDTO, 0, len(in))
	for _, img := range in {
		out = append(out, toImageDTO(img))
	}
	return out
}

type stageDTO struct {
	ID         uuid.UUID `json:"id"`
	Position   int       `json:"position"`
	Name       string    `json:"name"`
	PromptName string    `json:"prompt_name,omitempty"`
	PromptText string    `json:"prompt_text"`
	Model      string    `json:"model"`
}

type pipelineDTO struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Version     int        `json:"version"`
	Archived    bool       `json:"archived"`
	CreatedAt   time.Time  `json:"created_at"`
	Stages      []stageDTO `json:"stages"`
}

func toPipelineDTO(p store.Pipeline) pipelineDTO {
	stages := make([]stageDTO, 0, len(p.Stages))
	for _, st := range p.Stages {
		stages = append(stages, stageDTO{
			ID:         st.ID,
			Position:   st.Position,
			Name:       st.Name,
			PromptName: st.PromptName,
			PromptText: st.PromptText,
			Model:      st.Model,
		})
	}
	return pipelineDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Version:     p.Version,
		Archived:    p.Archived,
		CreatedAt:   p.CreatedAt,
		Stages:      stages,
	}
}

func toPipelineDTOs(in []store.Pipeline) []pipelineDTO {
	out := make([]pipelineDTO, 0, len(in))
	for _, p := range in {
		out = append(out, toPipelineDTO(p))
	}
	return out
}

type jobDTO struct {
	ID          uuid.UUID  `json:"id"`
	PipelineID  uuid.UUID  `json:"pipeline_id"`
	LibraryID   uuid.UUID  `json:"library_id"`
	Status      string     `json:"status"`
	SubmittedBy string     `json:"submitted_by"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	ErrorText   *string    `json:"error_text,omitempty"`
	ImageCount  int        `json:"image_count"`
}

func toJobDTO(j store.Job) jobDTO {
	return jobDTO{
		ID:          j.ID,
		PipelineID:  j.PipelineID,
		LibraryID:   j.LibraryID,
		Status:      string(j.Status),
		SubmittedBy: j.SubmittedBy,
		SubmittedAt: j.SubmittedAt,
		StartedAt:   j.StartedAt,
		FinishedAt:  j.FinishedAt,
		ErrorText:   j.ErrorText,
		ImageCount:  j.ImageCount,
	}
}

func toJobDTOs(in []store.Job) []jobDTO {
	out := make([]jobDTO, 0, len(in))
	for _, j := range in {
		out = append(out, toJobDTO(j))
	}
	return out
}

type stageProgressDTO struct {
	StageID      uuid.UUID  `json:"stage_id"`
	Position     int        `json:"position,omitempty"`
	Name         string     `json:"name,omitempty"`
	Status       string     `json:"status"`
	ImagesTotal  int64      `json:"images_total"`
	ImagesDone   int64      `json:"images_done"`
	ImagesFailed int64      `json:"images_failed"`
	ErrorCount   int64      `json:"error_count"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toStageProgressDTO(row store.StageProgress) stageProgressDTO {
	return stageProgressDTO{
		StageID:      row.StageID,
		Status:       string(row.Status),
		ImagesTotal:  row.ImagesTotal,
		ImagesDone:   row.ImagesDone,
		ImagesFailed: row.ImagesFailed,
		ErrorCount:   row.ErrorCount,
		StartedAt:    row.StartedAt,
		FinishedAt:   row.FinishedAt,
		LastError:    row.LastError,
		UpdatedAt:    row.UpdatedAt,
	}
}

func toStageSummaryDTO(sum monitor.StageSummary) stageProgressDTO {
	dto := toStageProgressDTO(sum.StageProgress)
	dto.Position = sum.Position
	dto.Name = sum.Name
	return dto
}

func toStageSummaryDTOs(in []monitor.StageSummary) []stageProgressDTO {
	out := make([]stageProgressDTO, 0, len(in))
	for _, sum := range in {
		out = append(out, toStageSummaryDTO(sum))
	}
	return out
}

type jobSummaryDTO struct {
	JobID           uuid.UUID          `json:"job_id"`
	PipelineID      uuid.UUID          `json:"pipeline_id"`
	LibraryID       uuid.UUID          `json:"library_id"`
	Status          string             `json:"status"`
	SubmittedBy     string             `json:"submitted_by"`
	SubmittedAt     time.Time          `json:"submitted_at"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	FinishedAt      *time.Time         `json:"finished_at,omitempty"`
	ErrorText       *string            `json:"error_text,omitempty"`
	ImagesTotal     int64              `json:"images_total"`
	ImagesDone      int64              `json:"images_done"`
	ImagesFailed    int64              `json:"images_failed"`
	ErrorCount      int64              `json:"error_count"`
	PercentComplete float64            `json:"percent_complete"`
	StagesTotal     int                `json:"stages_total"`
	StagesCompleted int                `json:"stages_completed"`
	StagesFailed    int                `json:"stages_failed"`
	StagesRunning   int                `json:"stages_running"`
	ElapsedSeconds  float64            `json:"elapsed_seconds"`
	ImagesPerMinute float64            `json:"images_per_minute"`
	EstRemainingSec float64            `json:"est_remaining_seconds"`
	ResultCount     int64              `json:"result_count"`
	AvgConfidence   float64            `json:"avg_confidence"`
	LastUpdate      time.Time          `json:"last_update"`
	Stages          []stageProgressDTO `json:"stages"`
}

func toJobSummaryDTO(sum monitor.Summary) jobSummaryDTO {
	return jobSummaryDTO{
		JobID:           sum.JobID,
		PipelineID:      sum.PipelineID,
		LibraryID:       sum.LibraryID,
		Status:          string(sum.Status),
		SubmittedBy:     sum.SubmittedBy,
		SubmittedAt:     sum.SubmittedAt,
		StartedAt:       sum.StartedAt,
		FinishedAt:      sum.FinishedAt,
		ErrorText:       sum.ErrorText,
		ImagesTotal:     sum.ImagesTotal,
		ImagesDone:      sum.ImagesDone,
		ImagesFailed:    sum.ImagesFailed,
		ErrorCount:      sum.ErrorCount,
		PercentComplete: sum.PercentComplete,
		StagesTotal:     sum.StagesTotal,
		StagesCompleted: sum.StagesCompleted,
		StagesFailed:    sum.StagesFailed,
		StagesRunning:   sum.StagesRunning,
		ElapsedSeconds:  sum.Elapsed.Seconds(),
		ImagesPerMinute: sum.ImagesPerMinute,
		EstRemainingSec: sum.EstRemaining.Seconds(),
		ResultCount:     sum.ResultCount,
		AvgConfidence:   sum.AvgConfidence,
		LastUpdate:      sum.LastUpdate,
		Stages:          toStageSummaryDTOs(sum.Stages),
	}
}

type stageErrorDTO struct {
	ID         uuid.UUID  `json:"id"`
	StageID    uuid.UUID  `json:"stage_id"`
	ImageID    *uuid.UUID `json:"image_id,omitempty"`
	Message    string     `json:"message"`
	Detail     *string    `json:"detail,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

func toStageErrorDTOs(in []store.StageError) []stageErrorDTO {
	out := make([]stageErrorDTO, 0, len(in))
	for _, e := range in {
		out = append(out, stageErrorDTO{
			ID:         e.ID,
			StageID:    e.StageID,
			ImageID:    e.ImageID,
			Message:    e.Message,
			Detail:     e.Detail,
			OccurredAt: e.OccurredAt,
		})
	}
	return out
}

type resultDTO struct {
	ID           uuid.UUID `json:"id"`
	JobID        uuid.UUID `json:"job_id"`
	StageID      uuid.UUID `json:"stage_id"`
	ImageID      uuid.UUID `json:"image_id"`
	ResponseText string    `json:"response_text"`
	Confidence   float64   `json:"confidence"`
	LatencyMS    int64     `json:"latency_ms"`
	Model        string    `json:"model,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toResultDTO(r store.JobResult) resultDTO {
	return resultDTO{
		ID:           r.ID,
		JobID:        r.JobID,
		StageID:      r.StageID,
		ImageID:      r.ImageID,
		ResponseText: r.ResponseText,
		Confidence:   r.Confidence,
		LatencyMS:    r.LatencyMS,
		Model:        r.Model,
		CreatedAt:    r.CreatedAt,
	}
}

func toResultDTOs(in []store.JobResult) []resultDTO {
	out := make([]resultDTO, 0, len(in))
	for _, r := range in {
		out = append(out, toResultDTO(r))
	}
	return out
}

type validationDTO struct {
	ResultID         uuid.UUID  `json:"result_id"`
	ConfidenceScore  float64    `json:"confidence_score"`
	ConsistencyScore float64    `json:"consistency_score"`
	ContentFlags     []string   `json:"content_flags"`
	OverallScore     float64    `json:"overall_score"`
	Status           string     `json:"status"`
	ReviewedBy       *string    `json:"reviewed_by,omitempty"`
	ReviewNote       *string    `json:"review_note,omitempty"`
	ComputedAt       time.Time  `json:"computed_at"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
}

func toValidationDTO(v store.ResultValidation) validationDTO {
	flags := v.ContentFlags
	if flags == nil {
		flags = []string{}
	}
	return validationDTO{
		ResultID:         v.ResultID,
		ConfidenceScore:  v.ConfidenceScore,
		ConsistencyScore: v.ConsistencyScore,
		ContentFlags:     flags,
		OverallScore:     v.OverallScore,
		Status:           string(v.Status),
		ReviewedBy:       v.ReviewedBy,
		ReviewNote:       v.ReviewNote,
		ComputedAt:       v.ComputedAt,
		ReviewedAt:       v.ReviewedAt,
	}
}

func toValidationDTOs(in []store.ResultValidation) []validationDTO {
	out := make([]validationDTO, 0, len(in))
	for _, v := range in {
		out = append(out, toValidationDTO(v))
	}
	return out
}

type auditEventDTO struct {
	ID         uuid.UUID         `json:"id"`
	Actor      string            `json:"actor"`
	Action     string            `json:"action"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	RequestID  string            `json:"request_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

func toAuditEventDTOs(in []store.AuditEvent) []auditEventDTO {
	out := make([]auditEventDTO, 0, len(in))
	for _, e := range in {
		out = append(out, auditEventDTO{
			ID:         e.ID,
			Actor:      e.Actor,
			Action:     e.Action,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			RequestID:  e.RequestID,
			Metadata:   e.Metadata,
			OccurredAt: e.OccurredAt,
		})
	}
	return out
}

type searchItemDTO struct {
	ContentType string    `json:"content_type"`
	ContentID   uuid.UUID `json:"content_id"`
	Score       float64   `json:"score"`
	Similarity  float64   `json:"similarity"`
	Recency     float64   `json:"recency"`
	Quality     float64   `json:"quality"`
	CreatedAt   time.Time `json:"created_at"`
}

type searchResponseDTO struct {
	Items        []searchItemDTO `json:"items"`
	TotalMatched int             `json:"total_matched"`
	Skipped      int             `json:"skipped"`
}

func toSearchResponseDTO(resp search.Response) searchResponseDTO {
	items := make([]searchItemDTO, 0, len(resp.Items))
	for _, it := range resp.Items {
		items = append(items, searchItemDTO{
			ContentType: string(it.ContentType),
			ContentID:   it.ContentID,
			Score:       it.Score,
			Similarity:  it.Similarity,
			Recency:     it.Recency,
			Quality:     it.Quality,
			CreatedAt:   it.CreatedAt,
		})
	}
	return searchResponseDTO{
		Items:        items,
		TotalMatched: resp.TotalMatched,
		Skipped:      resp.Skipped,
	}
}

type rollupDTO struct {
	ImagesTotal     int64   `json:"images_total"`
	ImagesDone      int64   `json:"images_done"`
	ImagesFailed    int64   `json:"images_failed"`
	ErrorCount      int64   `json:"error_count"`
	PercentComplete float64 `json:"percent_complete"`
	StagesTotal     int     `json:"stages_total"`
	StagesCompleted int     `json:"stages_completed"`
	StagesFailed    int     `json:"stages_failed"`
	StagesRunning   int     `json:"stages_running"`
}

func toRollupDTO(r monitor.Rollup) rollupDTO {
	return rollupDTO{
		ImagesTotal:     r.ImagesTotal,
		ImagesDone:      r.ImagesDone,
		ImagesFailed:    r.ImagesFailed,
		ErrorCount:      r.ErrorCount,
		PercentComplete: r.PercentComplete,
		StagesTotal:     r.StagesTotal,
		StagesCompleted: r.StagesCompleted,
		StagesFailed:    r.StagesFailed,
		StagesRunning:   r.StagesRunning,
	}
}

type jobUpdateDTO struct {
	JobID     uuid.UUID         `json:"job_id"`
	StageID   *uuid.UUID        `json:"stage_id,omitempty"`
	Kind      string            `json:"kind"`
	TS        time.Time         `json:"ts"`
	JobStatus string            `json:"job_status"`
	Stage     *stageProgressDTO `json:"stage,omitempty"`
	Rollup    rollupDTO         `json:"rollup"`
	Note      string            `json:"note,omitempty"`
}

func toJobUpdateDTO(u monitor.Update) jobUpdateDTO {
	dto := jobUpdateDTO{
		JobID:     u.JobID,
		Kind:      string(u.Kind),
		TS:        u.TS,
		JobStatus: string(u.JobStatus),
		Rollup:    toRollupDTO(u.Rollup),
		Note:      u.Note,
	}
	if u.StageID != uuid.Nil {
		stageID := u.StageID
		dto.StageID = &stageID
	}
	if u.Stage != nil {
		stage := toStageProgressDTO(*u.Stage)
		dto.Stage = &stage
	}
	return dto
}
