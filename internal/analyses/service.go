package analyses

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hddy2000/medical-beauty-ai-demo/internal/assessment"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/provider"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/metrics"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/storage/object"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/telemetry"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/util"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 50
)

// Service drives a record from intake through provider invocation and
// validation to a terminal status, and applies clinician reviews.
type Service struct {
	Repo     Repo
	Provider provider.Provider

	// Archive receives raw provider output under raw/<id>.txt. Optional.
	Archive object.ObjectStore

	Now   func() time.Time
	NewID func() string
}

// SubmitInput is an analysis request as received at the boundary.
type SubmitInput struct {
	SubjectID    string
	VideoRef     string
	Note         string
	ThumbnailURL string
}

// ReviewInput is a clinician verdict on a record.
type ReviewInput struct {
	ID      string
	Status  string
	Comment string
}

// Submit runs one analysis synchronously. Intake and configuration problems
// return before any record exists. Once a record is created it always
// reaches a terminal status; on failure the failed record is returned
// together with a *PipelineError.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (Analysis, error) {
	in.SubjectID = strings.TrimSpace(in.SubjectID)
	in.VideoRef = strings.TrimSpace(in.VideoRef)
	in.Note = strings.TrimSpace(in.Note)
	in.ThumbnailURL = strings.TrimSpace(in.ThumbnailURL)

	var missing []string
	if in.VideoRef == "" {
		missing = append(missing, "videoRef")
	}
	if in.SubjectID == "" {
		missing = append(missing, "subjectId")
	}
	if len(missing) > 0 {
		return Analysis{}, &IntakeError{Missing: missing}
	}
	if err := provider.Preflight(s.Provider); err != nil {
		return Analysis{}, err
	}

	now := s.now()
	info := s.Provider.Info()
	record := Analysis{
		ID:           s.newID(),
		SubjectID:    in.SubjectID,
		VideoRef:     in.VideoRef,
		ThumbnailURL: in.ThumbnailURL,
		Note:         in.Note,
		Provider:     info.Name,
		Model:        info.Model,
		Status:       StatusAnalyzing,
		Review:       Review{Status: ReviewPending},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.Create(ctx, record); err != nil {
		return Analysis{}, &PersistenceError{Op: "create", Err: err}
	}
	metrics.IncAnalysisSubmitted()
	s.logStatus(ctx, record, "->"+StatusAnalyzing, nil)

	// Finalization must happen even if the caller goes away mid-call.
	finalizeCtx := context.WithoutCancel(ctx)

	raw, err := s.invokeProvider(ctx, record)
	if err != nil {
		return s.fail(finalizeCtx, record, err)
	}
	s.archiveRaw(finalizeCtx, record.ID, raw)

	result, err := s.validate(ctx, record.ID, raw)
	if err != nil {
		return s.fail(finalizeCtx, record, err)
	}
	return s.complete(finalizeCtx, record, result)
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id string) (Analysis, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Analysis{}, ErrNotFound
	}
	return s.Repo.GetByID(ctx, id)
}

// ListRecent returns records newest first. limit is clamped to [1, MaxListLimit];
// zero or negative means DefaultListLimit.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]Analysis, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return s.Repo.ListRecent(ctx, limit)
}

// UpdateReview records a clinician verdict on a completed or failed record.
// Records still analyzing are rejected with ErrAnalysisInProgress. The comment
// is replaced by this call's value.
func (s *Service) UpdateReview(ctx context.Context, in ReviewInput) (Analysis, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Status = strings.TrimSpace(in.Status)

	var missing []string
	if in.ID == "" {
		missing = append(missing, "id")
	}
	if in.Status == "" {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return Analysis{}, &IntakeError{Missing: missing}
	}
	if !ValidReviewStatus(in.Status) {
		return Analysis{}, &IntakeError{Field: "status", Reason: "must be one of pending, confirmed, rejected"}
	}

	// Status never leaves a terminal value, so a record seen terminal here
	// cannot be finalized again underneath the review write.
	current, err := s.Repo.GetByID(ctx, in.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Analysis{}, err
		}
		return Analysis{}, &PersistenceError{Op: "get for review", Err: err}
	}
	if current.Status == StatusAnalyzing {
		return Analysis{}, ErrAnalysisInProgress
	}

	now := s.now()
	updated, err := s.Repo.Update(ctx, in.ID, Patch{
		Review:    &Review{Status: in.Status, Comment: in.Comment, ReviewedAt: &now},
		UpdatedAt: now,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Analysis{}, err
		}
		return Analysis{}, &PersistenceError{Op: "update review", Err: err}
	}
	metrics.IncReviewUpdate(in.Status)
	telemetry.Info("analysis.review", map[string]any{
		"request_id":    requestIDFromContext(ctx),
		"analysis_id":   updated.ID,
		"review_status": in.Status,
	})
	return updated, nil
}

func (s *Service) invokeProvider(ctx context.Context, record Analysis) (string, error) {
	ctx, span := telemetry.Tracer("analyses").Start(ctx, "assessment.provider",
		trace.WithAttributes(
			attribute.String("analysis.id", record.ID),
			attribute.String("provider.name", record.Provider),
			attribute.String("provider.model", record.Model),
		))
	defer span.End()

	start := time.Now()
	raw, err := s.Provider.Assess(ctx, record.VideoRef, record.Note)
	metrics.ObserveProviderDurationMs(float64(time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider failed")
		return "", err
	}
	span.SetAttributes(attribute.Int("provider.output_bytes", len(raw)))
	return raw, nil
}

func (s *Service) validate(ctx context.Context, analysisID, raw string) (assessment.Result, error) {
	_, span := telemetry.Tracer("analyses").Start(ctx, "assessment.validate",
		trace.WithAttributes(attribute.String("analysis.id", analysisID)))
	defer span.End()

	result, err := assessment.Parse(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "output invalid")
	}
	return result, err
}

func (s *Service) complete(ctx context.Context, record Analysis, result assessment.Result) (Analysis, error) {
	review := Review{Status: ReviewPending}
	if !result.NeedReview {
		review.Status = ReviewConfirmed
	}
	updated, err := s.Repo.Update(ctx, record.ID, Patch{
		Status:    stringPtr(StatusCompleted),
		Result:    &result,
		Review:    &review,
		UpdatedAt: s.now(),
	})
	if err != nil {
		persistErr := &PersistenceError{Op: "complete", Err: err}
		s.logStatus(ctx, record, "analyzing->completed", map[string]any{"persist_error": err})
		if !errors.Is(err, ErrStatusConflict) {
			// Leave the record failed rather than analyzing when the store recovers.
			_, _ = s.fail(ctx, record, persistErr)
		}
		return Analysis{}, persistErr
	}
	metrics.IncAnalysisCompleted()
	s.logStatus(ctx, updated, "analyzing->completed", map[string]any{
		"risk_level":  string(result.RiskLevel),
		"need_review": result.NeedReview,
	})
	return updated, nil
}

func (s *Service) fail(ctx context.Context, record Analysis, cause error) (Analysis, error) {
	code, reason, field := classifyFailure(cause)
	failure := Failure{Code: code, Reason: reason, Field: field, Message: sanitizeError(cause)}
	updated, err := s.Repo.Update(ctx, record.ID, Patch{
		Status:    stringPtr(StatusFailed),
		Failure:   &failure,
		UpdatedAt: s.now(),
	})
	if err != nil {
		s.logStatus(ctx, record, "analyzing->failed", map[string]any{"persist_error": err, "error_code": code})
		return Analysis{}, &PersistenceError{Op: "fail", Err: err}
	}
	metrics.IncAnalysisFailed(code)
	s.logStatus(ctx, updated, "analyzing->failed", map[string]any{
		"error_code":   code,
		"error_reason": reason,
		"error_field":  field,
		"error":        failure.Message,
	})
	return updated, &PipelineError{Code: code, Reason: reason, Field: field, Err: cause}
}

// archiveRaw stores the raw provider output best effort; errors are logged only.
func (s *Service) archiveRaw(ctx context.Context, analysisID, raw string) {
	if s.Archive == nil {
		return
	}
	if _, err := s.Archive.SaveWithKey(ctx, rawArchiveKey(analysisID), "text/plain; charset=utf-8", strings.NewReader(raw)); err != nil {
		metrics.IncArchiveError()
		telemetry.Warn("analysis.archive_failed", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"analysis_id": analysisID,
			"error":       err,
		})
	}
}

func rawArchiveKey(analysisID string) string {
	return "raw/" + analysisID + ".txt"
}

func (s *Service) logStatus(ctx context.Context, a Analysis, transition string, extra map[string]any) {
	fields := map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"analysis_id":       a.ID,
		"subject_hash":      util.ShortHash(a.SubjectID),
		"provider":          a.Provider,
		"status":            a.Status,
		"status_transition": transition,
	}
	for k, v := range extra {
		fields[k] = v
	}
	telemetry.Info("analysis.status", fields)
}

func classifyFailure(err error) (code, reason, field string) {
	var cfgErr *provider.ConfigurationError
	var verr *assessment.ValidationError
	var perr *provider.ProviderError
	switch {
	case errors.As(err, &cfgErr):
		return ErrorCodeProviderConfig, "missing_setting", ""
	case provider.IsTimeout(err):
		return ErrorCodeProviderTimeout, string(provider.KindTimeout), ""
	case errors.As(err, &verr):
		return ErrorCodeOutputInvalid, verr.Reason, verr.Field
	case errors.As(err, &perr):
		return ErrorCodeProviderError, string(perr.Kind), ""
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeProviderTimeout, string(provider.KindTimeout), ""
	default:
		return ErrorCodeInternal, "", ""
	}
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}
