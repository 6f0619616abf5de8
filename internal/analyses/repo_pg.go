package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hddy2000/medical-beauty-ai-demo/internal/assessment"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const analysisColumns = `id, subject_id, video_ref, thumbnail_url, note, provider, model, status, result,
       failure_code, failure_reason, failure_field, failure_message,
       review_status, review_comment, reviewed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts a new analysis.
func (r *PGRepo) Create(ctx context.Context, analysis Analysis) error {
	const query = `
INSERT INTO analyses (
	id, subject_id, video_ref, thumbnail_url, note, provider, model, status, result,
	review_status, review_comment, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	resultPayload, err := marshalJSONB(analysis.Result)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		analysis.ID,
		analysis.SubjectID,
		analysis.VideoRef,
		analysis.ThumbnailURL,
		analysis.Note,
		analysis.Provider,
		analysis.Model,
		analysis.Status,
		resultPayload,
		analysis.Review.Status,
		analysis.Review.Comment,
		analysis.CreatedAt,
		analysis.UpdatedAt,
	)
	return err
}

// GetByID returns an analysis by ID.
func (r *PGRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	if _, err := uuid.Parse(analysisID); err != nil {
		return Analysis{}, ErrNotFound
	}
	query := `SELECT ` + analysisColumns + ` FROM analyses WHERE id = $1 LIMIT 1`
	a, err := scanAnalysis(r.DB.QueryRowContext(ctx, query, analysisID))
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	return a, err
}

// Update applies patch in a single statement. The status guard lives in the
// WHERE clause, so concurrent finalizers cannot both win.
func (r *PGRepo) Update(ctx context.Context, analysisID string, patch Patch) (Analysis, error) {
	if _, err := uuid.Parse(analysisID); err != nil {
		return Analysis{}, ErrNotFound
	}
	query := `
UPDATE analyses
SET status          = COALESCE($2::text, status),
    result          = COALESCE($3::jsonb, result),
    failure_code    = COALESCE($4::text, failure_code),
    failure_reason  = COALESCE($5::text, failure_reason),
    failure_field   = COALESCE($6::text, failure_field),
    failure_message = COALESCE($7::text, failure_message),
    review_status   = COALESCE($8::text, review_status),
    review_comment  = CASE WHEN $8::text IS NULL THEN review_comment ELSE $9::text END,
    reviewed_at     = CASE WHEN $8::text IS NULL THEN reviewed_at ELSE $10::timestamptz END,
    updated_at      = $11
WHERE id = $1 AND ($2::text IS NULL OR status = 'analyzing')
RETURNING ` + analysisColumns

	var resultPayload any
	if patch.Result != nil {
		raw, err := json.Marshal(patch.Result)
		if err != nil {
			return Analysis{}, fmt.Errorf("marshal result: %w", err)
		}
		resultPayload = raw
	}
	var failureCode, failureReason, failureField, failureMessage any
	if f := patch.Failure; f != nil {
		failureCode, failureReason, failureField, failureMessage = f.Code, f.Reason, f.Field, f.Message
	}
	var reviewStatus, reviewComment, reviewedAt any
	if rv := patch.Review; rv != nil {
		reviewStatus, reviewComment = rv.Status, rv.Comment
		if rv.ReviewedAt != nil {
			reviewedAt = *rv.ReviewedAt
		}
	}
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	a, err := scanAnalysis(r.DB.QueryRowContext(ctx, query,
		analysisID,
		nullableString(patch.Status),
		resultPayload,
		failureCode,
		failureReason,
		failureField,
		failureMessage,
		reviewStatus,
		reviewComment,
		reviewedAt,
		updatedAt,
	))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, analysisID); getErr != nil {
			return Analysis{}, getErr
		}
		return Analysis{}, ErrStatusConflict
	}
	return a, err
}

// ListRecent returns up to limit analyses, newest first.
func (r *PGRepo) ListRecent(ctx context.Context, limit int) ([]Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM analyses ORDER BY created_at DESC, id DESC LIMIT $1`
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var a Analysis
	var result sql.NullString
	var failureCode sql.NullString
	var failureReason sql.NullString
	var failureField sql.NullString
	var failureMessage sql.NullString
	var reviewedAt sql.NullTime
	err := row.Scan(
		&a.ID,
		&a.SubjectID,
		&a.VideoRef,
		&a.ThumbnailURL,
		&a.Note,
		&a.Provider,
		&a.Model,
		&a.Status,
		&result,
		&failureCode,
		&failureReason,
		&failureField,
		&failureMessage,
		&a.Review.Status,
		&a.Review.Comment,
		&reviewedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return Analysis{}, err
	}
	if result.Valid && result.String != "" {
		var res assessment.Result
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return Analysis{}, fmt.Errorf("decode result for %s: %w", a.ID, err)
		}
		if res.Redness.Areas == nil {
			res.Redness.Areas = []string{}
		}
		a.Result = &res
	}
	if failureCode.Valid {
		a.Failure = &Failure{
			Code:    failureCode.String,
			Reason:  failureReason.String,
			Field:   failureField.String,
			Message: failureMessage.String,
		}
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		a.Review.ReviewedAt = &t
	}
	return a, nil
}

func marshalJSONB(value *assessment.Result) (any, error) {
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

var _ Repo = (*PGRepo)(nil)
