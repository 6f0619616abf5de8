package analyses

import (
	"time"

	"github.com/hddy2000/medical-beauty-ai-demo/internal/assessment"
)

// Record statuses. A record only ever moves from analyzing to one terminal status.
const (
	StatusAnalyzing = "analyzing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Review statuses.
const (
	ReviewPending   = "pending"
	ReviewConfirmed = "confirmed"
	ReviewRejected  = "rejected"
)

// ValidReviewStatus reports whether s is an accepted review status.
func ValidReviewStatus(s string) bool {
	switch s {
	case ReviewPending, ReviewConfirmed, ReviewRejected:
		return true
	}
	return false
}

// Analysis is one submission and its outcome. Result is set only when
// Status is completed; Failure only when it is failed.
type Analysis struct {
	ID           string             `json:"id" bson:"_id"`
	SubjectID    string             `json:"subjectId" bson:"subjectId"`
	VideoRef     string             `json:"videoRef" bson:"videoRef"`
	ThumbnailURL string             `json:"thumbnailUrl" bson:"thumbnailUrl"`
	Note         string             `json:"note" bson:"note"`
	Provider     string             `json:"provider,omitempty" bson:"provider,omitempty"`
	Model        string             `json:"model,omitempty" bson:"model,omitempty"`
	Status       string             `json:"status" bson:"status"`
	Result       *assessment.Result `json:"result,omitempty" bson:"result,omitempty"`
	Failure      *Failure           `json:"failure,omitempty" bson:"failure,omitempty"`
	Review       Review             `json:"review" bson:"review"`
	CreatedAt    time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Review is the clinician oversight state of a record.
type Review struct {
	Status     string     `json:"status" bson:"status"`
	Comment    string     `json:"comment" bson:"comment"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty" bson:"reviewedAt,omitempty"`
}

// Failure records why a record ended in failed. Message is sanitized and
// never carries provider output.
type Failure struct {
	Code    string `json:"code" bson:"code"`
	Reason  string `json:"reason,omitempty" bson:"reason,omitempty"`
	Field   string `json:"field,omitempty" bson:"field,omitempty"`
	Message string `json:"message" bson:"message"`
}

// Patch is a partial update applied atomically by a Repo. A non-nil Status
// only applies while the stored record is still analyzing.
type Patch struct {
	Status    *string
	Result    *assessment.Result
	Failure   *Failure
	Review    *Review
	UpdatedAt time.Time
}

func (a Analysis) clone() Analysis {
	out := a
	if a.Result != nil {
		res := a.Result.Clone()
		out.Result = &res
	}
	if a.Failure != nil {
		f := *a.Failure
		out.Failure = &f
	}
	if a.Review.ReviewedAt != nil {
		t := *a.Review.ReviewedAt
		out.Review.ReviewedAt = &t
	}
	return out
}

func stringPtr(s string) *string {
	return &s
}
