package analyses

import "context"

// Repo persists analyses. Update applies a Patch atomically and returns the
// stored record afterwards; it returns ErrNotFound for unknown ids and
// ErrStatusConflict when a status patch hits a finalized record.
type Repo interface {
	Create(ctx context.Context, analysis Analysis) error
	GetByID(ctx context.Context, id string) (Analysis, error)
	Update(ctx context.Context, id string, patch Patch) (Analysis, error)
	ListRecent(ctx context.Context, limit int) ([]Analysis, error)
}
