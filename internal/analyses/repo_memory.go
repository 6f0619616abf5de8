package analyses

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRepo stores analyses in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]memoryEntry
	seq  uint64
}

type memoryEntry struct {
	analysis Analysis
	seq      uint64
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]memoryEntry)}
}

// Create stores the analysis.
func (r *MemoryRepo) Create(ctx context.Context, analysis Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[analysis.ID]; exists {
		return fmt.Errorf("analysis %s already exists", analysis.ID)
	}
	r.seq++
	r.byID[analysis.ID] = memoryEntry{analysis: analysis.clone(), seq: r.seq}
	return nil
}

// GetByID returns an analysis by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byID[analysisID]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return entry.analysis.clone(), nil
}

// Update applies patch under the write lock.
func (r *MemoryRepo) Update(ctx context.Context, analysisID string, patch Patch) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byID[analysisID]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	a := entry.analysis
	if patch.Status != nil {
		if a.Status != StatusAnalyzing {
			return Analysis{}, ErrStatusConflict
		}
		a.Status = *patch.Status
	}
	if patch.Result != nil {
		res := patch.Result.Clone()
		a.Result = &res
	}
	if patch.Failure != nil {
		f := *patch.Failure
		a.Failure = &f
	}
	if patch.Review != nil {
		a.Review = *patch.Review
	}
	if !patch.UpdatedAt.IsZero() {
		a.UpdatedAt = patch.UpdatedAt
	}
	entry.analysis = a.clone()
	r.byID[analysisID] = entry
	return a, nil
}

// ListRecent returns up to limit analyses, newest first.
func (r *MemoryRepo) ListRecent(ctx context.Context, limit int) ([]Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	entries := make([]memoryEntry, 0, len(r.byID))
	for _, entry := range r.byID {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.analysis.CreatedAt.Equal(b.analysis.CreatedAt) {
			return a.analysis.CreatedAt.After(b.analysis.CreatedAt)
		}
		return a.seq > b.seq
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]Analysis, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.analysis.clone())
	}
	return out, nil
}

var _ Repo = (*MemoryRepo)(nil)
