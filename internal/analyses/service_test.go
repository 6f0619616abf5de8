package analyses

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hddy2000/medical-beauty-ai-demo/internal/assessment"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/provider"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/provider/simulated"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/storage/object/local"
)

const goodOutput = `Assessment follows.
{"summary": "Mild redness on the chin",
 "symmetry": {"score": 88, "status": "normal", "description": "Balanced"},
 "redness": {"detected": true, "areas": ["chin"], "severity": "mild"},
 "swelling": {"detected": false, "confidence": 0.9},
 "riskLevel": "low", "confidence": 0.9, "needReview": false}`

const reviewOutput = `{"summary": "Asymmetric swelling",
 "symmetry": {"score": 64, "status": "abnormal"},
 "redness": {"detected": false, "severity": "none"},
 "swelling": {"detected": true, "confidence": 0.8},
 "riskLevel": "high", "confidence": 0.72, "needReview": true}`

type fakeProvider struct {
	mu        sync.Mutex
	raw       string
	err       error
	preflight error
	assess    func(ctx context.Context) (string, error)
	calls     int
	lastRef   string
	lastNote  string
}

func (p *fakeProvider) Assess(ctx context.Context, videoRef, note string) (string, error) {
	p.mu.Lock()
	p.calls++
	p.lastRef, p.lastNote = videoRef, note
	p.mu.Unlock()
	if p.assess != nil {
		return p.assess(ctx)
	}
	return p.raw, p.err
}

func (p *fakeProvider) Info() provider.Info {
	return provider.Info{Name: "fake", Model: "fake-1"}
}

func (p *fakeProvider) Preflight() error {
	return p.preflight
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// failingRepo wraps a MemoryRepo and fails selected writes.
type failingRepo struct {
	*MemoryRepo
	createErr   error
	completeErr error
	updates     []Patch
}

func (r *failingRepo) Create(ctx context.Context, a Analysis) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.MemoryRepo.Create(ctx, a)
}

func (r *failingRepo) Update(ctx context.Context, id string, patch Patch) (Analysis, error) {
	r.updates = append(r.updates, patch)
	if r.completeErr != nil && patch.Status != nil && *patch.Status == StatusCompleted {
		return Analysis{}, r.completeErr
	}
	return r.MemoryRepo.Update(ctx, id, patch)
}

type failingStore struct{}

func (failingStore) SaveWithKey(context.Context, string, string, io.Reader) (int64, error) {
	return 0, errors.New("disk full")
}

func (failingStore) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not found")
}

func newTestService(p provider.Provider) (*Service, *MemoryRepo) {
	repo := NewMemoryRepo()
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seq := 0
	return &Service{
		Repo:     repo,
		Provider: p,
		Now:      func() time.Time { return fixed },
		NewID: func() string {
			seq++
			return fmt.Sprintf("a-%d", seq)
		},
	}, repo
}

func TestSubmitCompletesAndConfirmsWhenNoReviewNeeded(t *testing.T) {
	p := &fakeProvider{raw: goodOutput}
	svc, repo := newTestService(p)

	got, err := svc.Submit(context.Background(), SubmitInput{SubjectID: " P1 ", VideoRef: "http://x/v.mp4", Note: "after filler"})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Nil(t, got.Failure)
	assert.Equal(t, assessment.RiskLow, got.Result.RiskLevel)
	assert.Equal(t, ReviewConfirmed, got.Review.Status)
	assert.Equal(t, "P1", got.SubjectID)
	assert.Equal(t, "fake", got.Provider)
	assert.Equal(t, "fake-1", got.Model)
	assert.Equal(t, "http://x/v.mp4", p.lastRef)
	assert.Equal(t, "after filler", p.lastNote)

	stored, err := repo.GetByID(context.Background(), got.ID)
	require.NoError(t, err)
	assert.Equal(t, got, stored)
}

func TestSubmitLeavesReviewPendingWhenFlagged(t *testing.T) {
	svc, _ := newTestService(&fakeProvider{raw: reviewOutput})

	got, err := svc.Submit(context.Background(), SubmitInput{SubjectID: "P1", VideoRef: "v.mp4"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, ReviewPending, got.Review.Status)
	assert.Equal(t, assessment.RiskHigh, got.Result.RiskLevel)
	assert.Equal(t, []string{}, got.Result.Redness.Areas)
}

func TestSubmitIntakeErrorsCreateNoRecord(t *testing.T) {
	cases := []struct {
		name    string
		in      SubmitInput
		missing []string
	}{
		{"no video", SubmitInput{SubjectID: "P1"}, []string{"videoRef"}},
		{"no subject", SubmitInput{VideoRef: "v.mp4"}, []string{"subjectId"}},
		{"blank both", SubmitInput{SubjectID: "  ", VideoRef: "\t"}, []string{"videoRef", "subjectId"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakeProvider{raw: goodOutput}
			svc, repo := newTestService(p)

			_, err := svc.Submit(context.Background(), tc.in)
			var intake *IntakeError
			require.ErrorAs(t, err, &intake)
			assert.Equal(t, tc.missing, intake.Missing)
			assert.Zero(t, p.callCount())

			items, err := repo.ListRecent(context.Background(), 10)
			require.NoError(t, err)
			assert.Empty(t, items)
		})
	}
}

func TestSubmitConfigurationErrorCreatesNoRecord(t *testing.T) {
	p := &fakeProvider{raw: goodOutput, preflight: &provider.ConfigurationError{Setting: "KIMI_API_KEY"}}
	svc, repo := newTestService(p)

	_, err := svc.Submit(context.Background(), SubmitInput{SubjectID: "P1", VideoRef: "v.mp4"})
	var cfgErr *provider.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.EqualError(t, err, "KIMI_API_KEY not set")
	assert.Zero(t, p.callCount())

	items, _ := repo.ListRecent(context.Background(), 10)
	assert.Empty(t, items)
}

func TestSubmitProviderTimeoutFailsRecord(t *testing.T) {
	p := &fakeProvider{err: &provider.ProviderError{Provider: "fake", Kind: provider.KindTimeout, Timeout: 30 * time.Second}}
	svc, repo := newTestService(p)

	got, err := svc.Submit(context.Background(), SubmitInput{SubjectID: "P1", VideoRef: "v.mp4"})
	var pipeErr *PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, ErrorCodeProviderTimeout, pipeErr.Code)
	assert.True(t, provider.IsTimeout(err))

	assert.Equal(t, StatusFailed, got.Status)
	assert.Nil(t, got.Result)
	require.NotNil(t, got.Failure)
	assert.Equal(t, ErrorCodeProviderTimeout, got.Failure.Code)
	assert.Equal(t, "fake request timed out after 30s", got.Failure.Message)
	assert.Equal(t, ReviewPending, got.Review.Status)

	stored, _ := repo.GetByID(context.Background(), got.ID)
	assert.Equal(t, StatusFailed, stored.Status)
}

func TestSubmitValidationFailures(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		reason string
		field  string
	}{
		{"no object", "I cannot assess this video.", assessment.ReasonNoStructuredPayload, ""},
		{"bad risk", strings.Replace(goodOutput, `"riskLevel": "low"`, `"riskLevel": "extreme"`, 1), assessment.ReasonInvalidEnum, "riskLevel"},
		{"score range", strings.Replace(goodOutput, `"score": 88`, `"score": 140`, 1), assessment.ReasonOutOfRange, "symmetry.score"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := newTestService(&fakeProvider{raw: tc.raw})

			got, err := svc.Submit(context.Background(), SubmitInput{SubjectID: "P1", VideoRef: "v.mp4"})
			var verr *assessment.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.reason, verr.Reason)

			assert.Equal(t, StatusFailed, got.Status)
			require.NotNil(t, got.Failure)
			assert.Equal(t, ErrorCodeOutputInvalid, got.Failure.Code)
			assert.Equal(t, tc.reason, got.Failure.Reason)
			assert.Equal(t, tc.field, got.Failure.Field)
			assert.Nil(t, got.Result)
		})
	}
}

func TestSubmitUpstreamErrorClassified(t *testing.T) {
	p := &fakeProvider{err: &provider.ProviderError{Provider: "fake", Kind: provider.KindUpstream, StatusCode: 502, Body: "bad gateway\nretry"}}
	svc, _ := newTestService(p)

	got, err := svc.Submit(context.Background(), SubmitInput{SubjectID: "P1", VideoRef: "v.mp4"})
	require.Error(t, err)
	assert.Equal(t, ErrorCodeProviderError, got.Failure.Code)
	assert.Equal(t, "upstream", got.Failure.Reason)
	assert.NotContains(t, got.Failure.Message, "\n")
	assert.Equal(t, 1, p.callCount())
}

func TestSubmitFinalizesAfterCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakeProvider{assess: func(context.Context) (string, error) {
		cancel()
		return goodOutput, nil
	}}
	svc, repo := newTestService(p)

	got, err := svc.Submit(ctx, SubmitInput{SubjectID: "P1", VideoRef: "v.mp4"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	stored, err := repo.GetByID(context.Background(), got.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
}

func TestSubmitCanceledProviderStillReachesTerminalStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakeProvider{assess: func(ctx context.Context) (string, error) {
		cancel()
		<-ctx.Done()
		return "", &provider.ProviderError{Provider: "fake", Kind: provider.KindCanceled, Err: ctx.Err()}
	}}
	svc, repo := newTestService(p)

	got, err := svc.Submit(ctx, SubmitInput{SubjectID: "P1", VideoRef: "v.mp4"})
	require.Error(t, err)
	assert.Equal(t, StatusFailed, got.Status)

	stored, _ := repo.GetByID(context.Background(), got.ID)
	assert.Equal(t, StatusFailed, stored.Status)
}

func TestSubmitCompletionWriteFailureMarksFailed(t *testing.T) {
	repo := &failingRepo{MemoryRepo: NewMemoryRepo(), completeErr: errors.New("connection reset")}
	svc := &Service{Repo: repo, Provider: &fakeProvider{raw: goodOutput}}

	_, err := svc.Submit(context.Background(), SubmitInput{SubjectID: "P1", VideoRef: "v.mp4"})
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "complete", perr.Op)

	items, _ := repo.ListRecent(context.Background(), 10)
	require.Len(t, items, 1)
	assert.Equal(t, StatusFailed, items[0].Status)
	assert.Equal(t, ErrorCodeInternal, items[0].Failure.Code)
	assert.Nil(t, items[0].Result)
}

func TestSubmitCreateFailureIsPersistenceError(t *testing.T) {
	p := &fakeProvider{raw: goodOutput}
	repo := &failingRepo{MemoryRepo: NewMemoryRepo(), createErr: errors.New("db down")}
	svc := &Service{Repo: repo, Provider: p}

	_, err := svc.Submit(context.Background(), SubmitInput{SubjectID: "P1", VideoRef: "v.mp4"})
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Zero(t, p.callCount())
}

func TestSubmitArchivesRawOutput(t *testing.T) {
	store := local.New(t.TempDir())
	svc, _ := newTestService(&fakeProvider{raw: goodOutput})
	svc.Archive = store

	got, err := svc.Submit(context.Background(), SubmitInput{SubjectID: "P1", VideoRef: "v.mp4"})
	require.NoError(t, err)

	rc, err := store.Open(context.Background(), "raw/"+got.ID+".txt")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, goodOutput, string(body))
}

func TestSubmitIgnoresArchiveFailure(t *testing.T) {
	svc, _ := newTestService(&fakeProvider{raw: goodOutput})
	svc.Archive = failingStore{}

	got, err := svc.Submit(context.Background(), SubmitInput{SubjectID: "P1", VideoRef: "v.mp4"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestSubmitWithSimulatedProviderAlwaysCompletes(t *testing.T) {
	svc, _ := newTestService(simulated.New(simulated.Options{Seed: 7}))

	for i := 0; i < 25; i++ {
		got, err := svc.Submit(context.Background(), SubmitInput{SubjectID: "P1", VideoRef: "http://x/v.mp4"})
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, got.Status)
		require.True(t, got.Result.RiskLevel.Valid())
		if got.Result.NeedReview {
			assert.Equal(t, ReviewPending, got.Review.Status)
		} else {
			assert.Equal(t, ReviewConfirmed, got.Review.Status)
		}
	}
}

func TestUpdateReview(t *testing.T) {
	svc, _ := newTestService(&fakeProvider{raw: reviewOutput})
	created, err := svc.Submit(context.Background(), SubmitInput{SubjectID: "P1", VideoRef: "v.mp4"})
	require.NoError(t, err)

	updated, err := svc.UpdateReview(context.Background(), ReviewInput{ID: created.ID, Status: ReviewRejected, Comment: "retake in daylight"})
	require.NoError(t, err)
	assert.Equal(t, ReviewRejected, updated.Review.Status)
	assert.Equal(t, "retake in daylight", updated.Review.Comment)
	require.NotNil(t, updated.Review.ReviewedAt)
	assert.Equal(t, StatusCompleted, updated.Status)
	assert.Equal(t, created.Result, updated.Result)

	again, err := svc.UpdateReview(context.Background(), ReviewInput{ID: created.ID, Status: ReviewConfirmed})
	require.NoError(t, err)
	assert.Equal(t, ReviewConfirmed, again.Review.Status)
	assert.Empty(t, again.Review.Comment)
}

func TestUpdateReviewOnFailedRecord(t *testing.T) {
	svc, _ := newTestService(&fakeProvider{raw: "nothing useful"})
	created, err := svc.Submit(context.Background(), SubmitInput{SubjectID: "P1", VideoRef: "v.mp4"})
	require.Error(t, err)

	updated, err := svc.UpdateReview(context.Background(), ReviewInput{ID: created.ID, Status: ReviewRejected})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, updated.Status)
	assert.Equal(t, ReviewRejected, updated.Review.Status)
}

func TestUpdateReviewErrors(t *testing.T) {
	svc, _ := newTestService(&fakeProvider{raw: goodOutput})

	_, err := svc.UpdateReview(context.Background(), ReviewInput{Status: ReviewConfirmed})
	var intake *IntakeError
	require.ErrorAs(t, err, &intake)
	assert.Equal(t, []string{"id"}, intake.Missing)

	_, err = svc.UpdateReview(context.Background(), ReviewInput{ID: "a-1", Status: "approved"})
	require.ErrorAs(t, err, &intake)
	assert.Equal(t, "status", intake.Field)

	_, err = svc.UpdateReview(context.Background(), ReviewInput{ID: "missing", Status: ReviewConfirmed})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRecentClampsLimit(t *testing.T) {
	svc, repo := newTestService(&fakeProvider{raw: goodOutput})
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		require.NoError(t, repo.Create(context.Background(), Analysis{
			ID:        fmt.Sprintf("r-%02d", i),
			Status:    StatusAnalyzing,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	items, err := svc.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, items, DefaultListLimit)
	assert.Equal(t, "r-59", items[0].ID)

	items, err = svc.ListRecent(context.Background(), 500)
	require.NoError(t, err)
	assert.Len(t, items, MaxListLimit)

	items, err = svc.ListRecent(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"r-59", "r-58", "r-57"}, []string{items[0].ID, items[1].ID, items[2].ID})
}

func TestGetUnknownIsNotFound(t *testing.T) {
	svc, _ := newTestService(&fakeProvider{raw: goodOutput})
	_, err := svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Get(context.Background(), " ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateReviewRejectedWhileAnalyzing(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := &fakeProvider{assess: func(context.Context) (string, error) {
		close(started)
		<-release
		return goodOutput, nil
	}}
	svc, repo := newTestService(p)

	type outcome struct {
		got Analysis
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		got, err := svc.Submit(context.Background(), SubmitInput{SubjectID: "P1", VideoRef: "v.mp4"})
		done <- outcome{got, err}
	}()
	<-started

	items, err := repo.ListRecent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, StatusAnalyzing, items[0].Status)

	_, err = svc.UpdateReview(context.Background(), ReviewInput{ID: items[0].ID, Status: ReviewRejected, Comment: "bad video"})
	assert.ErrorIs(t, err, ErrAnalysisInProgress)

	close(release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, StatusCompleted, res.got.Status)
	assert.Equal(t, ReviewConfirmed, res.got.Review.Status)

	// Once terminal, the clinician verdict sticks.
	reviewed, err := svc.UpdateReview(context.Background(), ReviewInput{ID: res.got.ID, Status: ReviewRejected, Comment: "bad video"})
	require.NoError(t, err)
	stored, err := repo.GetByID(context.Background(), res.got.ID)
	require.NoError(t, err)
	assert.Equal(t, reviewed, stored)
	assert.Equal(t, ReviewRejected, stored.Review.Status)
	assert.Equal(t, "bad video", stored.Review.Comment)
	assert.NotNil(t, stored.Review.ReviewedAt)
}
