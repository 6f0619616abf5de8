package simulated

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/hddy2000/medical-beauty-ai-demo/internal/assessment"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/provider"
)

const (
	Name  = "simulated"
	model = "simulated-v1"
)

var faceRegions = []string{"forehead", "left cheek", "right cheek", "nose", "chin", "eyelids", "jawline", "lips"}

// Options configures the simulated provider. A zero Seed seeds from the clock.
type Options struct {
	Seed    uint64
	Latency time.Duration
}

// Provider fabricates plausible assessments without any remote call.
type Provider struct {
	mu      sync.Mutex
	rng     *rand.Rand
	latency time.Duration
}

func New(opts Options) *Provider {
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Provider{
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		latency: opts.Latency,
	}
}

func (p *Provider) Info() provider.Info {
	return provider.Info{Name: Name, Model: model}
}

// Assess returns a JSON-encoded assessment.
func (p *Provider) Assess(ctx context.Context, videoRef, note string) (string, error) {
	if strings.TrimSpace(videoRef) == "" {
		return "", &provider.ProviderError{Provider: Name, Kind: provider.KindTransport, Err: provider.ErrEmptyVideoRef}
	}
	if err := p.wait(ctx); err != nil {
		return "", err
	}

	p.mu.Lock()
	res := generate(p.rng, note)
	p.mu.Unlock()

	raw, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("encode simulated result: %w", err)
	}
	return string(raw), nil
}

func (p *Provider) wait(ctx context.Context) error {
	if p.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		kind := provider.KindCanceled
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = provider.KindTimeout
		}
		return &provider.ProviderError{Provider: Name, Kind: kind, Err: ctx.Err()}
	}
}

// generate draws a verdict whose risk and review flag track the findings:
// any redness, swelling or a symmetry score under 75 lifts the risk above
// low and requires review.
func generate(rng *rand.Rand, note string) assessment.Result {
	score := 60 + rng.IntN(41)
	symStatus := assessment.SymmetryNormal
	symDesc := "Facial contours look balanced on both sides."
	if score < 75 {
		symStatus = assessment.SymmetryAbnormal
		symDesc = "Noticeable asymmetry between the left and right side."
	}

	redness := assessment.Redness{Areas: []string{}, Severity: assessment.SeverityNone}
	if rng.Float64() < 0.35 {
		redness.Detected = true
		switch roll := rng.Float64(); {
		case roll < 0.6:
			redness.Severity = assessment.SeverityMild
		case roll < 0.9:
			redness.Severity = assessment.SeverityModerate
		default:
			redness.Severity = assessment.SeveritySevere
		}
		first := rng.IntN(len(faceRegions))
		redness.Areas = append(redness.Areas, faceRegions[first])
		if rng.IntN(2) == 1 {
			if second := rng.IntN(len(faceRegions)); second != first {
				redness.Areas = append(redness.Areas, faceRegions[second])
			}
		}
	}

	swelling := assessment.Swelling{Confidence: round2(0.80 + rng.Float64()*0.18)}
	if rng.Float64() < 0.3 {
		swelling.Detected = true
		swelling.Confidence = round2(0.65 + rng.Float64()*0.30)
	}

	points := 0
	switch redness.Severity {
	case assessment.SeverityMild:
		points++
	case assessment.SeverityModerate:
		points += 2
	case assessment.SeveritySevere:
		points += 3
	}
	if swelling.Detected {
		points++
		if swelling.Confidence > 0.85 {
			points++
		}
	}
	if score < 75 {
		points++
	}
	if score < 65 {
		points++
	}

	risk := assessment.RiskLow
	switch {
	case points >= 3:
		risk = assessment.RiskHigh
	case points >= 1:
		risk = assessment.RiskMedium
	}

	confidence := round2(0.70 + rng.Float64()*0.25)
	needReview := risk != assessment.RiskLow || confidence < 0.75

	return assessment.Result{
		Summary:    summarize(risk, redness, swelling, note),
		Symmetry:   assessment.Symmetry{Score: score, Status: symStatus, Description: symDesc},
		Redness:    redness,
		Swelling:   swelling,
		RiskLevel:  risk,
		Confidence: confidence,
		NeedReview: needReview,
	}
}

func summarize(risk assessment.RiskLevel, redness assessment.Redness, swelling assessment.Swelling, note string) string {
	var parts []string
	switch risk {
	case assessment.RiskLow:
		parts = append(parts, "Recovery looks on track with no notable findings.")
	case assessment.RiskMedium:
		parts = append(parts, "Some findings warrant a follow-up check.")
	default:
		parts = append(parts, "Several findings need prompt clinical attention.")
	}
	if redness.Detected {
		parts = append(parts, fmt.Sprintf("%s redness around %s.", capitalize(string(redness.Severity)), strings.Join(redness.Areas, " and ")))
	}
	if swelling.Detected {
		parts = append(parts, "Swelling is visible.")
	}
	if strings.TrimSpace(note) != "" {
		parts = append(parts, "Patient note was taken into account.")
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

var _ provider.Provider = (*Provider)(nil)
