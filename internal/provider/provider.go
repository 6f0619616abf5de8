package provider

import "context"

// Provider produces a raw textual assessment for a video reference.
// Implementations make at most one attempt per call.
type Provider interface {
	Assess(ctx context.Context, videoRef, note string) (string, error)
	Info() Info
}

// Info identifies which variant and model produced a verdict.
type Info struct {
	Name  string
	Model string
}

// Preflighter is implemented by providers that can report missing
// configuration before any work is started.
type Preflighter interface {
	Preflight() error
}

// Preflight runs p's preflight check when it has one.
func Preflight(p Provider) error {
	if pf, ok := p.(Preflighter); ok {
		return pf.Preflight()
	}
	return nil
}
