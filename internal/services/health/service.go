package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

const defaultCheckTimeout = 2 * time.Second

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// Report is the health payload served at /api/health.
type Report struct {
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Service encapsulates health-related checks.
type Service struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
}

// NewService constructs a new health service.
func NewService() *Service {
	return &Service{checks: make(map[string]Check), timeout: defaultCheckTimeout}
}

// Register adds a named dependency check, replacing any check with that name.
func (s *Service) Register(name string, check Check) {
	if check == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Status runs every check concurrently, each bounded by the check timeout.
func (s *Service) Status(ctx context.Context) Report {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	checks := make(map[string]Check, len(s.checks))
	for name, check := range s.checks {
		checks[name] = check
	}
	s.mu.RUnlock()
	sort.Strings(names)

	report := Report{OK: true}
	if len(names) == 0 {
		return report
	}

	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			if err := check(checkCtx); err != nil {
				results[i] = err.Error()
				return
			}
			results[i] = "ok"
		}(i, checks[name])
	}
	wg.Wait()

	report.Checks = make(map[string]string, len(names))
	for i, name := range names {
		report.Checks[name] = results[i]
		if results[i] != "ok" {
			report.OK = false
		}
	}
	return report
}
