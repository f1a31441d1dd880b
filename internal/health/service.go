// Package health aggregates readiness checks.
package health

import "context"

// Checker reports availability of one component.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Status represents the aggregated health status.
type Status string

const (
	Healthy  Status = "ok"
	Degraded Status = "degraded"
)

// CheckResult is an individual component outcome.
type CheckResult string

const (
	CheckOK       CheckResult = "ok"
	CheckError    CheckResult = "error"
	CheckDisabled CheckResult = "disabled"
)

// Report aggregates check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
	Errors map[string]string      `json:"errors,omitempty"`
}

// Service runs named checks. A nil checker is reported as disabled.
type Service struct {
	checks map[string]Checker
}

// New creates a Service.
func New(checks map[string]Checker) *Service {
	return &Service{checks: checks}
}

// Check runs every check.
func (s *Service) Check(ctx context.Context) Report {
	r := Report{Status: Healthy, Checks: make(map[string]CheckResult, len(s.checks))}
	for name, c := range s.checks {
		if c == nil {
			r.Checks[name] = CheckDisabled
			continue
		}
		if err := c.Ping(ctx); err != nil {
			r.Checks[name] = CheckError
			if r.Errors == nil {
				r.Errors = make(map[string]string)
			}
			r.Errors[name] = err.Error()
			r.Status = Degraded
			continue
		}
		r.Checks[name] = CheckOK
	}
	return r
}
