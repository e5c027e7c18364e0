// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"time"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

// ReadinessCheck represents a single readiness probe result used by handlers.
type ReadinessCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Details string `json:"details,omitempty"`
}

// Probe pings one dependency.
type Probe struct {
	Name string
	Ping func(ctx domain.Context) error
}

// HealthService runs readiness probes against the backing services.
type HealthService struct {
	Probes  []Probe
	Timeout time.Duration
}

// NewHealthService constructs a HealthService. A nil Ping marks the probe failed.
func NewHealthService(probes ...Probe) HealthService {
	return HealthService{Probes: probes, Timeout: 2 * time.Second}
}

// Readiness runs every probe with its own timeout.
func (s HealthService) Readiness(ctx domain.Context) []ReadinessCheck {
	checks := make([]ReadinessCheck, 0, len(s.Probes))
	for _, p := range s.Probes {
		c := ReadinessCheck{Name: p.Name, OK: true}
		if p.Ping == nil {
			c.OK, c.Details = false, "not configured"
			checks = append(checks, c)
			continue
		}
		timeout := s.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		if err := p.Ping(pctx); err != nil {
			c.OK, c.Details = false, err.Error()
		}
		cancel()
		checks = append(checks, c)
	}
	return checks
}

// Ready reports whether every check passed.
func Ready(checks []ReadinessCheck) bool {
	for _, c := range checks {
		if !c.OK {
			return false
		}
	}
	return true
}
