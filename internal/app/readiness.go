package app

import (
	"context"

	"github.com/fairyhunter13/interview-prep/internal/domain"
	"github.com/fairyhunter13/interview-prep/internal/usecase"
)

// Pinger is anything with a context-aware Ping, such as lock.RedisLease.
type Pinger interface{ Ping(ctx context.Context) error }

// BuildProbes returns the readiness probes: the store always, Redis when a
// lease client is configured.
func BuildProbes(st domain.Store, redis Pinger) []usecase.Probe {
	probes := []usecase.Probe{{Name: "store", Ping: st.Ping}}
	if redis != nil {
		probes = append(probes, usecase.Probe{Name: "redis", Ping: redis.Ping})
	}
	return probes
}
