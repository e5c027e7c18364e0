package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/interview-prep/internal/domain"
	obsctx "github.com/fairyhunter13/interview-prep/internal/observability"
)

// Breaker gates calls to one provider.
type Breaker interface {
	ShouldAttempt() bool
	RecordSuccess()
	RecordFailure()
}

type alwaysClosed struct{}

func (alwaysClosed) ShouldAttempt() bool { return true }
func (alwaysClosed) RecordSuccess()      {}
func (alwaysClosed) RecordFailure()      {}

// Attempt records what happened with one provider during a generation.
type Attempt struct {
	Provider string `json:"provider"`
	Outcome  string `json:"outcome"`
	Reason   string `json:"reason,omitempty"`
	Returned int    `json:"returned"`
}

// Attempt outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// FallbackResult is a validated question set and how it was produced.
type FallbackResult struct {
	Questions  []domain.Question
	Provenance domain.Provenance
	Degraded   bool
	// Provider is the upstream provider whose output was accepted, or the
	// terminal provider name when none was.
	Provider  string
	Providers map[string]int
	Attempts  []Attempt
}

// FallbackController tries upstream providers in order and guarantees a
// plan-conforming set by topping up or replacing with the terminal provider.
type FallbackController struct {
	Providers []domain.QuestionProvider
	// Terminal must never fail; its output completes or replaces upstream sets.
	Terminal domain.QuestionProvider
	// Breakers returns the breaker for a provider name. Nil disables breaking.
	Breakers func(provider string) Breaker
	// Timeout returns the per-provider budget for a request of total questions.
	Timeout func(total int) time.Duration
	// Reserve is kept back from the caller's deadline for the terminal tier
	// and persistence. Zero means defaultReserve.
	Reserve  time.Duration
	Recorder Recorder
}

const defaultReserve = 5 * time.Second

// NewFallbackController constructs a FallbackController.
func NewFallbackController(providers []domain.QuestionProvider, terminal domain.QuestionProvider, breakers func(string) Breaker, timeout func(int) time.Duration, rec Recorder) FallbackController {
	return FallbackController{Providers: providers, Terminal: terminal, Breakers: breakers, Timeout: timeout, Recorder: rec}
}

// Preferring returns a copy of c with the named provider tried first. Unknown
// names leave the order unchanged.
func (c FallbackController) Preferring(name string) FallbackController {
	idx := -1
	for i, p := range c.Providers {
		if p.Name() == name {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return c
	}
	ordered := make([]domain.QuestionProvider, 0, len(c.Providers))
	ordered = append(ordered, c.Providers[idx])
	ordered = append(ordered, c.Providers[:idx]...)
	ordered = append(ordered, c.Providers[idx+1:]...)
	c.Providers = ordered
	return c
}

// Order lists the upstream provider names, then the terminal one.
func (c FallbackController) Order() []string {
	out := make([]string, 0, len(c.Providers)+1)
	for _, p := range c.Providers {
		out = append(out, p.Name())
	}
	if c.Terminal != nil {
		out = append(out, c.Terminal.Name())
	}
	return out
}

// Generate produces a set satisfying plan. Provider failures are logged and
// counted, never returned. Upstream calls are clamped to the caller's deadline
// minus Reserve, and the terminal tier runs detached from that deadline, so
// only explicit cancellation or a broken terminal provider produce an error.
func (c FallbackController) Generate(ctx context.Context, plan Plan, req domain.GenerationRequest) (FallbackResult, error) {
	lg := obsctx.LoggerFromContext(ctx)
	rec := recorderOrNop(c.Recorder)
	var attempts []Attempt

	for i, p := range c.Providers {
		if errors.Is(ctx.Err(), context.Canceled) {
			return FallbackResult{}, fmt.Errorf("op=fallback.Generate: %w", ctx.Err())
		}
		name := p.Name()
		budget, ok := c.budget(ctx, req.Total())
		if !ok {
			lg.Warn("request deadline reached, skipping remaining providers", slog.Int("skipped", len(c.Providers)-i))
			for _, rest := range c.Providers[i:] {
				rec.ProviderFallback(rest.Name(), "deadline")
				attempts = append(attempts, Attempt{Provider: rest.Name(), Outcome: OutcomeSkipped, Reason: "deadline"})
			}
			break
		}
		br := c.breaker(name)
		if !br.ShouldAttempt() {
			lg.Warn("provider skipped, circuit open", slog.String("provider", name))
			rec.ProviderFallback(name, "circuit_open")
			attempts = append(attempts, Attempt{Provider: name, Outcome: OutcomeSkipped, Reason: "circuit_open"})
			continue
		}

		questions, returned, reason, err := c.try(ctx, budget, p, plan, req)
		if err != nil {
			br.RecordFailure()
			lg.Warn("provider failed, falling back",
				slog.String("provider", name),
				slog.String("reason", reason),
				slog.Int("returned", returned),
				slog.Any("error", err))
			rec.ProviderFallback(name, reason)
			attempts = append(attempts, Attempt{Provider: name, Outcome: OutcomeFailed, Reason: reason, Returned: returned})
			continue
		}
		br.RecordSuccess()
		attempts = append(attempts, Attempt{Provider: name, Outcome: OutcomeAccepted, Returned: returned})
		lg.Info("questions generated", slog.String("provider", name), slog.Int("returned", returned), slog.Int("total", len(questions)))
		return FallbackResult{
			Questions:  questions,
			Provenance: domain.ProvenanceProvider,
			Provider:   name,
			Providers:  countProviders(questions),
			Attempts:   attempts,
		}, nil
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return FallbackResult{}, fmt.Errorf("op=fallback.Generate: %w", ctx.Err())
	}
	tctx, cancel := c.terminalContext(ctx)
	defer cancel()
	raw, err := c.Terminal.Generate(tctx, req)
	if err != nil {
		return FallbackResult{}, fmt.Errorf("%w: terminal provider failed: %v", domain.ErrInternal, err)
	}
	questions := plan.Fit(stamp(raw, c.Terminal.Name()))
	if err := plan.Validate(questions); err != nil {
		return FallbackResult{}, fmt.Errorf("%w: terminal provider output invalid: %v", domain.ErrInternal, err)
	}
	lg.Warn("all providers failed, serving degraded set", slog.Int("attempts", len(attempts)))
	return FallbackResult{
		Questions:  questions,
		Provenance: domain.ProvenanceFallback,
		Degraded:   true,
		Provider:   c.Terminal.Name(),
		Providers:  countProviders(questions),
		Attempts:   attempts,
	}, nil
}

func (c FallbackController) reserve() time.Duration {
	if c.Reserve > 0 {
		return c.Reserve
	}
	return defaultReserve
}

// budget is the per-provider timeout clamped to the caller's deadline minus
// the reserve. It reports false when no upstream time is left.
func (c FallbackController) budget(ctx context.Context, total int) (time.Duration, bool) {
	if ctx.Err() != nil {
		return 0, false
	}
	b := 30 * time.Second
	if c.Timeout != nil {
		b = c.Timeout(total)
	}
	if dl, ok := ctx.Deadline(); ok {
		left := time.Until(dl) - c.reserve()
		if left <= 0 {
			return 0, false
		}
		if left < b {
			b = left
		}
	}
	return b, true
}

// terminalContext keeps ctx values but not its deadline, bounded by the reserve.
func (c FallbackController) terminalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.reserve())
}

// try runs one provider under budget, fits its output and tops up any
// shortfall from the terminal provider.
func (c FallbackController) try(ctx context.Context, budget time.Duration, p domain.QuestionProvider, plan Plan, req domain.GenerationRequest) ([]domain.Question, int, string, error) {
	pctx, cancel := context.WithTimeout(ctx, budget)
	raw, err := p.Generate(pctx, req)
	cancel()
	if err != nil {
		return nil, 0, reasonOf(err), err
	}

	fitted := plan.Fit(stamp(raw, p.Name()))
	if len(fitted) == 0 {
		return nil, len(raw), "invalid_output", fmt.Errorf("%w: no usable questions", domain.ErrSchemaInvalid)
	}
	questions := fitted
	if short := plan.Shortfall(fitted); len(short) > 0 {
		topReq := req
		topReq.Quotas = short
		tctx, cancel := c.terminalContext(ctx)
		extra, err := c.Terminal.Generate(tctx, topReq)
		cancel()
		if err != nil {
			return nil, len(raw), "topup_failed", err
		}
		questions = plan.Merge(fitted, stamp(extra, c.Terminal.Name()))
	}
	if err := plan.Validate(questions); err != nil {
		return nil, len(raw), "quota_violation", err
	}
	return questions, len(raw), "", nil
}

func (c FallbackController) breaker(name string) Breaker {
	if c.Breakers == nil {
		return alwaysClosed{}
	}
	if b := c.Breakers(name); b != nil {
		return b
	}
	return alwaysClosed{}
}

// reasonOf extracts a metrics label from a provider error.
func reasonOf(err error) string {
	var r interface{ Reason() string }
	if errors.As(err, &r) {
		return r.Reason()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

func stamp(qs []domain.Question, provider string) []domain.Question {
	out := make([]domain.Question, len(qs))
	for i, q := range qs {
		if q.Provider == "" {
			q.Provider = provider
		}
		out[i] = q
	}
	return out
}

func countProviders(qs []domain.Question) map[string]int {
	out := make(map[string]int)
	for _, q := range qs {
		out[q.Provider]++
	}
	return out
}
