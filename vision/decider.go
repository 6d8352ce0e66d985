package vision

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls the decision loop.
type Config struct {
	MaxAttempts      int
	InitialMaxTokens int
	MaxTokensCap     int
	Backoff          Backoff
	// RequestsPerSecond throttles provider calls; zero disables the limiter.
	RequestsPerSecond float64
}

// DefaultConfig returns the default decision-loop settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		InitialMaxTokens: 600,
		MaxTokensCap:     2400,
		Backoff:          DefaultBackoff(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialMaxTokens <= 0 {
		c.InitialMaxTokens = def.InitialMaxTokens
	}
	if c.MaxTokensCap < c.InitialMaxTokens {
		c.MaxTokensCap = c.InitialMaxTokens
	}
	return c
}

// Decider wraps a Provider with the retry and fallback contract.
type Decider struct {
	provider Provider
	cfg      Config
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewDecider creates a Decider.
func NewDecider(provider Provider, cfg Config, logger *zap.Logger) *Decider {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Decider{
		provider: provider,
		cfg:      cfg.withDefaults(),
		logger:   logger.With(zap.String("component", "vision_decider")),
	}
	if d.cfg.RequestsPerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(d.cfg.RequestsPerSecond), 1)
	}
	return d
}

// Decide asks the provider to choose among req.Candidates. It never fails:
// when the provider cannot produce a usable reply the first unvisited
// candidate (or the first candidate) is returned with Fallback set.
func (d *Decider) Decide(ctx context.Context, req Request) Decision {
	if len(req.Candidates) == 0 {
		return Decision{Index: -1, Fallback: true, FallbackCause: "no_candidates"}
	}
	if d.provider == nil {
		return d.fallback(req, "no_provider", 0, 0)
	}

	prompt, images := BuildPrompt(req)
	budget := d.cfg.InitialMaxTokens
	last := FailureNone

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := d.cfg.Backoff.Delay(attempt - 1)
			d.logger.Debug("retrying vision call",
				zap.Int("attempt", attempt),
				zap.String("last_failure", last.String()),
				zap.Int("max_tokens", budget),
				zap.Duration("delay", delay))
			if err := sleep(ctx, delay); err != nil {
				return d.fallback(req, "cancelled", attempt-1, budget)
			}
		}
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return d.fallback(req, "cancelled", attempt-1, budget)
			}
		}

		start := time.Now()
		reply, err := d.provider.Complete(ctx, CompletionRequest{
			Prompt:    prompt,
			Images:    images,
			MaxTokens: budget,
		})
		if err == nil {
			var choice Choice
			choice, err = ParseReply(reply)
			if err == nil {
				d.logger.Debug("vision decision",
					zap.Int("attempt", attempt),
					zap.Int("index", choice.Index),
					zap.Duration("latency", time.Since(start)))
				return Decision{
					Index:     choice.Index,
					Rationale: choice.Rationale,
					Attempts:  attempt,
					MaxTokens: budget,
				}
			}
		}

		if ctx.Err() != nil {
			return d.fallback(req, "cancelled", attempt, budget)
		}
		last = Classify(err)
		d.logger.Warn("vision attempt failed",
			zap.Int("attempt", attempt),
			zap.String("kind", last.String()),
			zap.Error(err))
		if !last.Retryable() {
			return d.fallback(req, last.String(), attempt, budget)
		}
		budget = NextBudget(budget, last, d.cfg.MaxTokensCap)
	}

	return d.fallback(req, last.String(), d.cfg.MaxAttempts, budget)
}

func (d *Decider) fallback(req Request, cause string, attempts, budget int) Decision {
	idx := FallbackIndex(req.Candidates)
	d.logger.Info("using fallback decision",
		zap.String("cause", cause),
		zap.Int("index", idx),
		zap.Int("attempts", attempts))
	return Decision{
		Index:         idx,
		Rationale:     "fallback: " + cause,
		Fallback:      true,
		FallbackCause: cause,
		Attempts:      attempts,
		MaxTokens:     budget,
	}
}

// FallbackIndex returns the first unvisited candidate, or 0.
func FallbackIndex(cands []Candidate) int {
	for i, c := range cands {
		if !c.Visited {
			return i
		}
	}
	return 0
}
