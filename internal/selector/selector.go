package selector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ferro-labs/llm-gateway/registry"
)

const defaultMaxRetries = 3

// RegistrySource is the subset of *registry.Registry the selector needs.
// Resolution and the ranked, filtered, preferred-head-moved plan are both
// delegated to the registry (C3); the selector's own job is the
// attempt-by-attempt failover loop over that plan.
type RegistrySource interface {
	Resolve(identifier string) (string, bool)
	SelectProviders(canonicalID string, strategy registry.Strategy, opts registry.SelectOptions) ([]registry.ProviderBinding, bool)
}

// HealthSink is the subset of *health.Tracker the selector needs to
// record attempt outcomes.
type HealthSink interface {
	RecordSuccess(canonical, provider string, latency time.Duration)
	RecordFailure(canonical, provider string)
}

// Attempt records one invocation of runFn against one binding.
type Attempt struct {
	Provider  string
	NativeID  string
	Start     time.Time
	End       time.Time
	Success   bool
	ErrorKind ErrorKind
	Error     string
}

// Outcome is the finalized record of one Execute call.
type Outcome[T any] struct {
	Success     bool
	CanonicalID string
	Provider    string
	NativeID    string
	Response    T
	Attempts    []Attempt
	Reason      ErrorKind
	LastError   error
}

// Options configures one Execute call.
type Options struct {
	Strategy         registry.Strategy
	Preferred        string
	RequiredFeatures []string
	MaxCostPerToken  *float64
	Excluded         map[string]bool
	MaxRetries       int
}

// Selector binds a registry and a health tracker together to run the
// failover algorithm in SPEC_FULL §5.3.
type Selector struct {
	registry RegistrySource
	health   HealthSink
	logger   *slog.Logger
}

// New constructs a Selector.
func New(reg RegistrySource, health HealthSink, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{registry: reg, health: health, logger: logger}
}

// RunFunc dispatches one attempt against a resolved provider binding. The
// request executor (C5) binds this to provider-adapter dispatch.
type RunFunc[T any] func(ctx context.Context, provider, nativeID string) (T, error)

// Execute runs the provider-selector-with-failover algorithm against
// identifier, calling runFn for each surviving binding in plan order until
// one succeeds, a non-retryable error occurs, or the plan is exhausted.
func Execute[T any](ctx context.Context, sel *Selector, identifier string, runFn RunFunc[T], opts Options) Outcome[T] {
	var zero T

	canonicalID, ok := sel.registry.Resolve(identifier)
	if !ok {
		return Outcome[T]{CanonicalID: identifier, Reason: KindUnknownModel}
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	plan, ok := sel.registry.SelectProviders(canonicalID, opts.Strategy, registry.SelectOptions{
		Preferred:        opts.Preferred,
		RequiredFeatures: opts.RequiredFeatures,
		MaxCostPerToken:  opts.MaxCostPerToken,
		Excluded:         opts.Excluded,
	})
	if !ok || len(plan) == 0 {
		return Outcome[T]{CanonicalID: canonicalID, Reason: KindNoAvailableProvider}
	}

	if len(plan) > maxRetries {
		plan = plan[:maxRetries]
	}

	out := Outcome[T]{CanonicalID: canonicalID}
	var lastErr error

	for _, binding := range plan {
		start := time.Now()
		resp, err := runFn(ctx, binding.Provider, binding.NativeID)
		end := time.Now()
		latency := end.Sub(start)

		if err == nil {
			if sel.health != nil {
				sel.health.RecordSuccess(canonicalID, binding.Provider, latency)
			}
			out.Attempts = append(out.Attempts, Attempt{
				Provider: binding.Provider, NativeID: binding.NativeID,
				Start: start, End: end, Success: true,
			})
			out.Success = true
			out.Provider = binding.Provider
			out.NativeID = binding.NativeID
			out.Response = resp
			return out
		}

		kind := classify(ctx, err)
		out.Attempts = append(out.Attempts, Attempt{
			Provider: binding.Provider, NativeID: binding.NativeID,
			Start: start, End: end, Success: false,
			ErrorKind: kind, Error: truncate(err.Error()),
		})
		lastErr = err

		switch kind {
		case KindCancelled:
			// Caller-initiated; no failure recorded, stop immediately.
			out.Reason = KindCancelled
			out.LastError = err
			return out
		case KindDeadlineExceeded:
			if sel.health != nil {
				sel.health.RecordFailure(canonicalID, binding.Provider)
			}
			out.Reason = KindDeadlineExceeded
			out.LastError = err
			return out
		default:
			if sel.health != nil {
				sel.health.RecordFailure(canonicalID, binding.Provider)
			}
			if !Retryable(kind) {
				out.Reason = kind
				out.LastError = err
				out.Response = zero
				return out
			}
		}
	}

	out.LastError = lastErr
	out.Reason = classify(ctx, lastErr)
	out.Response = zero
	return out
}

// classify turns a runFn error into an ErrorKind, special-casing context
// cancellation/deadline ahead of provider-declared classification.
func classify(ctx context.Context, err error) ErrorKind {
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindDeadlineExceeded
	}
	return KindOf(err)
}

func truncate(s string) string {
	if len(s) > rawMessageTruncateAt {
		return s[:rawMessageTruncateAt]
	}
	return s
}
