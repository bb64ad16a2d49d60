// Package fallback implements the layered degradation mechanism: an
// ordered chain of adapters per capability, driven strictly in order
// with a per-tier time bound, terminated by a static payload that
// cannot fail. The chain therefore always produces some result and no
// adapter fault propagates to the caller.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/havenai/haven/pkg/utils"
)

var (
	// ErrTierTimeout marks a tier that exceeded its time bound. The
	// in-flight call is cancelled best-effort and the chain advances.
	ErrTierTimeout = errors.New("tier timed out")

	// ErrInvalidOutput marks a tier whose output failed the chain's
	// validity predicate (blank text, zero-length audio, ...).
	ErrInvalidOutput = errors.New("tier returned unusable output")
)

// StaticTier is the name recorded when the terminal fallback served.
const StaticTier = "static"

// Adapter wraps one external capability tier behind a uniform call
// contract. Call must honor ctx cancellation; the executor still
// guarantees forward progress if it does not.
type Adapter[I, O any] interface {
	Name() string
	Call(ctx context.Context, in I) (O, error)
}

type adapterFunc[I, O any] struct {
	name string
	fn   func(ctx context.Context, in I) (O, error)
}

func (a *adapterFunc[I, O]) Name() string { return a.name }

func (a *adapterFunc[I, O]) Call(ctx context.Context, in I) (O, error) {
	return a.fn(ctx, in)
}

// AdapterFunc adapts a plain function into an Adapter.
func AdapterFunc[I, O any](name string, fn func(ctx context.Context, in I) (O, error)) Adapter[I, O] {
	return &adapterFunc[I, O]{name: name, fn: fn}
}

// TierAttempt records one attempted tier for observability.
type TierAttempt struct {
	Tier    string        `json:"tier"`
	Elapsed time.Duration `json:"elapsed"`
	OK      bool          `json:"ok"`
	Err     string        `json:"err,omitempty"`
}

// Outcome is the uniform result record of one chain run. Not persisted
// beyond logging and metrics.
type Outcome[O any] struct {
	Result   O
	Tier     string
	Static   bool
	Attempts []TierAttempt
}

// Chain drives an ordered list of adapters for one capability,
// first success wins. Tiers run strictly sequentially: a tier is only
// attempted after the prior one is confirmed failed, so the chain never
// pays for an expensive tier when a cheaper one already succeeded.
type Chain[I, O any] struct {
	capability string
	tiers      []Adapter[I, O]
	timeout    time.Duration
	valid      func(O) bool
	static     func(I) O
	logger     *slog.Logger
}

// NewChain builds a chain. valid may be nil (any non-error output is
// usable). static is the terminal tier: it runs locally, performs no
// external call, and by construction cannot fail.
func NewChain[I, O any](capability string, timeout time.Duration, valid func(O) bool, static func(I) O, tiers ...Adapter[I, O]) *Chain[I, O] {
	if static == nil {
		panic(fmt.Sprintf("fallback chain %q declared without a static tier", capability))
	}
	return &Chain[I, O]{
		capability: capability,
		tiers:      tiers,
		timeout:    timeout,
		valid:      valid,
		static:     static,
		logger:     utils.GetLogger(),
	}
}

// Capability returns the capability this chain serves.
func (c *Chain[I, O]) Capability() string { return c.capability }

// Run attempts the declared tiers in order and returns the first usable
// result, falling through to the static payload when every tier fails.
// Run never returns an error and never panics on adapter faults.
func (c *Chain[I, O]) Run(ctx context.Context, in I) Outcome[O] {
	outcome := Outcome[O]{}

	for _, tier := range c.tiers {
		start := time.Now()
		result, err := c.attempt(ctx, tier, in)
		elapsed := time.Since(start)

		observeTier(c.capability, tier.Name(), elapsed, err == nil)

		if err != nil {
			outcome.Attempts = append(outcome.Attempts, TierAttempt{
				Tier:    tier.Name(),
				Elapsed: elapsed,
				OK:      false,
				Err:     err.Error(),
			})
			c.logger.Warn("fallback tier failed",
				"capability", c.capability,
				"tier", tier.Name(),
				"elapsed", elapsed,
				"error", err)
			continue
		}

		outcome.Attempts = append(outcome.Attempts, TierAttempt{
			Tier:    tier.Name(),
			Elapsed: elapsed,
			OK:      true,
		})
		outcome.Result = result
		outcome.Tier = tier.Name()
		observeServed(c.capability, tier.Name())
		return outcome
	}

	// Terminal static fallback: local, call-free, cannot fail.
	outcome.Result = c.static(in)
	outcome.Tier = StaticTier
	outcome.Static = true
	outcome.Attempts = append(outcome.Attempts, TierAttempt{Tier: StaticTier, OK: true})
	observeServed(c.capability, StaticTier)

	c.logger.Warn("all tiers failed, static fallback served",
		"capability", c.capability,
		"attempts", len(outcome.Attempts)-1)
	return outcome
}

// attempt runs one tier under the per-tier time bound. The call runs in
// its own goroutine so a tier that ignores ctx cannot stall the chain;
// cancellation of the remote side is best-effort.
func (c *Chain[I, O]) attempt(ctx context.Context, tier Adapter[I, O], in I) (O, error) {
	var zero O

	tierCtx := ctx
	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		tierCtx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	defer cancel()

	type callResult struct {
		out O
		err error
	}
	done := make(chan callResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: fmt.Errorf("tier panicked: %v", r)}
			}
		}()
		out, err := tier.Call(tierCtx, in)
		done <- callResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return zero, res.err
		}
		if c.valid != nil && !c.valid(res.out) {
			return zero, ErrInvalidOutput
		}
		return res.out, nil
	case <-tierCtx.Done():
		if errors.Is(tierCtx.Err(), context.DeadlineExceeded) {
			return zero, ErrTierTimeout
		}
		return zero, tierCtx.Err()
	}
}
