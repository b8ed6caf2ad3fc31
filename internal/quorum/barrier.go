// SPDX-License-Identifier: Apache-2.0

package quorum

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/joomcode/errorx"
	"github.com/rs/zerolog"

	"github.com/hashgraph/solo-stager/internal/core"
)

const (
	keyPrefix = "stager:quorum:"

	stateWaiting  = "waiting"
	stateReleased = "released"
	claimPrefix   = "claimed:"

	// DefaultTimeout bounds how long a caller waits for the rest of the
	// quorum before failing locally.
	DefaultTimeout = 10 * time.Minute

	// DefaultTTL is how long round state survives in the backend. It must
	// outlive the slowest expected round so late arrivals still observe the
	// release, and must lapse before the same fingerprint is legitimately
	// reused by a distinct round.
	DefaultTTL = time.Hour

	defaultPollInterval    = 250 * time.Millisecond
	defaultMaxPollInterval = 5 * time.Second
)

// ApplyFunc performs the gated work, typically handing the filtered plan to
// the migration executor.
type ApplyFunc func(ctx context.Context) error

// Barrier is an N-party rendezvous keyed by a plan fingerprint.
//
// Every caller arrives by atomically incrementing the round counter. The
// caller whose own increment reaches the target claims the round with a
// single conditional swap, runs the apply callback, and releases; everyone
// else polls until the release or their timeout. If the claimant's apply
// fails it reverts the round to waiting, so the remaining waiters time out
// instead of blocking forever and a retry can still finish the round.
type Barrier struct {
	backend         Backend
	logger          *zerolog.Logger
	callerID        string
	timeout         time.Duration
	ttl             time.Duration
	pollInterval    time.Duration
	maxPollInterval time.Duration

	// arrivals records this caller's post-increment counter value per
	// fingerprint. A retried arrival reuses the recorded value instead of
	// incrementing again, which keeps the counter from overshooting the
	// target on retries alone.
	mu       sync.Mutex
	arrivals map[string]int64
}

// BarrierOption configures a Barrier.
type BarrierOption func(*Barrier)

// WithCallerID sets a stable identity for this caller, visible in the claim
// marker. Defaults to a random identifier.
func WithCallerID(id string) BarrierOption {
	return func(b *Barrier) {
		b.callerID = id
	}
}

// WithTimeout bounds the wait for the rest of the quorum. A timed out caller
// leaves the shared counter untouched, so a retry with the same fingerprint
// can still reach the target.
func WithTimeout(timeout time.Duration) BarrierOption {
	return func(b *Barrier) {
		b.timeout = timeout
	}
}

// WithTTL sets how long round state survives in the backend.
func WithTTL(ttl time.Duration) BarrierOption {
	return func(b *Barrier) {
		b.ttl = ttl
	}
}

// WithPollInterval sets the initial and maximum polling intervals of the
// wait loop.
func WithPollInterval(initial, max time.Duration) BarrierOption {
	return func(b *Barrier) {
		b.pollInterval = initial
		b.maxPollInterval = max
	}
}

// WithBarrierLogger sets the logger for the barrier.
func WithBarrierLogger(logger *zerolog.Logger) BarrierOption {
	return func(b *Barrier) {
		b.logger = logger
	}
}

// NewBarrier creates a barrier on the given backend.
func NewBarrier(backend Backend, opts ...BarrierOption) *Barrier {
	nop := zerolog.Nop()
	b := &Barrier{
		backend:         backend,
		logger:          &nop,
		callerID:        uuid.NewString(),
		timeout:         DefaultTimeout,
		ttl:             DefaultTTL,
		pollInterval:    defaultPollInterval,
		maxPollInterval: defaultMaxPollInterval,
		arrivals:        make(map[string]int64),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

func countKey(fingerprint string) string {
	return keyPrefix + fingerprint + ":count"
}

func stateKey(fingerprint string) string {
	return keyPrefix + fingerprint + ":state"
}

// Arrive joins the round for the given fingerprint and blocks until the
// round is released or the timeout elapses. Exactly one of the arriving
// callers runs apply; every caller that returns nil may rely on the plan
// having been applied exactly once.
func (b *Barrier) Arrive(ctx context.Context, fingerprint string, target int, apply ApplyFunc) error {
	if target < 1 {
		return errorx.IllegalArgument.New("quorum target must be at least 1, got %d", target)
	}

	// A retried arrival after the release returns without touching the
	// counter, so the tail of a finished round cannot bleed into a later
	// round reusing this fingerprint.
	if released, err := b.isReleased(ctx, fingerprint); err != nil {
		return err
	} else if released {
		return nil
	}

	arrival, err := b.register(ctx, fingerprint)
	if err != nil {
		return err
	}

	b.logger.Info().
		Str("fingerprint", fingerprint).
		Int64("arrival", arrival).
		Int("target", target).
		Msg("Joined quorum round")

	if arrival == int64(target) {
		claimed, err := b.claim(ctx, fingerprint)
		if err != nil {
			return err
		}
		if claimed {
			return b.applyAndRelease(ctx, fingerprint, apply)
		}
	}

	return b.wait(ctx, fingerprint)
}

// register increments the round counter once per logical arrival. Repeated
// calls for the same fingerprint reuse the recorded value.
func (b *Barrier) register(ctx context.Context, fingerprint string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if arrival, ok := b.arrivals[fingerprint]; ok {
		return arrival, nil
	}

	if _, err := b.backend.CompareAndSet(ctx, stateKey(fingerprint), "", stateWaiting, b.ttl); err != nil {
		return 0, err
	}
	arrival, err := b.backend.IncrementAndGet(ctx, countKey(fingerprint), b.ttl)
	if err != nil {
		return 0, err
	}
	b.arrivals[fingerprint] = arrival
	return arrival, nil
}

// claim attempts the single conditional transition from waiting to claimed.
// Of any concurrently tied callers exactly one wins.
func (b *Barrier) claim(ctx context.Context, fingerprint string) (bool, error) {
	return b.backend.CompareAndSet(ctx, stateKey(fingerprint), stateWaiting, claimPrefix+b.callerID, b.ttl)
}

func (b *Barrier) applyAndRelease(ctx context.Context, fingerprint string, apply ApplyFunc) error {
	b.logger.Info().
		Str("fingerprint", fingerprint).
		Str("caller", b.callerID).
		Msg("Quorum reached, claimed plan application")

	if err := apply(ctx); err != nil {
		// Hand the round back so a retry can claim it again. The waiters
		// run into their timeouts rather than blocking forever.
		if _, revertErr := b.backend.CompareAndSet(
			ctx, stateKey(fingerprint), claimPrefix+b.callerID, stateWaiting, b.ttl); revertErr != nil {
			b.logger.Error().Err(revertErr).
				Str("fingerprint", fingerprint).
				Msg("Failed to revert claim after apply failure")
		}
		return core.ApplyFailure.Wrap(err, "claimed plan application failed for %s", fingerprint)
	}

	swapped, err := b.backend.CompareAndSet(
		ctx, stateKey(fingerprint), claimPrefix+b.callerID, stateReleased, b.ttl)
	if err != nil {
		return err
	}
	if !swapped {
		return core.QuorumBackendError.New("lost claim on %s while applying, round state is corrupt", fingerprint)
	}

	b.logger.Info().
		Str("fingerprint", fingerprint).
		Msg("Released quorum round")
	return nil
}

func (b *Barrier) isReleased(ctx context.Context, fingerprint string) (bool, error) {
	state, ok, err := b.backend.Get(ctx, stateKey(fingerprint))
	if err != nil {
		return false, err
	}
	return ok && state == stateReleased, nil
}

// wait polls the round state with bounded exponential backoff until the
// release or the timeout. Cancellation leaves the shared state untouched.
func (b *Barrier) wait(ctx context.Context, fingerprint string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.pollInterval
	bo.MaxInterval = b.maxPollInterval
	bo.MaxElapsedTime = b.timeout

	notReleased := fmt.Errorf("round %s not released", fingerprint)
	err := backoff.Retry(func() error {
		released, err := b.isReleased(ctx, fingerprint)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !released {
			return notReleased
		}
		return nil
	}, backoff.WithContext(bo, ctx))

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errorx.ExternalError.Wrap(ctxErr, "interrupted while waiting for quorum on %s", fingerprint)
	}
	if permanent, ok := err.(*errorx.Error); ok {
		return permanent
	}
	return core.QuorumTimeout.New("quorum for %s not reached within %s", fingerprint, b.timeout)
}
