package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Observer is notified of every completed check. err is non-nil when the
// check could not be decided.
type Observer func(ctx context.Context, v Verdict, err error)

// Gate runs quota checks against a CounterStore. A Gate is immutable after
// NewGate returns and safe for concurrent use.
type Gate struct {
	store     CounterStore
	policy    Policy
	keyPrefix string
	now       func() time.Time
	logger    *slog.Logger
	observe   Observer
}

type GateOption func(*Gate)

// WithClock overrides the time source used to pick the bucket.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		g.now = now
	}
}

// WithKeyPrefix sets the namespace for counter keys. Defaults to "rate".
func WithKeyPrefix(prefix string) GateOption {
	return func(g *Gate) {
		if prefix != "" {
			g.keyPrefix = prefix
		}
	}
}

func WithLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithObserver(observe Observer) GateOption {
	return func(g *Gate) {
		g.observe = observe
	}
}

func NewGate(store CounterStore, policy Policy, opts ...GateOption) (*Gate, error) {
	if store == nil {
		return nil, fmt.Errorf("no counter store: %w", ErrConfigurationMissing)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid quota policy: %w", err)
	}

	g := &Gate{
		store:     store,
		policy:    policy,
		keyPrefix: "rate",
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Gate) Policy() Policy {
	return g.policy
}

// GlobalKey is the counter key shared by all clients in bucket.
func (g *Gate) GlobalKey(bucket Bucket) string {
	return fmt.Sprintf("%s:global:%s", g.keyPrefix, bucket)
}

// ClientKey is the counter key for one client identity in bucket.
func (g *Gate) ClientKey(identity string, bucket Bucket) string {
	return fmt.Sprintf("%s:ip:%s:%s", g.keyPrefix, identity, bucket)
}

// Check consumes one unit of both quotas for the request's client and
// returns the resulting verdict.
func (g *Gate) Check(ctx context.Context, r *http.Request) (Verdict, error) {
	return g.CheckIdentity(ctx, ClientIdentity(r))
}

// CheckIdentity consumes one unit of the global quota and of identity's
// quota. Every call increments both counters, including calls that end in a
// denial, so retrying a check is itself quota-consuming.
//
// The error is ErrConfigurationMissing or wraps ErrStoreUnavailable; the
// verdict is never Allowed when err is non-nil.
func (g *Gate) CheckIdentity(ctx context.Context, identity string) (Verdict, error) {
	now := g.now()
	bucket := BucketFor(now)
	globalKey := g.GlobalKey(bucket)
	clientKey := g.ClientKey(identity, bucket)

	// Both hits run under the caller's ctx. A failure on one key must not
	// cancel the other, or its INCR could land without the EXPIRE that
	// bounds its lifetime.
	var globalCount, clientCount int64
	var eg errgroup.Group
	eg.Go(func() (err error) {
		globalCount, err = g.hit(ctx, globalKey)
		return err
	})
	eg.Go(func() (err error) {
		clientCount, err = g.hit(ctx, clientKey)
		return err
	})

	frame := Verdict{Bucket: bucket, Identity: identity, ResetAt: NextBucketStart(now)}

	if err := eg.Wait(); err != nil {
		err = classify(err)
		g.logger.ErrorContext(ctx, "Quota check failed",
			"identity", identity,
			"bucket", bucket,
			"error", err,
		)
		g.notify(ctx, frame, err)
		return frame, err
	}

	v := Evaluate(globalCount, clientCount, g.policy)
	v.Bucket = frame.Bucket
	v.Identity = frame.Identity
	v.ResetAt = frame.ResetAt

	if v.Denied() {
		g.logger.WarnContext(ctx, "Quota exceeded",
			"identity", identity,
			"scope", v.Scope,
			"limit", v.Limit,
			"bucket", bucket,
			"global_count", globalCount,
			"client_count", clientCount,
		)
	}
	g.notify(ctx, v, nil)

	return v, nil
}

// Window reports the bucket and identity a request would be counted under,
// without touching the store.
func (g *Gate) Window(r *http.Request) Verdict {
	now := g.now()
	return Verdict{
		Bucket:   BucketFor(now),
		Identity: ClientIdentity(r),
		ResetAt:  NextBucketStart(now),
	}
}

func (g *Gate) hit(ctx context.Context, key string) (int64, error) {
	n, err := g.store.Incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	if err := g.store.Expire(ctx, key, g.policy.Period); err != nil {
		return 0, fmt.Errorf("expire %s: %w", key, err)
	}
	return n, nil
}

func (g *Gate) notify(ctx context.Context, v Verdict, err error) {
	if g.observe != nil {
		g.observe(ctx, v, err)
	}
}

// classify makes every failure match one of the package sentinels.
func classify(err error) error {
	if errors.Is(err, ErrConfigurationMissing) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
