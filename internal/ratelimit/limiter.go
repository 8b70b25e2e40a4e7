// Package ratelimit enforces weekly request quotas shared by every instance
// of the service. Counters live in a remote store; this package derives the
// period bucket and client identity, increments a global and a per-client
// counter, and turns the two counts into a verdict. It includes HTTP helpers
// that map verdicts to 429 responses and store failures to 503.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"imagegate/internal/models"
)

// CounterStore is the remote counter contract. Implementations must make
// Incr atomic across every process sharing the store. Expire may be called
// on every increment and must be idempotent.
type CounterStore interface {
	// Incr adds one to key, creating it at zero if absent, and returns the
	// new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets or refreshes the key's time-to-live.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Scope names the dimension a quota is enforced over.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeClient Scope = "client"
)

// Policy holds the static quota ceilings. A count equal to a limit is still
// admitted; the first request past it is denied.
type Policy struct {
	GlobalLimit int64
	ClientLimit int64
	Period      time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		GlobalLimit: 1000,
		ClientLimit: 10,
		Period:      models.DefaultPeriod,
	}
}

func NewPolicy(cfg models.QuotaConfig) Policy {
	return Policy{
		GlobalLimit: cfg.GlobalLimit,
		ClientLimit: cfg.ClientLimit,
		Period:      cfg.Period,
	}
}

func (p Policy) Validate() error {
	if p.GlobalLimit <= 0 {
		return errors.New("global limit must be positive")
	}
	if p.ClientLimit <= 0 {
		return errors.New("client limit must be positive")
	}
	if p.Period < time.Second {
		return errors.New("period must be at least one second")
	}
	return nil
}

// Verdict is the outcome of one quota check. A denied verdict names the
// breached scope and its limit.
type Verdict struct {
	Allowed     bool
	Scope       Scope // set only when denied
	Limit       int64 // limit of Scope, set only when denied
	GlobalCount int64
	ClientCount int64

	Bucket   Bucket
	Identity string
	ResetAt  time.Time // start of the next bucket
}

func Admit() Verdict {
	return Verdict{Allowed: true}
}

func DenyClient(limit int64) Verdict {
	return Verdict{Scope: ScopeClient, Limit: limit}
}

func DenyGlobal(limit int64) Verdict {
	return Verdict{Scope: ScopeGlobal, Limit: limit}
}

func (v Verdict) Denied() bool {
	return !v.Allowed
}

// Remaining is the client's unspent quota in the verdict's bucket.
func (v Verdict) Remaining(p Policy) int64 {
	return max(0, p.ClientLimit-v.ClientCount)
}

// Evaluate decides a verdict from post-increment counts. The client limit is
// checked before the global one, so a request over both is a client denial.
func Evaluate(globalCount, clientCount int64, p Policy) Verdict {
	var v Verdict
	switch {
	case clientCount > p.ClientLimit:
		v = DenyClient(p.ClientLimit)
	case globalCount > p.GlobalLimit:
		v = DenyGlobal(p.GlobalLimit)
	default:
		v = Admit()
	}
	v.GlobalCount = globalCount
	v.ClientCount = clientCount
	return v
}
