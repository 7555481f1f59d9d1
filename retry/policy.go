// Package retry wraps calls to remote systems with bounded retries and a fixed delay.
// Retries are not idempotence-aware: only wrap operations that are safe to repeat.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/relloyd/forklift/constants"
	"github.com/relloyd/forklift/logger"
)

// Policy re-invokes a call that fails with a transient error up to MaxRetries times, sleeping Delay
// between attempts. Each attempt is bounded by CallTimeout when it is set.
type Policy struct {
	Log         logger.Logger
	Name        string // used in log output
	MaxRetries  int
	Delay       time.Duration
	CallTimeout time.Duration
	Classify    Classifier // defaults to IsTransient
}

// NewDefaultPolicy returns a policy using the default retry count, delay and call timeout.
func NewDefaultPolicy(log logger.Logger, name string) *Policy {
	return &Policy{
		Log:         log,
		Name:        name,
		MaxRetries:  constants.DefaultRetryCount,
		Delay:       time.Second * constants.DefaultRetryDelaySeconds,
		CallTimeout: time.Second * constants.DefaultCallTimeoutSecs,
	}
}

// Do calls fn until it succeeds, fails with a non-transient error, or the retries are exhausted.
// The last error is returned. A nil Policy calls fn once.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p == nil {
		return fn(ctx)
	}
	classify := p.Classify
	if classify == nil {
		classify = IsTransient
	}
	var err error
	for attempt := 0; ; attempt++ {
		err = p.call(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil { // if the caller gave up...
			return err
		}
		if !classify(err) { // if the error is fatal...
			return err
		}
		if attempt >= p.MaxRetries { // if we have run out of retries...
			return fmt.Errorf("%v failed after %v attempts: %w", p.name(), attempt+1, err)
		}
		if p.Log != nil {
			p.Log.Warn(p.name(), " attempt ", attempt+1, " failed with transient error, retrying in ", p.Delay, ": ", err)
		}
		t := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}

// Wrap returns fn decorated with the policy.
func (p *Policy) Wrap(fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return p.Do(ctx, fn)
	}
}

// DoValue is Do for calls that return a value.
func DoValue[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (p *Policy) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.CallTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.CallTimeout)
	defer cancel()
	return fn(callCtx)
}

func (p *Policy) name() string {
	if p.Name == "" {
		return "call"
	}
	return p.Name
}
