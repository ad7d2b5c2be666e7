// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/poiesic/digest/core"
)

// Policy bounds the retries of one operation.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration
	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration
	// Multiplier grows the wait after each attempt.
	Multiplier float64
	// Jitter randomizes each wait by +/- Jitter*wait.
	Jitter float64
	// CallTimeout bounds a single attempt. Zero means no bound.
	CallTimeout time.Duration
}

// DefaultPolicy returns 3 attempts starting at 1s and doubling, with 50% jitter
// and a 60s bound per attempt.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
		Jitter:      0.5,
		CallTimeout: 60 * time.Second,
	}
}

// Validate checks the policy values.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 || p.CallTimeout < 0 {
		return fmt.Errorf("%w: delays and timeouts cannot be negative", ErrInvalidPolicy)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("%w: multiplier %.2f is below 1", ErrInvalidPolicy, p.Multiplier)
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return fmt.Errorf("%w: jitter %.2f outside [0, 1]", ErrInvalidPolicy, p.Jitter)
	}
	return nil
}

// Operation is one attempt. ctx carries the per-attempt timeout.
type Operation func(ctx context.Context) error

// Do runs op until it succeeds, returns a permanent error, or the policy's
// attempts are used up. It returns the number of attempts made together with
// the error of the last attempt.
//
// An attempt that runs past CallTimeout is reported as a transient provider
// error. Cancellation of ctx stops the loop and returns ctx.Err().
func Do(ctx context.Context, p Policy, op Operation) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	attempts := 0
	err := backoff.RetryNotify(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++

		err := p.attempt(ctx, op)
		if err == nil {
			if attempts > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempts)
			}
			return nil
		}
		if core.IsPermanent(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx), func(err error, next time.Duration) {
		slog.Debug("operation failed, will retry",
			"attempt", attempts, "maxAttempts", p.MaxAttempts, "delay", next, "error", err)
	})
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		// The caller gave up; report that rather than the last provider error.
		return attempts, fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return attempts, err
}

func (p Policy) attempt(ctx context.Context, op Operation) error {
	if p.CallTimeout <= 0 {
		return op(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.CallTimeout)
	defer cancel()

	err := op(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !core.IsPermanent(err) {
		if !errors.Is(err, core.ErrTransientProvider) {
			err = fmt.Errorf("%w: call timed out after %s: %w", core.ErrTransientProvider, p.CallTimeout, err)
		}
	}
	return err
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.RandomizationFactor = p.Jitter
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval == 0 {
		b.MaxInterval = time.Duration(1<<63 - 1)
	}
	// Attempts bound the loop, not wall time
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
}
