/*
Copyright 2022-2024 EscherCloud, CloudPunch Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package retry implements the bounded retry loops CloudPunch layers on
// top of every provider call and every control-plane poll: creation
// polls until a resource reaches its ready state, deletion retries
// transient failures up to a fixed attempt budget, and the Driver's
// barriers retry on their own interval. One small type covers all three
// shapes instead of each caller hand-rolling a for-loop.
package retry

import (
	"context"
	"errors"
	"time"
)

// Func is a callback that must return nil to escape the retry loop.
type Func func() error

// permanentError lets a Func signal that no further attempt will ever
// succeed, short-circuiting the remaining attempt budget instead of
// burning it on a resource that already reported a terminal error
// state.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do returns it immediately instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

// Retrier implements retry loop logic.
type Retrier struct {
	// context terminates the retry loop on timeout or cancellation from
	// another goroutine. If not set it retries forever.
	context context.Context

	// cancel is associated with a context to free resources.
	cancel func()

	// period is the delay between attempts, defaulting to 1 second.
	period time.Duration

	// attempts bounds the number of calls to Func, 0 meaning unbounded
	// (the context, if any, is the only stop condition).
	attempts int
}

// Forever returns a retrier that retries indefinitely until Func
// returns nil or the supplied context (if any) is done.
func Forever() *Retrier {
	return &Retrier{
		context: context.Background(),
		period:  time.Second,
	}
}

// WithContext registers a context that spans more than this one retry,
// e.g. a timeout covering a whole barrier rather than a single call.
func WithContext(c context.Context) *Retrier {
	return &Retrier{
		context: c,
		period:  time.Second,
	}
}

// WithTimeout returns a retrier bound to a fixed wall-clock budget.
func WithTimeout(timeout time.Duration) *Retrier {
	c, cancel := context.WithTimeout(context.Background(), timeout)

	return &Retrier{
		context: c,
		cancel:  cancel,
		period:  time.Second,
	}
}

// WithAttempts bounds the retrier to a fixed number of calls, the shape
// every configured retry budget (retry_count, recovery.retries, the
// Cleanup Engine's ~10 delete attempts) actually uses.
func WithAttempts(attempts int) *Retrier {
	return &Retrier{
		context:  context.Background(),
		period:   time.Second,
		attempts: attempts,
	}
}

// WithPeriod overrides the delay between attempts.
func (r *Retrier) WithPeriod(period time.Duration) *Retrier {
	r.period = period
	return r
}

// WithAttempts bounds an existing retrier to a fixed number of calls.
func (r *Retrier) WithAttempts(attempts int) *Retrier {
	r.attempts = attempts
	return r
}

// Do runs the retry loop: it calls f immediately, and again every
// period until f returns nil, the attempt budget (if any) is
// exhausted, or the context is done.
func (r *Retrier) Do(f Func) error {
	if r.cancel != nil {
		defer r.cancel()
	}

	for attempt := 1; ; attempt++ {
		err := f()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		if r.attempts > 0 && attempt >= r.attempts {
			return err
		}

		t := time.NewTimer(r.period)

		select {
		case <-r.context.Done():
			t.Stop()
			return r.context.Err()
		case <-t.C:
		}
	}
}
