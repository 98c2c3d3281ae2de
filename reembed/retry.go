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

package reembed

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// permanentError marks an error that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so RetryWithBackoff returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// DefaultMaxDelay caps a single wait between attempts.
const DefaultMaxDelay = 30 * time.Second

// Backoff retries an operation, doubling the wait after each failure.
type Backoff struct {
	// Attempts is the total number of calls, including the first.
	Attempts int
	// Base is the wait after the first failure.
	Base time.Duration
	// Max caps any single wait. Zero means no cap.
	Max time.Duration
}

// Delay returns the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 1; i < attempt; i++ {
		if b.Max > 0 && d >= b.Max {
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Do calls op until it succeeds, returns a Permanent or context error, or
// runs out of attempts. The last error is returned.
func (b Backoff) Do(ctx context.Context, op func() error) error {
	if b.Attempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var err error
	for attempt := 1; attempt <= b.Attempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = op(); err == nil {
			if attempt > 1 {
				slog.Debug("embedding call succeeded after retry", "component", "reembed", "attempt", attempt)
			}
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt == b.Attempts {
			break
		}

		delay := b.Delay(attempt)
		slog.Debug("embedding call failed, retrying", "component", "reembed",
			"attempt", attempt, "max_attempts", b.Attempts, "delay", delay, "err", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// RetryWithBackoff runs op with a Backoff of maxAttempts starting at
// baseDelay and capped at DefaultMaxDelay.
func RetryWithBackoff(ctx context.Context, op func() error, maxAttempts int, baseDelay time.Duration) error {
	return Backoff{Attempts: maxAttempts, Base: baseDelay, Max: DefaultMaxDelay}.Do(ctx, op)
}
