package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("embedding service unavailable")

// failing returns an operation that fails the first n calls.
func failing(n int, err error) (func() error, *int) {
	calls := 0
	return func() error {
		calls++
		if calls <= n {
			return err
		}
		return nil
	}, &calls
}

func TestBackoff_Do(t *testing.T) {
	tests := []struct {
		name      string
		attempts  int
		failures  int
		err       error
		wantErr   error
		wantCalls int
	}{
		{"first call succeeds", 3, 0, errFlaky, nil, 1},
		{"succeeds on third call", 5, 2, errFlaky, nil, 3},
		{"runs out of attempts", 3, 10, errFlaky, errFlaky, 3},
		{"permanent error stops", 5, 10, Permanent(errFlaky), errFlaky, 1},
		{"operation deadline stops", 5, 10, context.DeadlineExceeded, context.DeadlineExceeded, 1},
		{"zero attempts", 0, 10, errFlaky, ErrInvalidMaxAttempts, 0},
		{"negative attempts", -1, 10, errFlaky, ErrInvalidMaxAttempts, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, calls := failing(tt.failures, tt.err)
			err := Backoff{Attempts: tt.attempts, Base: time.Millisecond}.Do(context.Background(), op)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantCalls, *calls)
		})
	}
}

func TestBackoff_PermanentUnwraps(t *testing.T) {
	op, _ := failing(1, Permanent(errFlaky))
	err := RetryWithBackoff(context.Background(), op, 3, time.Millisecond)
	assert.Equal(t, errFlaky, err, "the wrapper is removed")
	assert.Nil(t, Permanent(nil))
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, b.Delay(1))
	assert.Equal(t, 20*time.Millisecond, b.Delay(2))
	assert.Equal(t, 40*time.Millisecond, b.Delay(3))
	assert.Equal(t, 50*time.Millisecond, b.Delay(4))
	assert.Equal(t, 50*time.Millisecond, b.Delay(60), "large attempts stay capped")

	uncapped := Backoff{Base: time.Millisecond}
	assert.Equal(t, 8*time.Millisecond, uncapped.Delay(4))
}

func TestBackoff_ContextCanceledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	op := func() error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errFlaky
	}

	err := RetryWithBackoff(ctx, op, 10, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}

func TestBackoff_ContextExpiresDuringWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	op, calls := failing(10, errFlaky)

	start := time.Now()
	err := Backoff{Attempts: 5, Base: time.Hour}.Do(ctx, op)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, *calls)
	assert.Less(t, time.Since(start), time.Minute)
}
