package transcribe

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestCallPolicyRetriesAttemptTimeout(t *testing.T) {
	policy := NewCallPolicy(10000, 100, 3, time.Millisecond, 4*time.Millisecond,
		10*time.Millisecond, zerolog.Nop())

	var calls int
	err := policy.Do(context.Background(), "slow call", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			// Hang until the per-attempt timeout fires.
			<-ctx.Done()
			return fmt.Errorf("gemini request: %w", ctx.Err())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (two timed-out attempts, one success)", calls)
	}
}

func TestCallPolicyStopsOnCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int
	err := testPolicy(3).Do(ctx, "cancelled call", func(c context.Context) error {
		calls++
		cancel()
		<-c.Done()
		return c.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry after caller cancel)", calls)
	}
}
