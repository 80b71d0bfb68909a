package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func testPolicy(s *recordingSleeper, jitter time.Duration) Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     Exponential(time.Second),
		Jitter:      func() time.Duration { return jitter },
		Sleep:       s.Sleep,
	}
}

func TestDoAlwaysFailingMakesExactlyMaxAttempts(t *testing.T) {
	s := &recordingSleeper{}
	calls := 0
	attempts, err := testPolicy(s, 0).Do(context.Background(), func(context.Context, int) error {
		calls++
		return errors.New("service unavailable")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, s.delays)
}

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	s := &recordingSleeper{}
	var seen []int
	attempts, err := testPolicy(s, 250*time.Millisecond).Do(context.Background(), func(_ context.Context, attempt int) error {
		seen = append(seen, attempt)
		if attempt < 2 {
			return errors.New("timeout")
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.Equal(t, []time.Duration{1250 * time.Millisecond, 2250 * time.Millisecond}, s.delays)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	s := &recordingSleeper{}
	calls := 0
	attempts, err := testPolicy(s, 0).Do(context.Background(), func(context.Context, int) error {
		calls++
		return Permanent(errors.New("HTTP 401"))
	}, nil)

	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, "HTTP 401", err.Error())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, s.delays)
}

func TestDoDoesNotRetryAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := Policy{MaxAttempts: 5, Backoff: Exponential(time.Hour), Sleep: SleepContext}

	attempts, err := policy.Do(ctx, func(context.Context, int) error {
		calls++
		cancel()
		return errors.New("boom")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestDoCancelDuringBackoffReturnsPromptly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 3, Backoff: Exponential(time.Hour), Sleep: SleepContext}
	calls := 0

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = policy.Do(ctx, func(context.Context, int) error {
			calls++
			return errors.New("transient")
		}, func(int, error, time.Duration) { cancel() })
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	assert.Equal(t, 1, calls)
}

func TestDoNotifiesBeforeEachRetry(t *testing.T) {
	s := &recordingSleeper{}
	var notified []int
	_, _ = testPolicy(s, 0).Do(context.Background(), func(context.Context, int) error {
		return errors.New("x")
	}, func(attempt int, err error, delay time.Duration) {
		notified = append(notified, attempt)
		assert.Equal(t, Exponential(time.Second)(attempt), delay)
	})
	assert.Equal(t, []int{0, 1}, notified)
}

func TestBackoffIsNonDecreasing(t *testing.T) {
	b := Exponential(500 * time.Millisecond)
	prev := time.Duration(0)
	for attempt := 0; attempt < 6; attempt++ {
		d := b(attempt)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
}

func TestUniformJitterRange(t *testing.T) {
	j := UniformJitter(time.Second)
	for i := 0; i < 200; i++ {
		d := j()
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, time.Second)
	}
	assert.Equal(t, time.Duration(0), UniformJitter(0)())
}
