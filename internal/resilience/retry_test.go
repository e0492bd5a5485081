package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-cli/internal/config"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestRetry_SucceedsAfterRetryableFailures(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Retryable(errors.New("503"), 503)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	var hooked []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error, _ time.Duration) { hooked = append(hooked, attempt) }

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return Retryable(errors.New("busy"), 429)
	})
	require.Error(t, err)
	assert.Equal(t, "busy", err.Error())
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, hooked)
}

func TestRetry_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}
	p.OnRetry = func(int, error, time.Duration) { cancel() }

	calls := 0
	err := Do(ctx, p, func(context.Context) error {
		calls++
		return Retryable(errors.New("busy"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_CustomClassifier(t *testing.T) {
	sentinel := errors.New("try again")
	p := fastPolicy(2)
	p.Classify = func(err error) bool { return errors.Is(err, sentinel) }

	calls := 0
	_ = Do(context.Background(), p, func(context.Context) error {
		calls++
		return sentinel
	})
	assert.Equal(t, 2, calls)
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	p := Policy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(1, nil))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2, nil))
	assert.Equal(t, 300*time.Millisecond, p.Backoff(3, nil))
	assert.Equal(t, 300*time.Millisecond, p.Backoff(10, nil))
}

func TestBackoff_JitterStaysInRange(t *testing.T) {
	p := Policy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2, Jitter: 0.5}
	for i := 0; i < 50; i++ {
		d := p.Backoff(1, nil)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestBackoff_HonorsRetryAfter(t *testing.T) {
	p := Policy{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 2 * time.Second}

	err := &RetryableError{Err: errors.New("slow down"), StatusCode: 429, RetryAfter: time.Second}
	assert.Equal(t, time.Second, p.Backoff(1, err))

	err.RetryAfter = time.Minute
	assert.Equal(t, 2*time.Second, p.Backoff(1, err))
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.RetryConfig{MaxAttempts: 4, InitialBackoffMs: 250, MaxBackoffMs: 1000, Multiplier: 3, JitterFraction: 0.1})
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, time.Second, p.MaxBackoff)
	assert.InDelta(t, 3.0, p.Multiplier, 0.001)
	assert.NotNil(t, p.Classify)

	def := PolicyFromConfig(config.RetryConfig{})
	assert.Equal(t, 3, def.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, def.InitialBackoff)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"wrapped retryable", errors.Join(errors.New("upload"), Retryable(errors.New("503"), 503)), true},
		{"reset", errors.New("read tcp: connection reset by peer"), true},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, RetryableStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 413} {
		assert.False(t, RetryableStatus(code), "status %d", code)
	}
}
