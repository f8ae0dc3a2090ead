package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
)

var errFlaky = errors.New("flaky backend")

func init() {
	exception.RegisterErrorType("errFlaky", errFlaky)
}

func TestShouldRetry(t *testing.T) {
	p := NewDefaultRetryPolicyFactory().Create(3, time.Millisecond, []string{"errFlaky"})

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"retryable batch error", exception.NewBatchError("m", "x", nil, true, false), true},
		{"plain batch error", exception.NewBatchError("m", "x", nil, false, true), false},
		{"batch error wrapping transient", exception.NewBatchError("m", "x", errors.New("read: connection reset by peer"), false, true), true},
		{"transient message", errors.New("i/o timeout"), true},
		{"configured name", errFlaky, true},
		{"other", errors.New("constraint violation"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRetry(tt.err))
		})
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	p := NewDefaultRetryPolicyFactory().Create(10, time.Second, nil)
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, MaxBackoff, p.Backoff(8))
}

func TestDo(t *testing.T) {
	p := NewDefaultRetryPolicyFactory().Create(3, time.Millisecond, nil)

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		v, err := Do(context.Background(), p, func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("connection refused")
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		_, err := Do(context.Background(), p, func(context.Context) (int, error) {
			calls++
			return calls, errors.New("timeout")
		})
		assert.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		calls := 0
		_, err := Do(context.Background(), p, func(context.Context) (struct{}, error) {
			calls++
			return struct{}{}, errors.New("duplicate key")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when the context ends during backoff", func(t *testing.T) {
		slow := NewDefaultRetryPolicyFactory().Create(5, time.Hour, nil)
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		_, err := Do(ctx, slow, func(context.Context) (int, error) {
			calls++
			cancel()
			return 0, errors.New("timeout")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("single attempt policy", func(t *testing.T) {
		calls := 0
		_, err := Do(context.Background(), NewDefaultRetryPolicyFactory().Create(0, 0, nil), func(context.Context) (int, error) {
			calls++
			return 0, errors.New("timeout")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}
