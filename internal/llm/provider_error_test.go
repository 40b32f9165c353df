package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderErrorRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, NewProviderError("p", "complete", ErrorKindTransient, "", "", "", nil).Retryable())
	assert.False(t, NewProviderError("p", "complete", ErrorKindContextLength, "", "", "", nil).Retryable())
	assert.False(t, NewProviderError("p", "complete", ErrorKindModelNotFound, "", "", "", nil).Retryable())
	assert.False(t, NewProviderError("p", "complete", ErrorKindRateLimit, "", "", "", nil).Retryable())
}

func TestAsProviderErrorUnwrapsChains(t *testing.T) {
	t.Parallel()

	inner := NewProviderError("anthropic", "complete", ErrorKindTransient, "529", "overloaded", "req-1", nil)
	wrapped := fmt.Errorf("turn failed: %w", inner)

	pe, ok := AsProviderError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrorKindTransient, pe.Kind)
	assert.Equal(t, "529", pe.Code)

	_, ok = AsProviderError(errors.New("plain"))
	assert.False(t, ok)
}

type alwaysFailClient struct{ calls int }

func (c *alwaysFailClient) Complete(context.Context, *Request) (*Response, error) {
	c.calls++
	return nil, NewProviderError("p", "complete", ErrorKindTransient, "", "down", "", nil)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	inner := &alwaysFailClient{}
	client := WithBreaker(inner, "test")

	for i := 0; i < 10; i++ {
		_, err := client.Complete(context.Background(), &Request{})
		require.Error(t, err)
		pe, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, ErrorKindTransient, pe.Kind)
	}
	// The breaker opened after three consecutive failures and stopped
	// dialing the provider.
	assert.LessOrEqual(t, inner.calls, 4)
}

func TestRateLimitPropagatesCancellation(t *testing.T) {
	t.Parallel()

	client := WithRateLimit(&alwaysFailClient{}, 0.0001, 1)
	ctx, cancel := context.WithCancel(context.Background())

	// First call consumes the burst token.
	_, _ = client.Complete(ctx, &Request{})
	cancel()
	_, err := client.Complete(ctx, &Request{})
	require.Error(t, err)
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorKindTransient, pe.Kind)
}
