package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// WithBreaker wraps client with a circuit breaker tripped by repeated
// ErrorKindTransient failures: once the breaker opens, calls fail fast with ErrorKindTransient
// instead of dialing a provider that is known to be down, so the
// orchestrator's retry loop converges quickly rather than burning its two
// attempts against a stalled provider on every turn.
func WithBreaker(client Client, name string) Client {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &breakerClient{
		inner: client,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

type breakerClient struct {
	inner Client
	cb    *gobreaker.CircuitBreaker
}

func (b *breakerClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Complete(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, NewProviderError("circuit_breaker", "complete", ErrorKindTransient, "", fmt.Sprintf("circuit breaker %s is open", b.cb.Name()), "", err)
		}
		return nil, err
	}
	return result.(*Response), nil
}

// WithRateLimit wraps client with a token-bucket limiter bounding concurrent
// LLM calls per second so the shared client stays safely callable
// concurrently without unbounded fan-out across domain agents and the
// orchestrator.
func WithRateLimit(client Client, ratePerSecond float64, burst int) Client {
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitedClient{
		inner:   client,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

type rateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

func (r *rateLimitedClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, NewProviderError("rate_limiter", "complete", ErrorKindTransient, "", "rate limiter wait: "+err.Error(), "", err)
	}
	return r.inner.Complete(ctx, req)
}
