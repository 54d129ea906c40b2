package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// rateLimited holds every Chat call until the limiter grants a token.
type rateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

// RateLimited wraps p so that at most rps requests start per second, with
// bursts of up to burst requests. A non-positive rps returns p unchanged.
func RateLimited(p Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{next: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *rateLimited) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Chat(ctx, req)
}
