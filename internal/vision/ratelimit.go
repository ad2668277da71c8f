package vision

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/time/rate"

	"github.com/vbonduro/bloom/internal/domain"
)

// RateLimited bounds how often the wrapped Identifier is called. Callers wait
// for a slot until ctx is done; nothing is retried.
type RateLimited struct {
	next    Identifier
	limiter *rate.Limiter
}

// NewRateLimited allows perMinute calls per minute with a burst of one.
// A non-positive perMinute disables limiting.
func NewRateLimited(next Identifier, perMinute float64) *RateLimited {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60)
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, 1)}
}

func (r *RateLimited) Identify(ctx context.Context, img io.Reader, mimeType string) (*domain.Identification, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}
	return r.next.Identify(ctx, img, mimeType)
}

// GenerateFact forwards to the wrapped Identifier when it supports facts.
func (r *RateLimited) GenerateFact(ctx context.Context, name string) (string, error) {
	fg, ok := r.next.(FactGenerator)
	if !ok {
		return "", fmt.Errorf("fact generation not supported")
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("failed to wait for rate limiter: %w", err)
	}
	return fg.GenerateFact(ctx, name)
}
