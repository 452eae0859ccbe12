package oracle

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited wraps o so that every Choose across all its sessions waits for a
// token from one shared limiter.
func RateLimited(o Oracle, perSecond float64, burst int) Oracle {
	if perSecond <= 0 {
		return o
	}
	if burst <= 0 {
		burst = 1
	}
	return &limitedOracle{
		next:    o,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

type limitedOracle struct {
	next    Oracle
	limiter *rate.Limiter
}

func (l *limitedOracle) NewSession(ctx context.Context) (Session, error) {
	s, err := l.next.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	return &limitedSession{next: s, limiter: l.limiter}, nil
}

type limitedSession struct {
	next    Session
	limiter *rate.Limiter
}

func (s *limitedSession) Choose(ctx context.Context, q Query) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter canceled: %w", err)
	}
	return s.next.Choose(ctx, q)
}

func (s *limitedSession) Close() error {
	return s.next.Close()
}
