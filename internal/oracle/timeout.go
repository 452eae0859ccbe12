package oracle

import (
	"context"
	"time"
)

// WithCallTimeout bounds every Choose on o's sessions by d.
func WithCallTimeout(o Oracle, d time.Duration) Oracle {
	if d <= 0 {
		return o
	}
	return &timeoutOracle{next: o, timeout: d}
}

type timeoutOracle struct {
	next    Oracle
	timeout time.Duration
}

func (t *timeoutOracle) NewSession(ctx context.Context) (Session, error) {
	s, err := t.next.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	return &timeoutSession{next: s, timeout: t.timeout}, nil
}

type timeoutSession struct {
	next    Session
	timeout time.Duration
}

func (s *timeoutSession) Choose(ctx context.Context, q Query) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Choose(ctx, q)
}

func (s *timeoutSession) Close() error {
	return s.next.Close()
}
