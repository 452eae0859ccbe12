package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Veraticus/taxomap/internal/common"
	"github.com/Veraticus/taxomap/internal/service"
)

// Config holds configuration for the oracle backends.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxRetries  int
	RetryDelay  time.Duration
	// RateLimit is the number of oracle calls per second shared by all sessions.
	RateLimit   float64
	Burst       int
	CallTimeout time.Duration
}

// NewOracle creates the configured backend and wraps it with rate limiting and
// per-call timeouts.
func NewOracle(ctx context.Context, cfg Config, logger *slog.Logger) (Oracle, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		o   Oracle
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "gemini", "google":
		o, err = newGeminiOracle(ctx, cfg, logger)
	case "openai":
		o, err = newOpenAIOracle(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported oracle provider %q", common.ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s oracle: %w", cfg.Provider, err)
	}

	o = WithCallTimeout(o, cfg.CallTimeout)
	return RateLimited(o, cfg.RateLimit, cfg.Burst), nil
}

func retryOptions(cfg Config) service.RetryOptions {
	opts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay == 0 {
		opts.InitialDelay = time.Second
	}
	return opts
}

// transient reports whether an HTTP status is worth retrying.
func transient(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func markRetryable(err error, status int) error {
	if status == http.StatusTooManyRequests {
		return &common.RetryableError{Err: fmt.Errorf("%w: %w", common.ErrRateLimit, err), Retryable: true}
	}
	return &common.RetryableError{Err: err, Retryable: transient(status)}
}
