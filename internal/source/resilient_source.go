package source

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/internal/resilience"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// ResilientSource retries a Source inside a circuit breaker. Every attempt is
// bounded by Timeout and every failure surfaces as models.ErrSourceUnavailable.
type ResilientSource struct {
	source         Source
	circuitBreaker *resilience.CircuitBreaker
	clock          clock.Clock
	timeout        time.Duration
	retryAttempts  int
	retryDelay     time.Duration
}

type ResilientSourceConfig struct {
	Source        Source
	MaxFailures   int
	BreakerReset  time.Duration
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	Clock         clock.Clock
	OnStateChange func(name string, from, to resilience.State)
}

func NewResilientSource(cfg ResilientSourceConfig) *ResilientSource {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:          "source",
		MaxFailures:   cfg.MaxFailures,
		Timeout:       cfg.BreakerReset,
		Clock:         cfg.Clock,
		OnStateChange: cfg.OnStateChange,
	})

	return &ResilientSource{
		source:         cfg.Source,
		circuitBreaker: cb,
		clock:          cfg.Clock,
		timeout:        cfg.Timeout,
		retryAttempts:  cfg.RetryAttempts,
		retryDelay:     cfg.RetryDelay,
	}
}

func (s *ResilientSource) Fetch(ctx context.Context, from, to time.Time) ([]models.RawEvent, error) {
	var events []models.RawEvent

	err := s.circuitBreaker.Execute(func() error {
		var lastErr error
		for attempt := 1; attempt <= s.retryAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			var err error
			events, err = s.fetchOnce(ctx, from, to)
			if err == nil {
				return nil
			}

			lastErr = err
			logger.WithComponent("source").Warnf(
				"Fetch attempt %d/%d for [%s, %s) failed: %v",
				attempt, s.retryAttempts, from.Format(time.RFC3339), to.Format(time.RFC3339), err,
			)

			if attempt < s.retryAttempts {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-s.clock.After(s.retryDelay):
				}
			}
		}
		return lastErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}

	return events, nil
}

func (s *ResilientSource) fetchOnce(ctx context.Context, from, to time.Time) ([]models.RawEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.source.Fetch(ctx, from, to)
}

func (s *ResilientSource) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.source.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}
	return nil
}

func (s *ResilientSource) Close() error {
	return s.source.Close()
}

func (s *ResilientSource) CircuitState() resilience.State {
	return s.circuitBreaker.State()
}
