package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
	"github.com/custodia-labs/testctx/internal/logger"
)

// Ensure ResilientEmbedder implements the interface.
var _ driven.EmbeddingService = (*ResilientEmbedder)(nil)

// ResilientEmbedder wraps an EmbeddingService with a per-attempt timeout,
// bounded exponential backoff and an optional rate limit.
// Errors wrapping domain.ErrMalformedInput are returned without retrying.
// Exhausted retries are reported as domain.ErrEmbeddingUnavailable.
type ResilientEmbedder struct {
	inner   driven.EmbeddingService
	cfg     domain.ResilienceSettings
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewResilientEmbedder wraps inner with the given resilience settings.
func NewResilientEmbedder(inner driven.EmbeddingService, cfg domain.ResilienceSettings) *ResilientEmbedder {
	e := &ResilientEmbedder{
		inner: inner,
		cfg:   cfg,
		sleep: sleepContext,
	}
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return e
}

// Embed generates one embedding.
func (e *ResilientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := e.do(ctx, func(ctx context.Context) error {
		var err error
		vec, err = e.inner.Embed(ctx, text)
		return err
	})
	return vec, err
}

// EmbedBatch generates embeddings for texts in one call.
func (e *ResilientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := e.do(ctx, func(ctx context.Context) error {
		var err error
		vecs, err = e.inner.EmbedBatch(ctx, texts)
		if err == nil && len(vecs) != len(texts) {
			return fmt.Errorf("embedding batch returned %d vectors for %d texts", len(vecs), len(texts))
		}
		return err
	})
	return vecs, err
}

// Dimensions returns the wrapped service's vector size.
func (e *ResilientEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// ModelName returns the wrapped service's model name.
func (e *ResilientEmbedder) ModelName() string {
	return e.inner.ModelName()
}

// Ping checks the wrapped service once, without retries.
func (e *ResilientEmbedder) Ping(ctx context.Context) error {
	return e.inner.Ping(ctx)
}

// Close releases the wrapped service.
func (e *ResilientEmbedder) Close() error {
	return e.inner.Close()
}

func (e *ResilientEmbedder) do(ctx context.Context, call func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := e.backoff(attempt)
			logger.L().Debug("retrying embedding",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if err := e.sleep(ctx, delay); err != nil {
				return err
			}
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		callCtx, cancel := e.attemptContext(ctx)
		err := call(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrMalformedInput) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		lastErr = err
	}
	return fmt.Errorf("%w: after %d retries: %w", domain.ErrEmbeddingUnavailable, e.cfg.MaxRetries, lastErr)
}

func (e *ResilientEmbedder) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.Timeout)
}

// backoff returns the delay before the given retry attempt (1-based).
func (e *ResilientEmbedder) backoff(attempt int) time.Duration {
	delay := e.cfg.BaseDelay * time.Duration(1<<uint(attempt-1))
	if e.cfg.MaxDelay > 0 && (delay > e.cfg.MaxDelay || delay <= 0) {
		delay = e.cfg.MaxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
