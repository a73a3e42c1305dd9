package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/screener/internal/interview"
	"github.com/spigell/screener/internal/metrics"
	"github.com/spigell/screener/internal/utils"
)

var sleep = utils.WaitFor

const (
	opQuestion = "question"
	opScore    = "score"
)

type retryPolicy struct {
	maxRetries    int
	baseDelay     time.Duration
	maxRetryDelay time.Duration
	logger        *zap.Logger
	metrics       *metrics.Recorder
}

func newRetryPolicy(cfg Config, logger *zap.Logger, recorder *metrics.Recorder) retryPolicy {
	return retryPolicy{
		maxRetries:    cfg.MaxRetries,
		baseDelay:     cfg.RetryDelay,
		maxRetryDelay: cfg.MaxRetryDelay,
		logger:        logger,
		metrics:       recorder,
	}
}

// attempts returns the upper bound of calls made by run.
func (p retryPolicy) attempts() int {
	return p.maxRetries + 1
}

// run calls fn until it succeeds, the failure is not retryable, the attempts are
// used up or ctx is done. Cancellation is returned as is.
func run[T any](ctx context.Context, p retryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= p.attempts(); attempt++ {
		started := time.Now()
		result, err := fn(ctx)
		p.metrics.ObserveGeneration(ctx, op, time.Since(started))
		if err == nil {
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		lastErr = err
		genErr := asGenerationError(err)
		p.metrics.GenerationFailed(ctx, op, string(genErr.Kind))

		if !genErr.Kind.Retryable() {
			p.logger.Warn("generation failed, not retrying",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.String("failure", string(genErr.Kind)),
				zap.Error(err),
			)
			return zero, genErr
		}
		if attempt == p.attempts() {
			break
		}

		delay := p.backoff(attempt)
		if genErr.Kind == interview.FailureQuota && genErr.RetryAfter > 0 {
			if p.maxRetryDelay > 0 && genErr.RetryAfter > p.maxRetryDelay {
				p.logger.Warn("quota retry delay too long, giving up",
					zap.String("operation", op),
					zap.Duration("retry_after", genErr.RetryAfter),
					zap.Duration("max_retry_delay", p.maxRetryDelay),
				)
				return zero, genErr
			}
			delay = genErr.RetryAfter
		}

		p.logger.Warn("generation failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.attempts()),
			zap.String("failure", string(genErr.Kind)),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, asGenerationError(lastErr)
}

func (p retryPolicy) backoff(attempt int) time.Duration {
	return utils.Backoff(p.baseDelay, attempt)
}

// asGenerationError treats unclassified failures as transient.
func asGenerationError(err error) *interview.GenerationError {
	var genErr *interview.GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}
	return interview.NewTransientError(err)
}
