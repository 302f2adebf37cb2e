package mailer

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/papemosque/community-api/internal/metrics"
)

// Submitter paces and retries submissions to a single Sender. It is safe for
// concurrent use; the rate limiter is shared across all callers.
type Submitter struct {
	sender        Sender
	limiter       *rate.Limiter
	maxRetries    int
	retryInterval time.Duration
	logger        *zap.Logger
}

type SubmitterOptions struct {
	Rate          float64 // sends per second, <= 0 disables pacing
	Burst         int
	MaxRetries    int
	RetryInterval time.Duration
}

func NewSubmitter(sender Sender, opts SubmitterOptions, logger *zap.Logger) *Submitter {
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := opts.RetryInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	return &Submitter{
		sender:        sender,
		limiter:       rate.NewLimiter(limit, burst),
		maxRetries:    opts.MaxRetries,
		retryInterval: interval,
		logger:        logger,
	}
}

// Provider names the underlying delivery provider.
func (s *Submitter) Provider() string { return s.sender.Name() }

// Submit delivers msg, retrying transient failures with exponential backoff.
// Errors marked Permanent are returned after the first attempt.
func (s *Submitter) Submit(ctx context.Context, msg Message) (string, error) {
	provider := s.sender.Name()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInterval
	b.MaxElapsedTime = 0
	b.Reset()

	var (
		id      string
		attempt int
	)
	op := func() error {
		attempt++
		if attempt > 1 {
			metrics.EmailRetriesTotal.WithLabelValues(provider).Inc()
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		var err error
		id, err = s.sender.Send(ctx, msg)
		if err != nil {
			if IsPermanent(err) {
				return backoff.Permanent(err)
			}
			s.logger.Debug("email submission failed",
				zap.String("provider", provider),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.maxRetries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		metrics.EmailsTotal.WithLabelValues(provider, "failed").Inc()
		var pe *backoff.PermanentError
		if errors.As(err, &pe) {
			err = pe.Err
		}
		return "", err
	}

	metrics.EmailsTotal.WithLabelValues(provider, "sent").Inc()
	return id, nil
}
