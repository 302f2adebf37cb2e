package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/papemosque/community-api/internal/domain"
	"github.com/papemosque/community-api/internal/mailer"
	"github.com/papemosque/community-api/internal/metrics"
	"github.com/papemosque/community-api/internal/store"
)

// ErrProviderUnavailable is returned when the provider circuit is open. The
// whole batch is refused before any send.
var ErrProviderUnavailable = errors.New("email provider unavailable")

// Submitter delivers one rendered message and returns the provider message id.
type Submitter interface {
	Submit(ctx context.Context, msg mailer.Message) (string, error)
	Provider() string
}

// ProviderGuard is the circuit breaker consulted before each batch.
type ProviderGuard interface {
	AllowRequest(ctx context.Context, provider string) (string, bool)
	RecordSuccess(ctx context.Context, provider string)
	RecordFailure(ctx context.Context, provider string)
}

type EmailLogRecorder interface {
	RecordEmailLog(ctx context.Context, rec store.EmailLogRecord) error
}

// ProgressNotifier receives every settled delivery and the final report.
type ProgressNotifier interface {
	DeliverySettled(dispatchID string, result domain.DispatchResult)
	DispatchComplete(report *domain.DispatchReport)
}

// DispatcherConfig holds the sender identity and fan-out width.
type DispatcherConfig struct {
	From           string
	ReplyTo        string
	SiteURL        string
	MaxConcurrency int
}

// DispatcherDeps are the collaborators of a Dispatcher. Guard, EmailLogs and
// Progress are optional.
type DispatcherDeps struct {
	Recipients RecipientStore
	Submitter  Submitter
	Guard      ProviderGuard
	EmailLogs  EmailLogRecorder
	Progress   ProgressNotifier
}

// Dispatcher resolves an audience, personalizes and submits one message per
// recipient, and aggregates the outcomes into a report.
type Dispatcher struct {
	deps   DispatcherDeps
	cfg    DispatcherConfig
	logger *zap.Logger
}

func NewDispatcher(deps DispatcherDeps, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	return &Dispatcher{deps: deps, cfg: cfg, logger: logger}
}

// Dispatch sends req to its resolved audience. It returns either a complete
// report or an error, never both. Per-recipient failures only appear in the
// report. In-flight sends are not cancelled when ctx is.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchReport, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	audience, err := ResolveAudience(ctx, d.deps.Recipients, req.Target)
	if err != nil {
		if errors.Is(err, ErrNoEligibleRecipients) {
			metrics.DispatchesTotal.WithLabelValues("no_recipients").Inc()
		} else {
			metrics.DispatchesTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	if err := d.checkProvider(ctx); err != nil {
		metrics.DispatchesTotal.WithLabelValues("provider_unavailable").Inc()
		return nil, err
	}

	dispatchID := uuid.NewString()
	d.logger.Info("dispatch started",
		zap.String("dispatch_id", dispatchID),
		zap.Int("recipients", len(audience)),
		zap.Bool("send_to_all", req.SendToAll),
	)

	results := make([]domain.DispatchResult, len(audience))

	var g errgroup.Group
	g.SetLimit(d.cfg.MaxConcurrency)
	for i, sub := range audience {
		g.Go(func() error {
			results[i] = d.deliver(ctx, dispatchID, req, sub)
			return nil
		})
	}
	g.Wait()

	report := aggregate(dispatchID, results)

	if d.deps.Progress != nil {
		d.deps.Progress.DispatchComplete(report)
	}
	metrics.DispatchesTotal.WithLabelValues("completed").Inc()
	metrics.DispatchDuration.Observe(time.Since(start).Seconds())

	d.logger.Info("dispatch complete",
		zap.String("dispatch_id", dispatchID),
		zap.Int("total", report.Total),
		zap.Int("successful", report.Successful),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return report, nil
}

// SendOne delivers a single non-personalized message to a literal address.
func (d *Dispatcher) SendOne(ctx context.Context, req domain.SingleSendRequest) (string, error) {
	ctx = context.WithoutCancel(ctx)

	if err := d.checkProvider(ctx); err != nil {
		return "", err
	}

	msg, err := d.buildMessage(req.To, req.Subject, req.Title, req.Description)
	if err != nil {
		return "", err
	}

	id, err := d.deps.Submitter.Submit(ctx, msg)
	d.recordOutcome(ctx, err)
	if err != nil {
		d.logger.Warn("single send failed", zap.String("to", req.To), zap.Error(err))
		return "", fmt.Errorf("sending email: %w", err)
	}

	d.logger.Info("single send complete", zap.String("to", req.To), zap.String("provider_id", id))
	return id, nil
}

func (d *Dispatcher) checkProvider(ctx context.Context) error {
	if d.deps.Guard == nil {
		return nil
	}
	provider := d.deps.Submitter.Provider()
	if state, ok := d.deps.Guard.AllowRequest(ctx, provider); !ok {
		d.logger.Warn("dispatch refused, provider circuit open",
			zap.String("provider", provider),
			zap.String("state", state),
		)
		return ErrProviderUnavailable
	}
	return nil
}

// recordOutcome feeds the circuit breaker. Errors marked permanent concern
// the recipient, not the provider, and are not counted.
func (d *Dispatcher) recordOutcome(ctx context.Context, err error) {
	if d.deps.Guard == nil {
		return
	}
	provider := d.deps.Submitter.Provider()
	switch {
	case err == nil:
		d.deps.Guard.RecordSuccess(ctx, provider)
	case !mailer.IsPermanent(err):
		d.deps.Guard.RecordFailure(ctx, provider)
	}
}

func (d *Dispatcher) buildMessage(to, subject, title, body string) (mailer.Message, error) {
	unsubscribe := UnsubscribeURL(d.cfg.SiteURL, to)

	html, err := RenderEmail(EmailContent{
		Title:          title,
		Body:           body,
		UnsubscribeURL: unsubscribe,
	})
	if err != nil {
		return mailer.Message{}, err
	}

	return mailer.Message{
		From:    d.cfg.From,
		To:      to,
		ReplyTo: d.cfg.ReplyTo,
		Subject: subject,
		HTML:    html,
		Headers: map[string]string{
			"List-Unsubscribe":      "<" + unsubscribe + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
			"X-Entity-Ref-ID":       uuid.NewString(),
		},
	}, nil
}

// deliver never fails; every error becomes a failed result.
func (d *Dispatcher) deliver(ctx context.Context, dispatchID string, req domain.DispatchRequest, sub domain.Subscriber) domain.DispatchResult {
	result := domain.DispatchResult{
		SubscriberID: sub.ID,
		Email:        sub.Email,
	}

	msg, err := d.buildMessage(sub.Email, req.Subject, req.Title, Personalize(req.Description, sub.Name))
	if err == nil {
		result.ResendID, err = d.deps.Submitter.Submit(ctx, msg)
		d.recordOutcome(ctx, err)
	}

	if err != nil {
		result.Error = err.Error()
		d.logger.Warn("delivery failed",
			zap.String("dispatch_id", dispatchID),
			zap.String("subscriber_id", sub.ID),
			zap.Error(err),
		)
	} else {
		result.Success = true
	}

	d.logEmail(ctx, req.Subject, result)

	if d.deps.Progress != nil {
		d.deps.Progress.DeliverySettled(dispatchID, result)
	}
	return result
}

// logEmail persists the provider response. Failures are logged and ignored.
func (d *Dispatcher) logEmail(ctx context.Context, subject string, result domain.DispatchResult) {
	if d.deps.EmailLogs == nil {
		return
	}

	status := domain.DeliverySent
	if !result.Success {
		status = domain.DeliveryFailed
	}

	err := d.deps.EmailLogs.RecordEmailLog(ctx, store.EmailLogRecord{
		SubscriberID:   result.SubscriberID,
		Subject:        subject,
		ResendID:       result.ResendID,
		DeliveryStatus: status,
		ErrorMessage:   result.Error,
	})
	if err != nil {
		d.logger.Error("failed to record email log",
			zap.String("subscriber_id", result.SubscriberID),
			zap.Error(err),
		)
	}
}

func aggregate(dispatchID string, results []domain.DispatchResult) *domain.DispatchReport {
	report := &domain.DispatchReport{
		DispatchID: dispatchID,
		Total:      len(results),
		Results:    results,
	}
	for _, r := range results {
		if r.Success {
			report.Successful++
		} else {
			report.Failed++
		}
	}
	return report
}
