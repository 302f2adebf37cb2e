package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/papemosque/community-api/internal/domain"
	"github.com/papemosque/community-api/internal/mailer"
)

var testDispatchConfig = DispatcherConfig{
	From:           "The Canadian Turkish Islamic Trust <duyuru@papemosque.ca>",
	ReplyTo:        "duyuru@papecami.com",
	SiteURL:        "https://papemosque.ca",
	MaxConcurrency: 4,
}

func newTestDispatcher(deps DispatcherDeps) *Dispatcher {
	return NewDispatcher(deps, testDispatchConfig, zap.NewNop())
}

func announcement(target domain.Target) domain.DispatchRequest {
	return domain.DispatchRequest{
		Target:      target,
		Subject:     "Duyuru",
		Title:       "T",
		Description: "Hello [Name]",
	}
}

func assertReportConsistent(t *testing.T, report *domain.DispatchReport) {
	t.Helper()
	assert.Len(t, report.Results, report.Total)
	assert.Equal(t, report.Total, report.Successful+report.Failed)
}

func TestDispatch_SendToAllSkipsNonActive(t *testing.T) {
	recipients := &fakeRecipients{subscribers: []domain.Subscriber{
		sub("ayse", domain.StatusActive),
		sub("mehmet", domain.StatusActive),
		sub("zeynep", domain.StatusActive),
		sub("ali", domain.StatusUnsubscribed),
		sub("fatma", domain.StatusUnsubscribed),
	}}
	submitter := &fakeSubmitter{}
	d := newTestDispatcher(DispatcherDeps{Recipients: recipients, Submitter: submitter})

	report, err := d.Dispatch(context.Background(), announcement(domain.Target{SendToAll: true}))
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Successful)
	assert.Equal(t, 0, report.Failed)
	assert.NotEmpty(t, report.DispatchID)
	assertReportConsistent(t, report)
	assert.Equal(t, 3, submitter.count())

	_, sentToUnsubscribed := submitter.messageTo("ali@example.com")
	assert.False(t, sentToUnsubscribed)
}

func TestDispatch_ExplicitIDsActiveOnly(t *testing.T) {
	a := sub("ayse", domain.StatusActive)
	b := sub("ali", domain.StatusUnsubscribed)
	submitter := &fakeSubmitter{}
	d := newTestDispatcher(DispatcherDeps{
		Recipients: &fakeRecipients{subscribers: []domain.Subscriber{a, b}},
		Submitter:  submitter,
	})

	report, err := d.Dispatch(context.Background(), announcement(domain.Target{
		SubscriberIDs: []string{a.ID, b.ID},
	}))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Total)
	require.Len(t, report.Results, 1)
	assert.Equal(t, a.ID, report.Results[0].SubscriberID)
	assert.Equal(t, "id-ayse", report.Results[0].ResendID)
	assertReportConsistent(t, report)
}

func TestDispatch_EmptyAudienceSendsNothing(t *testing.T) {
	submitter := &fakeSubmitter{}
	progress := &fakeProgress{}
	d := newTestDispatcher(DispatcherDeps{
		Recipients: &fakeRecipients{subscribers: []domain.Subscriber{sub("ayse", domain.StatusActive)}},
		Submitter:  submitter,
		Progress:   progress,
	})

	report, err := d.Dispatch(context.Background(), announcement(domain.Target{SubscriberIDs: []string{}}))
	assert.ErrorIs(t, err, ErrNoEligibleRecipients)
	assert.Nil(t, report)
	assert.Zero(t, submitter.count())
	assert.Empty(t, progress.complete)
}

func TestDispatch_OneFailureDoesNotBlockOthers(t *testing.T) {
	subs := []domain.Subscriber{
		sub("ayse", domain.StatusActive),
		sub("mehmet", domain.StatusActive),
		sub("zeynep", domain.StatusActive),
		sub("emre", domain.StatusActive),
		sub("elif", domain.StatusActive),
	}
	submitter := &fakeSubmitter{failFor: map[string]error{
		"mehmet@example.com": errProviderDown,
	}}
	d := newTestDispatcher(DispatcherDeps{
		Recipients: &fakeRecipients{subscribers: subs},
		Submitter:  submitter,
	})

	report, err := d.Dispatch(context.Background(), announcement(domain.Target{SendToAll: true}))
	require.NoError(t, err)

	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 4, report.Successful)
	assert.Equal(t, 1, report.Failed)
	assertReportConsistent(t, report)

	for _, r := range report.Results {
		if r.Email == "mehmet@example.com" {
			assert.False(t, r.Success)
			assert.Equal(t, errProviderDown.Error(), r.Error)
			assert.Empty(t, r.ResendID)
		} else {
			assert.True(t, r.Success, r.Email)
			assert.NotEmpty(t, r.ResendID)
		}
	}
}

func TestDispatch_AllFailStillReports(t *testing.T) {
	subs := []domain.Subscriber{sub("ayse", domain.StatusActive), sub("mehmet", domain.StatusActive)}
	submitter := &fakeSubmitter{failFor: map[string]error{
		"ayse@example.com":   errProviderDown,
		"mehmet@example.com": errProviderDown,
	}}
	d := newTestDispatcher(DispatcherDeps{Recipients: &fakeRecipients{subscribers: subs}, Submitter: submitter})

	report, err := d.Dispatch(context.Background(), announcement(domain.Target{SendToAll: true}))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	assertReportConsistent(t, report)
}

func TestDispatch_Personalization(t *testing.T) {
	ayse := sub("ayse", domain.StatusActive)
	ayse.Name = "Ayşe"
	submitter := &fakeSubmitter{}
	d := newTestDispatcher(DispatcherDeps{
		Recipients: &fakeRecipients{subscribers: []domain.Subscriber{ayse}},
		Submitter:  submitter,
	})

	_, err := d.Dispatch(context.Background(), announcement(domain.Target{SendToAll: true}))
	require.NoError(t, err)

	msg, ok := submitter.messageTo("ayse@example.com")
	require.True(t, ok)
	assert.Contains(t, msg.HTML, "Hello Ayşe")
	assert.NotContains(t, msg.HTML, NamePlaceholder)
	assert.Equal(t, "Duyuru", msg.Subject)
	assert.Equal(t, testDispatchConfig.From, msg.From)
	assert.Equal(t, testDispatchConfig.ReplyTo, msg.ReplyTo)
	assert.Equal(t, "<https://papemosque.ca/api/unsubscribe?email=ayse%40example.com>", msg.Headers["List-Unsubscribe"])
	assert.Equal(t, "List-Unsubscribe=One-Click", msg.Headers["List-Unsubscribe-Post"])
	assert.NotEmpty(t, msg.Headers["X-Entity-Ref-ID"])
}

func TestDispatch_TemplateWithoutPlaceholderUnchanged(t *testing.T) {
	submitter := &fakeSubmitter{}
	d := newTestDispatcher(DispatcherDeps{
		Recipients: &fakeRecipients{subscribers: []domain.Subscriber{sub("ayse", domain.StatusActive)}},
		Submitter:  submitter,
	})

	req := announcement(domain.Target{SendToAll: true})
	req.Description = "Cuma namazı saat 13:30"
	_, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)

	msg, _ := submitter.messageTo("ayse@example.com")
	assert.Contains(t, msg.HTML, "Cuma namazı saat 13:30")
}

func TestDispatch_TwiceSendsTwice(t *testing.T) {
	recipients := &fakeRecipients{subscribers: []domain.Subscriber{
		sub("ayse", domain.StatusActive),
		sub("mehmet", domain.StatusActive),
	}}
	submitter := &fakeSubmitter{}
	d := newTestDispatcher(DispatcherDeps{Recipients: recipients, Submitter: submitter})
	req := announcement(domain.Target{SendToAll: true})

	first, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	second, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 4, submitter.count())
	assert.NotEqual(t, first.DispatchID, second.DispatchID)
}

func TestDispatch_CancelledContextStillCompletes(t *testing.T) {
	submitter := &fakeSubmitter{}
	d := newTestDispatcher(DispatcherDeps{
		Recipients: &fakeRecipients{subscribers: []domain.Subscriber{sub("ayse", domain.StatusActive)}},
		Submitter:  &ctxCheckingSubmitter{fakeSubmitter: submitter},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := d.Dispatch(ctx, announcement(domain.Target{SendToAll: true}))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Successful)
}

// ctxCheckingSubmitter fails if it sees a cancelled context.
type ctxCheckingSubmitter struct {
	*fakeSubmitter
}

func (s *ctxCheckingSubmitter) Submit(ctx context.Context, msg mailer.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.fakeSubmitter.Submit(ctx, msg)
}

func TestDispatch_OpenCircuitRefusesBatch(t *testing.T) {
	submitter := &fakeSubmitter{}
	d := newTestDispatcher(DispatcherDeps{
		Recipients: &fakeRecipients{subscribers: []domain.Subscriber{sub("ayse", domain.StatusActive)}},
		Submitter:  submitter,
		Guard:      &fakeGuard{open: true},
	})

	report, err := d.Dispatch(context.Background(), announcement(domain.Target{SendToAll: true}))
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Nil(t, report)
	assert.Zero(t, submitter.count())
}

func TestDispatch_FeedsGuardLogsAndProgress(t *testing.T) {
	subs := []domain.Subscriber{
		sub("ayse", domain.StatusActive),
		sub("mehmet", domain.StatusActive),
		sub("zeynep", domain.StatusActive),
	}
	guard := &fakeGuard{}
	logs := &fakeEmailLogs{err: errors.New("insert failed")}
	progress := &fakeProgress{}
	d := newTestDispatcher(DispatcherDeps{
		Recipients: &fakeRecipients{subscribers: subs},
		Submitter: &fakeSubmitter{failFor: map[string]error{
			"mehmet@example.com": errProviderDown,
			"zeynep@example.com": mailer.Permanent(errors.New("invalid recipient")),
		}},
		Guard:     guard,
		EmailLogs: logs,
		Progress:  progress,
	})

	report, err := d.Dispatch(context.Background(), announcement(domain.Target{SendToAll: true}))
	require.NoError(t, err, "email log failures must not fail the dispatch")
	assert.Equal(t, 1, report.Successful)
	assert.Equal(t, 2, report.Failed)

	assert.Equal(t, 1, guard.successes)
	assert.Equal(t, 1, guard.failures, "permanent recipient errors are not provider failures")

	require.Len(t, logs.records, 3)
	statuses := map[domain.EmailDeliveryStatus]int{}
	for _, rec := range logs.records {
		statuses[rec.DeliveryStatus]++
		assert.Equal(t, "Duyuru", rec.Subject)
	}
	assert.Equal(t, 1, statuses[domain.DeliverySent])
	assert.Equal(t, 2, statuses[domain.DeliveryFailed])

	assert.Len(t, progress.settled, 3)
	require.Len(t, progress.complete, 1)
	assert.Equal(t, report, progress.complete[0])
}

func TestSendOne(t *testing.T) {
	submitter := &fakeSubmitter{}
	d := newTestDispatcher(DispatcherDeps{Recipients: &fakeRecipients{}, Submitter: submitter})

	id, err := d.SendOne(context.Background(), domain.SingleSendRequest{
		To:          "guest@example.com",
		Subject:     "Davet",
		Title:       "İftar",
		Description: "Hello [Name]",
	})
	require.NoError(t, err)
	assert.Equal(t, "id-guest", id)

	msg, ok := submitter.messageTo("guest@example.com")
	require.True(t, ok)
	assert.Contains(t, msg.HTML, "Hello [Name]", "single sends are not personalized")
	assert.True(t, strings.HasPrefix(msg.Headers["List-Unsubscribe"], "<https://papemosque.ca/api/unsubscribe"))
}

func TestSendOne_Errors(t *testing.T) {
	d := newTestDispatcher(DispatcherDeps{
		Recipients: &fakeRecipients{},
		Submitter:  &fakeSubmitter{failFor: map[string]error{"guest@example.com": errProviderDown}},
	})
	_, err := d.SendOne(context.Background(), domain.SingleSendRequest{To: "guest@example.com", Subject: "s"})
	assert.ErrorIs(t, err, errProviderDown)

	d = newTestDispatcher(DispatcherDeps{
		Recipients: &fakeRecipients{},
		Submitter:  &fakeSubmitter{},
		Guard:      &fakeGuard{open: true},
	})
	_, err = d.SendOne(context.Background(), domain.SingleSendRequest{To: "guest@example.com", Subject: "s"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}
