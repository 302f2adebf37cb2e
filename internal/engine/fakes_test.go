package engine

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/papemosque/community-api/internal/domain"
	"github.com/papemosque/community-api/internal/mailer"
	"github.com/papemosque/community-api/internal/store"
)

type fakeRecipients struct {
	subscribers []domain.Subscriber
	err         error

	mu        sync.Mutex
	lookedUp  [][]string
	listCalls int
}

func (f *fakeRecipients) ListActiveSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Subscriber
	for _, s := range f.subscribers {
		if s.Status == domain.StatusActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRecipients) GetSubscribersByIDs(ctx context.Context, ids []string) ([]domain.Subscriber, error) {
	f.mu.Lock()
	f.lookedUp = append(f.lookedUp, ids)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Subscriber
	for _, id := range ids {
		for _, s := range f.subscribers {
			if s.ID == id {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

// fakeSubmitter fails any recipient listed in failFor.
type fakeSubmitter struct {
	failFor map[string]error

	mu   sync.Mutex
	sent []mailer.Message
}

func (f *fakeSubmitter) Provider() string { return "fake" }

func (f *fakeSubmitter) Submit(ctx context.Context, msg mailer.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if err, ok := f.failFor[msg.To]; ok {
		return "", err
	}
	return "id-" + strings.SplitN(msg.To, "@", 2)[0], nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSubmitter) messageTo(to string) (mailer.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.sent {
		if m.To == to {
			return m, true
		}
	}
	return mailer.Message{}, false
}

type fakeGuard struct {
	open bool

	mu        sync.Mutex
	successes int
	failures  int
}

func (g *fakeGuard) AllowRequest(ctx context.Context, provider string) (string, bool) {
	if g.open {
		return StateOpen, false
	}
	return StateClosed, true
}

func (g *fakeGuard) RecordSuccess(ctx context.Context, provider string) {
	g.mu.Lock()
	g.successes++
	g.mu.Unlock()
}

func (g *fakeGuard) RecordFailure(ctx context.Context, provider string) {
	g.mu.Lock()
	g.failures++
	g.mu.Unlock()
}

type fakeEmailLogs struct {
	err error

	mu      sync.Mutex
	records []store.EmailLogRecord
}

func (f *fakeEmailLogs) RecordEmailLog(ctx context.Context, rec store.EmailLogRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return f.err
}

type fakeProgress struct {
	mu       sync.Mutex
	settled  []domain.DispatchResult
	complete []*domain.DispatchReport
}

func (f *fakeProgress) DeliverySettled(dispatchID string, result domain.DispatchResult) {
	f.mu.Lock()
	f.settled = append(f.settled, result)
	f.mu.Unlock()
}

func (f *fakeProgress) DispatchComplete(report *domain.DispatchReport) {
	f.mu.Lock()
	f.complete = append(f.complete, report)
	f.mu.Unlock()
}

var errProviderDown = errors.New("provider returned 503")
