package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papemosque/community-api/internal/domain"
	"github.com/papemosque/community-api/internal/engine"
	"github.com/papemosque/community-api/internal/store"
)

type memSubscribers struct {
	mu   sync.Mutex
	subs map[string]*domain.Subscriber
	err  error
}

func newMemSubscribers(subs ...domain.Subscriber) *memSubscribers {
	m := &memSubscribers{subs: map[string]*domain.Subscriber{}}
	for i := range subs {
		s := subs[i]
		m.subs[s.ID] = &s
	}
	return m
}

func (m *memSubscribers) byEmail(email string) *domain.Subscriber {
	for _, s := range m.subs {
		if strings.EqualFold(s.Email, email) {
			return s
		}
	}
	return nil
}

func (m *memSubscribers) CreateSubscriber(ctx context.Context, req domain.CreateSubscriberRequest) (*domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if existing := m.byEmail(req.Email); existing != nil {
		if existing.Status != domain.StatusUnsubscribed {
			return nil, store.ErrDuplicateEmail
		}
		existing.Status = domain.StatusActive
		existing.Name = req.Name
		cp := *existing
		return &cp, nil
	}
	s := &domain.Subscriber{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     req.Email,
		Status:    domain.StatusActive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.subs[s.ID] = s
	cp := *s
	return &cp, nil
}

func (m *memSubscribers) ListSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []domain.Subscriber{}
	for _, s := range m.subs {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memSubscribers) UpdateSubscriber(ctx context.Context, id string, req domain.UpdateSubscriberRequest) (*domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, nil
	}
	if req.Name != nil {
		s.Name = *req.Name
	}
	if req.Status != nil {
		s.Status = *req.Status
	}
	cp := *s
	return &cp, nil
}

func (m *memSubscribers) DeleteSubscriber(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[id]
	delete(m.subs, id)
	return ok, nil
}

func (m *memSubscribers) SetSubscriberStatusByEmail(ctx context.Context, email string, status domain.SubscriberStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	s := m.byEmail(email)
	if s == nil {
		return false, nil
	}
	s.Status = status
	return true, nil
}

func (m *memSubscribers) GetSubscriberStats(ctx context.Context) (*domain.SubscriberStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &domain.SubscriberStats{}
	for _, s := range m.subs {
		st.Total++
		switch s.Status {
		case domain.StatusActive:
			st.Active++
		case domain.StatusInactive:
			st.Inactive++
		case domain.StatusUnsubscribed:
			st.Unsubscribed++
		}
	}
	return st, nil
}

func (m *memSubscribers) status(id string) domain.SubscriberStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[id].Status
}

type fakeDispatcher struct {
	report *domain.DispatchReport
	err    error
	sendID string

	calls   int
	lastReq domain.DispatchRequest
	lastOne domain.SingleSendRequest
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchReport, error) {
	f.calls++
	f.lastReq = req
	return f.report, f.err
}

func (f *fakeDispatcher) SendOne(ctx context.Context, req domain.SingleSendRequest) (string, error) {
	f.calls++
	f.lastOne = req
	return f.sendID, f.err
}

type fakeContent struct {
	prayer *domain.PrayerCache
	funds  []domain.DonationFund
	stats  *domain.DonationStats

	lastDate string
	bulk     []domain.FundActivation
}

func (f *fakeContent) GetPrayerCache(ctx context.Context, date string) (*domain.PrayerCache, error) {
	f.lastDate = date
	return f.prayer, nil
}

func (f *fakeContent) ListDonationFunds(ctx context.Context, activeOnly bool) ([]domain.DonationFund, error) {
	out := []domain.DonationFund{}
	for _, fund := range f.funds {
		if !activeOnly || fund.IsActive {
			out = append(out, fund)
		}
	}
	return out, nil
}

func (f *fakeContent) SetFundActive(ctx context.Context, id string, active bool) (bool, error) {
	for i := range f.funds {
		if f.funds[i].ID == id {
			f.funds[i].IsActive = active
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeContent) BulkSetFundActive(ctx context.Context, updates []domain.FundActivation) error {
	for _, u := range updates {
		found := false
		for _, fund := range f.funds {
			if fund.ID == u.ID {
				found = true
			}
		}
		if !found {
			return store.ErrFundNotFound
		}
	}
	f.bulk = updates
	return nil
}

func (f *fakeContent) GetDonationStats(ctx context.Context) (*domain.DonationStats, error) {
	return f.stats, nil
}

type fakeEmailLogs struct {
	logs           []domain.EmailLog
	lastSubscriber string
	lastLimit      int
}

func (f *fakeEmailLogs) ListEmailLogs(ctx context.Context, subscriberID string, limit int) ([]domain.EmailLog, error) {
	f.lastSubscriber = subscriberID
	f.lastLimit = limit
	return f.logs, nil
}

type fakeBreaker struct {
	state string
}

func (f *fakeBreaker) GetState(ctx context.Context, provider string) engine.CircuitBreakerState {
	return engine.CircuitBreakerState{Provider: provider, State: f.state}
}

// countingLimiter allows the first n requests per key.
type countingLimiter struct {
	mu   sync.Mutex
	n    int
	seen map[string]int
}

func (l *countingLimiter) Allow(ctx context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen == nil {
		l.seen = map[string]int{}
	}
	l.seen[key]++
	return l.seen[key] <= l.n
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// fakeFeed stands in for the progress hub and records accepted upgrades.
type fakeFeed struct {
	mu       sync.Mutex
	upgrades int
}

func (f *fakeFeed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.upgrades++
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *fakeFeed) ClientCount() int { return 0 }
