package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papemosque/community-api/internal/domain"
	"github.com/papemosque/community-api/internal/engine"
)

// CircuitStater reports the provider circuit breaker state.
type CircuitStater interface {
	GetState(ctx context.Context, provider string) engine.CircuitBreakerState
}

type EmailLogStore interface {
	ListEmailLogs(ctx context.Context, subscriberID string, limit int) ([]domain.EmailLog, error)
}

type DashboardHandler struct {
	subscribers SubscriberStore
	emailLogs   EmailLogStore
	breaker     CircuitStater
	provider    string
	feed        ProgressFeed
	logger      *zap.Logger
}

func NewDashboardHandler(subs SubscriberStore, logs EmailLogStore, breaker CircuitStater, provider string, feed ProgressFeed, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		subscribers: subs,
		emailLogs:   logs,
		breaker:     breaker,
		provider:    provider,
		feed:        feed,
		logger:      logger,
	}
}

type dashboardResponse struct {
	Subscribers      domain.SubscriberStats     `json:"subscribers"`
	Provider         engine.CircuitBreakerState `json:"provider"`
	WebSocketClients int                        `json:"websocket_clients"`
}

// Overview summarises subscribers and email provider health.
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	stats, err := h.subscribers.GetSubscriberStats(r.Context())
	if err != nil {
		h.logger.Error("failed to get subscriber stats", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to get dashboard")
		return
	}

	resp := dashboardResponse{
		Subscribers: *stats,
		Provider:    engine.CircuitBreakerState{Provider: h.provider, State: engine.StateClosed},
	}
	if h.breaker != nil {
		resp.Provider = h.breaker.GetState(r.Context(), h.provider)
	}
	if h.feed != nil {
		resp.WebSocketClients = h.feed.ClientCount()
	}

	respondJSON(w, http.StatusOK, resp)
}

const (
	defaultLogLimit = 100
	maxLogLimit     = 500
)

// EmailLogs lists recent provider responses, optionally for one subscriber.
func (h *DashboardHandler) EmailLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	subscriberID := q.Get("subscriber_id")
	if subscriberID != "" {
		if _, err := uuid.Parse(subscriberID); err != nil {
			respondError(w, http.StatusBadRequest, "invalid subscriber_id")
			return
		}
	}

	limit := defaultLogLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLogLimit)
	}

	logs, err := h.emailLogs.ListEmailLogs(r.Context(), subscriberID, limit)
	if err != nil {
		h.logger.Error("failed to list email logs", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list email logs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    logs,
		"total":   len(logs),
	})
}
