package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papemosque/community-api/internal/domain"
	"github.com/papemosque/community-api/internal/store"
)

// SubscriberStore is the subscriber persistence used by the HTTP layer.
type SubscriberStore interface {
	CreateSubscriber(ctx context.Context, req domain.CreateSubscriberRequest) (*domain.Subscriber, error)
	ListSubscribers(ctx context.Context) ([]domain.Subscriber, error)
	UpdateSubscriber(ctx context.Context, id string, req domain.UpdateSubscriberRequest) (*domain.Subscriber, error)
	DeleteSubscriber(ctx context.Context, id string) (bool, error)
	SetSubscriberStatusByEmail(ctx context.Context, email string, status domain.SubscriberStatus) (bool, error)
	GetSubscriberStats(ctx context.Context) (*domain.SubscriberStats, error)
}

type SubscriberHandler struct {
	store  SubscriberStore
	logger *zap.Logger
}

func NewSubscriberHandler(s SubscriberStore, logger *zap.Logger) *SubscriberHandler {
	return &SubscriberHandler{store: s, logger: logger}
}

// Subscribe is the public newsletter sign-up.
func (h *SubscriberHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSubscriberRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if errs := validateSubscribe(&req); len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	sub, err := h.store.CreateSubscriber(r.Context(), req)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			respondError(w, http.StatusConflict, "This email is already subscribed")
			return
		}
		h.logger.Error("failed to create subscriber", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Successfully subscribed!",
		"data":    sub,
	})
}

// List returns every subscriber, or the status counts with ?stats=true.
func (h *SubscriberHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("stats") == "true" {
		stats, err := h.store.GetSubscriberStats(r.Context())
		if err != nil {
			h.logger.Error("failed to get subscriber stats", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "Failed to fetch subscribers")
			return
		}
		respondJSON(w, http.StatusOK, stats)
		return
	}

	subscribers, err := h.store.ListSubscribers(r.Context())
	if err != nil {
		h.logger.Error("failed to list subscribers", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch subscribers")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    subscribers,
		"total":   len(subscribers),
	})
}

func (h *SubscriberHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, http.StatusNotFound, "Subscriber not found")
		return
	}

	var req domain.UpdateSubscriberRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if errs := validateUpdate(&req); len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	sub, err := h.store.UpdateSubscriber(r.Context(), id, req)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			respondError(w, http.StatusConflict, "This email is already subscribed")
			return
		}
		h.logger.Error("failed to update subscriber", zap.String("subscriber_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to update subscriber")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "Subscriber not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    sub,
	})
}

func (h *SubscriberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, http.StatusNotFound, "Subscriber not found")
		return
	}

	deleted, err := h.store.DeleteSubscriber(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to delete subscriber", zap.String("subscriber_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to delete subscriber")
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "Subscriber not found")
		return
	}

	h.logger.Info("subscriber deleted",
		zap.String("subscriber_id", id),
		zap.String("admin", adminSubject(r.Context())),
	)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Subscriber deleted successfully",
	})
}
