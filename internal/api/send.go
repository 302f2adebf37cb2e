package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/papemosque/community-api/internal/domain"
	"github.com/papemosque/community-api/internal/engine"
)

// Dispatcher sends announcements.
type Dispatcher interface {
	Dispatch(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchReport, error)
	SendOne(ctx context.Context, req domain.SingleSendRequest) (string, error)
}

type SendHandler struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

func NewSendHandler(d Dispatcher, logger *zap.Logger) *SendHandler {
	return &SendHandler{dispatcher: d, logger: logger}
}

type bulkSendResponse struct {
	Success bool `json:"success"`
	*domain.DispatchReport
}

// Bulk is the bulk dispatch entry point. It answers with the full report or a
// single error, never both.
func (h *SendHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req domain.DispatchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if errs := validateMessage(req.Subject, req.Title, req.Description); len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	h.logger.Info("bulk send requested",
		zap.String("admin", adminSubject(r.Context())),
		zap.Bool("send_to_all", req.SendToAll),
		zap.Int("subscriber_ids", len(req.SubscriberIDs)),
	)

	report, err := h.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		if errors.Is(err, engine.ErrNoEligibleRecipients) {
			respondError(w, http.StatusBadRequest, "No active subscribers found")
			return
		}
		h.logger.Error("bulk send failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Bulk email sending failed")
		return
	}

	respondJSON(w, http.StatusOK, bulkSendResponse{Success: true, DispatchReport: report})
}

// Single sends one message to a literal address.
func (h *SendHandler) Single(w http.ResponseWriter, r *http.Request) {
	var req domain.SingleSendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.To = strings.TrimSpace(req.To)
	errs := validateMessage(req.Subject, req.Title, req.Description)
	if !validEmail(req.To) {
		errs = append(errs, FieldError{"to", "Invalid email address"})
	}
	if len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	id, err := h.dispatcher.SendOne(r.Context(), req)
	if err != nil {
		h.logger.Error("email send failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Email sending failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"resendId": id,
	})
}
