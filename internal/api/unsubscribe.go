package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/papemosque/community-api/internal/domain"
)

type UnsubscribeHandler struct {
	store   SubscriberStore
	siteURL string
	logger  *zap.Logger
}

func NewUnsubscribeHandler(s SubscriberStore, siteURL string, logger *zap.Logger) *UnsubscribeHandler {
	return &UnsubscribeHandler{
		store:   s,
		siteURL: strings.TrimRight(siteURL, "/"),
		logger:  logger,
	}
}

// Link handles the unsubscribe link in the email footer and redirects to the
// confirmation page.
func (h *UnsubscribeHandler) Link(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		respondError(w, http.StatusBadRequest, "Email parameter is required")
		return
	}

	if !h.unsubscribe(w, r, email) {
		return
	}

	target := h.siteURL + "/unsubscribe/success?email=" + url.QueryEscape(email)
	http.Redirect(w, r, target, http.StatusFound)
}

// OneClick handles RFC 8058 one-click POSTs from mail clients as well as JSON
// requests carrying {"email": "..."}.
func (h *UnsubscribeHandler) OneClick(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))

	if email == "" {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		switch mediaType {
		case "application/x-www-form-urlencoded", "multipart/form-data":
			email = strings.TrimSpace(r.FormValue("email"))
		default:
			var body struct {
				Email string `json:"email"`
			}
			if err := decodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
				respondError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			email = strings.TrimSpace(body.Email)
		}
	}

	if email == "" {
		respondError(w, http.StatusBadRequest, "Email is required")
		return
	}

	if !h.unsubscribe(w, r, email) {
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Successfully unsubscribed",
	})
}

// unsubscribe marks email unsubscribed. Unknown emails are treated as
// success so the endpoint does not reveal who is subscribed.
func (h *UnsubscribeHandler) unsubscribe(w http.ResponseWriter, r *http.Request, email string) bool {
	changed, err := h.store.SetSubscriberStatusByEmail(r.Context(), email, domain.StatusUnsubscribed)
	if err != nil {
		h.logger.Error("failed to unsubscribe", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to unsubscribe")
		return false
	}

	h.logger.Info("unsubscribe request", zap.Bool("matched", changed))
	return true
}
