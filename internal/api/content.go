package api

import (
	"context"
	"errors"
	"net/http"
	"time"
	_ "time/tzdata" // hosts without a zoneinfo database

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papemosque/community-api/internal/domain"
	"github.com/papemosque/community-api/internal/store"
)

// PrayerTimeZone is the zone that decides which day's prayer times are served.
const PrayerTimeZone = "America/Toronto"

// ContentStore serves the site content tables.
type ContentStore interface {
	GetPrayerCache(ctx context.Context, date string) (*domain.PrayerCache, error)
	ListDonationFunds(ctx context.Context, activeOnly bool) ([]domain.DonationFund, error)
	SetFundActive(ctx context.Context, id string, active bool) (bool, error)
	BulkSetFundActive(ctx context.Context, updates []domain.FundActivation) error
	GetDonationStats(ctx context.Context) (*domain.DonationStats, error)
}

type ContentHandler struct {
	store  ContentStore
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

func NewContentHandler(s ContentStore, logger *zap.Logger) *ContentHandler {
	loc, err := time.LoadLocation(PrayerTimeZone)
	if err != nil {
		logger.Warn("time zone data unavailable, using UTC", zap.String("zone", PrayerTimeZone), zap.Error(err))
		loc = time.UTC
	}
	return &ContentHandler{store: s, loc: loc, now: time.Now, logger: logger}
}

type prayerResponse struct {
	Date        string      `json:"date"`
	LastUpdated time.Time   `json:"lastUpdated"`
	Status      string      `json:"status"`
	Source      string      `json:"source"`
	Payload     interface{} `json:"payload"`
}

// PrayerToday serves today's cached prayer times.
func (h *ContentHandler) PrayerToday(w http.ResponseWriter, r *http.Request) {
	date := h.now().In(h.loc).Format("2006-01-02")

	cached, err := h.store.GetPrayerCache(r.Context(), date)
	if err != nil {
		h.logger.Error("failed to read prayer cache", zap.String("date", date), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if cached == nil {
		respondError(w, http.StatusNotFound, "not_found")
		return
	}
	if len(cached.Payload) == 0 || string(cached.Payload) == "null" {
		respondError(w, http.StatusBadGateway, "empty_payload")
		return
	}

	respondJSON(w, http.StatusOK, prayerResponse{
		Date:        date,
		LastUpdated: cached.FetchedAt,
		Status:      cached.Status,
		Source:      "cache",
		Payload:     cached.Payload,
	})
}

// ActiveFunds lists the funds shown on the public donation page.
func (h *ContentHandler) ActiveFunds(w http.ResponseWriter, r *http.Request) {
	h.listFunds(w, r, true)
}

func (h *ContentHandler) AllFunds(w http.ResponseWriter, r *http.Request) {
	h.listFunds(w, r, false)
}

func (h *ContentHandler) listFunds(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	funds, err := h.store.ListDonationFunds(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error("failed to list donation funds", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch donation funds")
		return
	}
	respondJSON(w, http.StatusOK, funds)
}

func (h *ContentHandler) SetFundActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, http.StatusNotFound, "Fund not found")
		return
	}

	var body struct {
		IsActive *bool `json:"is_active"`
	}
	if err := decodeJSON(r, &body); err != nil || body.IsActive == nil {
		respondError(w, http.StatusBadRequest, "is_active is required")
		return
	}

	found, err := h.store.SetFundActive(r.Context(), id, *body.IsActive)
	if err != nil {
		h.logger.Error("failed to update donation fund", zap.String("fund_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to update fund")
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "Fund not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// BulkSetFundActive applies every activation change or none of them.
func (h *ContentHandler) BulkSetFundActive(w http.ResponseWriter, r *http.Request) {
	var updates []domain.FundActivation
	if err := decodeJSON(r, &updates); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(updates) == 0 {
		respondError(w, http.StatusBadRequest, "at least one update is required")
		return
	}
	for _, u := range updates {
		if _, err := uuid.Parse(u.ID); err != nil {
			respondError(w, http.StatusBadRequest, "invalid fund id: "+u.ID)
			return
		}
	}

	if err := h.store.BulkSetFundActive(r.Context(), updates); err != nil {
		if errors.Is(err, store.ErrFundNotFound) {
			respondError(w, http.StatusNotFound, "Fund not found")
			return
		}
		h.logger.Error("failed to bulk update donation funds", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to update funds")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"updated": len(updates),
	})
}

func (h *ContentHandler) DonationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetDonationStats(r.Context())
	if err != nil {
		h.logger.Error("failed to compute donation stats", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch donation stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
