package domain

import (
	"encoding/json"
	"time"
)

// PrayerCache is one day of prayer times as cached by the fetch job.
type PrayerCache struct {
	Date      string          `json:"date"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
	Status    string          `json:"status"`
}

type DonationFund struct {
	ID           string  `json:"id"`
	Code         string  `json:"code"`
	Label        string  `json:"label"`
	Color        *string `json:"color"`
	Description  *string `json:"description"`
	IsActive     bool    `json:"is_active"`
	DisplayOrder int     `json:"display_order"`
}

type FundActivation struct {
	ID       string `json:"id"`
	IsActive bool   `json:"is_active"`
}

// DonationStats sums donations in cents, overall and per fund code.
type DonationStats struct {
	Total  int64            `json:"total"`
	ByFund map[string]int64 `json:"byFund"`
	Count  int              `json:"count"`
}
