package domain

import (
	"time"
)

// SubscriberStatus is the lifecycle state of a newsletter subscriber.
type SubscriberStatus string

const (
	StatusActive       SubscriberStatus = "active"
	StatusInactive     SubscriberStatus = "inactive"
	StatusUnsubscribed SubscriberStatus = "unsubscribed"
)

// Valid reports whether s is one of the known statuses.
func (s SubscriberStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusUnsubscribed:
		return true
	}
	return false
}

type Subscriber struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Email     string           `json:"email"`
	Phone     *string          `json:"phone"`
	Status    SubscriberStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type CreateSubscriberRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type UpdateSubscriberRequest struct {
	Name   *string           `json:"name,omitempty"`
	Email  *string           `json:"email,omitempty"`
	Phone  *string           `json:"phone,omitempty"`
	Status *SubscriberStatus `json:"status,omitempty"`
}

type SubscriberStats struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Inactive     int `json:"inactive"`
	Unsubscribed int `json:"unsubscribed"`
}
