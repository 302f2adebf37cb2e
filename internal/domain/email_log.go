package domain

import "time"

type EmailDeliveryStatus string

const (
	DeliveryPending    EmailDeliveryStatus = "pending"
	DeliverySent       EmailDeliveryStatus = "sent"
	DeliveryDelivered  EmailDeliveryStatus = "delivered"
	DeliveryBounced    EmailDeliveryStatus = "bounced"
	DeliveryFailed     EmailDeliveryStatus = "failed"
	DeliveryComplained EmailDeliveryStatus = "complained"
)

type EmailLog struct {
	ID             string              `json:"id"`
	SubscriberID   string              `json:"subscriber_id"`
	Subject        *string             `json:"subject"`
	ResendID       *string             `json:"resend_id"`
	DeliveryStatus EmailDeliveryStatus `json:"delivery_status"`
	ErrorMessage   *string             `json:"error_message,omitempty"`
	SentAt         time.Time           `json:"sent_at"`
}
