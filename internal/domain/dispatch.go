package domain

// Target selects the audience of a bulk send. SendToAll wins over IDs.
type Target struct {
	SubscriberIDs []string `json:"subscriber_ids"`
	SendToAll     bool     `json:"send_to_all"`
}

// DispatchRequest is one bulk-send invocation. Description may contain the
// [Name] placeholder.
type DispatchRequest struct {
	Target
	Subject     string `json:"subject"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// SingleSendRequest sends one message to a literal address, no personalization.
type SingleSendRequest struct {
	To          string `json:"to"`
	Subject     string `json:"subject"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// DispatchResult is the outcome for one attempted recipient.
type DispatchResult struct {
	Success      bool   `json:"success"`
	SubscriberID string `json:"subscriber_id"`
	Email        string `json:"email"`
	ResendID     string `json:"resend_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// DispatchReport aggregates every settled result of one dispatch.
type DispatchReport struct {
	DispatchID string           `json:"-"`
	Total      int              `json:"total"`
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Results    []DispatchResult `json:"results"`
}
