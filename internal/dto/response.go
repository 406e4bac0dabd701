package dto

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"validation_error"`
	Message string `json:"message,omitempty" example:"date is required"`
}

// TriggerRunResponse acknowledges an accepted batch run.
type TriggerRunResponse struct {
	Run    string `json:"run" example:"evaluation"`
	Date   string `json:"date" example:"2026-08-23"`
	Status string `json:"status" example:"accepted"`
}

// NudgeResponse is one delivered nudge.
type NudgeResponse struct {
	DeliveryID  string `json:"delivery_id"`
	RuleID      string `json:"rule_id"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	CTA         string `json:"cta,omitempty"`
	DeliveredAt int64  `json:"delivered_at"`
}

// ListNudgesResponse is a user's delivered nudges, newest first.
type ListNudgesResponse struct {
	UserID string          `json:"user_id"`
	Nudges []NudgeResponse `json:"nudges"`
}

// UpdateMutesResponse echoes the stored mute set.
type UpdateMutesResponse struct {
	UserID     string   `json:"user_id"`
	Categories []string `json:"categories"`
}

// InteractionResponse acknowledges queued interaction feedback.
type InteractionResponse struct {
	Status string `json:"status" example:"accepted"`
}
