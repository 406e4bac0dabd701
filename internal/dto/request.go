package dto

// TriggerRunRequest asks for a batch run against a target date.
type TriggerRunRequest struct {
	Date string `json:"date" binding:"required" example:"2026-08-23"`
}

// UpdateMutesRequest replaces a user's muted nudge categories.
type UpdateMutesRequest struct {
	Categories []string `json:"categories" binding:"required"`
}

// InteractionRequest reports client engagement on a delivered nudge.
type InteractionRequest struct {
	DeliveryID string `json:"delivery_id" binding:"required" example:"8f14e45f-ceea-467f-9f3b-1c5f21d9a001"`
	UserID     string `json:"user_id" binding:"required" example:"user_123"`
	Action     string `json:"action" binding:"required" example:"clicked"`
	OccurredAt int64  `json:"occurred_at" binding:"required" example:"1766702551"`
}
