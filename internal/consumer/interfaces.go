package consumer

import (
	"context"
	"time"

	"github.com/pennywise-app/nudge-engine/internal/domain"
)

// FeedbackParser defines the interface for parsing raw message bytes into
// interaction feedback
type FeedbackParser interface {
	Parse(body []byte) (*Feedback, error)
}

// InteractionRecorder appends interaction feedback and updates the derived
// responsiveness signal.
type InteractionRecorder interface {
	Record(ctx context.Context, deliveryID string, action domain.Action, occurredAt time.Time) (*domain.Interaction, error)
}
