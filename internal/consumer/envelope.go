package consumer

import (
	"context"
	"time"

	"github.com/pennywise-app/nudge-engine/internal/domain"
)

// Feedback is one parsed interaction event from the queue.
type Feedback struct {
	DeliveryID string
	UserID     string
	Action     domain.Action
	OccurredAt time.Time
}

// Envelope wraps interaction feedback with acknowledgment callbacks
type Envelope struct {
	Feedback *Feedback
	ack      func(context.Context) error
	nack     func(context.Context) error
}

// NewEnvelope creates a new message envelope
func NewEnvelope(feedback *Feedback, ack, nack func(context.Context) error) *Envelope {
	return &Envelope{
		Feedback: feedback,
		ack:      ack,
		nack:     nack,
	}
}

// Ack acknowledges successful processing
func (e *Envelope) Ack(ctx context.Context) error {
	if e.ack != nil {
		return e.ack(ctx)
	}
	return nil
}

// Nack negatively acknowledges processing
func (e *Envelope) Nack(ctx context.Context) error {
	if e.nack != nil {
		return e.nack(ctx)
	}
	return nil
}
