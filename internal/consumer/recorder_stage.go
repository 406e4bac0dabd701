package consumer

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/pennywise-app/nudge-engine/internal/domain"
)

// RecorderStage appends interaction feedback through the tracker.
//
// Recording is per message rather than batched: each interaction folds into
// the user's responsiveness score, a read-modify-write the tracker applies
// one observation at a time.
type RecorderStage struct {
	recorder InteractionRecorder
	log      *zap.Logger
}

// NewRecorderStage creates a new recorder stage
func NewRecorderStage(recorder InteractionRecorder, log *zap.Logger) *RecorderStage {
	return &RecorderStage{
		recorder: recorder,
		log:      log,
	}
}

// Start begins recording envelopes until the input drains or the context
// is cancelled.
func (r *RecorderStage) Start(ctx context.Context, in <-chan *Envelope) {
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Recorder stage shutting down")
			return
		case envelope, ok := <-in:
			if !ok {
				r.log.Info("Recorder stage input channel closed")
				return
			}
			r.process(ctx, envelope)
		}
	}
}

// process records one feedback event. Unknown deliveries are acked and
// dropped; transient store failures are nacked for redelivery.
func (r *RecorderStage) process(ctx context.Context, envelope *Envelope) {
	feedback := envelope.Feedback

	_, err := r.recorder.Record(ctx, feedback.DeliveryID, feedback.Action, feedback.OccurredAt)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.log.Warn("Dropping feedback for unknown delivery",
				zap.String("delivery_id", feedback.DeliveryID))
			if ackErr := envelope.Ack(ctx); ackErr != nil {
				r.log.Error("Failed to ack unknown-delivery feedback", zap.Error(ackErr))
			}
			return
		}

		r.log.Error("Failed to record interaction, leaving for redelivery",
			zap.String("delivery_id", feedback.DeliveryID),
			zap.Error(err))
		if nackErr := envelope.Nack(ctx); nackErr != nil {
			r.log.Error("Failed to nack feedback", zap.Error(nackErr))
		}
		return
	}

	if err := envelope.Ack(ctx); err != nil {
		r.log.Error("Failed to ack recorded feedback",
			zap.String("delivery_id", feedback.DeliveryID),
			zap.Error(err))
	}
}
