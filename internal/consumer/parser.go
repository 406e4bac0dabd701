package consumer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pennywise-app/nudge-engine/internal/domain"
	"github.com/pennywise-app/nudge-engine/internal/dto"
)

// JSONFeedbackParser implements FeedbackParser for JSON-formatted interaction
// messages
type JSONFeedbackParser struct{}

// NewJSONFeedbackParser creates a new JSON feedback parser
func NewJSONFeedbackParser() *JSONFeedbackParser {
	return &JSONFeedbackParser{}
}

// Parse parses a JSON message body into interaction feedback
func (p *JSONFeedbackParser) Parse(body []byte) (*Feedback, error) {
	var msg dto.InteractionRequest
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message body: %w", err)
	}

	if msg.DeliveryID == "" {
		return nil, fmt.Errorf("message is missing delivery_id")
	}

	action, err := domain.ParseAction(msg.Action)
	if err != nil {
		return nil, err
	}

	occurredAt := time.Unix(msg.OccurredAt, 0).UTC()
	if msg.OccurredAt == 0 {
		occurredAt = time.Now().UTC()
	}

	return &Feedback{
		DeliveryID: msg.DeliveryID,
		UserID:     msg.UserID,
		Action:     action,
		OccurredAt: occurredAt,
	}, nil
}
