package consumer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pennywise-app/nudge-engine/internal/domain"
)

func TestJSONFeedbackParser_Parse_Success(t *testing.T) {
	parser := NewJSONFeedbackParser()

	body := []byte(`{
		"delivery_id": "delivery_1",
		"user_id": "user_1",
		"action": "clicked",
		"occurred_at": 1766702551
	}`)

	feedback, err := parser.Parse(body)

	assert.NoError(t, err)
	assert.Equal(t, "delivery_1", feedback.DeliveryID)
	assert.Equal(t, "user_1", feedback.UserID)
	assert.Equal(t, domain.ActionClicked, feedback.Action)
	assert.Equal(t, time.Unix(1766702551, 0).UTC(), feedback.OccurredAt)
}

func TestJSONFeedbackParser_Parse_ZeroTimestampDefaultsToNow(t *testing.T) {
	parser := NewJSONFeedbackParser()
	before := time.Now().UTC()

	feedback, err := parser.Parse([]byte(`{"delivery_id": "delivery_1", "user_id": "user_1", "action": "viewed"}`))

	assert.NoError(t, err)
	assert.False(t, feedback.OccurredAt.Before(before))
	assert.False(t, feedback.OccurredAt.After(time.Now().UTC()))
}

func TestJSONFeedbackParser_Parse_InvalidJSON(t *testing.T) {
	parser := NewJSONFeedbackParser()

	_, err := parser.Parse([]byte(`{not json`))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal")
}

func TestJSONFeedbackParser_Parse_MissingDeliveryID(t *testing.T) {
	parser := NewJSONFeedbackParser()

	_, err := parser.Parse([]byte(`{"user_id": "user_1", "action": "clicked", "occurred_at": 1}`))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "delivery_id")
}

func TestJSONFeedbackParser_Parse_UnknownAction(t *testing.T) {
	parser := NewJSONFeedbackParser()

	_, err := parser.Parse([]byte(`{"delivery_id": "delivery_1", "user_id": "user_1", "action": "liked", "occurred_at": 1}`))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown interaction action")
}
