package queue

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/pennywise-app/nudge-engine/internal/dto"
)

// Publisher defines the interface for publishing interaction feedback to a queue
type Publisher interface {
	PublishInteraction(ctx context.Context, interaction *dto.InteractionRequest) error
}

// Consumer defines the interface for consuming messages from a queue
type Consumer interface {
	ReceiveMessages(ctx context.Context, input *sqs.ReceiveMessageInput) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, input *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error)
	QueueURL() string
}
