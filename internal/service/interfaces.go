package service

import (
	"context"
	"time"

	"github.com/pennywise-app/nudge-engine/internal/dto"
	"github.com/pennywise-app/nudge-engine/internal/engine"
)

// BatchRunner runs the scheduled population-wide batches.
type BatchRunner interface {
	RunAggregation(ctx context.Context, date time.Time) (engine.AggregationReport, error)
	RunEvaluation(ctx context.Context, date time.Time) (engine.EvaluationReport, error)
}

// NudgeServicer defines the interface for operator and client operations
type NudgeServicer interface {
	TriggerAggregation(date string) error
	TriggerEvaluation(date string) error
	ListNudges(ctx context.Context, userID string, limit int) (*dto.ListNudgesResponse, error)
	UpdateMutes(ctx context.Context, userID string, categories []string) error
	SubmitInteraction(ctx context.Context, req *dto.InteractionRequest) error
}
