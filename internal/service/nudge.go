package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pennywise-app/nudge-engine/internal/domain"
	"github.com/pennywise-app/nudge-engine/internal/dto"
	"github.com/pennywise-app/nudge-engine/internal/queue"
	"github.com/pennywise-app/nudge-engine/internal/repository"
)

const dateLayout = "2006-01-02"

// NudgeService implements the operator and client operations.
type NudgeService struct {
	runner    BatchRunner
	store     repository.NudgeStore
	publisher queue.Publisher
	log       *zap.Logger
	now       func() time.Time

	aggregationRunning atomic.Bool
	evaluationRunning  atomic.Bool
}

// NewNudgeService creates a new nudge service
func NewNudgeService(runner BatchRunner, store repository.NudgeStore, publisher queue.Publisher, log *zap.Logger) *NudgeService {
	return &NudgeService{
		runner:    runner,
		store:     store,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// TriggerAggregation validates the date and launches an aggregation run in
// the background. At most one aggregation run executes at a time.
func (s *NudgeService) TriggerAggregation(date string) error {
	target, err := s.parseDate(date)
	if err != nil {
		return err
	}

	if !s.aggregationRunning.CompareAndSwap(false, true) {
		return fmt.Errorf("an aggregation run is already in progress")
	}

	go func() {
		defer s.aggregationRunning.Store(false)

		report, err := s.runner.RunAggregation(context.Background(), target)
		if err != nil {
			s.log.Error("Aggregation run failed",
				zap.String("date", date),
				zap.Error(err))
			return
		}
		s.log.Info("Aggregation run completed",
			zap.String("date", date),
			zap.Int("users", report.Users),
			zap.Int64("processed", report.Processed),
			zap.Int64("skipped", report.Skipped))
	}()

	return nil
}

// TriggerEvaluation validates the date and launches an evaluation + delivery
// run in the background. At most one evaluation run executes at a time.
func (s *NudgeService) TriggerEvaluation(date string) error {
	target, err := s.parseDate(date)
	if err != nil {
		return err
	}

	if !s.evaluationRunning.CompareAndSwap(false, true) {
		return fmt.Errorf("an evaluation run is already in progress")
	}

	go func() {
		defer s.evaluationRunning.Store(false)

		report, err := s.runner.RunEvaluation(context.Background(), target)
		if err != nil {
			s.log.Error("Evaluation run failed",
				zap.String("date", date),
				zap.Error(err))
			return
		}
		s.log.Info("Evaluation run completed",
			zap.String("date", date),
			zap.Int("users", report.Users),
			zap.Int64("delivered", report.Delivered),
			zap.Int64("suppressed", report.Suppressed))
	}()

	return nil
}

// ListNudges returns a user's delivered nudges, newest first.
func (s *NudgeService) ListNudges(ctx context.Context, userID string, limit int) (*dto.ListNudgesResponse, error) {
	deliveries, err := s.store.ListDeliveries(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}

	response := &dto.ListNudgesResponse{
		UserID: userID,
		Nudges: make([]dto.NudgeResponse, 0, len(deliveries)),
	}
	for _, delivery := range deliveries {
		response.Nudges = append(response.Nudges, dto.NudgeResponse{
			DeliveryID:  delivery.DeliveryID,
			RuleID:      delivery.RuleID,
			Category:    delivery.Category,
			Title:       delivery.Title,
			Body:        delivery.Body,
			CTA:         delivery.CTA,
			DeliveredAt: delivery.DeliveredAt.Unix(),
		})
	}

	return response, nil
}

// UpdateMutes replaces a user's muted categories.
func (s *NudgeService) UpdateMutes(ctx context.Context, userID string, categories []string) error {
	if err := s.store.UpdateMutedCategories(ctx, userID, categories); err != nil {
		return fmt.Errorf("failed to update muted categories: %w", err)
	}

	s.log.Info("Muted categories updated",
		zap.String("user_id", userID),
		zap.Strings("categories", categories))
	return nil
}

// SubmitInteraction validates and publishes interaction feedback to the
// queue for the consumer to record.
func (s *NudgeService) SubmitInteraction(ctx context.Context, req *dto.InteractionRequest) error {
	if _, err := domain.ParseAction(req.Action); err != nil {
		return err
	}

	currentTime := s.now().Unix()
	if req.OccurredAt > currentTime+1 {
		s.log.Warn("Timestamp validation failed: future timestamp",
			zap.Int64("occurred_at", req.OccurredAt),
			zap.Int64("current_time", currentTime),
			zap.String("delivery_id", req.DeliveryID))
		return fmt.Errorf("occurred_at cannot be in the future: %d > %d", req.OccurredAt, currentTime)
	}

	if err := s.publisher.PublishInteraction(ctx, req); err != nil {
		return fmt.Errorf("failed to publish interaction to queue: %w", err)
	}

	return nil
}

func (s *NudgeService) parseDate(date string) (time.Time, error) {
	target, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", date, err)
	}

	today := domain.DateOf(s.now())
	if target.After(today) {
		return time.Time{}, fmt.Errorf("date cannot be in the future: %s", date)
	}

	return target, nil
}
