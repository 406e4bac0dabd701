package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/pennywise-app/nudge-engine/internal/domain"
)

// MockProvider is a mock implementation of Provider
type MockProvider struct {
	mock.Mock
	name string
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) Metrics(ctx context.Context, userID string, date time.Time) (map[string]decimal.Decimal, error) {
	args := m.Called(ctx, userID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]decimal.Decimal), args.Error(1)
}

// MockSnapshotRepository is a mock implementation of repository.SnapshotRepository
type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) InsertSnapshot(ctx context.Context, snapshot *domain.SignalSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockSnapshotRepository) GetSnapshot(ctx context.Context, userID string, date time.Time) (*domain.SignalSnapshot, error) {
	args := m.Called(ctx, userID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SignalSnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) InitSchema(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSnapshotRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSnapshotRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

var aggregationDate = time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)

func TestAggregator_ComputeDailySignals_MergesFeeds(t *testing.T) {
	spendFeed := &MockProvider{name: "spend"}
	budgetFeed := &MockProvider{name: "budget"}
	mockRepo := new(MockSnapshotRepository)
	log := zap.NewNop()

	spendFeed.On("Metrics", mock.Anything, "user_1", aggregationDate).Return(map[string]decimal.Decimal{
		"dining_spend_7d": decimal.NewFromFloat(150.5),
	}, nil)
	budgetFeed.On("Metrics", mock.Anything, "user_1", aggregationDate).Return(map[string]decimal.Decimal{
		"budget_used_pct": decimal.NewFromFloat(0.95),
	}, nil)
	mockRepo.On("InsertSnapshot", mock.Anything, mock.AnythingOfType("*domain.SignalSnapshot")).Return(nil)

	aggregator := NewAggregator([]Provider{spendFeed, budgetFeed}, mockRepo, log)

	snapshot, err := aggregator.ComputeDailySignals(context.Background(), "user_1", aggregationDate)

	assert.NoError(t, err)
	assert.Equal(t, "user_1", snapshot.UserID)
	assert.Equal(t, aggregationDate, snapshot.Date)
	assert.Len(t, snapshot.Metrics, 2)
	assert.True(t, snapshot.Metrics["dining_spend_7d"].Equal(decimal.NewFromFloat(150.5)))
	mockRepo.AssertExpectations(t)
}

func TestAggregator_ComputeDailySignals_TruncatesDateToUTCDay(t *testing.T) {
	feed := &MockProvider{name: "spend"}
	mockRepo := new(MockSnapshotRepository)
	log := zap.NewNop()

	feed.On("Metrics", mock.Anything, "user_1", aggregationDate).Return(map[string]decimal.Decimal{}, nil)
	mockRepo.On("InsertSnapshot", mock.Anything, mock.Anything).Return(nil)

	aggregator := NewAggregator([]Provider{feed}, mockRepo, log)

	midDay := time.Date(2026, 8, 23, 14, 30, 0, 0, time.UTC)
	snapshot, err := aggregator.ComputeDailySignals(context.Background(), "user_1", midDay)

	assert.NoError(t, err)
	assert.Equal(t, aggregationDate, snapshot.Date)
	feed.AssertExpectations(t)
}

func TestAggregator_ComputeDailySignals_FeedFailureSkipsUser(t *testing.T) {
	spendFeed := &MockProvider{name: "spend"}
	budgetFeed := &MockProvider{name: "budget"}
	mockRepo := new(MockSnapshotRepository)
	log := zap.NewNop()

	spendFeed.On("Metrics", mock.Anything, "user_1", aggregationDate).Return(map[string]decimal.Decimal{
		"dining_spend_7d": decimal.NewFromInt(150),
	}, nil)
	budgetFeed.On("Metrics", mock.Anything, "user_1", aggregationDate).Return(nil, errors.New("upstream timeout"))

	aggregator := NewAggregator([]Provider{spendFeed, budgetFeed}, mockRepo, log)

	_, err := aggregator.ComputeDailySignals(context.Background(), "user_1", aggregationDate)

	assert.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDataUnavailable))
	// No partial snapshot is ever written.
	mockRepo.AssertNotCalled(t, "InsertSnapshot", mock.Anything, mock.Anything)
}

func TestAggregator_ComputeDailySignals_StoreFailure(t *testing.T) {
	feed := &MockProvider{name: "spend"}
	mockRepo := new(MockSnapshotRepository)
	log := zap.NewNop()

	feed.On("Metrics", mock.Anything, "user_1", aggregationDate).Return(map[string]decimal.Decimal{}, nil)
	mockRepo.On("InsertSnapshot", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	aggregator := NewAggregator([]Provider{feed}, mockRepo, log)

	_, err := aggregator.ComputeDailySignals(context.Background(), "user_1", aggregationDate)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store snapshot")
}

func TestAggregator_ComputeDailySignals_RerunYieldsIdenticalSnapshot(t *testing.T) {
	spendFeed := &MockProvider{name: "spend"}
	budgetFeed := &MockProvider{name: "budget"}
	mockRepo := new(MockSnapshotRepository)
	log := zap.NewNop()

	spendFeed.On("Metrics", mock.Anything, "user_1", aggregationDate).Return(map[string]decimal.Decimal{
		"dining_spend_7d": decimal.NewFromFloat(150.5),
	}, nil)
	budgetFeed.On("Metrics", mock.Anything, "user_1", aggregationDate).Return(map[string]decimal.Decimal{
		"budget_used_pct": decimal.NewFromFloat(0.95),
	}, nil)

	var inserted []*domain.SignalSnapshot
	mockRepo.On("InsertSnapshot", mock.Anything, mock.AnythingOfType("*domain.SignalSnapshot")).
		Run(func(args mock.Arguments) {
			inserted = append(inserted, args.Get(1).(*domain.SignalSnapshot))
		}).
		Return(nil)

	aggregator := NewAggregator([]Provider{spendFeed, budgetFeed}, mockRepo, log)

	first, err := aggregator.ComputeDailySignals(context.Background(), "user_1", aggregationDate)
	assert.NoError(t, err)
	second, err := aggregator.ComputeDailySignals(context.Background(), "user_1", aggregationDate)
	assert.NoError(t, err)

	// Same key, same metric set: the second run replaces the first row
	// instead of accumulating a duplicate.
	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, first.Date, second.Date)
	assert.Len(t, second.Metrics, len(first.Metrics))
	for name, value := range first.Metrics {
		assert.True(t, second.Metrics[name].Equal(value), "metric %s diverged between runs", name)
	}

	mockRepo.AssertNumberOfCalls(t, "InsertSnapshot", 2)
	assert.Len(t, inserted, 2)
	assert.Equal(t, inserted[0].UserID, inserted[1].UserID)
	assert.Equal(t, inserted[0].Date, inserted[1].Date)
}

func TestAggregator_ComputeDailySignals_LaterFeedWinsDuplicateMetric(t *testing.T) {
	first := &MockProvider{name: "spend"}
	second := &MockProvider{name: "budget"}
	mockRepo := new(MockSnapshotRepository)
	log := zap.NewNop()

	first.On("Metrics", mock.Anything, "user_1", aggregationDate).Return(map[string]decimal.Decimal{
		"shared_metric": decimal.NewFromInt(1),
	}, nil)
	second.On("Metrics", mock.Anything, "user_1", aggregationDate).Return(map[string]decimal.Decimal{
		"shared_metric": decimal.NewFromInt(2),
	}, nil)
	mockRepo.On("InsertSnapshot", mock.Anything, mock.Anything).Return(nil)

	aggregator := NewAggregator([]Provider{first, second}, mockRepo, log)

	snapshot, err := aggregator.ComputeDailySignals(context.Background(), "user_1", aggregationDate)

	assert.NoError(t, err)
	assert.True(t, snapshot.Metrics["shared_metric"].Equal(decimal.NewFromInt(2)))
}
