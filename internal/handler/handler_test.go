package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/pennywise-app/nudge-engine/internal/broker"
	"github.com/pennywise-app/nudge-engine/internal/dto"
)

const testOccurredAt int64 = 1766702551

// MockNudgeService is a mock implementation of service.NudgeServicer
type MockNudgeService struct {
	mock.Mock
}

func (m *MockNudgeService) TriggerAggregation(date string) error {
	args := m.Called(date)
	return args.Error(0)
}

func (m *MockNudgeService) TriggerEvaluation(date string) error {
	args := m.Called(date)
	return args.Error(0)
}

func (m *MockNudgeService) ListNudges(ctx context.Context, userID string, limit int) (*dto.ListNudgesResponse, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ListNudgesResponse), args.Error(1)
}

func (m *MockNudgeService) UpdateMutes(ctx context.Context, userID string, categories []string) error {
	args := m.Called(ctx, userID, categories)
	return args.Error(0)
}

func (m *MockNudgeService) SubmitInteraction(ctx context.Context, req *dto.InteractionRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func newTestHandler(mockService *MockNudgeService) *Handler {
	log := zap.NewNop()
	return NewHandler(mockService, broker.New(log), log)
}

func TestHandler_HealthCheck(t *testing.T) {
	handler := newTestHandler(new(MockNudgeService))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "ok", response["status"])
}

func TestHandler_TriggerAggregation_Accepted(t *testing.T) {
	mockService := new(MockNudgeService)
	handler := newTestHandler(mockService)

	mockService.On("TriggerAggregation", "2026-08-22").Return(nil)

	body, _ := json.Marshal(dto.TriggerRunRequest{Date: "2026-08-22"})
	req := httptest.NewRequest(http.MethodPost, "/runs/aggregation", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var response dto.TriggerRunResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "aggregation", response.Run)
	assert.Equal(t, "accepted", response.Status)
	mockService.AssertExpectations(t)
}

func TestHandler_TriggerEvaluation_Conflict(t *testing.T) {
	mockService := new(MockNudgeService)
	handler := newTestHandler(mockService)

	mockService.On("TriggerEvaluation", "2026-08-22").
		Return(errors.New("an evaluation run is already in progress"))

	body, _ := json.Marshal(dto.TriggerRunRequest{Date: "2026-08-22"})
	req := httptest.NewRequest(http.MethodPost, "/runs/evaluation", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandler_TriggerRun_MissingDate(t *testing.T) {
	mockService := new(MockNudgeService)
	handler := newTestHandler(mockService)

	req := httptest.NewRequest(http.MethodPost, "/runs/aggregation", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "TriggerAggregation", mock.Anything)
}

func TestHandler_ListNudges_Success(t *testing.T) {
	mockService := new(MockNudgeService)
	handler := newTestHandler(mockService)

	expected := &dto.ListNudgesResponse{
		UserID: "user_1",
		Nudges: []dto.NudgeResponse{
			{DeliveryID: "delivery_1", RuleID: "rule_dining", Category: "dining", Title: "Heads up"},
		},
	}
	mockService.On("ListNudges", mock.Anything, "user_1", 50).Return(expected, nil)

	req := httptest.NewRequest(http.MethodGet, "/users/user_1/nudges", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response dto.ListNudgesResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Len(t, response.Nudges, 1)
	assert.Equal(t, "delivery_1", response.Nudges[0].DeliveryID)
}

func TestHandler_ListNudges_CustomLimit(t *testing.T) {
	mockService := new(MockNudgeService)
	handler := newTestHandler(mockService)

	mockService.On("ListNudges", mock.Anything, "user_1", 5).
		Return(&dto.ListNudgesResponse{UserID: "user_1"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/users/user_1/nudges?limit=5", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestHandler_ListNudges_InvalidLimit(t *testing.T) {
	mockService := new(MockNudgeService)
	handler := newTestHandler(mockService)

	req := httptest.NewRequest(http.MethodGet, "/users/user_1/nudges?limit=zero", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "ListNudges", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_UpdateMutes_Success(t *testing.T) {
	mockService := new(MockNudgeService)
	handler := newTestHandler(mockService)

	mockService.On("UpdateMutes", mock.Anything, "user_1", []string{"dining"}).Return(nil)

	body, _ := json.Marshal(dto.UpdateMutesRequest{Categories: []string{"dining"}})
	req := httptest.NewRequest(http.MethodPut, "/users/user_1/mutes", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response dto.UpdateMutesResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "user_1", response.UserID)
	mockService.AssertExpectations(t)
}

func TestHandler_SubmitInteraction_Accepted(t *testing.T) {
	mockService := new(MockNudgeService)
	handler := newTestHandler(mockService)

	interaction := dto.InteractionRequest{
		DeliveryID: "delivery_1",
		UserID:     "user_1",
		Action:     "clicked",
		OccurredAt: testOccurredAt,
	}

	mockService.On("SubmitInteraction", mock.Anything, &interaction).Return(nil)

	body, _ := json.Marshal(interaction)
	req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	mockService.AssertExpectations(t)
}

func TestHandler_SubmitInteraction_MissingFields(t *testing.T) {
	mockService := new(MockNudgeService)
	handler := newTestHandler(mockService)

	req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewReader([]byte(`{"action": "clicked"}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "SubmitInteraction", mock.Anything, mock.Anything)
}

func TestHandler_SubmitInteraction_ServiceError(t *testing.T) {
	mockService := new(MockNudgeService)
	handler := newTestHandler(mockService)

	mockService.On("SubmitInteraction", mock.Anything, mock.Anything).
		Return(errors.New("failed to publish interaction to queue"))

	interaction := dto.InteractionRequest{
		DeliveryID: "delivery_1",
		UserID:     "user_1",
		Action:     "clicked",
		OccurredAt: testOccurredAt,
	}
	body, _ := json.Marshal(interaction)
	req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
