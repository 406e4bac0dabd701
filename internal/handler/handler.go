package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pennywise-app/nudge-engine/internal/broker"
	"github.com/pennywise-app/nudge-engine/internal/dto"
	"github.com/pennywise-app/nudge-engine/internal/service"
)

type Handler struct {
	nudgeService service.NudgeServicer
	broker       *broker.Broker
	router       *gin.Engine
	log          *zap.Logger
}

func NewHandler(nudgeService service.NudgeServicer, liveBroker *broker.Broker, log *zap.Logger) *Handler {
	h := &Handler{
		nudgeService: nudgeService,
		broker:       liveBroker,
		router:       gin.Default(),
		log:          log,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.router.POST("/runs/aggregation", h.triggerAggregation)
	h.router.POST("/runs/evaluation", h.triggerEvaluation)
	h.router.GET("/users/:id/nudges", h.listNudges)
	h.router.GET("/users/:id/nudges/stream", h.streamNudges)
	h.router.PUT("/users/:id/mutes", h.updateMutes)
	h.router.POST("/interactions", h.submitInteraction)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// triggerAggregation handles POST /runs/aggregation, launching a daily
// signal aggregation run for the target date.
func (h *Handler) triggerAggregation(c *gin.Context) {
	h.triggerRun(c, "aggregation", h.nudgeService.TriggerAggregation)
}

// triggerEvaluation handles POST /runs/evaluation, launching an evaluation
// and delivery run for the target date.
func (h *Handler) triggerEvaluation(c *gin.Context) {
	h.triggerRun(c, "evaluation", h.nudgeService.TriggerEvaluation)
}

func (h *Handler) triggerRun(c *gin.Context, run string, trigger func(date string) error) {
	var req dto.TriggerRunRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid run trigger request",
			zap.String("run", run),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	if err := trigger(req.Date); err != nil {
		h.log.Warn("Failed to trigger run",
			zap.String("run", run),
			zap.String("date", req.Date),
			zap.Error(err))
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   "trigger_failed",
			Message: err.Error(),
		})
		return
	}

	h.log.Info("Run accepted",
		zap.String("run", run),
		zap.String("date", req.Date))

	c.JSON(http.StatusAccepted, dto.TriggerRunResponse{
		Run:    run,
		Date:   req.Date,
		Status: "accepted",
	})
}

// listNudges handles GET /users/:id/nudges, returning delivered nudges
// ordered by delivered_at descending.
func (h *Handler) listNudges(c *gin.Context) {
	userID := c.Param("id")

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "validation_error",
				Message: "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	response, err := h.nudgeService.ListNudges(c.Request.Context(), userID, limit)
	if err != nil {
		h.log.Error("Failed to list nudges",
			zap.String("user_id", userID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response)
}

// streamNudges handles GET /users/:id/nudges/stream, an SSE feed of live
// nudge events for the user's session. Best-effort: events produced while
// no session is connected are not replayed; the persisted feed is the
// durable record.
func (h *Handler) streamNudges(c *gin.Context) {
	userID := c.Param("id")

	events, cancel := h.broker.Subscribe(userID)
	defer cancel()

	h.log.Info("Live nudge stream opened", zap.String("user_id", userID))

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("nudge", event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})

	h.log.Info("Live nudge stream closed", zap.String("user_id", userID))
}

// updateMutes handles PUT /users/:id/mutes
func (h *Handler) updateMutes(c *gin.Context) {
	userID := c.Param("id")

	var req dto.UpdateMutesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid mute update request",
			zap.String("user_id", userID),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	if err := h.nudgeService.UpdateMutes(c.Request.Context(), userID, req.Categories); err != nil {
		h.log.Error("Failed to update mutes",
			zap.String("user_id", userID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.UpdateMutesResponse{
		UserID:     userID,
		Categories: req.Categories,
	})
}

// submitInteraction handles POST /interactions, queueing engagement
// feedback for the consumer to record.
func (h *Handler) submitInteraction(c *gin.Context) {
	var req dto.InteractionRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid interaction request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	if err := h.nudgeService.SubmitInteraction(c.Request.Context(), &req); err != nil {
		h.log.Error("Failed to submit interaction",
			zap.String("delivery_id", req.DeliveryID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.InteractionResponse{Status: "accepted"})
}
