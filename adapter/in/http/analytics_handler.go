package http

import (
	"mailsync_server/core/domain"
	"mailsync_server/core/service/analytics"

	"github.com/gofiber/fiber/v2"
)

type AnalyticsHandler struct {
	engine *analytics.Engine
}

func NewAnalyticsHandler(engine *analytics.Engine) *AnalyticsHandler {
	return &AnalyticsHandler{engine: engine}
}

func (h *AnalyticsHandler) Register(router fiber.Router) {
	router.Get("/analytics", h.GetAnalytics)
	router.Post("/analytics/heartbeat", h.Heartbeat)
	router.Post("/analytics/events/:event", h.RecordEvent)
}

// analyticsResponse mirrors the stored record plus the derived spam rate.
type analyticsResponse struct {
	*domain.Analytics
	SpamRate float64 `json:"spam_rate"`
}

// GetAnalytics returns the caller's analytics record, with daily and
// weekly rollovers applied on read.
func (h *AnalyticsHandler) GetAnalytics(c *fiber.Ctx) error {
	userID, err := MustGetUserID(c)
	if err != nil {
		return err
	}

	record, err := h.engine.GetAnalytics(c.Context(), userID)
	if err != nil {
		return InternalErrorResponse(c, err, "get analytics")
	}

	return SuccessResponse(c, analyticsResponse{
		Analytics: record,
		SpamRate:  record.SpamRate(),
	})
}

// Heartbeat records activity time since the previous heartbeat.
func (h *AnalyticsHandler) Heartbeat(c *fiber.Ctx) error {
	userID, err := MustGetUserID(c)
	if err != nil {
		return err
	}

	if err := h.engine.UpdateTimeSpent(c.Context(), userID); err != nil {
		return InternalErrorResponse(c, err, "update time spent")
	}
	return SuccessResponse(c, fiber.Map{"recorded": true})
}

// RecordEvent increments one live mailbox counter for today.
func (h *AnalyticsHandler) RecordEvent(c *fiber.Ctx) error {
	userID, err := MustGetUserID(c)
	if err != nil {
		return err
	}

	event := c.Params("event")
	var recordErr error
	switch event {
	case "received":
		recordErr = h.engine.OnEmailReceivedToday(c.Context(), userID)
	case "sent":
		recordErr = h.engine.OnEmailSentToday(c.Context(), userID)
	case "read":
		recordErr = h.engine.OnEmailReadToday(c.Context(), userID)
	case "deleted":
		recordErr = h.engine.OnEmailDeletedToday(c.Context(), userID)
	case "spam":
		recordErr = h.engine.OnEmailMarkedSpamToday(c.Context(), userID)
	default:
		return ErrorResponse(c, fiber.StatusBadRequest, "unknown event: "+event)
	}

	if recordErr != nil {
		return InternalErrorResponse(c, recordErr, "record "+event+" event")
	}
	return SuccessResponse(c, fiber.Map{"event": event})
}
