package reports

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/eternisai/report-notifier/internal/errors"
	"github.com/eternisai/report-notifier/internal/logger"
	"github.com/eternisai/report-notifier/internal/notifications"
	"github.com/gin-gonic/gin"
)

// Handler exposes the notifier as an HTTP push endpoint for document change events.
type Handler struct {
	invoker Invoker
	logger  *logger.Logger
}

// NewHandler creates a new HTTP trigger handler.
func NewHandler(invoker Invoker, logger *logger.Logger) *Handler {
	return &Handler{
		invoker: invoker,
		logger:  logger.WithComponent("report-trigger-http"),
	}
}

// RegisterRoutes mounts the trigger endpoint on router behind middleware.
func (h *Handler) RegisterRoutes(router gin.IRouter, middleware ...gin.HandlerFunc) {
	handlers := append(append([]gin.HandlerFunc{}, middleware...), h.HandleReportStatusChange)
	router.POST("/v1/events/report-status", handlers...)
}

// HandleReportStatusChange handles POST /v1/events/report-status.
// Wholesale failures answer 503 so the delivering platform may redeliver;
// redelivery is safe because skips re-evaluate identically and the
// notification ID collapses duplicates on the device.
func (h *Handler) HandleReportStatusChange(c *gin.Context) {
	var event ChangeEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid request body", map[string]any{"reason": err.Error()})
		return
	}

	if err := event.Validate(); err != nil {
		apierrors.AbortWithBadRequest(c, err.Error(), nil)
		return
	}

	ctx := c.Request.Context()
	if requestID := c.GetHeader("X-Request-ID"); requestID != "" {
		ctx = logger.WithRequestID(ctx, requestID)
	}

	outcome, err := h.invoker.Invoke(ctx, event)
	if err != nil {
		h.logger.LogError(ctx, err, "report status trigger failed",
			slog.String("report_id", event.ReportID))

		if errors.Is(err, notifications.ErrDispatchFailed) || errors.Is(err, notifications.ErrTokenLookup) {
			apierrors.AbortWithUnavailable(c, "notification dispatch failed", map[string]any{"reportId": event.ReportID})
			return
		}
		apierrors.AbortWithInternal(c, "failed to handle report change", map[string]any{"reportId": event.ReportID})
		return
	}

	c.JSON(http.StatusOK, outcome)
}
