package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/terrasense/terrasense-go/internal/alerting"
	"github.com/terrasense/terrasense-go/internal/datastore/entities"
	"github.com/terrasense/terrasense-go/internal/notify"
)

// PushSubscribe registers a push endpoint for the authenticated user.
func (c *Controller) PushSubscribe(ctx echo.Context) error {
	var spec notify.SubscriptionSpec
	if err := ctx.Bind(&spec); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	sub, err := c.dispatcher.Subscribe(ctx.Request().Context(), identityFrom(ctx).UserID, spec)
	if err != nil {
		return c.handleError(ctx, err, "Failed to register push subscription")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

// PushUnsubscribe deactivates a push endpoint for the authenticated user.
func (c *Controller) PushUnsubscribe(ctx echo.Context) error {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := ctx.Bind(&req); err != nil || req.Endpoint == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "endpoint is required"})
	}
	if err := c.dispatcher.Unsubscribe(ctx.Request().Context(), identityFrom(ctx).UserID, req.Endpoint); err != nil {
		return c.handleError(ctx, err, "Failed to remove push subscription")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// preferenceRequest is one notification preference tuple.
type preferenceRequest struct {
	NotificationType string `json:"notification_type"`
	Enabled          bool   `json:"enabled"`
	MinPriority      string `json:"min_priority"`
}

// UpdatePushPreferences upserts the authenticated user's notification
// preferences; the update is idempotent.
func (c *Controller) UpdatePushPreferences(ctx echo.Context) error {
	var reqs []preferenceRequest
	if err := ctx.Bind(&reqs); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	prefs := make([]entities.NotificationPreference, 0, len(reqs))
	for _, req := range reqs {
		if req.NotificationType == "" {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "notification_type is required"})
		}
		if req.MinPriority == "" {
			req.MinPriority = alerting.SeverityMedium
		}
		if alerting.SeverityRank(req.MinPriority) < 0 {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "min_priority must be low, medium, high or critical"})
		}
		prefs = append(prefs, entities.NotificationPreference{
			AlertType:   req.NotificationType,
			Enabled:     req.Enabled,
			MinPriority: req.MinPriority,
		})
	}
	if err := c.dispatcher.UpdatePreferences(ctx.Request().Context(), identityFrom(ctx).UserID, prefs); err != nil {
		return c.handleError(ctx, err, "Failed to update notification preferences")
	}
	return ctx.JSON(http.StatusOK, map[string]any{"updated": len(prefs)})
}
