package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/terrasense/terrasense-go/internal/alerting"
	"github.com/terrasense/terrasense-go/internal/datastore/entities"
)

const maxHistoryLimit = 200

// ListAlertRules returns the engine's in-memory rule set.
func (c *Controller) ListAlertRules(ctx echo.Context) error {
	rules := c.engine.Rules()
	return ctx.JSON(http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// CreateAlertRule persists a rule and activates it on the running engine.
func (c *Controller) CreateAlertRule(ctx echo.Context) error {
	var rule entities.AlertRule
	if err := ctx.Bind(&rule); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(rule.Conditions) == 0 {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "at least one condition is required"})
	}
	if rule.Severity == "" {
		rule.Severity = alerting.SeverityMedium
	}
	if alerting.SeverityRank(rule.Severity) < 0 {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "unknown severity: " + rule.Severity})
	}
	for _, cond := range rule.Conditions {
		if !alerting.ValidOperator(cond.Operator) {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "unknown operator: " + cond.Operator})
		}
	}
	for _, action := range rule.Actions {
		if !alerting.ValidChannel(action.Channel) {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "unknown channel: " + action.Channel})
		}
	}
	if err := c.engine.AddRule(ctx.Request().Context(), &rule); err != nil {
		return c.handleError(ctx, err, "Failed to create alert rule")
	}
	return ctx.JSON(http.StatusCreated, rule)
}

// DeleteAlertRule removes a rule from the store and the running engine.
func (c *Controller) DeleteAlertRule(ctx echo.Context) error {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid rule id"})
	}
	if err := c.engine.RemoveRule(ctx.Request().Context(), uint(id)); err != nil {
		return c.handleError(ctx, err, "Failed to delete alert rule")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// triggerRequest is a manual alert trigger.
type triggerRequest struct {
	FarmID   string         `json:"farm_id"`
	Type     string         `json:"type"`
	Severity string         `json:"severity"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
}

// TriggerAlert fires an alert immediately, bypassing rule evaluation and
// cooldown suppression.
func (c *Controller) TriggerAlert(ctx echo.Context) error {
	var req triggerRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.FarmID == "" || req.Title == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "farm_id and title are required"})
	}
	if req.Type == "" {
		req.Type = alerting.AlertTypeSystem
	}
	if alerting.SeverityRank(req.Severity) < 0 {
		req.Severity = alerting.SeverityMedium
	}
	alert := c.engine.ManualTrigger(ctx.Request().Context(), req.FarmID, req.Type, req.Severity, req.Title, req.Message, req.Data)
	return ctx.JSON(http.StatusAccepted, alert)
}

// ListAlertHistory returns a farm's persisted alert history, newest first.
func (c *Controller) ListAlertHistory(ctx echo.Context) error {
	farmID := ctx.QueryParam("farm")
	if farmID == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "farm query parameter is required"})
	}
	limit := 50
	if raw := ctx.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxHistoryLimit)
		}
	}
	offset := 0
	if raw := ctx.QueryParam("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	history, total, err := c.rules.ListHistory(ctx.Request().Context(), farmID, limit, offset)
	if err != nil {
		return c.handleError(ctx, err, "Failed to list alert history")
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"history": history,
		"total":   total,
	})
}
