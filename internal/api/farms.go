package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetFarmHealth returns the aggregated device health summary for a farm.
func (c *Controller) GetFarmHealth(ctx echo.Context) error {
	farmID := ctx.Param("id")
	exists, err := c.farms.Exists(ctx.Request().Context(), farmID)
	if err != nil {
		return c.handleError(ctx, err, "Failed to look up farm")
	}
	if !exists {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "farm not found"})
	}
	devices, err := c.devices.ListByFarm(ctx.Request().Context(), farmID, "", true)
	if err != nil {
		return c.handleError(ctx, err, "Failed to list farm devices")
	}
	summary := c.tracker.HealthSummary(farmID, devices)
	return ctx.JSON(http.StatusOK, summary)
}
