package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/terrasense/terrasense-go/internal/ingest"
)

// RegisterDevice registers a new sensor device.
func (c *Controller) RegisterDevice(ctx echo.Context) error {
	var spec ingest.DeviceSpec
	if err := ctx.Bind(&spec); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	device, err := c.pipeline.RegisterDevice(ctx.Request().Context(), spec)
	if err != nil {
		return c.handleError(ctx, err, "Failed to register device")
	}
	return ctx.JSON(http.StatusCreated, device)
}

// ListDevices returns a farm's devices, optionally filtered by sensor type.
func (c *Controller) ListDevices(ctx echo.Context) error {
	farmID := ctx.QueryParam("farm")
	if farmID == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "farm query parameter is required"})
	}
	activeOnly := ctx.QueryParam("active") != "false"
	devices, err := c.devices.ListByFarm(ctx.Request().Context(), farmID, ctx.QueryParam("sensor_type"), activeOnly)
	if err != nil {
		return c.handleError(ctx, err, "Failed to list devices")
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// CalibrateDevice recomputes a device's calibration offset from a reference
// measurement.
func (c *Controller) CalibrateDevice(ctx echo.Context) error {
	var calibration ingest.Calibration
	if err := ctx.Bind(&calibration); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	calibration.DeviceID = ctx.Param("id")
	device, err := c.pipeline.CalibrateDevice(ctx.Request().Context(), calibration)
	if err != nil {
		return c.handleError(ctx, err, "Failed to calibrate device")
	}
	return ctx.JSON(http.StatusOK, device)
}

// DeactivateDevice deactivates a device; its readings are retained.
func (c *Controller) DeactivateDevice(ctx echo.Context) error {
	if err := c.pipeline.DeactivateDevice(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return c.handleError(ctx, err, "Failed to deactivate device")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// GetDeviceStatus returns the tracked runtime status for a device.
func (c *Controller) GetDeviceStatus(ctx echo.Context) error {
	deviceStatus := c.tracker.Get(ctx.Param("id"))
	if deviceStatus == nil {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "no status tracked for device"})
	}
	return ctx.JSON(http.StatusOK, deviceStatus)
}

// ListDeviceReadings returns recent readings for a device, newest first.
func (c *Controller) ListDeviceReadings(ctx echo.Context) error {
	device, err := c.devices.FindByDeviceID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.handleError(ctx, err, "Failed to look up device")
	}
	limit := 100
	if raw := ctx.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	readings, err := c.readings.ListForDevice(ctx.Request().Context(), device.ID, limit)
	if err != nil {
		return c.handleError(ctx, err, "Failed to list readings")
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"readings": readings,
		"count":    len(readings),
	})
}
