package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/terrasense/terrasense-go/internal/datastore/repository"
	"github.com/terrasense/terrasense-go/internal/ingest"
)

const defaultQueryWindow = 24 * time.Hour

// SubmitReading ingests a single reading synchronously.
func (c *Controller) SubmitReading(ctx echo.Context) error {
	var payload ingest.ReadingPayload
	if err := ctx.Bind(&payload); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	reading, err := c.pipeline.IngestReading(ctx.Request().Context(), payload)
	if err != nil {
		return c.handleError(ctx, err, "Failed to ingest reading")
	}
	return ctx.JSON(http.StatusCreated, reading)
}

// SubmitReadingBatch ingests a batch; failures are isolated per item and the
// response reports how many were accepted.
func (c *Controller) SubmitReadingBatch(ctx echo.Context) error {
	var payloads []ingest.ReadingPayload
	if err := ctx.Bind(&payloads); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	accepted := c.pipeline.IngestBatch(ctx.Request().Context(), payloads)
	return ctx.JSON(http.StatusOK, map[string]any{
		"accepted": accepted,
		"rejected": len(payloads) - accepted,
	})
}

// QueryReadings returns a farm's readings for one sensor type, aggregated
// into time buckets. Omitting the bucket returns raw readings.
func (c *Controller) QueryReadings(ctx echo.Context) error {
	farmID := ctx.QueryParam("farm")
	sensorType := ctx.QueryParam("sensor_type")
	if farmID == "" || sensorType == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "farm and sensor_type query parameters are required"})
	}
	since := time.Now().Add(-c.queryWindow(ctx))

	bucket := repository.AggregationBucket(ctx.QueryParam("bucket"))
	if bucket == "" {
		readings, err := c.readings.FindInWindow(ctx.Request().Context(), farmID, sensorType, since)
		if err != nil {
			return c.handleError(ctx, err, "Failed to query readings")
		}
		return ctx.JSON(http.StatusOK, map[string]any{
			"readings": readings,
			"count":    len(readings),
		})
	}

	switch bucket {
	case repository.BucketHourly, repository.BucketDaily, repository.BucketWeekly:
	default:
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "bucket must be hourly, daily or weekly"})
	}
	buckets, err := c.readings.Aggregate(ctx.Request().Context(), farmID, sensorType, bucket, since)
	if err != nil {
		return c.handleError(ctx, err, "Failed to aggregate readings")
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"buckets": buckets,
		"count":   len(buckets),
	})
}

// GetReadingStats returns summary statistics and a trend for one sensor type.
func (c *Controller) GetReadingStats(ctx echo.Context) error {
	farmID := ctx.QueryParam("farm")
	sensorType := ctx.QueryParam("sensor_type")
	if farmID == "" || sensorType == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "farm and sensor_type query parameters are required"})
	}
	since := time.Now().Add(-c.queryWindow(ctx))
	stats, err := c.readings.Stats(ctx.Request().Context(), farmID, sensorType, since)
	if err != nil {
		return c.handleError(ctx, err, "Failed to compute statistics")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (c *Controller) queryWindow(ctx echo.Context) time.Duration {
	raw := ctx.QueryParam("window")
	if raw == "" {
		return defaultQueryWindow
	}
	window, err := time.ParseDuration(raw)
	if err != nil || window <= 0 {
		return defaultQueryWindow
	}
	return window
}
