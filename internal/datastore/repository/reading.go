package repository

import (
	"context"
	"time"

	"github.com/terrasense/terrasense-go/internal/datastore/entities"
)

// AggregationBucket selects the time bucket for aggregated reading queries.
type AggregationBucket string

const (
	BucketHourly AggregationBucket = "hourly"
	BucketDaily  AggregationBucket = "daily"
	BucketWeekly AggregationBucket = "weekly"
)

// AggregatedReading is one bucket of an aggregation query.
type AggregatedReading struct {
	BucketStart time.Time `json:"bucket_start"`
	Avg         float64   `json:"avg"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Count       int       `json:"count"`
}

// ReadingStats summarizes readings over a rolling window.
type ReadingStats struct {
	Count  int     `json:"count"`
	Avg    float64 `json:"avg"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
	// Trend compares the first and second half of the window:
	// "rising", "falling", or "stable".
	Trend string `json:"trend"`
}

// ReadingRepository handles sensor reading persistence and read-side queries.
type ReadingRepository interface {
	// Save persists one calibrated reading.
	Save(ctx context.Context, reading *entities.SensorReading) error
	// FindInWindow returns readings for a farm and sensor type with
	// ReadingTime at or after since, ordered oldest first.
	FindInWindow(ctx context.Context, farmID, sensorType string, since time.Time) ([]entities.SensorReading, error)
	// LatestPerDevice returns the most recent reading per device for a farm
	// and sensor type, restricted to readings at or after since.
	LatestPerDevice(ctx context.Context, farmID, sensorType string, since time.Time) ([]entities.SensorReading, error)
	// ListForDevice returns a device's readings newest first, capped at limit.
	ListForDevice(ctx context.Context, deviceID uint, limit int) ([]entities.SensorReading, error)
	// Aggregate buckets a farm's readings by hour, day, or week.
	Aggregate(ctx context.Context, farmID, sensorType string, bucket AggregationBucket, since time.Time) ([]AggregatedReading, error)
	// Stats computes avg/min/max/stddev/trend over a rolling window.
	Stats(ctx context.Context, farmID, sensorType string, since time.Time) (*ReadingStats, error)
}
