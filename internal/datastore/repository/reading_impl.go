package repository

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/terrasense/terrasense-go/internal/datastore/entities"
)

// trendTolerance is the relative change between window halves below which the
// trend is reported as stable.
const trendTolerance = 0.05

// readingRepository implements ReadingRepository.
type readingRepository struct {
	db *gorm.DB
}

// NewReadingRepository creates a new ReadingRepository.
func NewReadingRepository(db *gorm.DB) ReadingRepository {
	return &readingRepository{db: db}
}

// Save persists one reading.
func (r *readingRepository) Save(ctx context.Context, reading *entities.SensorReading) error {
	if err := r.db.WithContext(ctx).Create(reading).Error; err != nil {
		return fmt.Errorf("failed to save reading for device %d: %w", reading.DeviceID, err)
	}
	return nil
}

// FindInWindow returns readings at or after since, oldest first.
func (r *readingRepository) FindInWindow(ctx context.Context, farmID, sensorType string, since time.Time) ([]entities.SensorReading, error) {
	var readings []entities.SensorReading
	query := r.db.WithContext(ctx).
		Where("farm_id = ? AND reading_time >= ?", farmID, since)
	if sensorType != "" {
		query = query.Where("sensor_type = ?", sensorType)
	}
	if err := query.Order("reading_time ASC").Find(&readings).Error; err != nil {
		return nil, fmt.Errorf("failed to query readings for farm %s: %w", farmID, err)
	}
	return readings, nil
}

// LatestPerDevice returns the newest reading per device within the window.
func (r *readingRepository) LatestPerDevice(ctx context.Context, farmID, sensorType string, since time.Time) ([]entities.SensorReading, error) {
	var readings []entities.SensorReading
	query := r.db.WithContext(ctx).
		Where("farm_id = ? AND reading_time >= ?", farmID, since)
	if sensorType != "" {
		query = query.Where("sensor_type = ?", sensorType)
	}
	if err := query.Order("reading_time DESC").Find(&readings).Error; err != nil {
		return nil, fmt.Errorf("failed to query latest readings for farm %s: %w", farmID, err)
	}

	// Newest-first ordering means the first row seen per device wins.
	seen := make(map[uint]struct{}, len(readings))
	latest := readings[:0]
	for i := range readings {
		if _, ok := seen[readings[i].DeviceID]; ok {
			continue
		}
		seen[readings[i].DeviceID] = struct{}{}
		latest = append(latest, readings[i])
	}
	return latest, nil
}

// ListForDevice returns a device's readings newest first.
func (r *readingRepository) ListForDevice(ctx context.Context, deviceID uint, limit int) ([]entities.SensorReading, error) {
	var readings []entities.SensorReading
	query := r.db.WithContext(ctx).Where("device_id = ?", deviceID).Order("reading_time DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&readings).Error; err != nil {
		return nil, fmt.Errorf("failed to list readings for device %d: %w", deviceID, err)
	}
	return readings, nil
}

// Aggregate buckets readings in Go to stay portable across sqlite and mysql.
func (r *readingRepository) Aggregate(ctx context.Context, farmID, sensorType string, bucket AggregationBucket, since time.Time) ([]AggregatedReading, error) {
	readings, err := r.FindInWindow(ctx, farmID, sensorType, since)
	if err != nil {
		return nil, err
	}

	buckets := make(map[time.Time]*AggregatedReading)
	for i := range readings {
		start := truncateToBucket(readings[i].ReadingTime, bucket)
		agg, ok := buckets[start]
		if !ok {
			agg = &AggregatedReading{
				BucketStart: start,
				Min:         readings[i].Value,
				Max:         readings[i].Value,
			}
			buckets[start] = agg
		}
		agg.Min = math.Min(agg.Min, readings[i].Value)
		agg.Max = math.Max(agg.Max, readings[i].Value)
		// Avg holds the running sum until the final pass below.
		agg.Avg += readings[i].Value
		agg.Count++
	}

	out := make([]AggregatedReading, 0, len(buckets))
	for _, agg := range buckets {
		agg.Avg /= float64(agg.Count)
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketStart.Before(out[j].BucketStart) })
	return out, nil
}

// Stats computes summary statistics and a coarse trend over the window.
func (r *readingRepository) Stats(ctx context.Context, farmID, sensorType string, since time.Time) (*ReadingStats, error) {
	readings, err := r.FindInWindow(ctx, farmID, sensorType, since)
	if err != nil {
		return nil, err
	}
	stats := &ReadingStats{Trend: "stable"}
	if len(readings) == 0 {
		return stats, nil
	}

	stats.Count = len(readings)
	stats.Min = readings[0].Value
	stats.Max = readings[0].Value
	var sum float64
	for i := range readings {
		v := readings[i].Value
		sum += v
		stats.Min = math.Min(stats.Min, v)
		stats.Max = math.Max(stats.Max, v)
	}
	stats.Avg = sum / float64(stats.Count)

	var sqDiff float64
	for i := range readings {
		d := readings[i].Value - stats.Avg
		sqDiff += d * d
	}
	stats.StdDev = math.Sqrt(sqDiff / float64(stats.Count))
	stats.Trend = computeTrend(readings)
	return stats, nil
}

// computeTrend compares the mean of the older half of the window with the
// mean of the newer half. Readings arrive oldest first.
func computeTrend(readings []entities.SensorReading) string {
	if len(readings) < 4 {
		return "stable"
	}
	mid := len(readings) / 2
	var older, newer float64
	for i := 0; i < mid; i++ {
		older += readings[i].Value
	}
	for i := mid; i < len(readings); i++ {
		newer += readings[i].Value
	}
	older /= float64(mid)
	newer /= float64(len(readings) - mid)

	base := math.Abs(older)
	if base < 1e-9 {
		base = 1
	}
	change := (newer - older) / base
	switch {
	case change > trendTolerance:
		return "rising"
	case change < -trendTolerance:
		return "falling"
	default:
		return "stable"
	}
}

// truncateToBucket floors a timestamp to its bucket start in UTC.
func truncateToBucket(t time.Time, bucket AggregationBucket) time.Time {
	t = t.UTC()
	switch bucket {
	case BucketDaily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case BucketWeekly:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		// Weeks start on Monday.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	default:
		return t.Truncate(time.Hour)
	}
}
