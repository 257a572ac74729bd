package alerting

import (
	"fmt"

	"github.com/terrasense/terrasense-go/internal/datastore/entities"
)

// evaluateOperator compares a reading value against a condition threshold.
func evaluateOperator(value float64, cond *entities.AlertCondition) bool {
	switch cond.Operator {
	case OperatorGreaterThan:
		return value > cond.Value
	case OperatorLessThan:
		return value < cond.Value
	case OperatorEqual:
		return value == cond.Value
	case OperatorGreaterOrEqual:
		return value >= cond.Value
	case OperatorLessOrEqual:
		return value <= cond.Value
	case OperatorBetween:
		if cond.ValueHigh == nil {
			return false
		}
		return value >= cond.Value && value <= *cond.ValueHigh
	default:
		return false
	}
}

// ThresholdBreach describes a static min/max threshold violation found by the
// fast-path check.
type ThresholdBreach struct {
	Device  *entities.SensorDevice
	Value   float64
	Message string
}

// CheckStaticThresholds evaluates a calibrated reading value against the
// device's own configured min/max thresholds. Returns nil when no threshold
// is configured or breached. Both breach directions classify as severity
// high regardless of any rule-declared default.
func CheckStaticThresholds(device *entities.SensorDevice, value float64) *ThresholdBreach {
	if device == nil || !device.AlertEnabled {
		return nil
	}
	if device.MaxThreshold != nil && value > *device.MaxThreshold {
		return &ThresholdBreach{
			Device: device,
			Value:  value,
			Message: fmt.Sprintf("%s reading %.2f%s is above maximum threshold (%g)",
				device.SensorType, value, device.Unit, *device.MaxThreshold),
		}
	}
	if device.MinThreshold != nil && value < *device.MinThreshold {
		return &ThresholdBreach{
			Device: device,
			Value:  value,
			Message: fmt.Sprintf("%s reading %.2f%s is below minimum threshold (%g)",
				device.SensorType, value, device.Unit, *device.MinThreshold),
		}
	}
	return nil
}
