package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrasense/terrasense-go/internal/datastore/entities"
)

func TestEvaluateOperator(t *testing.T) {
	high := 25.0
	cases := []struct {
		name  string
		value float64
		cond  entities.AlertCondition
		want  bool
	}{
		{"gt match", 41, entities.AlertCondition{Operator: OperatorGreaterThan, Value: 40}, true},
		{"gt equal is no match", 40, entities.AlertCondition{Operator: OperatorGreaterThan, Value: 40}, false},
		{"lt match", 14.9, entities.AlertCondition{Operator: OperatorLessThan, Value: 15}, true},
		{"lt no match", 15, entities.AlertCondition{Operator: OperatorLessThan, Value: 15}, false},
		{"eq match", 7, entities.AlertCondition{Operator: OperatorEqual, Value: 7}, true},
		{"gte boundary", 40, entities.AlertCondition{Operator: OperatorGreaterOrEqual, Value: 40}, true},
		{"lte boundary", 15, entities.AlertCondition{Operator: OperatorLessOrEqual, Value: 15}, true},
		{"between inside", 10, entities.AlertCondition{Operator: OperatorBetween, Value: 0, ValueHigh: &high}, true},
		{"between low edge", 0, entities.AlertCondition{Operator: OperatorBetween, Value: 0, ValueHigh: &high}, true},
		{"between high edge", 25, entities.AlertCondition{Operator: OperatorBetween, Value: 0, ValueHigh: &high}, true},
		{"between outside", 26, entities.AlertCondition{Operator: OperatorBetween, Value: 0, ValueHigh: &high}, false},
		{"between missing high bound", 10, entities.AlertCondition{Operator: OperatorBetween, Value: 0}, false},
		{"unknown operator", 10, entities.AlertCondition{Operator: "like", Value: 10}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, evaluateOperator(tc.value, &tc.cond))
		})
	}
}

func TestCheckStaticThresholds(t *testing.T) {
	device := &entities.SensorDevice{
		DeviceID:     "sensor-17",
		SensorType:   "temperature",
		Unit:         "°C",
		MinThreshold: floatPtr(5),
		MaxThreshold: floatPtr(30),
		AlertEnabled: true,
	}

	t.Run("above maximum", func(t *testing.T) {
		breach := CheckStaticThresholds(device, 35)
		require.NotNil(t, breach)
		assert.Contains(t, breach.Message, "above maximum threshold (30)")
	})

	t.Run("below minimum", func(t *testing.T) {
		breach := CheckStaticThresholds(device, 2)
		require.NotNil(t, breach)
		assert.Contains(t, breach.Message, "below minimum threshold (5)")
	})

	t.Run("within range", func(t *testing.T) {
		assert.Nil(t, CheckStaticThresholds(device, 20))
	})

	t.Run("boundary values do not breach", func(t *testing.T) {
		assert.Nil(t, CheckStaticThresholds(device, 30))
		assert.Nil(t, CheckStaticThresholds(device, 5))
	})

	t.Run("alerting disabled", func(t *testing.T) {
		muted := *device
		muted.AlertEnabled = false
		assert.Nil(t, CheckStaticThresholds(&muted, 100))
	})

	t.Run("no thresholds configured", func(t *testing.T) {
		bare := &entities.SensorDevice{DeviceID: "sensor-9", AlertEnabled: true}
		assert.Nil(t, CheckStaticThresholds(bare, 100))
	})

	t.Run("nil device", func(t *testing.T) {
		assert.Nil(t, CheckStaticThresholds(nil, 100))
	})
}

func TestAlertTypeForRule(t *testing.T) {
	assert.Equal(t, AlertTypeSensor, AlertTypeForRule(RuleTypeThreshold))
	assert.Equal(t, AlertTypeWeather, AlertTypeForRule(RuleTypeWeather))
	assert.Equal(t, AlertTypeSystem, AlertTypeForRule("unknown"))
}

func TestSeverityRank(t *testing.T) {
	assert.Less(t, SeverityRank(SeverityLow), SeverityRank(SeverityMedium))
	assert.Less(t, SeverityRank(SeverityMedium), SeverityRank(SeverityHigh))
	assert.Less(t, SeverityRank(SeverityHigh), SeverityRank(SeverityCritical))
	assert.Negative(t, SeverityRank("bogus"))
}

func TestValidOperatorAndChannel(t *testing.T) {
	for _, op := range []string{OperatorGreaterThan, OperatorLessThan, OperatorEqual, OperatorGreaterOrEqual, OperatorLessOrEqual, OperatorBetween} {
		assert.True(t, ValidOperator(op), op)
	}
	assert.False(t, ValidOperator("above"))
	assert.False(t, ValidOperator(""))

	assert.True(t, ValidChannel(ChannelBroadcast))
	assert.True(t, ValidChannel(ChannelPush))
	assert.False(t, ValidChannel("sms"))
}
