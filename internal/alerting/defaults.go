package alerting

import (
	"github.com/terrasense/terrasense-go/internal/datastore/entities"
)

func f(v float64) *float64 { return &v }

// DefaultRules returns the built-in rules seeded on first start. All are
// wildcard rules (empty FarmID) so every active farm is covered out of the
// box; operators can disable or replace them per farm.
func DefaultRules() []entities.AlertRule {
	return []entities.AlertRule{
		{
			Name:        "Soil moisture critically low",
			RuleType:    RuleTypeThreshold,
			Severity:    SeverityHigh,
			Enabled:     true,
			BuiltIn:     true,
			CooldownSec: 3600,
			Conditions: []entities.AlertCondition{
				{SensorType: "soil_moisture", Operator: OperatorLessThan, Value: 15, SustainSec: 1800, SortOrder: 0},
			},
			Actions: []entities.AlertAction{
				{Channel: ChannelBroadcast, Enabled: true, SortOrder: 0},
				{Channel: ChannelPush, Enabled: true, SortOrder: 1},
			},
		},
		{
			Name:        "Greenhouse temperature out of range",
			RuleType:    RuleTypeThreshold,
			Severity:    SeverityHigh,
			Enabled:     true,
			BuiltIn:     true,
			CooldownSec: 1800,
			Conditions: []entities.AlertCondition{
				{SensorType: "temperature", Operator: OperatorGreaterThan, Value: 40, SustainSec: 600, SortOrder: 0},
				{SensorType: "temperature", Operator: OperatorLessThan, Value: 2, SustainSec: 600, SortOrder: 1},
			},
			Actions: []entities.AlertAction{
				{Channel: ChannelBroadcast, Enabled: true, SortOrder: 0},
				{Channel: ChannelPush, Enabled: true, SortOrder: 1},
			},
		},
		{
			Name:        "Water tank level low",
			RuleType:    RuleTypeThreshold,
			Severity:    SeverityMedium,
			Enabled:     true,
			BuiltIn:     true,
			CooldownSec: 7200,
			Conditions: []entities.AlertCondition{
				{SensorType: "water_level", Operator: OperatorLessThan, Value: 20, SustainSec: 900, SortOrder: 0},
			},
			Actions: []entities.AlertAction{
				{Channel: ChannelBroadcast, Enabled: true, SortOrder: 0},
				{Channel: ChannelPush, Enabled: true, SortOrder: 1},
			},
		},
		{
			Name:        "Humidity outside safe band",
			RuleType:    RuleTypeThreshold,
			Severity:    SeverityMedium,
			Enabled:     true,
			BuiltIn:     true,
			CooldownSec: 3600,
			Conditions: []entities.AlertCondition{
				{SensorType: "humidity", Operator: OperatorBetween, Value: 0, ValueHigh: f(25), SustainSec: 1800, SortOrder: 0},
			},
			Actions: []entities.AlertAction{
				{Channel: ChannelBroadcast, Enabled: true, SortOrder: 0},
			},
		},
	}
}
