// Package alerting provides the periodic alert rule engine, the fast-path
// threshold check, and alert delivery dispatch.
package alerting

// Rule types. Only threshold rules carry full evaluation semantics; the
// others are typed extension points.
const (
	RuleTypeThreshold = "threshold"
	RuleTypeWeather   = "weather"
	RuleTypeHealth    = "health"
	RuleTypeEquipment = "equipment"
	RuleTypeFinancial = "financial"
)

// Alert types identify the alert feed an event belongs to.
const (
	AlertTypeSensor    = "iot_sensor"
	AlertTypeWeather   = "weather"
	AlertTypeHealth    = "animal_health"
	AlertTypeEquipment = "equipment"
	AlertTypeFinancial = "financial"
	AlertTypeSystem    = "system"
)

// Severities, ordered low < medium < high < critical.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// severityRanks orders severities for comparison.
var severityRanks = map[string]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// SeverityRank returns the ordering rank of a severity; unknown severities
// rank below low.
func SeverityRank(severity string) int {
	if rank, ok := severityRanks[severity]; ok {
		return rank
	}
	return -1
}

// Condition operators.
const (
	OperatorGreaterThan    = "gt"
	OperatorLessThan       = "lt"
	OperatorEqual          = "eq"
	OperatorGreaterOrEqual = "gte"
	OperatorLessOrEqual    = "lte"
	OperatorBetween        = "between"
)

// Delivery channels for rule actions.
const (
	ChannelBroadcast = "broadcast"
	ChannelPush      = "push"
)

var validOperators = map[string]struct{}{
	OperatorGreaterThan:    {},
	OperatorLessThan:       {},
	OperatorEqual:          {},
	OperatorGreaterOrEqual: {},
	OperatorLessOrEqual:    {},
	OperatorBetween:        {},
}

// ValidOperator reports whether op is a known condition operator.
func ValidOperator(op string) bool {
	_, ok := validOperators[op]
	return ok
}

// ValidChannel reports whether channel is a known delivery channel.
func ValidChannel(channel string) bool {
	return channel == ChannelBroadcast || channel == ChannelPush
}

// ruleTypeAlertTypes maps a rule type to the alert type it produces.
var ruleTypeAlertTypes = map[string]string{
	RuleTypeThreshold: AlertTypeSensor,
	RuleTypeWeather:   AlertTypeWeather,
	RuleTypeHealth:    AlertTypeHealth,
	RuleTypeEquipment: AlertTypeEquipment,
	RuleTypeFinancial: AlertTypeFinancial,
}

// AlertTypeForRule returns the alert type a rule of the given type produces.
func AlertTypeForRule(ruleType string) string {
	if alertType, ok := ruleTypeAlertTypes[ruleType]; ok {
		return alertType
	}
	return AlertTypeSystem
}
