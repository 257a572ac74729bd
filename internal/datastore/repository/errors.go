// Package repository provides the persistence gateway consumed by the
// realtime core: devices, readings, farms, rules, and push subscriptions.
package repository

import "errors"

// Sentinel errors surfaced to API boundaries, which translate them to the
// HTTP error taxonomy (404/409).
var (
	ErrDeviceNotFound       = errors.New("sensor device not found")
	ErrDeviceExists         = errors.New("sensor device already registered")
	ErrFarmNotFound         = errors.New("farm not found")
	ErrAlertRuleNotFound    = errors.New("alert rule not found")
	ErrSubscriptionNotFound = errors.New("push subscription not found")
)
