// internal/events/types.go
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType represents the type of event.
type EventType string

const (
	// Trade events
	TokenAcquired    EventType = "trade.acquired"
	TargetLiquidated EventType = "trade.liquidated"

	// Listing events
	IssuerMonitored EventType = "listing.monitored"
	TrustGranted    EventType = "listing.trust_granted"

	// Connection events
	ConnectionTerminal EventType = "connection.terminal"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// TokenAcquiredEvent is emitted after a confirmed acquisition opens a position.
type TokenAcquiredEvent struct {
	BaseEvent
	Currency string
	Issuer   string
	Account  string
	Units    decimal.Decimal
	SpentXRP decimal.Decimal
	TxHash   string
}

// TargetLiquidatedEvent is emitted after a ladder slot fires and the partial
// sale settles.
type TargetLiquidatedEvent struct {
	BaseEvent
	Currency    string
	Issuer      string
	Account     string
	SlotIndex   int
	Multiplier  decimal.Decimal
	UnitsSold   decimal.Decimal
	ProceedsXRP decimal.Decimal
	Remaining   decimal.Decimal
	TxHash      string
}

// IssuerMonitoredEvent is emitted when a listing signal puts an issuer under watch.
type IssuerMonitoredEvent struct {
	BaseEvent
	Currency string
	Issuer   string
}

// ConnectionTerminalEvent is emitted when reconnection attempts are exhausted.
type ConnectionTerminalEvent struct {
	BaseEvent
	Reason string
}
