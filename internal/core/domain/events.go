package domain

import "time"

type EventType string

const (
	EventStockReserved             EventType = "stock.reserved"
	EventStockCommitted            EventType = "stock.committed"
	EventStockReservationCancelled EventType = "stock.reservation_cancelled"
	EventStockAdjusted             EventType = "stock.adjusted"
	EventLowStock                  EventType = "stock.low"
	EventThresholdUpdated          EventType = "stock.threshold_updated"
)

// Event describes one completed ledger transition. Events are published only
// after the mutation is durably persisted; a mutation produces exactly one
// primary event plus at most one secondary LowStock event.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	ProductID  string    `json:"product_id"`
	OrderID    string    `json:"order_id,omitempty"`
	Quantity   int       `json:"quantity,omitempty"`
	OldStock   int       `json:"old_stock,omitempty"`
	NewStock   int       `json:"new_stock,omitempty"`
	Available  int       `json:"available"`
	Threshold  int       `json:"threshold,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
