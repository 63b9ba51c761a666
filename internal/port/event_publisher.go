package port

import (
	"context"

	"github.com/ecomcore/inventory/internal/core/domain"
)

// EventPublisher delivers ledger transition events to downstream consumers.
// Fire-and-forget from the engine's perspective: delivery guarantees belong
// to the sink, and a publish failure never rolls back a committed mutation.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}
