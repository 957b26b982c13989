package notify

import (
	"context"
	"time"

	"github.com/adityash8/proofport/internal/domain"
)

type EventType string

const (
	EventOrderCreated  EventType = "order_created"
	EventOrderExtended EventType = "order_extended"
	EventExpiryWarning EventType = "expiry_warning"
)

// Event is the summary handed to the delivery channel. The core decides
// when an event fires; how it reaches the customer is out of scope.
type Event struct {
	Type          EventType                     `json:"type"`
	OrderID       string                        `json:"order_id"`
	Owner         string                        `json:"owner"`
	Confirmations map[domain.ProductKind]string `json:"confirmations,omitempty"`
	FailedKinds   []domain.ProductKind          `json:"failed_kinds,omitempty"`
	ExpiresAt     time.Time                     `json:"expires_at"`
	OccurredAt    time.Time                     `json:"occurred_at"`
}

// Dispatcher delivers order summaries fire-and-forget. Implementations
// must not block order processing on delivery problems.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event)
}

// Nop discards every event. Used in tests and when no broker is
// configured.
type Nop struct{}

func (Nop) Dispatch(context.Context, Event) {}
