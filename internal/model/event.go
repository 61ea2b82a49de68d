package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderExpired       = "order.expired"
)

// OrderEvent is the message published on the order lifecycle exchange/topic.
type OrderEvent struct {
	EventID    uuid.UUID   `json:"event_id"`
	Type       string      `json:"type"`
	OrderID    uuid.UUID   `json:"order_id"`
	UserID     uuid.UUID   `json:"user_id"`
	Phone      string      `json:"phone,omitempty"`
	OldStatus  OrderStatus `json:"old_status,omitempty"`
	NewStatus  OrderStatus `json:"new_status,omitempty"`
	Total      int64       `json:"total"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func NewOrderEvent(typ string, o *Order, now time.Time) OrderEvent {
	return OrderEvent{
		EventID:    uuid.New(),
		Type:       typ,
		OrderID:    o.ID,
		UserID:     o.UserID,
		Phone:      o.PhoneNumber,
		NewStatus:  o.Status,
		Total:      o.TotalAmount.IntPart(),
		OccurredAt: now,
	}
}
