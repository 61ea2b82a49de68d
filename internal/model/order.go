package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPendingPayment      OrderStatus = "pending_payment"
	OrderStatusPreparing           OrderStatus = "preparing"
	OrderStatusReady               OrderStatus = "ready"
	OrderStatusShippingPreparation OrderStatus = "shipping_preparation"
	OrderStatusInTransit           OrderStatus = "in_transit"
	OrderStatusPickupReady         OrderStatus = "pickup_ready"
)

var orderStatusLabels = map[OrderStatus]string{
	OrderStatusPendingPayment:      "در انتظار پرداخت",
	OrderStatusPreparing:           "در حال آماده‌سازی",
	OrderStatusReady:               "آماده",
	OrderStatusShippingPreparation: "آماده‌سازی برای ارسال",
	OrderStatusInTransit:           "در حال ارسال",
	OrderStatusPickupReady:         "آماده تحویل حضوری",
}

// orderTransitions is the complete set of legal forward moves.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment:      {OrderStatusPreparing},
	OrderStatusPreparing:           {OrderStatusReady},
	OrderStatusReady:               {OrderStatusShippingPreparation, OrderStatusPickupReady},
	OrderStatusShippingPreparation: {OrderStatusInTransit},
	OrderStatusInTransit:           nil,
	OrderStatusPickupReady:         nil,
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) Label() string {
	if l, ok := orderStatusLabels[s]; ok {
		return l
	}
	return string(s)
}

func (s OrderStatus) IsTerminal() bool {
	return s.Valid() && len(orderTransitions[s]) == 0
}

// CanTransitionTo checks the raw transition table, ignoring delivery method.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type DeliveryMethod string

const (
	DeliveryPickup DeliveryMethod = "pickup"
	DeliveryPost   DeliveryMethod = "post"
)

func (d DeliveryMethod) Valid() bool {
	return d == DeliveryPickup || d == DeliveryPost
}

func (d DeliveryMethod) Label() string {
	switch d {
	case DeliveryPickup:
		return "دریافت حضوری"
	case DeliveryPost:
		return "ارسال پستی"
	}
	return string(d)
}

type Order struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Status          OrderStatus
	DeliveryMethod  DeliveryMethod
	Subtotal        decimal.Decimal
	DeliveryFee     decimal.Decimal
	CreditApplied   decimal.Decimal
	TotalAmount     decimal.Decimal
	ShippingAddress string
	PostalCode      string
	PhoneNumber     string
	Notes           string
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CanTransitionTo applies the transition table plus the delivery branch at ready:
// post orders continue to shipping preparation, pickup orders to pickup_ready.
func (o *Order) CanTransitionTo(next OrderStatus) bool {
	if !o.Status.CanTransitionTo(next) {
		return false
	}
	switch next {
	case OrderStatusShippingPreparation:
		return o.DeliveryMethod == DeliveryPost
	case OrderStatusPickupReady:
		return o.DeliveryMethod == DeliveryPickup
	}
	return true
}

// NextStatuses lists the statuses this order may move to from where it is now.
func (o *Order) NextStatuses() []OrderStatus {
	var next []OrderStatus
	for _, s := range orderTransitions[o.Status] {
		if o.CanTransitionTo(s) {
			next = append(next, s)
		}
	}
	return next
}

// PaymentOverdue reports whether an unpaid order outlived its grace period.
func (o *Order) PaymentOverdue(now time.Time, grace time.Duration) bool {
	return o.Status == OrderStatusPendingPayment && now.After(o.CreatedAt.Add(grace))
}

func (o *Order) ShortID() string {
	return o.ID.String()[:8]
}

// OrderItem freezes price and variant at checkout time.
type OrderItem struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
	Price       decimal.Decimal
	GrindType   string
	Weight      string
}

func (i *OrderItem) TotalPrice() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
