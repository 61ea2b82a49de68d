package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/flicky/coffeeshop/internal/model"
)

// Toman renders a money amount the way the storefront shows it: whole units.
func Toman(d decimal.Decimal) int64 { return d.IntPart() }

func NewUserResponse(u *model.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName, Role: u.Role}
}

func NewCartResponse(c *model.Cart) CartResponse {
	resp := CartResponse{Items: []CartItemResponse{}, CartTotal: Toman(c.Total()), CartCount: c.Count()}
	for i := range c.Items {
		item := &c.Items[i]
		name := ""
		if item.Product != nil {
			name = item.Product.Name
		}
		resp.Items = append(resp.Items, CartItemResponse{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Name:       name,
			GrindType:  item.GrindType,
			Weight:     item.Weight,
			Quantity:   item.Quantity,
			UnitPrice:  Toman(item.UnitPrice()),
			TotalPrice: Toman(item.TotalPrice()),
		})
	}
	return resp
}

// NewOrderResponse maps an order; grace is used to show the payment deadline of unpaid orders.
func NewOrderResponse(o *model.Order, grace time.Duration) OrderResponse {
	resp := OrderResponse{
		ID:                    o.ID,
		Status:                string(o.Status),
		StatusDisplay:         o.Status.Label(),
		DeliveryMethod:        string(o.DeliveryMethod),
		DeliveryMethodDisplay: o.DeliveryMethod.Label(),
		Subtotal:              Toman(o.Subtotal),
		DeliveryFee:           Toman(o.DeliveryFee),
		CreditApplied:         Toman(o.CreditApplied),
		Total:                 Toman(o.TotalAmount),
		ShippingAddress:       o.ShippingAddress,
		PostalCode:            o.PostalCode,
		PhoneNumber:           o.PhoneNumber,
		Notes:                 o.Notes,
		CreatedAt:             o.CreatedAt,
	}
	if o.Status == model.OrderStatusPendingPayment {
		deadline := o.CreatedAt.Add(grace)
		resp.PaymentDeadline = &deadline
	}
	for i := range o.Items {
		item := &o.Items[i]
		resp.Items = append(resp.Items, OrderItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			GrindType:   item.GrindType,
			Weight:      item.Weight,
			Quantity:    item.Quantity,
			Price:       Toman(item.Price),
			Total:       Toman(item.TotalPrice()),
		})
	}
	return resp
}

func NewOrderStatusResponse(o *model.Order) OrderStatusResponse {
	next := make(map[string]string)
	for _, s := range o.NextStatuses() {
		next[string(s)] = s.Label()
	}
	return OrderStatusResponse{
		Status:          string(o.Status),
		StatusDisplay:   o.Status.Label(),
		DeliveryMethod:  string(o.DeliveryMethod),
		CanTransitionTo: next,
	}
}

func NewAddressResponse(a *model.UserAddress) AddressResponse {
	return AddressResponse{
		ID:         a.ID,
		Title:      a.Title,
		Province:   a.Province,
		City:       a.City,
		Street:     a.Street,
		PostalCode: a.PostalCode,
		Phone:      a.Phone,
		Formatted:  a.Format(),
	}
}

func NewNotificationResponse(n *model.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		OrderID:   n.OrderID,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}
