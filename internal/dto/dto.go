package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- Auth ---

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Phone     string `json:"phone" binding:"omitempty,numeric,min=10,max=13"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
}

// --- Catalog ---

type CreateCategoryRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description"`
}

type CategoryResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateProductRequest struct {
	CategoryID        *uuid.UUID                 `json:"category_id"`
	Name              string                     `json:"name" binding:"required,max=255"`
	Description       string                     `json:"description"`
	Price             decimal.Decimal            `json:"price" binding:"required"`
	Stock             int                        `json:"stock" binding:"min=0"`
	GrindOptions      []string                   `json:"grind_options" binding:"dive,grind"`
	WeightOptions     []string                   `json:"weight_options" binding:"dive,weight"`
	WeightMultipliers map[string]decimal.Decimal `json:"weight_multipliers" binding:"dive,keys,weight,endkeys"`
	IsActive          *bool                      `json:"is_active"`
}

type UpdateProductRequest struct {
	CategoryID        *uuid.UUID                 `json:"category_id"`
	Name              *string                    `json:"name" binding:"omitempty,max=255"`
	Description       *string                    `json:"description"`
	Price             *decimal.Decimal           `json:"price"`
	Stock             *int                       `json:"stock" binding:"omitempty,min=0"`
	GrindOptions      []string                   `json:"grind_options" binding:"omitempty,dive,grind"`
	WeightOptions     []string                   `json:"weight_options" binding:"omitempty,dive,weight"`
	WeightMultipliers map[string]decimal.Decimal `json:"weight_multipliers" binding:"omitempty,dive,keys,weight,endkeys"`
	IsActive          *bool                      `json:"is_active"`
}

type ListProductsRequest struct {
	Page       int    `form:"page,default=1" binding:"min=1"`
	Limit      int    `form:"limit,default=20" binding:"min=1,max=100"`
	Search     string `form:"search"`
	Sort       string `form:"sort,default=created_at" binding:"oneof=name price stock created_at"`
	Order      string `form:"order,default=desc" binding:"oneof=asc desc"`
	CategoryID string `form:"category_id" binding:"omitempty,uuid"`
}

type ProductResponse struct {
	ID                uuid.UUID                  `json:"id"`
	CategoryID        *uuid.UUID                 `json:"category_id,omitempty"`
	Name              string                     `json:"name"`
	Description       string                     `json:"description"`
	Price             decimal.Decimal            `json:"price"`
	Stock             int                        `json:"stock"`
	GrindOptions      []string                   `json:"grind_options"`
	WeightOptions     []string                   `json:"weight_options"`
	WeightMultipliers map[string]decimal.Decimal `json:"weight_multipliers"`
	IsActive          bool                       `json:"is_active"`
	CreatedAt         time.Time                  `json:"created_at"`
	UpdatedAt         time.Time                  `json:"updated_at"`
}

type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

// --- Cart ---

type AddCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  Quantity  `json:"quantity"`
	GrindType string    `json:"grind_type" binding:"omitempty,grind"`
	Weight    string    `json:"weight" binding:"omitempty,weight"`
}

type UpdateCartItemRequest struct {
	ItemID   uuid.UUID `json:"item_id" binding:"required"`
	Quantity *int      `json:"quantity" binding:"required"`
}

type RemoveCartItemRequest struct {
	ItemID uuid.UUID `json:"item_id" binding:"required"`
}

type CartMutationResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	CartTotal int64  `json:"cart_total"`
	CartCount int    `json:"cart_count"`
	ItemTotal *int64 `json:"item_total,omitempty"`
}

// FailureResponse is the storefront's answer to a request it could not honour.
type FailureResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	AvailableStock *int   `json:"available_stock,omitempty"`
}

type CartCountResponse struct {
	Count int `json:"count"`
}

type CartResponse struct {
	Items     []CartItemResponse `json:"items"`
	CartTotal int64              `json:"cart_total"`
	CartCount int                `json:"cart_count"`
}

type CartItemResponse struct {
	ID         uuid.UUID `json:"id"`
	ProductID  uuid.UUID `json:"product_id"`
	Name       string    `json:"name"`
	GrindType  string    `json:"grind_type"`
	Weight     string    `json:"weight"`
	Quantity   int       `json:"quantity"`
	UnitPrice  int64     `json:"unit_price"`
	TotalPrice int64     `json:"total_price"`
}

// --- Checkout & orders ---

type CheckoutRequest struct {
	DeliveryMethod string `form:"delivery_method" binding:"omitempty,oneof=post pickup"`
	AddressID      string `form:"address_id"`
	PostalCode     string `form:"postal_code" binding:"omitempty,max=20"`
	Notes          string `form:"notes" binding:"max=1000"`
}

type OrderResponse struct {
	ID                    uuid.UUID           `json:"id"`
	Status                string              `json:"status"`
	StatusDisplay         string              `json:"status_display"`
	DeliveryMethod        string              `json:"delivery_method"`
	DeliveryMethodDisplay string              `json:"delivery_method_display"`
	Subtotal              int64               `json:"subtotal"`
	DeliveryFee           int64               `json:"delivery_fee"`
	CreditApplied         int64               `json:"credit_applied"`
	Total                 int64               `json:"total"`
	ShippingAddress       string              `json:"shipping_address"`
	PostalCode            string              `json:"postal_code"`
	PhoneNumber           string              `json:"phone_number"`
	Notes                 string              `json:"notes,omitempty"`
	Items                 []OrderItemResponse `json:"items,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
	PaymentDeadline       *time.Time          `json:"payment_deadline,omitempty"`
}

type OrderItemResponse struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	GrindType   string    `json:"grind_type"`
	Weight      string    `json:"weight"`
	Quantity    int       `json:"quantity"`
	Price       int64     `json:"price"`
	Total       int64     `json:"total"`
}

type OrderListResponse struct {
	Orders  []OrderResponse `json:"orders"`
	Total   int             `json:"total"`
	Expired int             `json:"expired"`
}

type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
}

type TransitionResponse struct {
	Success       bool   `json:"success"`
	Status        string `json:"status"`
	StatusDisplay string `json:"status_display"`
	Message       string `json:"message"`
}

type OrderStatusResponse struct {
	Status          string            `json:"status"`
	StatusDisplay   string            `json:"status_display"`
	DeliveryMethod  string            `json:"delivery_method"`
	CanTransitionTo map[string]string `json:"can_transition_to"`
}

// --- Profile ---

type CreateAddressRequest struct {
	Title      string `json:"title" binding:"max=100"`
	Province   string `json:"province" binding:"max=100"`
	City       string `json:"city" binding:"required,max=100"`
	Street     string `json:"street" binding:"required"`
	PostalCode string `json:"postal_code" binding:"omitempty,numeric,max=20"`
	Phone      string `json:"phone" binding:"omitempty,numeric,min=10,max=13"`
}

type AddressResponse struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Province   string    `json:"province"`
	City       string    `json:"city"`
	Street     string    `json:"street"`
	PostalCode string    `json:"postal_code"`
	Phone      string    `json:"phone"`
	Formatted  string    `json:"formatted"`
}

type WelcomeCreditResponse struct {
	Awarded    bool       `json:"awarded"`
	Balance    int64      `json:"balance"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

type ProfileResponse struct {
	User                UserResponse          `json:"user"`
	Phone               string                `json:"phone"`
	WelcomeCredit       WelcomeCreditResponse `json:"welcome_credit"`
	Addresses           []AddressResponse     `json:"addresses"`
	Orders              []OrderResponse       `json:"orders"`
	ExpiredOrders       int                   `json:"expired_orders"`
	UnreadNotifications int                   `json:"unread_notifications"`
}

// --- Notifications ---

type NotificationResponse struct {
	ID        uuid.UUID  `json:"id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	OrderID   *uuid.UUID `json:"order_id,omitempty"`
	IsRead    bool       `json:"is_read"`
	CreatedAt time.Time  `json:"created_at"`
}

type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	Unread        int                    `json:"unread"`
}
