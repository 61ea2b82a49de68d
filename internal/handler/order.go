package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/coffeeshop/internal/dto"
	"github.com/flicky/coffeeshop/internal/middleware"
	"github.com/flicky/coffeeshop/internal/model"
	"github.com/flicky/coffeeshop/internal/service"
)

type OrderHandler struct {
	orderService *service.OrderService
}

func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// Checkout handles the checkout form. A created order is answered with a
// redirect to its detail page.
func (h *OrderHandler) Checkout(c *gin.Context) {
	var req dto.CheckoutRequest
	if err := c.ShouldBind(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	addressID, err := uuid.Parse(req.AddressID)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.FailureResponse{Message: msgInvalidAddress})
		return
	}

	order, err := h.orderService.Checkout(c.Request.Context(), middleware.GetUserID(c), service.CheckoutInput{
		DeliveryMethod: model.DeliveryMethod(req.DeliveryMethod),
		AddressID:      addressID,
		PostalCode:     req.PostalCode,
		Notes:          req.Notes,
	})
	if err != nil {
		var stock *service.InsufficientStockError
		if errors.As(err, &stock) && stock.ProductName != "" {
			c.JSON(http.StatusOK, dto.FailureResponse{
				Message: fmt.Sprintf("موجودی محصول '%s' کافی نیست", stock.ProductName),
			})
			return
		}
		respondFailure(c, err)
		return
	}

	middleware.Logger(c).Info("order placed",
		"order_id", order.ID.String(),
		"total", order.TotalAmount.String(),
	)
	c.Redirect(http.StatusSeeOther, "/api/orders/"+order.ID.String())
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, expired, err := h.orderService.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, dto.NewOrderResponse(&orders[i], h.orderService.PaymentGrace()))
	}
	c.JSON(http.StatusOK, dto.OrderListResponse{Orders: items, Total: len(items), Expired: expired})
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderResponse(order, h.orderService.PaymentGrace()))
}

// Status reports the current status and the moves available from it.
func (h *OrderHandler) Status(c *gin.Context) {
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderStatusResponse(order))
}

func (h *OrderHandler) loadOrder(c *gin.Context) (*model.Order, bool) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, service.ErrOrderNotFound)
		return nil, false
	}
	order, err := h.orderService.Get(c.Request.Context(), middleware.GetUserID(c), middleware.IsStaff(c), orderID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return order, true
}

// Transition moves an order to the status named in the body. Staff only.
func (h *OrderHandler) Transition(c *gin.Context) {
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidInput})
		return
	}
	to := model.OrderStatus(req.Status)
	if !to.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "وضعیت نامعتبر است"})
		return
	}
	h.transition(c, func(id uuid.UUID) (*model.Order, error) {
		return h.orderService.Transition(c.Request.Context(), id, to)
	})
}

func (h *OrderHandler) MarkPaid(c *gin.Context) {
	h.transition(c, func(id uuid.UUID) (*model.Order, error) {
		return h.orderService.MarkPaid(c.Request.Context(), id)
	})
}

func (h *OrderHandler) MarkReady(c *gin.Context) {
	h.transition(c, func(id uuid.UUID) (*model.Order, error) {
		return h.orderService.MarkReady(c.Request.Context(), id)
	})
}

func (h *OrderHandler) StartShipping(c *gin.Context) {
	h.transition(c, func(id uuid.UUID) (*model.Order, error) {
		return h.orderService.StartShippingPreparation(c.Request.Context(), id)
	})
}

func (h *OrderHandler) MarkInTransit(c *gin.Context) {
	h.transition(c, func(id uuid.UUID) (*model.Order, error) {
		return h.orderService.MarkInTransit(c.Request.Context(), id)
	})
}

func (h *OrderHandler) transition(c *gin.Context, apply func(uuid.UUID) (*model.Order, error)) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, service.ErrOrderNotFound)
		return
	}
	order, err := apply(orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	middleware.Logger(c).Info("order status updated",
		"order_id", order.ID.String(),
		"status", string(order.Status),
		"staff_id", middleware.GetUserID(c).String(),
	)
	c.JSON(http.StatusOK, dto.TransitionResponse{
		Success:       true,
		Status:        string(order.Status),
		StatusDisplay: order.Status.Label(),
		Message:       fmt.Sprintf("وضعیت سفارش به «%s» تغییر یافت", order.Status.Label()),
	})
}
