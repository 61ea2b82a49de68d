package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/coffeeshop/internal/dto"
	"github.com/flicky/coffeeshop/internal/middleware"
	"github.com/flicky/coffeeshop/internal/service"
)

type ProfileHandler struct {
	profiles *service.ProfileService
	orders   *service.OrderService
}

func NewProfileHandler(profiles *service.ProfileService, orders *service.OrderService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, orders: orders}
}

func (h *ProfileHandler) AddAddress(c *gin.Context) {
	var req dto.CreateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}

	address, err := h.profiles.AddAddress(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		respondFailure(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewAddressResponse(address))
}

func (h *ProfileHandler) ListAddresses(c *gin.Context) {
	addresses, err := h.profiles.ListAddresses(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondFailure(c, err)
		return
	}

	resp := make([]dto.AddressResponse, 0, len(addresses))
	for i := range addresses {
		resp = append(resp, dto.NewAddressResponse(&addresses[i]))
	}
	c.JSON(http.StatusOK, gin.H{"addresses": resp})
}

func (h *ProfileHandler) Get(c *gin.Context) {
	p, err := h.profiles.Get(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := dto.ProfileResponse{
		User:  dto.NewUserResponse(p.User),
		Phone: p.Profile.PhoneNumber,
		WelcomeCredit: dto.WelcomeCreditResponse{
			Awarded:    p.Profile.CreditAwarded,
			Balance:    dto.Toman(p.Profile.AvailableCredit()),
			ConsumedAt: p.Profile.CreditConsumedAt,
		},
		Addresses:           make([]dto.AddressResponse, 0, len(p.Addresses)),
		Orders:              make([]dto.OrderResponse, 0, len(p.Orders)),
		ExpiredOrders:       p.ExpiredOrders,
		UnreadNotifications: p.Unread,
	}
	for i := range p.Addresses {
		resp.Addresses = append(resp.Addresses, dto.NewAddressResponse(&p.Addresses[i]))
	}
	for i := range p.Orders {
		resp.Orders = append(resp.Orders, dto.NewOrderResponse(&p.Orders[i], h.orders.PaymentGrace()))
	}
	c.JSON(http.StatusOK, resp)
}
