package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/coffeeshop/internal/dto"
	"github.com/flicky/coffeeshop/internal/middleware"
	"github.com/flicky/coffeeshop/internal/service"
)

type CartHandler struct {
	svc *service.CartService
}

func NewCartHandler(svc *service.CartService) *CartHandler {
	return &CartHandler{svc: svc}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	cart, err := h.svc.GetCart(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewCartResponse(cart))
}

func (h *CartHandler) Count(c *gin.Context) {
	n, err := h.svc.Count(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CartCountResponse{Count: n})
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req dto.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}

	summary, err := h.svc.AddItem(c.Request.Context(), middleware.GetUserID(c), service.AddItemInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity.Int(),
		GrindType: req.GrindType,
		Weight:    req.Weight,
	})
	if err != nil {
		respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CartMutationResponse{
		Success:   true,
		CartTotal: dto.Toman(summary.Total),
		CartCount: summary.Count,
	})
}

// UpdateItem sets an item's quantity; zero removes the item.
func (h *CartHandler) UpdateItem(c *gin.Context) {
	var req dto.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}

	update, err := h.svc.UpdateItem(c.Request.Context(), middleware.GetUserID(c), req.ItemID, *req.Quantity)
	if err != nil {
		respondFailure(c, err)
		return
	}
	resp := dto.CartMutationResponse{
		Success:   true,
		CartTotal: dto.Toman(update.Total),
		CartCount: update.Count,
	}
	if update.Removed {
		resp.Message = msgItemRemoved
	} else {
		itemTotal := dto.Toman(update.ItemTotal)
		resp.ItemTotal = &itemTotal
	}
	c.JSON(http.StatusOK, resp)
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	var req dto.RemoveCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}

	summary, err := h.svc.RemoveItem(c.Request.Context(), middleware.GetUserID(c), req.ItemID)
	if err != nil {
		respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CartMutationResponse{
		Success:   true,
		Message:   msgItemRemoved,
		CartTotal: dto.Toman(summary.Total),
		CartCount: summary.Count,
	})
}
