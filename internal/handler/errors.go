package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/coffeeshop/internal/dto"
	"github.com/flicky/coffeeshop/internal/middleware"
	"github.com/flicky/coffeeshop/internal/service"
)

const (
	msgInvalidInput    = "اطلاعات ارسالی نامعتبر است"
	msgInvalidQuantity = "تعداد نامعتبر است"
	msgOutOfStock      = "موجودی کافی نیست"
	msgItemRemoved     = "آیتم با موفقیت حذف شد"
	msgInternal        = "خطای داخلی سرور"
	msgInvalidAddress  = "لطفاً یک آدرس معتبر انتخاب کنید"
)

var errorMessages = []struct {
	err     error
	status  int
	message string
}{
	{service.ErrInvalidQuantity, http.StatusBadRequest, msgInvalidQuantity},
	{service.ErrInvalidVariant, http.StatusBadRequest, "این گزینه برای محصول موجود نیست"},
	{service.ErrInvalidDeliveryMethod, http.StatusBadRequest, "روش ارسال نامعتبر است"},
	{service.ErrEmptyCart, http.StatusBadRequest, "سبد خرید شما خالی است"},
	{service.ErrInvalidPrice, http.StatusBadRequest, "قیمت نامعتبر است"},
	{service.ErrCategoryNotFound, http.StatusBadRequest, "دسته‌بندی یافت نشد"},
	{service.ErrAddressNotFound, http.StatusNotFound, msgInvalidAddress},
	{service.ErrCartItemNotFound, http.StatusNotFound, "آیتم یافت نشد"},
	{service.ErrProductNotFound, http.StatusNotFound, "محصول یافت نشد"},
	{service.ErrOrderNotFound, http.StatusNotFound, "سفارش یافت نشد"},
	{service.ErrNotificationNotFound, http.StatusNotFound, "اعلان یافت نشد"},
	{service.ErrUserNotFound, http.StatusNotFound, "کاربر یافت نشد"},
	{service.ErrOrderExpired, http.StatusGone, "مهلت پرداخت سفارش به پایان رسیده و سفارش لغو شد"},
	{service.ErrInvalidTransition, http.StatusConflict, "تغییر وضعیت سفارش مجاز نیست"},
	{service.ErrUserAlreadyExists, http.StatusConflict, "این ایمیل قبلاً ثبت شده است"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "ایمیل یا رمز عبور اشتباه است"},
}

// classify maps a service error to an HTTP status and a message for the user.
// Insufficient stock is answered with 200: the request was understood and the
// caller gets the remaining stock to correct it.
func classify(err error) (int, string) {
	var stock *service.InsufficientStockError
	if errors.As(err, &stock) {
		return http.StatusOK, msgOutOfStock
	}
	var transition *service.TransitionError
	if errors.As(err, &transition) {
		return http.StatusConflict, fmt.Sprintf("تغییر وضعیت از «%s» به «%s» مجاز نیست",
			transition.From.Label(), transition.To.Label())
	}
	for _, m := range errorMessages {
		if errors.Is(err, m.err) {
			return m.status, m.message
		}
	}
	return http.StatusInternalServerError, msgInternal
}

// respondFailure writes the storefront failure shape {success:false, message}.
func respondFailure(c *gin.Context, err error) {
	status, message := classify(err)
	logUnexpected(c, status, err)

	resp := dto.FailureResponse{Message: message}
	var stock *service.InsufficientStockError
	if errors.As(err, &stock) {
		available := stock.Available
		resp.AvailableStock = &available
	}
	c.JSON(status, resp)
}

// respondError writes the back-office failure shape {error}.
func respondError(c *gin.Context, err error) {
	status, message := classify(err)
	logUnexpected(c, status, err)
	c.JSON(status, gin.H{"error": message})
}

func respondInvalid(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msgInvalidInput, "error": err.Error()})
}

func logUnexpected(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		middleware.Logger(c).Error("request failed", "error", err)
	}
}
