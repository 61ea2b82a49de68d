package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/coffeeshop/internal/events"
	"github.com/flicky/coffeeshop/internal/model"
	"github.com/flicky/coffeeshop/internal/repository/repotest"
	"github.com/flicky/coffeeshop/internal/service"
)

const testSecret = "handler-test-secret"

func init() { gin.SetMode(gin.TestMode) }

type server struct {
	store  *repotest.Store
	router *gin.Engine
}

func newServer(t *testing.T) *server {
	t.Helper()
	store := repotest.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := service.OrderConfig{
		DeliveryFee:           decimal.NewFromInt(50000),
		FreeDeliveryThreshold: decimal.NewFromInt(500000),
		WelcomeCredit:         decimal.NewFromInt(100000),
		PaymentGrace:          5 * time.Minute,
	}

	orders := service.NewOrderService(store, cfg, events.Nop{}, nil, logger)
	router := NewRouter(Handlers{
		Auth:         NewAuthHandler(service.NewAuthService(store, testSecret, time.Hour)),
		Product:      NewProductHandler(service.NewProductService(store, nil)),
		Cart:         NewCartHandler(service.NewCartService(store, nil, 24*time.Hour, logger)),
		Order:        NewOrderHandler(orders),
		Profile:      NewProfileHandler(service.NewProfileService(store, orders, cfg.WelcomeCredit), orders),
		Notification: NewNotificationHandler(service.NewNotificationService(store)),
		Health:       NewHealthHandler(fakePinger{}, nil, nil),
	}, RouterConfig{JWTSecret: testSecret, Logger: logger})

	return &server{store: store, router: router}
}

func (s *server) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (s *server) form(t *testing.T, path, token string, values url.Values) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

// customer registers a user through the API and returns its token.
func (s *server) customer(t *testing.T) string {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email": uuid.NewString()[:8] + "@example.com", "password": "password123",
		"first_name": "Sara", "last_name": "Ahmadi",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return body["token"].(string)
}

func (s *server) member(t *testing.T, role string) string {
	t.Helper()
	u := &model.User{Email: uuid.NewString()[:8] + "@example.com", Password: "x", FirstName: "Reza", Role: role}
	require.NoError(t, s.store.Users().Create(context.Background(), u))
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": u.ID.String(), "role": role, "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (s *server) product(t *testing.T, price int64, stock int) uuid.UUID {
	t.Helper()
	p := &model.Product{
		Name:              "Colombia Supremo",
		Price:             decimal.NewFromInt(price),
		Stock:             stock,
		WeightMultipliers: map[string]decimal.Decimal{"250g": decimal.NewFromInt(1)},
		IsActive:          true,
	}
	require.NoError(t, s.store.Products().Create(context.Background(), p))
	return p.ID
}

func (s *server) address(t *testing.T, token string) string {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/api/addresses", token, map[string]any{
		"title": "خانه", "city": "تهران", "street": "ولیعصر", "postal_code": "1234567890",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return body["id"].(string)
}

func (s *server) checkout(t *testing.T, token, addressID string) string {
	t.Helper()
	w, _ := s.form(t, "/checkout", token, url.Values{"delivery_method": {"post"}, "address_id": {addressID}})
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	location := w.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/api/orders/"))
	return location
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestCart_AddExampleScenario(t *testing.T) {
	s := newServer(t)
	token := s.customer(t)
	productID := s.product(t, 10000, 5)

	w, body := s.do(t, http.MethodPost, "/cart/add", token, map[string]any{"product_id": productID, "quantity": 3, "weight": "250g"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(30000), body["cart_total"])
	assert.Equal(t, float64(3), body["cart_count"])

	w, body = s.do(t, http.MethodPost, "/cart/add", token, map[string]any{"product_id": productID, "quantity": "3", "weight": "250g"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "موجودی کافی نیست", body["message"])
	assert.Equal(t, float64(2), body["available_stock"])

	w, body = s.do(t, http.MethodGet, "/cart/count", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["count"])
}

func TestCart_AddRejects(t *testing.T) {
	s := newServer(t)
	token := s.customer(t)
	productID := s.product(t, 10000, 5)

	tests := []struct {
		name    string
		body    map[string]any
		status  int
		message string
	}{
		{"negative quantity", map[string]any{"product_id": productID, "quantity": -1}, http.StatusBadRequest, "تعداد نامعتبر است"},
		{"unknown grind", map[string]any{"product_id": productID, "grind_type": "cold_brew"}, http.StatusBadRequest, msgInvalidInput},
		{"missing product", map[string]any{"product_id": uuid.New()}, http.StatusNotFound, "محصول یافت نشد"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := s.do(t, http.MethodPost, "/cart/add", token, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.message, body["message"])
		})
	}

	w, _ := s.do(t, http.MethodPost, "/cart/add", "", map[string]any{"product_id": productID})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCart_UpdateAndRemove(t *testing.T) {
	s := newServer(t)
	token := s.customer(t)
	productID := s.product(t, 10000, 5)
	s.do(t, http.MethodPost, "/cart/add", token, map[string]any{"product_id": productID, "quantity": 1})

	w, body := s.do(t, http.MethodGet, "/cart", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	itemID := items[0].(map[string]any)["id"].(string)

	w, body = s.do(t, http.MethodPost, "/cart/update", token, map[string]any{"item_id": itemID, "quantity": 4})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(40000), body["item_total"])
	assert.Equal(t, float64(4), body["cart_count"])

	w, body = s.do(t, http.MethodPost, "/cart/remove", token, map[string]any{"item_id": itemID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "آیتم با موفقیت حذف شد", body["message"])
	assert.Equal(t, float64(0), body["cart_count"])

	w, body = s.do(t, http.MethodPost, "/cart/remove", token, map[string]any{"item_id": itemID})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "آیتم یافت نشد", body["message"])
}

func TestCheckout_CreatesOrderAndRedirects(t *testing.T) {
	s := newServer(t)
	token := s.customer(t)
	addressID := s.address(t, token)
	productID := s.product(t, 200000, 5)
	s.do(t, http.MethodPost, "/cart/add", token, map[string]any{"product_id": productID, "quantity": 1})

	location := s.checkout(t, token, addressID)

	w, body := s.do(t, http.MethodGet, location, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "pending_payment", body["status"])
	assert.Equal(t, float64(200000), body["subtotal"])
	assert.Equal(t, float64(50000), body["delivery_fee"])
	assert.Equal(t, float64(100000), body["credit_applied"])
	assert.Equal(t, float64(150000), body["total"])
	assert.Equal(t, "1234567890", body["postal_code"])
	assert.NotNil(t, body["payment_deadline"])

	w, body = s.do(t, http.MethodGet, "/cart/count", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["count"])

	w, body = s.do(t, http.MethodGet, "/api/orders", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, float64(0), body["expired"])
}

func TestCheckout_Failures(t *testing.T) {
	s := newServer(t)
	token := s.customer(t)
	addressID := s.address(t, token)

	w, body := s.form(t, "/checkout", token, url.Values{"address_id": {addressID}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "سبد خرید شما خالی است", body["message"])

	productID := s.product(t, 10000, 5)
	s.do(t, http.MethodPost, "/cart/add", token, map[string]any{"product_id": productID})

	w, body = s.form(t, "/checkout", token, url.Values{"address_id": {"not-an-id"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "لطفاً یک آدرس معتبر انتخاب کنید", body["message"])

	foreignAddress := s.address(t, s.customer(t))
	w, body = s.form(t, "/checkout", token, url.Values{"address_id": {foreignAddress}})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "لطفاً یک آدرس معتبر انتخاب کنید", body["message"])

	w, body = s.do(t, http.MethodGet, "/cart/count", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	w, _ = s.form(t, "/checkout", token, url.Values{"address_id": {addressID}, "delivery_method": {"drone"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	product, err := s.store.Products().GetByID(context.Background(), productID)
	require.NoError(t, err)
	product.IsActive = false
	require.NoError(t, s.store.Products().Update(context.Background(), product))

	w, body = s.form(t, "/checkout", token, url.Values{"address_id": {addressID}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "موجودی محصول 'Colombia Supremo' کافی نیست", body["message"])
}

func TestOrder_StaffTransitions(t *testing.T) {
	s := newServer(t)
	token := s.customer(t)
	staff := s.member(t, model.RoleStaff)
	addressID := s.address(t, token)
	productID := s.product(t, 10000, 5)
	s.do(t, http.MethodPost, "/cart/add", token, map[string]any{"product_id": productID})
	location := s.checkout(t, token, addressID)

	w, _ := s.do(t, http.MethodPost, location+"/mark-paid", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body := s.do(t, http.MethodPost, location+"/mark-paid", staff, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "preparing", body["status"])
	assert.Equal(t, "وضعیت سفارش به «در حال آماده‌سازی» تغییر یافت", body["message"])

	w, body = s.do(t, http.MethodPost, location+"/mark-transit", staff, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "تغییر وضعیت از «در حال آماده‌سازی» به «در حال ارسال» مجاز نیست", body["error"])

	w, _ = s.do(t, http.MethodPost, location+"/transition", staff, map[string]any{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, http.MethodPost, location+"/transition", staff, map[string]any{"status": "ready"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", body["status"])

	w, body = s.do(t, http.MethodGet, location+"/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"shipping_preparation": "آماده‌سازی برای ارسال"}, body["can_transition_to"])

	w, _ = s.do(t, http.MethodPost, "/api/orders/"+uuid.NewString()+"/mark-paid", staff, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrder_Visibility(t *testing.T) {
	s := newServer(t)
	owner := s.customer(t)
	other := s.customer(t)
	staff := s.member(t, model.RoleStaff)
	addressID := s.address(t, owner)
	productID := s.product(t, 10000, 5)
	s.do(t, http.MethodPost, "/cart/add", owner, map[string]any{"product_id": productID})
	location := s.checkout(t, owner, addressID)

	w, body := s.do(t, http.MethodGet, location, other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "سفارش یافت نشد", body["error"])

	w, _ = s.do(t, http.MethodGet, location, staff, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOrder_ExpiredAnswersGone(t *testing.T) {
	s := newServer(t)
	token := s.customer(t)
	addressID := s.address(t, token)
	productID := s.product(t, 10000, 5)
	s.do(t, http.MethodPost, "/cart/add", token, map[string]any{"product_id": productID, "quantity": 2})

	s.store.Now = func() time.Time { return time.Now().Add(-time.Hour) }
	location := s.checkout(t, token, addressID)

	w, body := s.do(t, http.MethodGet, location, token, nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "مهلت پرداخت سفارش به پایان رسیده و سفارش لغو شد", body["error"])

	product, err := s.store.Products().GetByID(context.Background(), productID)
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)

	w, _ = s.do(t, http.MethodGet, location, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProfileAndNotifications(t *testing.T) {
	s := newServer(t)
	token := s.customer(t)
	other := s.customer(t)
	addressID := s.address(t, token)
	productID := s.product(t, 10000, 5)
	s.do(t, http.MethodPost, "/cart/add", token, map[string]any{"product_id": productID})
	s.checkout(t, token, addressID)

	w, body := s.do(t, http.MethodGet, "/api/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	credit := body["welcome_credit"].(map[string]any)
	assert.Equal(t, true, credit["awarded"])
	assert.Equal(t, float64(0), credit["balance"])
	assert.NotNil(t, credit["consumed_at"])
	assert.Len(t, body["orders"], 1)
	assert.Len(t, body["addresses"], 1)
	assert.Equal(t, float64(1), body["unread_notifications"])

	w, body = s.do(t, http.MethodGet, "/api/notifications", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := body["notifications"].([]any)
	require.Len(t, list, 1)
	id := list[0].(map[string]any)["id"].(string)

	w, _ = s.do(t, http.MethodPost, "/api/notifications/"+id+"/read", other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/notifications/"+id+"/read", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = s.do(t, http.MethodPost, "/api/notifications/read-all", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["updated"])
}

func TestProducts_AdminOnlyWrites(t *testing.T) {
	s := newServer(t)
	admin := s.member(t, model.RoleAdmin)
	customer := s.customer(t)
	payload := map[string]any{
		"name": "Brazil Santos", "price": "150000", "stock": 8,
		"grind_options": []string{"espresso"}, "weight_multipliers": map[string]string{"500g": "1.9"},
	}

	w, _ := s.do(t, http.MethodPost, "/api/products", customer, payload)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body := s.do(t, http.MethodPost, "/api/products", admin, payload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := body["id"].(string)

	payload["grind_options"] = []string{"cold_brew"}
	w, _ = s.do(t, http.MethodPost, "/api/products", admin, payload)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["total"])

	w, _ = s.do(t, http.MethodDelete, "/api/products/"+id, admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = s.do(t, http.MethodGet, "/api/products/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuth_LoginAndDuplicate(t *testing.T) {
	s := newServer(t)
	creds := map[string]any{"email": "ali@example.com", "password": "password123", "first_name": "Ali", "last_name": "Karimi"}

	w, _ := s.do(t, http.MethodPost, "/api/auth/register", "", creds)
	require.Equal(t, http.StatusCreated, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/auth/register", "", creds)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ali@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["token"])

	w, _ = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ali@example.com", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	w, _ := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := s.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "connected", body["postgres"])

	r := gin.New()
	h := NewHealthHandler(fakePinger{}, nil, fakePinger{err: errors.New("down")})
	r.GET("/readyz", h.Readyz)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "broker")
}

func TestClassify_Unexpected(t *testing.T) {
	status, message := classify(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, msgInternal, message)

	status, _ = classify(&service.InsufficientStockError{Available: 1})
	assert.Equal(t, http.StatusOK, status)
}
