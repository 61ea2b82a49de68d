// Package repotest provides an in-memory repository.TxStore for service tests.
//
// Every call is serialized behind one mutex and WithinTx holds it for the
// whole callback, restoring a snapshot when the callback fails. That gives the
// same all-or-nothing and no-lost-update behaviour the PostgreSQL store gets
// from transactions and row locks.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/flicky/coffeeshop/internal/model"
	"github.com/flicky/coffeeshop/internal/repository"
)

// ErrUniqueViolation mirrors the database unique constraints.
var ErrUniqueViolation = errors.New("duplicate key value violates unique constraint")

type data struct {
	users         map[uuid.UUID]model.User
	profiles      map[uuid.UUID]model.UserProfile
	addresses     map[uuid.UUID]model.UserAddress
	categories    map[uuid.UUID]model.Category
	products      map[uuid.UUID]model.Product
	carts         map[uuid.UUID]model.Cart
	cartItems     map[uuid.UUID]model.CartItem
	orders        map[uuid.UUID]model.Order
	notifications map[uuid.UUID]model.Notification
}

func newData() *data {
	return &data{
		users:         map[uuid.UUID]model.User{},
		profiles:      map[uuid.UUID]model.UserProfile{},
		addresses:     map[uuid.UUID]model.UserAddress{},
		categories:    map[uuid.UUID]model.Category{},
		products:      map[uuid.UUID]model.Product{},
		carts:         map[uuid.UUID]model.Cart{},
		cartItems:     map[uuid.UUID]model.CartItem{},
		orders:        map[uuid.UUID]model.Order{},
		notifications: map[uuid.UUID]model.Notification{},
	}
}

func (d *data) clone() *data {
	c := &data{
		users:         maps.Clone(d.users),
		profiles:      maps.Clone(d.profiles),
		addresses:     maps.Clone(d.addresses),
		categories:    maps.Clone(d.categories),
		products:      make(map[uuid.UUID]model.Product, len(d.products)),
		carts:         maps.Clone(d.carts),
		cartItems:     maps.Clone(d.cartItems),
		orders:        make(map[uuid.UUID]model.Order, len(d.orders)),
		notifications: maps.Clone(d.notifications),
	}
	for id, p := range d.products {
		c.products[id] = cloneProduct(p)
	}
	for id, o := range d.orders {
		c.orders[id] = cloneOrder(o)
	}
	return c
}

func cloneProduct(p model.Product) model.Product {
	p.GrindOptions = slices.Clone(p.GrindOptions)
	p.WeightOptions = slices.Clone(p.WeightOptions)
	p.WeightMultipliers = maps.Clone(p.WeightMultipliers)
	return p
}

func cloneOrder(o model.Order) model.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

// Store is an in-memory repository.TxStore.
type Store struct {
	// Now stamps created_at/updated_at columns. Tests may replace it before use.
	Now func() time.Time

	mu    sync.Mutex
	d     *data
	fails map[string]error
}

var _ repository.TxStore = (*Store)(nil)

func New() *Store {
	return &Store{Now: time.Now, d: newData(), fails: map[string]error{}}
}

// FailNext makes the next call of op (for example "Orders.Create") return err.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[op] = err
}

func (s *Store) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	snapshot := s.d.clone()
	committed := false
	defer func() {
		if !committed {
			s.d = snapshot
		}
	}()

	if err := fn(&view{s: s, inTx: true}); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) root() *view { return &view{s: s} }

func (s *Store) Users() repository.UserRepository                 { return s.root().Users() }
func (s *Store) Profiles() repository.ProfileRepository           { return s.root().Profiles() }
func (s *Store) Addresses() repository.AddressRepository          { return s.root().Addresses() }
func (s *Store) Categories() repository.CategoryRepository        { return s.root().Categories() }
func (s *Store) Products() repository.ProductRepository           { return s.root().Products() }
func (s *Store) Carts() repository.CartRepository                 { return s.root().Carts() }
func (s *Store) Orders() repository.OrderRepository               { return s.root().Orders() }
func (s *Store) Notifications() repository.NotificationRepository { return s.root().Notifications() }

// view is a Store bound either to the root (each call locks) or to an open
// transaction (the lock is already held by WithinTx).
type view struct {
	s    *Store
	inTx bool
}

func (v *view) Users() repository.UserRepository                 { return users{v} }
func (v *view) Profiles() repository.ProfileRepository           { return profiles{v} }
func (v *view) Addresses() repository.AddressRepository          { return addresses{v} }
func (v *view) Categories() repository.CategoryRepository        { return categories{v} }
func (v *view) Products() repository.ProductRepository           { return products{v} }
func (v *view) Carts() repository.CartRepository                 { return carts{v} }
func (v *view) Orders() repository.OrderRepository               { return orders{v} }
func (v *view) Notifications() repository.NotificationRepository { return notifications{v} }

// enter locks the store for a single call outside a transaction, checks the
// context and consumes an injected failure for op.
func (v *view) enter(ctx context.Context, op string) (*data, func(), error) {
	unlock := func() {}
	if !v.inTx {
		v.s.mu.Lock()
		unlock = v.s.mu.Unlock
	}
	if err := ctx.Err(); err != nil {
		unlock()
		return nil, nil, err
	}
	if err, ok := v.s.fails[op]; ok {
		delete(v.s.fails, op)
		unlock()
		return nil, nil, err
	}
	return v.s.d, unlock, nil
}

func (v *view) now() time.Time { return v.s.Now() }

type users struct{ v *view }

func (r users) Create(ctx context.Context, user *model.User) error {
	d, unlock, err := r.v.enter(ctx, "Users.Create")
	if err != nil {
		return err
	}
	defer unlock()
	for _, u := range d.users {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("create user: %w", ErrUniqueViolation)
		}
	}
	user.ID = uuid.New()
	user.CreatedAt, user.UpdatedAt = r.v.now(), r.v.now()
	d.users[user.ID] = *user
	return nil
}

func (r users) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	d, unlock, err := r.v.enter(ctx, "Users.GetByID")
	if err != nil {
		return nil, err
	}
	defer unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r users) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	d, unlock, err := r.v.enter(ctx, "Users.GetByEmail")
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, u := range d.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r users) ListStaff(ctx context.Context) ([]model.User, error) {
	d, unlock, err := r.v.enter(ctx, "Users.ListStaff")
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []model.User
	for _, u := range d.users {
		if u.IsStaff() {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

type profiles struct{ v *view }

func (r profiles) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.UserProfile, error) {
	d, unlock, err := r.v.enter(ctx, "Profiles.GetByUserID")
	if err != nil {
		return nil, err
	}
	defer unlock()
	p, ok := d.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r profiles) LockOrCreate(ctx context.Context, userID uuid.UUID) (*model.UserProfile, error) {
	d, unlock, err := r.v.enter(ctx, "Profiles.LockOrCreate")
	if err != nil {
		return nil, err
	}
	defer unlock()
	p, ok := d.profiles[userID]
	if !ok {
		p = model.UserProfile{UserID: userID, CreditBalance: decimal.Zero, CreatedAt: r.v.now(), UpdatedAt: r.v.now()}
		d.profiles[userID] = p
	}
	return &p, nil
}

func (r profiles) Update(ctx context.Context, profile *model.UserProfile) error {
	d, unlock, err := r.v.enter(ctx, "Profiles.Update")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := d.profiles[profile.UserID]; !ok {
		return fmt.Errorf("update profile: %w", pgx.ErrNoRows)
	}
	if profile.CreditBalance.IsNegative() {
		return errors.New("update profile: credit_balance check constraint")
	}
	profile.UpdatedAt = r.v.now()
	d.profiles[profile.UserID] = *profile
	return nil
}

type addresses struct{ v *view }

func (r addresses) Create(ctx context.Context, address *model.UserAddress) error {
	d, unlock, err := r.v.enter(ctx, "Addresses.Create")
	if err != nil {
		return err
	}
	defer unlock()
	address.ID = uuid.New()
	address.CreatedAt = r.v.now()
	d.addresses[address.ID] = *address
	return nil
}

func (r addresses) GetByID(ctx context.Context, userID, id uuid.UUID) (*model.UserAddress, error) {
	d, unlock, err := r.v.enter(ctx, "Addresses.GetByID")
	if err != nil {
		return nil, err
	}
	defer unlock()
	a, ok := d.addresses[id]
	if !ok || a.UserID != userID {
		return nil, nil
	}
	return &a, nil
}

func (r addresses) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.UserAddress, error) {
	d, unlock, err := r.v.enter(ctx, "Addresses.ListByUserID")
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []model.UserAddress
	for _, a := range d.addresses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r addresses) CountByUserID(ctx context.Context, userID uuid.UUID) (int, error) {
	list, err := r.ListByUserID(ctx, userID)
	return len(list), err
}

type categories struct{ v *view }

func (r categories) Create(ctx context.Context, category *model.Category) error {
	d, unlock, err := r.v.enter(ctx, "Categories.Create")
	if err != nil {
		return err
	}
	defer unlock()
	for _, c := range d.categories {
		if c.Name == category.Name {
			return fmt.Errorf("create category: %w", ErrUniqueViolation)
		}
	}
	category.ID = uuid.New()
	category.CreatedAt = r.v.now()
	d.categories[category.ID] = *category
	return nil
}

func (r categories) GetByID(ctx context.Context, id uuid.UUID) (*model.Category, error) {
	d, unlock, err := r.v.enter(ctx, "Categories.GetByID")
	if err != nil {
		return nil, err
	}
	defer unlock()
	c, ok := d.categories[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r categories) List(ctx context.Context) ([]model.Category, error) {
	d, unlock, err := r.v.enter(ctx, "Categories.List")
	if err != nil {
		return nil, err
	}
	defer unlock()
	out := slices.Collect(maps.Values(d.categories))
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type products struct{ v *view }

func (r products) Create(ctx context.Context, product *model.Product) error {
	d, unlock, err := r.v.enter(ctx, "Products.Create")
	if err != nil {
		return err
	}
	defer unlock()
	if product.Stock < 0 {
		return errors.New("create product: stock check constraint")
	}
	product.ID = uuid.New()
	product.CreatedAt, product.UpdatedAt = r.v.now(), r.v.now()
	d.products[product.ID] = cloneProduct(*product)
	return nil
}

func (r products) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	return r.get(ctx, "Products.GetByID", id)
}

func (r products) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	return r.get(ctx, "Products.GetForUpdate", id)
}

func (r products) get(ctx context.Context, op string, id uuid.UUID) (*model.Product, error) {
	d, unlock, err := r.v.enter(ctx, op)
	if err != nil {
		return nil, err
	}
	defer unlock()
	p, ok := d.products[id]
	if !ok {
		return nil, nil
	}
	p = cloneProduct(p)
	return &p, nil
}

func (r products) LockMany(ctx context.Context, ids []uuid.UUID) ([]model.Product, error) {
	d, unlock, err := r.v.enter(ctx, "Products.LockMany")
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []model.Product
	for _, id := range ids {
		if p, ok := d.products[id]; ok && !slices.ContainsFunc(out, func(x model.Product) bool { return x.ID == id }) {
			out = append(out, cloneProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r products) List(ctx context.Context, params repository.ProductListParams) ([]model.Product, int, error) {
	d, unlock, err := r.v.enter(ctx, "Products.List")
	if err != nil {
		return nil, 0, err
	}
	defer unlock()

	search := strings.ToLower(params.Search)
	var matched []model.Product
	for _, p := range d.products {
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		if params.CategoryID != nil && (p.CategoryID == nil || *p.CategoryID != *params.CategoryID) {
			continue
		}
		if params.ActiveOnly && !p.IsActive {
			continue
		}
		matched = append(matched, cloneProduct(p))
	}

	less := func(a, b model.Product) bool {
		switch params.Sort {
		case "name":
			return a.Name < b.Name
		case "price":
			return a.Price.LessThan(b.Price)
		case "stock":
			return a.Stock < b.Stock
		}
		return a.CreatedAt.Before(b.CreatedAt)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if params.Order == "asc" {
			return less(matched[i], matched[j])
		}
		return less(matched[j], matched[i])
	})

	total := len(matched)
	start := min(params.Offset, total)
	end := total
	if params.Limit > 0 {
		end = min(start+params.Limit, total)
	}
	return matched[start:end], total, nil
}

func (r products) Update(ctx context.Context, product *model.Product) error {
	d, unlock, err := r.v.enter(ctx, "Products.Update")
	if err != nil {
		return err
	}
	defer unlock()
	current, ok := d.products[product.ID]
	if !ok {
		return nil
	}
	product.Stock = current.Stock
	product.UpdatedAt = r.v.now()
	d.products[product.ID] = cloneProduct(*product)
	return nil
}

func (r products) Delete(ctx context.Context, id uuid.UUID) error {
	d, unlock, err := r.v.enter(ctx, "Products.Delete")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := d.products[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(d.products, id)
	for itemID, item := range d.cartItems {
		if item.ProductID == id {
			delete(d.cartItems, itemID)
		}
	}
	return nil
}

func (r products) AdjustStock(ctx context.Context, id uuid.UUID, delta int) error {
	d, unlock, err := r.v.enter(ctx, "Products.AdjustStock")
	if err != nil {
		return err
	}
	defer unlock()
	p, ok := d.products[id]
	if !ok || p.Stock+delta < 0 {
		return fmt.Errorf("adjust stock of product %s by %d: %w", id, delta, repository.ErrStockUnderflow)
	}
	p.Stock += delta
	p.UpdatedAt = r.v.now()
	d.products[id] = p
	return nil
}

type carts struct{ v *view }

func (r carts) LockOrCreate(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	d, unlock, err := r.v.enter(ctx, "Carts.LockOrCreate")
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, c := range d.carts {
		if c.UserID == userID {
			return &c, nil
		}
	}
	c := model.Cart{ID: uuid.New(), UserID: userID, CreatedAt: r.v.now(), UpdatedAt: r.v.now()}
	d.carts[c.ID] = c
	return &c, nil
}

func (r carts) LockByID(ctx context.Context, cartID uuid.UUID) (*model.Cart, error) {
	d, unlock, err := r.v.enter(ctx, "Carts.LockByID")
	if err != nil {
		return nil, err
	}
	defer unlock()
	c, ok := d.carts[cartID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r carts) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	d, unlock, err := r.v.enter(ctx, "Carts.GetByUserID")
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, c := range d.carts {
		if c.UserID == userID {
			return &c, nil
		}
	}
	return nil, nil
}

func (r carts) ListItems(ctx context.Context, cartID uuid.UUID) ([]model.CartItem, error) {
	d, unlock, err := r.v.enter(ctx, "Carts.ListItems")
	if err != nil {
		return nil, err
	}
	defer unlock()
	items := itemsOf(d, cartID)
	for i := range items {
		if p, ok := d.products[items[i].ProductID]; ok {
			p = cloneProduct(p)
			items[i].Product = &p
		}
	}
	return items, nil
}

func (r carts) LockItems(ctx context.Context, cartID uuid.UUID) ([]model.CartItem, error) {
	d, unlock, err := r.v.enter(ctx, "Carts.LockItems")
	if err != nil {
		return nil, err
	}
	defer unlock()
	return itemsOf(d, cartID), nil
}

func itemsOf(d *data, cartID uuid.UUID) []model.CartItem {
	var items []model.CartItem
	for _, item := range d.cartItems {
		if item.CartID == cartID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
	return items
}

func (r carts) GetItemForUpdate(ctx context.Context, cartID, itemID uuid.UUID) (*model.CartItem, error) {
	d, unlock, err := r.v.enter(ctx, "Carts.GetItemForUpdate")
	if err != nil {
		return nil, err
	}
	defer unlock()
	item, ok := d.cartItems[itemID]
	if !ok || item.CartID != cartID {
		return nil, nil
	}
	return &item, nil
}

func (r carts) FindItemForUpdate(ctx context.Context, cartID, productID uuid.UUID, grindType, weight string) (*model.CartItem, error) {
	d, unlock, err := r.v.enter(ctx, "Carts.FindItemForUpdate")
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, item := range d.cartItems {
		if item.CartID == cartID && item.ProductID == productID && item.GrindType == grindType && item.Weight == weight {
			return &item, nil
		}
	}
	return nil, nil
}

func (r carts) CreateItem(ctx context.Context, item *model.CartItem) error {
	d, unlock, err := r.v.enter(ctx, "Carts.CreateItem")
	if err != nil {
		return err
	}
	defer unlock()
	if item.Quantity <= 0 {
		return errors.New("add cart item: quantity check constraint")
	}
	if _, ok := d.products[item.ProductID]; !ok {
		return errors.New("add cart item: product foreign key")
	}
	for _, existing := range d.cartItems {
		if existing.CartID == item.CartID && existing.ProductID == item.ProductID &&
			existing.GrindType == item.GrindType && existing.Weight == item.Weight {
			return fmt.Errorf("add cart item: %w", ErrUniqueViolation)
		}
	}
	item.ID = uuid.New()
	item.CreatedAt, item.UpdatedAt = r.v.now(), r.v.now()
	stored := *item
	stored.Product = nil
	d.cartItems[item.ID] = stored
	return nil
}

func (r carts) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	d, unlock, err := r.v.enter(ctx, "Carts.UpdateItemQuantity")
	if err != nil {
		return err
	}
	defer unlock()
	item, ok := d.cartItems[itemID]
	if !ok {
		return pgx.ErrNoRows
	}
	if quantity <= 0 {
		return errors.New("update cart item: quantity check constraint")
	}
	item.Quantity = quantity
	item.UpdatedAt = r.v.now()
	d.cartItems[itemID] = item
	return nil
}

func (r carts) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	d, unlock, err := r.v.enter(ctx, "Carts.DeleteItem")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := d.cartItems[itemID]; !ok {
		return pgx.ErrNoRows
	}
	delete(d.cartItems, itemID)
	return nil
}

func (r carts) Clear(ctx context.Context, cartID uuid.UUID) error {
	d, unlock, err := r.v.enter(ctx, "Carts.Clear")
	if err != nil {
		return err
	}
	defer unlock()
	for id, item := range d.cartItems {
		if item.CartID == cartID {
			delete(d.cartItems, id)
		}
	}
	return nil
}

func (r carts) ListStaleItems(ctx context.Context, before time.Time, limit int) ([]model.CartItem, error) {
	d, unlock, err := r.v.enter(ctx, "Carts.ListStaleItems")
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []model.CartItem
	for _, item := range d.cartItems {
		if item.UpdatedAt.Before(before) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type orders struct{ v *view }

func (r orders) Create(ctx context.Context, order *model.Order) error {
	d, unlock, err := r.v.enter(ctx, "Orders.Create")
	if err != nil {
		return err
	}
	defer unlock()
	if order.TotalAmount.IsNegative() {
		return errors.New("insert order: total_amount check constraint")
	}
	order.ID = uuid.New()
	order.CreatedAt, order.UpdatedAt = r.v.now(), r.v.now()
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
	}
	d.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (r orders) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.get(ctx, "Orders.GetByID", id)
}

func (r orders) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.get(ctx, "Orders.GetForUpdate", id)
}

func (r orders) get(ctx context.Context, op string, id uuid.UUID) (*model.Order, error) {
	d, unlock, err := r.v.enter(ctx, op)
	if err != nil {
		return nil, err
	}
	defer unlock()
	o, ok := d.orders[id]
	if !ok {
		return nil, nil
	}
	o = cloneOrder(o)
	return &o, nil
}

func (r orders) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	d, unlock, err := r.v.enter(ctx, "Orders.ListByUserID")
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []model.Order
	for _, o := range d.orders {
		if o.UserID == userID {
			o.Items = nil
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r orders) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error {
	d, unlock, err := r.v.enter(ctx, "Orders.UpdateStatus")
	if err != nil {
		return err
	}
	defer unlock()
	o, ok := d.orders[id]
	if !ok {
		return pgx.ErrNoRows
	}
	o.Status = status
	o.UpdatedAt = r.v.now()
	d.orders[id] = o
	return nil
}

func (r orders) Delete(ctx context.Context, id uuid.UUID) error {
	d, unlock, err := r.v.enter(ctx, "Orders.Delete")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := d.orders[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(d.orders, id)
	return nil
}

func (r orders) ListOverdue(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	d, unlock, err := r.v.enter(ctx, "Orders.ListOverdue")
	if err != nil {
		return nil, err
	}
	defer unlock()
	var due []model.Order
	for _, o := range d.orders {
		if o.Status == model.OrderStatusPendingPayment && o.CreatedAt.Before(before) {
			due = append(due, o)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	ids := make([]uuid.UUID, 0, len(due))
	for _, o := range due {
		ids = append(ids, o.ID)
	}
	return ids, nil
}

type notifications struct{ v *view }

func (r notifications) Create(ctx context.Context, n *model.Notification) error {
	d, unlock, err := r.v.enter(ctx, "Notifications.Create")
	if err != nil {
		return err
	}
	defer unlock()
	n.ID = uuid.New()
	n.IsRead = false
	n.CreatedAt = r.v.now()
	d.notifications[n.ID] = *n
	return nil
}

func (r notifications) ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error) {
	d, unlock, err := r.v.enter(ctx, "Notifications.ListByUserID")
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []model.Notification
	for _, n := range d.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r notifications) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	d, unlock, err := r.v.enter(ctx, "Notifications.CountUnread")
	if err != nil {
		return 0, err
	}
	defer unlock()
	n := 0
	for _, x := range d.notifications {
		if x.UserID == userID && !x.IsRead {
			n++
		}
	}
	return n, nil
}

func (r notifications) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	d, unlock, err := r.v.enter(ctx, "Notifications.MarkRead")
	if err != nil {
		return err
	}
	defer unlock()
	n, ok := d.notifications[id]
	if !ok || n.UserID != userID {
		return pgx.ErrNoRows
	}
	n.IsRead = true
	d.notifications[id] = n
	return nil
}

func (r notifications) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	d, unlock, err := r.v.enter(ctx, "Notifications.MarkAllRead")
	if err != nil {
		return 0, err
	}
	defer unlock()
	var changed int64
	for id, n := range d.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			d.notifications[id] = n
			changed++
		}
	}
	return changed, nil
}
