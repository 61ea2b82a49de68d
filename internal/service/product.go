package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/flicky/coffeeshop/internal/dto"
	"github.com/flicky/coffeeshop/internal/model"
	"github.com/flicky/coffeeshop/internal/repository"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrInvalidPrice     = errors.New("price must not be negative")
)

const productCacheTTL = 60 * time.Second

// ProductCache keeps product read models in Redis. A nil cache or client disables it.
type ProductCache struct {
	client *redis.Client
}

func NewProductCache(client *redis.Client) *ProductCache {
	return &ProductCache{client: client}
}

func productCacheKey(id uuid.UUID) string { return "product:" + id.String() }

func (c *ProductCache) get(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	cached, err := c.client.Get(ctx, productCacheKey(id)).Result()
	if err != nil {
		return nil, false
	}
	var resp dto.ProductResponse
	if json.Unmarshal([]byte(cached), &resp) != nil {
		return nil, false
	}
	return &resp, true
}

func (c *ProductCache) set(ctx context.Context, resp *dto.ProductResponse) {
	if c == nil || c.client == nil {
		return
	}
	if data, err := json.Marshal(resp); err == nil {
		c.client.Set(ctx, productCacheKey(resp.ID), data, productCacheTTL)
	}
}

// Invalidate drops cached products; called after any stock or catalog change.
func (c *ProductCache) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	if c == nil || c.client == nil || len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productCacheKey(id))
	}
	c.client.Del(ctx, keys...)
}

type ProductService struct {
	store repository.TxStore
	cache *ProductCache
}

func NewProductService(store repository.TxStore, cache *ProductCache) *ProductService {
	return &ProductService{store: store, cache: cache}
}

func (s *ProductService) Create(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error) {
	product := &model.Product{
		CategoryID:        req.CategoryID,
		Name:              req.Name,
		Description:       req.Description,
		Price:             req.Price,
		Stock:             req.Stock,
		GrindOptions:      req.GrindOptions,
		WeightOptions:     req.WeightOptions,
		WeightMultipliers: req.WeightMultipliers,
		IsActive:          true,
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}
	if err := validateProduct(ctx, s.store, product); err != nil {
		return nil, err
	}
	if err := s.store.Products().Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	resp := toProductResponse(product)
	return &resp, nil
}

func (s *ProductService) GetByID(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error) {
	if resp, ok := s.cache.get(ctx, id); ok {
		return resp, nil
	}

	product, err := s.store.Products().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	resp := toProductResponse(product)
	s.cache.set(ctx, &resp)
	return &resp, nil
}

// List returns active products only.
func (s *ProductService) List(ctx context.Context, req dto.ListProductsRequest) (*dto.ProductListResponse, error) {
	params := repository.ProductListParams{
		Limit:      req.Limit,
		Offset:     (req.Page - 1) * req.Limit,
		Search:     req.Search,
		Sort:       req.Sort,
		Order:      req.Order,
		ActiveOnly: true,
	}
	if req.CategoryID != "" {
		id, err := uuid.Parse(req.CategoryID)
		if err != nil {
			return nil, ErrCategoryNotFound
		}
		params.CategoryID = &id
	}

	products, total, err := s.store.Products().List(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	items := make([]dto.ProductResponse, 0, len(products))
	for i := range products {
		items = append(items, toProductResponse(&products[i]))
	}
	return &dto.ProductListResponse{Products: items, Total: total, Page: req.Page, Limit: req.Limit}, nil
}

// Update edits a product under its row lock. Stock is only touched when the
// request sets it, and then as a delta against the locked row so quantities
// reserved by carts in the meantime are kept.
func (s *ProductService) Update(ctx context.Context, id uuid.UUID, req dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	var product *model.Product
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		product, err = tx.Products().GetForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("lock product: %w", err)
		}
		if product == nil {
			return ErrProductNotFound
		}

		if req.CategoryID != nil {
			product.CategoryID = req.CategoryID
		}
		if req.Name != nil {
			product.Name = *req.Name
		}
		if req.Description != nil {
			product.Description = *req.Description
		}
		if req.Price != nil {
			product.Price = *req.Price
		}
		if req.GrindOptions != nil {
			product.GrindOptions = req.GrindOptions
		}
		if req.WeightOptions != nil {
			product.WeightOptions = req.WeightOptions
		}
		if req.WeightMultipliers != nil {
			product.WeightMultipliers = req.WeightMultipliers
		}
		if req.IsActive != nil {
			product.IsActive = *req.IsActive
		}
		if err := validateProduct(ctx, tx, product); err != nil {
			return err
		}

		if err := tx.Products().Update(ctx, product); err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		if req.Stock != nil && *req.Stock != product.Stock {
			if *req.Stock < 0 {
				return ErrInvalidQuantity
			}
			if err := tx.Products().AdjustStock(ctx, id, *req.Stock-product.Stock); err != nil {
				return fmt.Errorf("set stock: %w", err)
			}
			product.Stock = *req.Stock
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, id)
	resp := toProductResponse(product)
	return &resp, nil
}

func (s *ProductService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Products().Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProductNotFound
		}
		return fmt.Errorf("delete product: %w", err)
	}
	s.cache.Invalidate(ctx, id)
	return nil
}

func validateProduct(ctx context.Context, store repository.Store, p *model.Product) error {
	if p.Price.IsNegative() {
		return ErrInvalidPrice
	}
	for _, g := range p.GrindOptions {
		if !model.IsKnownGrindType(g) {
			return ErrInvalidVariant
		}
	}
	for _, w := range p.WeightOptions {
		if !model.IsKnownWeight(w) {
			return ErrInvalidVariant
		}
	}
	for w, m := range p.WeightMultipliers {
		if !model.IsKnownWeight(w) || !m.GreaterThan(decimal.Zero) {
			return ErrInvalidVariant
		}
	}
	if p.CategoryID != nil {
		c, err := store.Categories().GetByID(ctx, *p.CategoryID)
		if err != nil {
			return fmt.Errorf("get category: %w", err)
		}
		if c == nil {
			return ErrCategoryNotFound
		}
	}
	return nil
}

func (s *ProductService) CreateCategory(ctx context.Context, req dto.CreateCategoryRequest) (*dto.CategoryResponse, error) {
	c := &model.Category{Name: req.Name, Description: req.Description}
	if err := s.store.Categories().Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	resp := toCategoryResponse(c)
	return &resp, nil
}

func (s *ProductService) ListCategories(ctx context.Context) ([]dto.CategoryResponse, error) {
	categories, err := s.store.Categories().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]dto.CategoryResponse, 0, len(categories))
	for i := range categories {
		out = append(out, toCategoryResponse(&categories[i]))
	}
	return out, nil
}

func toProductResponse(p *model.Product) dto.ProductResponse {
	return dto.ProductResponse{
		ID:                p.ID,
		CategoryID:        p.CategoryID,
		Name:              p.Name,
		Description:       p.Description,
		Price:             p.Price,
		Stock:             p.Stock,
		GrindOptions:      p.GrindOptions,
		WeightOptions:     p.WeightOptions,
		WeightMultipliers: p.WeightMultipliers,
		IsActive:          p.IsActive,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func toCategoryResponse(c *model.Category) dto.CategoryResponse {
	return dto.CategoryResponse{ID: c.ID, Name: c.Name, Description: c.Description, CreatedAt: c.CreatedAt}
}
