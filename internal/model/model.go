package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

const (
	DefaultGrindType = "whole_bean"
	DefaultWeight    = "250g"
)

// KnownGrindTypes and KnownWeights are the variant values the shop sells at all;
// each product narrows them down with its own option lists.
var (
	KnownGrindTypes = []string{"whole_bean", "espresso", "moka_pot", "french_press", "filter", "turkish"}
	KnownWeights    = []string{"250g", "500g", "1kg"}
)

type User struct {
	ID        uuid.UUID
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) IsStaff() bool {
	return u.Role == RoleStaff || u.Role == RoleAdmin
}

type Category struct {
	ID          uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
}

type Product struct {
	ID                uuid.UUID
	CategoryID        *uuid.UUID
	Name              string
	Description       string
	Price             decimal.Decimal
	Stock             int
	GrindOptions      []string
	WeightOptions     []string
	WeightMultipliers map[string]decimal.Decimal
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// UnitPrice is the base price scaled by the multiplier of the given weight.
// A weight without a configured multiplier sells at the base price.
func (p *Product) UnitPrice(weight string) decimal.Decimal {
	m, ok := p.WeightMultipliers[weight]
	if !ok {
		return p.Price
	}
	return p.Price.Mul(m)
}

// OffersVariant reports whether the product sells the (grind, weight) pair.
// Empty option lists do not restrict the variant.
func (p *Product) OffersVariant(grind, weight string) bool {
	if len(p.GrindOptions) > 0 && !slices.Contains(p.GrindOptions, grind) {
		return false
	}
	if len(p.WeightOptions) > 0 && !slices.Contains(p.WeightOptions, weight) {
		return false
	}
	return true
}

func IsKnownGrindType(v string) bool { return slices.Contains(KnownGrindTypes, v) }

func IsKnownWeight(v string) bool { return slices.Contains(KnownWeights, v) }
