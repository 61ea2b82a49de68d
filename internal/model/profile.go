package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserProfile holds the one-time welcome credit. Awarded gates the grant,
// CreditConsumedAt gates the spend; neither is ever reset.
type UserProfile struct {
	UserID           uuid.UUID
	PhoneNumber      string
	CreditAwarded    bool
	CreditBalance    decimal.Decimal
	CreditConsumedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AwardCredit grants amount once. It reports whether anything changed.
func (p *UserProfile) AwardCredit(amount decimal.Decimal) bool {
	if p.CreditAwarded {
		return false
	}
	p.CreditAwarded = true
	p.CreditBalance = amount
	return true
}

// AvailableCredit is what the next order may still deduct.
func (p *UserProfile) AvailableCredit() decimal.Decimal {
	if !p.CreditAwarded || p.CreditConsumedAt != nil || !p.CreditBalance.IsPositive() {
		return decimal.Zero
	}
	return p.CreditBalance
}

// ConsumeCredit deducts up to limit and closes the credit for good.
func (p *UserProfile) ConsumeCredit(limit decimal.Decimal, now time.Time) decimal.Decimal {
	applied := decimal.Min(p.AvailableCredit(), limit)
	if !applied.IsPositive() {
		return decimal.Zero
	}
	p.CreditBalance = decimal.Zero
	p.CreditConsumedAt = &now
	return applied
}

type UserAddress struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Title      string
	Province   string
	City       string
	Street     string
	PostalCode string
	Phone      string
	CreatedAt  time.Time
}

// Format renders the address the way it is printed on an order.
func (a *UserAddress) Format() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{a.Province, a.City, a.Street} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "، ")
}
