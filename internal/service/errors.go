package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/flicky/coffeeshop/internal/model"
)

var ErrInvalidTransition = errors.New("invalid order status transition")

// InsufficientStockError is a recoverable business outcome: the caller is told
// how much stock is left so it can correct the request.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (%s): %d available", e.ProductID, e.ProductName, e.Available)
}

type TransitionError struct {
	From model.OrderStatus
	To   model.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %q to %q", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
