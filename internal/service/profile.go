package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/coffeeshop/internal/dto"
	"github.com/flicky/coffeeshop/internal/model"
	"github.com/flicky/coffeeshop/internal/repository"
)

var ErrUserNotFound = errors.New("user not found")

// Profile is everything the profile page shows.
type Profile struct {
	User          *model.User
	Profile       *model.UserProfile
	Addresses     []model.UserAddress
	Orders        []model.Order
	ExpiredOrders int
	Unread        int
}

type ProfileService struct {
	store         repository.TxStore
	orders        *OrderService
	welcomeCredit decimal.Decimal
}

func NewProfileService(store repository.TxStore, orders *OrderService, welcomeCredit decimal.Decimal) *ProfileService {
	return &ProfileService{store: store, orders: orders, welcomeCredit: welcomeCredit}
}

// AddAddress stores an address. The first address completes the profile and
// awards the welcome credit.
func (s *ProfileService) AddAddress(ctx context.Context, userID uuid.UUID, req dto.CreateAddressRequest) (*model.UserAddress, error) {
	address := &model.UserAddress{
		UserID:     userID,
		Title:      req.Title,
		Province:   req.Province,
		City:       req.City,
		Street:     req.Street,
		PostalCode: req.PostalCode,
		Phone:      req.Phone,
	}
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		profile, err := tx.Profiles().LockOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.Addresses().Create(ctx, address); err != nil {
			return err
		}
		if profile.PhoneNumber == "" && address.Phone != "" {
			profile.PhoneNumber = address.Phone
		}
		if _, err := ensureWelcomeCredit(ctx, tx, profile, s.welcomeCredit); err != nil {
			return err
		}
		return tx.Profiles().Update(ctx, profile)
	})
	if err != nil {
		return nil, fmt.Errorf("add address: %w", err)
	}
	return address, nil
}

func (s *ProfileService) ListAddresses(ctx context.Context, userID uuid.UUID) ([]model.UserAddress, error) {
	addresses, err := s.store.Addresses().ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	return addresses, nil
}

// Get assembles the profile page. Listing the orders expires overdue unpaid ones.
func (s *ProfileService) Get(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	out := &Profile{User: user}
	out.Orders, out.ExpiredOrders, err = s.orders.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out.Profile, err = s.store.Profiles().GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if out.Profile == nil {
		out.Profile = &model.UserProfile{UserID: userID}
	}
	if out.Addresses, err = s.ListAddresses(ctx, userID); err != nil {
		return nil, err
	}
	if out.Unread, err = s.store.Notifications().CountUnread(ctx, userID); err != nil {
		return nil, fmt.Errorf("count unread notifications: %w", err)
	}
	return out, nil
}

// ensureWelcomeCredit awards the one-time credit once the profile is complete,
// meaning the user has at least one address. The profile row must be locked;
// the caller persists it. It reports whether the credit was awarded now.
func ensureWelcomeCredit(ctx context.Context, tx repository.Store, profile *model.UserProfile, amount decimal.Decimal) (bool, error) {
	if profile.CreditAwarded || !amount.IsPositive() {
		return false, nil
	}
	n, err := tx.Addresses().CountByUserID(ctx, profile.UserID)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	return profile.AwardCredit(amount), nil
}
