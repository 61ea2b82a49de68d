package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationOrderNew     NotificationType = "order_new"
	NotificationOrderStatus  NotificationType = "order_status"
	NotificationOrderExpired NotificationType = "order_expired"
)

type Notification struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Type      NotificationType
	Title     string
	Message   string
	OrderID   *uuid.UUID
	IsRead    bool
	CreatedAt time.Time
}
