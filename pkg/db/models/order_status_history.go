package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// OrderStatusHistory is an append-only audit of persisted transitions.
type OrderStatusHistory struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	FromStatus enums.OrderStatus `gorm:"column:from_status;type:text;not null"`
	ToStatus   enums.OrderStatus `gorm:"column:to_status;type:text;not null"`
	Note       *string           `gorm:"column:note"`
	ActorID    *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	ActorRole  enums.ActorRole   `gorm:"column:actor_role;type:text;not null"`
	CreatedAt  time.Time         `gorm:"column:created_at;not null"`
}

func (OrderStatusHistory) TableName() string { return "order_status_history" }
