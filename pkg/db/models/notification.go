package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// Notification stores durable in-app notifications for either order party.
type Notification struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	Party       enums.Party            `gorm:"column:party;type:text;not null;index:ix_notifications_recipient,priority:1"`
	RecipientID uuid.UUID              `gorm:"column:recipient_id;type:uuid;not null;index:ix_notifications_recipient,priority:2"`
	OrderID     *uuid.UUID             `gorm:"column:order_id;type:uuid"`
	OrderNumber string                 `gorm:"column:order_number;not null;default:''"`
	Type        enums.NotificationType `gorm:"column:type;type:text;not null"`
	Title       string                 `gorm:"column:title;not null"`
	Message     string                 `gorm:"column:message;not null"`
	ReadAt      *time.Time             `gorm:"column:read_at"`
	CreatedAt   time.Time              `gorm:"column:created_at;not null;index:ix_notifications_recipient,priority:3"`
}
