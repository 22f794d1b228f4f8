package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

// Review is a buyer's rating of one line item. One per (line item, buyer).
type Review struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID        `gorm:"column:order_id;type:uuid;not null;index"`
	LineItemID uuid.UUID        `gorm:"column:line_item_id;type:uuid;not null;uniqueIndex:ux_reviews_line_item_buyer,priority:1"`
	ProductID  uuid.UUID        `gorm:"column:product_id;type:uuid;not null"`
	BuyerID    uuid.UUID        `gorm:"column:buyer_id;type:uuid;not null;uniqueIndex:ux_reviews_line_item_buyer,priority:2"`
	Rating     int              `gorm:"column:rating;not null"`
	Comment    string           `gorm:"column:comment;not null;default:''"`
	Images     types.StringList `gorm:"column:images;type:jsonb"`
	CreatedAt  time.Time        `gorm:"column:created_at;not null"`
}
