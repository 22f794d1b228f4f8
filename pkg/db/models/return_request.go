package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

// ReturnRequest is attached to an order exactly when it becomes returned.
type ReturnRequest struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID            `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_return_requests_order"`
	BuyerID       uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null"`
	Reason        enums.ReturnReason   `gorm:"column:reason;type:text;not null"`
	Solution      enums.ReturnSolution `gorm:"column:solution;type:text;not null"`
	Comments      string               `gorm:"column:comments;not null;default:''"`
	EvidenceFiles types.StringList     `gorm:"column:evidence_files;type:jsonb"`
	RefundAmount  decimal.Decimal      `gorm:"column:refund_amount;type:numeric(14,2);not null"`
	CreatedAt     time.Time            `gorm:"column:created_at;not null"`
}
