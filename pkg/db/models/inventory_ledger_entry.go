package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// InventoryLedgerEntry records one immutable stock delta. The unique index
// keeps at most one entry per (product, order, reason).
type InventoryLedgerEntry struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ProductID   uuid.UUID          `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_inventory_ledger_ref,priority:1"`
	Delta       int                `gorm:"column:delta;not null"`
	Reason      enums.LedgerReason `gorm:"column:reason;type:text;not null;uniqueIndex:ux_inventory_ledger_ref,priority:3"`
	ReferenceID *uuid.UUID         `gorm:"column:reference_id;type:uuid;uniqueIndex:ux_inventory_ledger_ref,priority:2"`
	StockBefore int                `gorm:"column:stock_before;not null"`
	StockAfter  int                `gorm:"column:stock_after;not null"`
	Note        *string            `gorm:"column:note"`
	CreatedAt   time.Time          `gorm:"column:created_at;not null"`
}
