package projections

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// Repository persists seller-side order projections.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, projection *models.SellerOrder) error
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]models.SellerOrder, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.SellerOrder, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, settle bool, at time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the projection repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, projection *models.SellerOrder) error {
	return r.db.WithContext(ctx).Create(projection).Error
}

func (r *repository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]models.SellerOrder, error) {
	var rows []models.SellerOrder
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_id = ?", orderID).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.SellerOrder, error) {
	var rows []models.SellerOrder
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, settle bool, at time.Time) (int64, error) {
	updates := map[string]any{
		"status":     status,
		"updated_at": at,
	}
	if settle {
		updates["payment_settled"] = true
	}
	res := r.db.WithContext(ctx).
		Model(&models.SellerOrder{}).
		Where("order_id = ?", orderID).
		Updates(updates)
	return res.RowsAffected, res.Error
}
