package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/pagination"
)

// Repository persists the durable notification center.
type Repository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, query listQuery) ([]models.Notification, error)
	MarkRead(ctx context.Context, party enums.Party, recipientID, notificationID uuid.UUID, now time.Time) (markResult, error)
	MarkAllRead(ctx context.Context, party enums.Party, recipientID uuid.UUID, now time.Time) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type listQuery struct {
	Party       enums.Party
	RecipientID uuid.UUID
	UnreadOnly  bool
	Limit       int
	Cursor      *pagination.Cursor
}

type markResult struct {
	Updated bool
	Found   bool
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

// List returns rows newest first; Limit is passed straight to the query so
// callers can over-fetch by one to detect a next page.
func (r *repository) List(ctx context.Context, query listQuery) ([]models.Notification, error) {
	q := r.recipient(ctx, query.Party, query.RecipientID)
	if query.UnreadOnly {
		q = q.Where("read_at IS NULL")
	}
	if query.Cursor != nil {
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)",
			query.Cursor.CreatedAt, query.Cursor.CreatedAt, query.Cursor.ID)
	}
	var rows []models.Notification
	if err := q.Order("created_at DESC, id DESC").Limit(query.Limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) MarkRead(ctx context.Context, party enums.Party, recipientID, notificationID uuid.UUID, now time.Time) (markResult, error) {
	res := r.recipient(ctx, party, recipientID).
		Where("id = ? AND read_at IS NULL", notificationID).
		UpdateColumn("read_at", now)
	if res.Error != nil {
		return markResult{}, res.Error
	}
	if res.RowsAffected > 0 {
		return markResult{Updated: true, Found: true}, nil
	}

	// Already read is still a hit; only a foreign or unknown id is not.
	var count int64
	if err := r.recipient(ctx, party, recipientID).Where("id = ?", notificationID).Count(&count).Error; err != nil {
		return markResult{}, err
	}
	return markResult{Found: count > 0}, nil
}

func (r *repository) MarkAllRead(ctx context.Context, party enums.Party, recipientID uuid.UUID, now time.Time) (int64, error) {
	res := r.recipient(ctx, party, recipientID).
		Where("read_at IS NULL").
		UpdateColumn("read_at", now)
	return res.RowsAffected, res.Error
}

func (r *repository) recipient(ctx context.Context, party enums.Party, recipientID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("party = ? AND recipient_id = ?", party, recipientID)
}

// DeleteReadBefore prunes notifications that were read before cutoff. Unread
// rows are kept regardless of age.
func (r *repository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("read_at IS NOT NULL AND read_at < ?", cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
