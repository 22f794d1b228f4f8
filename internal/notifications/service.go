package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/pagination"
)

// Service is the read side of the notification center. Only the read flag
// of a stored notification ever changes.
type Service interface {
	List(ctx context.Context, params ListParams) (*pagination.Page[models.Notification], error)
	Live(ctx context.Context, party enums.Party, recipientID uuid.UUID, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, party enums.Party, recipientID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, party enums.Party, recipientID uuid.UUID) (int64, error)
}

type ListParams struct {
	Party       enums.Party
	RecipientID uuid.UUID
	UnreadOnly  bool
	Limit       int
	Cursor      string
}

type service struct {
	repo Repository
	feed *Feed
	now  func() time.Time
}

func NewService(repo Repository, feed *Feed) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if feed == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification feed required")
	}
	return &service{repo: repo, feed: feed, now: time.Now}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*pagination.Page[models.Notification], error) {
	if err := validateRecipient(params.Party, params.RecipientID); err != nil {
		return nil, err
	}
	cursor, err := pagination.Parse(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, listQuery{
		Party:       params.Party,
		RecipientID: params.RecipientID,
		UnreadOnly:  params.UnreadOnly,
		Limit:       pagination.FetchLimit(params.Limit),
		Cursor:      cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	page := pagination.Split(rows, params.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return &page, nil
}

// Live reads the transient feed. It resets whenever the process restarts.
func (s *service) Live(ctx context.Context, party enums.Party, recipientID uuid.UUID, limit int) ([]models.Notification, error) {
	if err := validateRecipient(party, recipientID); err != nil {
		return nil, err
	}
	return s.feed.List(party, recipientID, pagination.NormalizeLimit(limit)), nil
}

func (s *service) MarkRead(ctx context.Context, party enums.Party, recipientID, notificationID uuid.UUID) error {
	if err := validateRecipient(party, recipientID); err != nil {
		return err
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	result, err := s.repo.MarkRead(ctx, party, recipientID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, party enums.Party, recipientID uuid.UUID) (int64, error) {
	if err := validateRecipient(party, recipientID); err != nil {
		return 0, err
	}
	count, err := s.repo.MarkAllRead(ctx, party, recipientID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func validateRecipient(party enums.Party, recipientID uuid.UUID) error {
	if !party.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "party must be buyer or seller")
	}
	if recipientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}
	return nil
}
