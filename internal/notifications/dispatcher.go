package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-orders/internal/orders"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/eventbus"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
)

// DispatchInput addresses one notification to one party of an order.
type DispatchInput struct {
	OrderID     uuid.UUID
	OrderNumber string
	Party       enums.Party
	RecipientID uuid.UUID
	Type        enums.NotificationType
	Context     MessageContext
}

// Dispatcher renders notifications and records them in the live feed and the
// durable store. Every call writes a new row; callers must not dispatch the
// same logical event twice.
type Dispatcher struct {
	repo Repository
	feed *Feed
	logg *logger.Logger
	now  func() time.Time
}

func NewDispatcher(repo Repository, feed *Feed, logg *logger.Logger) (*Dispatcher, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if feed == nil {
		return nil, fmt.Errorf("notification feed required")
	}
	return &Dispatcher{repo: repo, feed: feed, logg: logg, now: time.Now}, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, input DispatchInput) (*models.Notification, error) {
	if err := validateRecipient(input.Party, input.RecipientID); err != nil {
		return nil, err
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown notification type")
	}
	if input.Context.OrderNumber == "" {
		input.Context.OrderNumber = input.OrderNumber
	}
	title, message := Message(input.Type, input.Context)
	n := models.Notification{
		ID:          uuid.New(),
		Party:       input.Party,
		RecipientID: input.RecipientID,
		OrderNumber: input.OrderNumber,
		Type:        input.Type,
		Title:       title,
		Message:     message,
		CreatedAt:   d.now().UTC(),
	}
	if input.OrderID != uuid.Nil {
		orderID := input.OrderID
		n.OrderID = &orderID
	}

	d.feed.Push(n)
	stored := n
	if err := d.repo.Create(ctx, &stored); err != nil {
		if d.logg != nil {
			logCtx := d.logg.WithOrderID(ctx, input.OrderID.String())
			logCtx = d.logg.WithField(logCtx, "notification_type", input.Type)
			d.logg.Error(logCtx, "failed to store notification", err)
		}
		return &n, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store notification")
	}
	return &stored, nil
}

// NotifyPartyNewOrder tells a seller about their share of a freshly placed order.
func (d *Dispatcher) NotifyPartyNewOrder(ctx context.Context, sellerID, orderID uuid.UUID, orderNumber, buyerName string, total decimal.Decimal) error {
	_, err := d.Dispatch(ctx, DispatchInput{
		OrderID:     orderID,
		OrderNumber: orderNumber,
		Party:       enums.PartySeller,
		RecipientID: sellerID,
		Type:        enums.NotificationTypeNewOrder,
		Context:     MessageContext{OrderNumber: orderNumber, BuyerName: buyerName, Total: total},
	})
	return err
}

// HandleEvent turns a status change into the buyer notification for the new
// status, plus seller notices for returns and buyer cancellations.
func (d *Dispatcher) HandleEvent(ctx context.Context, event eventbus.Event) error {
	changed, ok := event.(eventbus.OrderStatusChanged)
	if !ok {
		return nil
	}
	var errs error
	if t, ok := orders.BuyerNotificationFor(changed.To); ok {
		mc := MessageContext{OrderNumber: changed.OrderNumber, Total: changed.Total}
		if changed.To == enums.OrderStatusCancelled {
			mc.Reason = changed.Note
		}
		_, err := d.Dispatch(ctx, DispatchInput{
			OrderID:     changed.OrderID,
			OrderNumber: changed.OrderNumber,
			Party:       enums.PartyBuyer,
			RecipientID: changed.BuyerID,
			Type:        t,
			Context:     mc,
		})
		errs = multierr.Append(errs, err)
	}

	sellerType, notifySellers := sellerNotificationFor(changed)
	if !notifySellers {
		return errs
	}
	for _, sellerID := range changed.SellerIDs() {
		_, err := d.Dispatch(ctx, DispatchInput{
			OrderID:     changed.OrderID,
			OrderNumber: changed.OrderNumber,
			Party:       enums.PartySeller,
			RecipientID: sellerID,
			Type:        sellerType,
			Context:     MessageContext{OrderNumber: changed.OrderNumber, Reason: changed.Note},
		})
		errs = multierr.Append(errs, err)
	}
	return errs
}

func sellerNotificationFor(changed eventbus.OrderStatusChanged) (enums.NotificationType, bool) {
	switch {
	case changed.To == enums.OrderStatusReturned:
		return enums.NotificationTypeReturnRequest, true
	case changed.To == enums.OrderStatusCancelled && changed.ActorRole == enums.ActorRoleBuyer:
		return enums.NotificationTypeCancellationRequest, true
	default:
		return "", false
	}
}
