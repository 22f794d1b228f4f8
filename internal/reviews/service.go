package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/internal/orders"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

type orderEngine interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Mutate(ctx context.Context, orderID uuid.UUID, fn func(order *models.Order) error) (*models.Order, error)
	Transition(ctx context.Context, input orders.TransitionInput) (*orders.TransitionResult, error)
}

// ItemReview rates one line item.
type ItemReview struct {
	LineItemID uuid.UUID `json:"line_item_id" validate:"required"`
	Rating     int       `json:"rating" validate:"min=1,max=5"`
	Comment    string    `json:"comment" validate:"max=2000"`
	Images     []string  `json:"images" validate:"max=5,dive,required"`
}

type SubmitInput struct {
	OrderID uuid.UUID    `json:"-" validate:"required"`
	BuyerID uuid.UUID    `json:"-" validate:"required"`
	Items   []ItemReview `json:"items" validate:"required,min=1,dive"`
}

// ItemOutcome reports one item of a submission. Items are independent: one
// rejected item does not stop the others.
type ItemOutcome struct {
	LineItemID uuid.UUID      `json:"line_item_id"`
	Accepted   bool           `json:"accepted"`
	Review     *models.Review `json:"review,omitempty"`
	Err        error          `json:"-"`
}

type Result struct {
	Items            []ItemOutcome
	Order            *models.Order
	Reviewed         bool
	SideEffectErrors error
}

type Service struct {
	repo     Repository
	engine   orderEngine
	validate *validator.Validate
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(repo Repository, engine orderEngine, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reviews repository required")
	}
	if engine == nil {
		return nil, fmt.Errorf("order engine required")
	}
	return &Service{repo: repo, engine: engine, validate: validator.New(), logg: logg, now: time.Now}, nil
}

// Submit stores each item review, flags the line item and, once every item
// of the order carries a review, moves the order to reviewed.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (*Result, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid review submission")
	}
	order, err := s.engine.Get(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != input.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
	}
	if order.Status != enums.OrderStatusDelivered {
		if settled := settledOutcomes(order, input.Items); settled != nil {
			return &Result{Order: order, Items: settled}, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition,
			fmt.Sprintf("only delivered orders can be reviewed, order is %s", order.Status)).
			WithDetails(map[string]any{"from": order.Status, "to": enums.OrderStatusReviewed})
	}

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithOrderID(ctx, order.ID.String())
	}

	result := &Result{Order: order}
	for _, item := range input.Items {
		outcome := ItemOutcome{LineItemID: item.LineItemID}
		review, updated, err := s.submitItem(ctx, order, input.BuyerID, item)
		if err != nil {
			outcome.Err = err
			if s.logg != nil && !pkgerrors.IsCode(err, pkgerrors.CodeAlreadyReviewed) {
				s.logg.Error(s.logg.WithField(logCtx, "line_item_id", item.LineItemID.String()), "review item failed", err)
			}
		} else {
			outcome.Accepted = true
			outcome.Review = review
		}
		if updated != nil {
			order = updated
			result.Order = updated
		}
		result.Items = append(result.Items, outcome)
	}

	if !orders.AllItemsReviewed(order) {
		return result, nil
	}
	stored, err := s.repo.ListByOrder(ctx, order.ID)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order reviews")
	}
	buyerID := input.BuyerID
	transition, err := s.engine.Transition(ctx, orders.TransitionInput{
		OrderID:   order.ID,
		Target:    enums.OrderStatusReviewed,
		ActorID:   &buyerID,
		ActorRole: enums.ActorRoleBuyer,
		Attach: func(o *models.Order) error {
			o.Reviews = stored
			return nil
		},
	})
	if transition != nil {
		result.Order = transition.Order
		result.Reviewed = true
		result.SideEffectErrors = transition.SideEffectErrors
	}
	if err != nil {
		return result, err
	}
	if s.logg != nil {
		s.logg.Info(logCtx, "all items reviewed")
	}
	return result, nil
}

// Summary aggregates the ratings a product has received.
func (s *Service) Summary(ctx context.Context, productID uuid.UUID) (types.RatingSummary, error) {
	rows, err := s.repo.ListByProduct(ctx, productID)
	if err != nil {
		return types.RatingSummary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list product reviews")
	}
	ratings := make([]int, 0, len(rows))
	for _, row := range rows {
		ratings = append(ratings, row.Rating)
	}
	return types.SummarizeRatings(ratings), nil
}

func (s *Service) submitItem(ctx context.Context, order *models.Order, buyerID uuid.UUID, item ItemReview) (*models.Review, *models.Order, error) {
	line := findLine(order, item.LineItemID)
	if line == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "line item not on order")
	}
	if line.ReviewSubmitted {
		return nil, nil, alreadyReviewed(item.LineItemID)
	}

	review := &models.Review{
		ID:         uuid.New(),
		OrderID:    order.ID,
		LineItemID: line.ID,
		ProductID:  line.ProductID,
		BuyerID:    buyerID,
		Rating:     item.Rating,
		Comment:    strings.TrimSpace(item.Comment),
		Images:     types.StringList(item.Images).Clone(),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.Create(ctx, review); err != nil {
		if errors.Is(err, errDuplicateReview) {
			return nil, s.markSubmitted(ctx, order.ID, line.ID), alreadyReviewed(item.LineItemID)
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store review")
	}

	updated := s.markSubmitted(ctx, order.ID, line.ID)
	return review, updated, nil
}

// markSubmitted flips the item flag. The stored review is authoritative, so
// a failure here is logged and the flag is fixed by the next submission.
func (s *Service) markSubmitted(ctx context.Context, orderID, lineItemID uuid.UUID) *models.Order {
	updated, err := s.engine.Mutate(ctx, orderID, func(o *models.Order) error {
		for i := range o.Items {
			if o.Items[i].ID == lineItemID {
				o.Items[i].ReviewSubmitted = true
			}
		}
		return nil
	})
	if err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, orderID.String()), "review flag not persisted: "+err.Error())
	}
	return updated
}

// settledOutcomes answers a submission whose items were all reviewed
// before. Once the order is reviewed every line is settled, so a resubmit
// is judged per item rather than against the order status. It returns nil
// when any item still awaits a review.
func settledOutcomes(order *models.Order, items []ItemReview) []ItemOutcome {
	reviewed := order.Status == enums.OrderStatusReviewed
	outcomes := make([]ItemOutcome, 0, len(items))
	for _, item := range items {
		outcome := ItemOutcome{LineItemID: item.LineItemID}
		line := findLine(order, item.LineItemID)
		switch {
		case line != nil && line.ReviewSubmitted:
			outcome.Err = alreadyReviewed(item.LineItemID)
		case line == nil && reviewed:
			outcome.Err = pkgerrors.New(pkgerrors.CodeNotFound, "line item not on order")
		default:
			return nil
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func findLine(order *models.Order, lineItemID uuid.UUID) *models.OrderLineItem {
	for i := range order.Items {
		if order.Items[i].ID == lineItemID {
			return &order.Items[i]
		}
	}
	return nil
}

func alreadyReviewed(lineItemID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeAlreadyReviewed, "item already reviewed").
		WithDetails(map[string]any{"line_item_id": lineItemID.String()})
}
