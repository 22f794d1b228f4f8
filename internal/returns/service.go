package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/internal/orders"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

type orderEngine interface {
	Transition(ctx context.Context, input orders.TransitionInput) (*orders.TransitionResult, error)
}

// SubmitInput is a buyer's return request for a delivered order.
type SubmitInput struct {
	OrderID       uuid.UUID            `json:"-" validate:"required"`
	BuyerID       uuid.UUID            `json:"-" validate:"required"`
	Reason        enums.ReturnReason   `json:"reason" validate:"required"`
	Solution      enums.ReturnSolution `json:"solution" validate:"required"`
	Comments      string               `json:"comments" validate:"max=1000"`
	EvidenceFiles []string             `json:"evidence_files" validate:"max=5,dive,required"`
}

// Result pairs the returned order with any subscriber failures.
type Result struct {
	Order            *models.Order
	ReturnRequest    *models.ReturnRequest
	SideEffectErrors error
}

type Service struct {
	engine   orderEngine
	validate *validator.Validate
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(engine orderEngine, logg *logger.Logger) (*Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("order engine required")
	}
	return &Service{
		engine:   engine,
		validate: validator.New(),
		logg:     logg,
		now:      time.Now,
	}, nil
}

// RefundAmount is zero for a replacement and the full order total otherwise.
func RefundAmount(order *models.Order, solution enums.ReturnSolution) decimal.Decimal {
	if order == nil || solution == enums.ReturnSolutionReplacement {
		return decimal.Zero
	}
	return order.Total
}

// Submit moves a delivered order to returned with the request attached. The
// window, ownership and status checks are the transition guard's; restock
// and the seller notice follow from the status change event.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (*Result, error) {
	input.Comments = strings.TrimSpace(input.Comments)
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid return request")
	}
	if !input.Reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown return reason %q", input.Reason))
	}
	if !input.Solution.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown return solution %q", input.Solution))
	}

	buyerID := input.BuyerID
	var request *models.ReturnRequest
	result, err := s.engine.Transition(ctx, orders.TransitionInput{
		OrderID:   input.OrderID,
		Target:    enums.OrderStatusReturned,
		ActorID:   &buyerID,
		ActorRole: enums.ActorRoleBuyer,
		Note:      string(input.Reason),
		Attach: func(order *models.Order) error {
			request = &models.ReturnRequest{
				ID:            uuid.New(),
				OrderID:       order.ID,
				BuyerID:       input.BuyerID,
				Reason:        input.Reason,
				Solution:      input.Solution,
				Comments:      input.Comments,
				EvidenceFiles: types.StringList(input.EvidenceFiles).Clone(),
				RefundAmount:  RefundAmount(order, input.Solution),
				CreatedAt:     s.now().UTC(),
			}
			order.ReturnRequest = request
			return nil
		},
	})
	if result == nil {
		return nil, err
	}

	out := &Result{
		Order:            result.Order,
		ReturnRequest:    result.Order.ReturnRequest,
		SideEffectErrors: result.SideEffectErrors,
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, input.OrderID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"solution":      input.Solution,
			"refund_amount": request.RefundAmount.StringFixed(2),
		})
		s.logg.Info(logCtx, "return request submitted")
	}
	return out, err
}
