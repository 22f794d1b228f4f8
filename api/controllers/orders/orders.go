package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/api/middleware"
	"github.com/angelmondragon/marketplace-orders/api/responses"
	"github.com/angelmondragon/marketplace-orders/api/validators"
	internalorders "github.com/angelmondragon/marketplace-orders/internal/orders"
	"github.com/angelmondragon/marketplace-orders/internal/returns"
	"github.com/angelmondragon/marketplace-orders/internal/reviews"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
)

const maxNoteLength = 500

// Engine is the slice of the lifecycle engine the order endpoints need.
type Engine interface {
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error)
	Detail(ctx context.Context, ref string, buyerID *uuid.UUID) (*models.Order, error)
	Transition(ctx context.Context, input internalorders.TransitionInput) (*internalorders.TransitionResult, error)
	Cancel(ctx context.Context, input internalorders.CancelInput) (*internalorders.TransitionResult, error)
	ReturnEligible(order *models.Order) bool
}

type ReturnSubmitter interface {
	Submit(ctx context.Context, input returns.SubmitInput) (*returns.Result, error)
}

type ReviewSubmitter interface {
	Submit(ctx context.Context, input reviews.SubmitInput) (*reviews.Result, error)
}

type SellerOrderLister interface {
	ListSellerOrders(ctx context.Context, sellerID uuid.UUID) ([]models.SellerOrder, error)
}

type statusRequest struct {
	Status enums.OrderStatus `json:"status" validate:"required"`
	Note   string            `json:"note" validate:"max=500"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type returnRequest struct {
	Reason        enums.ReturnReason   `json:"reason" validate:"required"`
	Solution      enums.ReturnSolution `json:"solution" validate:"required"`
	Comments      string               `json:"comments" validate:"max=1000"`
	EvidenceFiles []string             `json:"evidence_files" validate:"max=5"`
}

type reviewRequest struct {
	Items []reviews.ItemReview `json:"items" validate:"required,min=1"`
}

// List returns the caller's orders, newest first. Admins may pass buyer_id.
func List(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing"))
			return
		}

		buyerID := actor.ID
		if raw := strings.TrimSpace(r.URL.Query().Get("buyer_id")); raw != "" {
			if !actor.Role.IsPrivileged() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "buyer_id filter requires admin"))
				return
			}
			parsed, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid buyer_id"))
				return
			}
			buyerID = parsed
		}

		list, err := engine.ListBuyerOrders(r.Context(), buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]OrderResponse, 0, len(list))
		for i := range list {
			out = append(out, NewOrderResponse(&list[i], engine.ReturnEligible))
		}
		responses.WriteSuccess(w, out)
	}
}

// Detail resolves {orderId}, which may hold an order id or an order number. Orders the caller
// may not see are reported as not found.
func Detail(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing"))
			return
		}

		var buyerFilter *uuid.UUID
		if actor.Role == enums.ActorRoleBuyer {
			buyerFilter = &actor.ID
		}
		order, err := engine.Detail(r.Context(), chi.URLParam(r, "orderId"), buyerFilter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if actor.Role == enums.ActorRoleSeller && !sellsOn(order, actor.ID) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}
		responses.WriteSuccess(w, NewOrderResponse(order, engine.ReturnEligible))
	}
}

// UpdateStatus requests one lifecycle transition on behalf of the caller.
func UpdateStatus(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := actorAndOrder(w, r, logg)
		if !ok {
			return
		}
		var req statusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(string(req.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		result, err := engine.Transition(r.Context(), internalorders.TransitionInput{
			OrderID:   orderID,
			Target:    target,
			ActorID:   &actor.ID,
			ActorRole: actor.Role,
			Note:      validators.SanitizeString(req.Note, maxNoteLength),
		})
		writeTransition(r.Context(), w, logg, engine, result, err)
	}
}

func Cancel(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := actorAndOrder(w, r, logg)
		if !ok {
			return
		}
		var req cancelRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := engine.Cancel(r.Context(), internalorders.CancelInput{
			OrderID:     orderID,
			Reason:      validators.SanitizeString(req.Reason, maxNoteLength),
			CancelledBy: &actor.ID,
			Role:        actor.Role,
		})
		writeTransition(r.Context(), w, logg, engine, result, err)
	}
}

// SubmitReturn files a return for a delivered order of the calling buyer.
func SubmitReturn(svc ReturnSubmitter, engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := actorAndOrder(w, r, logg)
		if !ok {
			return
		}
		var req returnRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Submit(r.Context(), returns.SubmitInput{
			OrderID:       orderID,
			BuyerID:       actor.ID,
			Reason:        req.Reason,
			Solution:      req.Solution,
			Comments:      req.Comments,
			EvidenceFiles: req.EvidenceFiles,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		logSideEffects(r.Context(), logg, orderID, result.SideEffectErrors)
		responses.WriteSuccessStatus(w, http.StatusCreated, NewOrderResponse(result.Order, engine.ReturnEligible))
	}
}

type reviewItemResponse struct {
	LineItemID uuid.UUID       `json:"line_item_id"`
	Accepted   bool            `json:"accepted"`
	Review     *ReviewResponse `json:"review,omitempty"`
	ErrorCode  string          `json:"error_code,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type reviewSubmissionResponse struct {
	Items    []reviewItemResponse `json:"items"`
	Reviewed bool                 `json:"reviewed"`
	Order    *OrderResponse       `json:"order,omitempty"`
}

// SubmitReviews stores item reviews. Items are judged one by one, so the
// response carries a per-item outcome next to the order.
func SubmitReviews(svc ReviewSubmitter, engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := actorAndOrder(w, r, logg)
		if !ok {
			return
		}
		var req reviewRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Submit(r.Context(), reviews.SubmitInput{
			OrderID: orderID,
			BuyerID: actor.ID,
			Items:   req.Items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		logSideEffects(r.Context(), logg, orderID, result.SideEffectErrors)

		resp := reviewSubmissionResponse{
			Items:    make([]reviewItemResponse, 0, len(result.Items)),
			Reviewed: result.Reviewed,
		}
		for _, outcome := range result.Items {
			item := reviewItemResponse{LineItemID: outcome.LineItemID, Accepted: outcome.Accepted}
			if outcome.Review != nil {
				review := NewReviewResponse(*outcome.Review)
				item.Review = &review
			}
			if outcome.Err != nil {
				item.ErrorCode = string(pkgerrors.CodeInternal)
				item.Error = outcome.Err.Error()
				if typed := pkgerrors.As(outcome.Err); typed != nil {
					item.ErrorCode = string(typed.Code())
					item.Error = typed.Message()
				}
			}
			resp.Items = append(resp.Items, item)
		}
		if result.Order != nil {
			order := NewOrderResponse(result.Order, engine.ReturnEligible)
			resp.Order = &order
		}
		responses.WriteSuccess(w, resp)
	}
}

// ListSellerOrders returns the calling seller's projections.
func ListSellerOrders(svc SellerOrderLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing"))
			return
		}
		list, err := svc.ListSellerOrders(r.Context(), actor.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]SellerOrderResponse, 0, len(list))
		for _, so := range list {
			out = append(out, NewSellerOrderResponse(so))
		}
		responses.WriteSuccess(w, out)
	}
}

func actorAndOrder(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (middleware.Actor, uuid.UUID, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing"))
		return middleware.Actor{}, uuid.Nil, false
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return middleware.Actor{}, uuid.Nil, false
	}
	return actor, orderID, true
}

// writeTransition answers 200 for a persisted change. A change that stands
// locally while the backend is down is answered 202 with persisted=false.
func writeTransition(ctx context.Context, w http.ResponseWriter, logg *logger.Logger, engine Engine, result *internalorders.TransitionResult, err error) {
	if err != nil && (result == nil || !pkgerrors.IsCode(err, pkgerrors.CodePersistenceUnavailable)) {
		responses.WriteError(ctx, logg, w, err)
		return
	}
	resp := TransitionResponse{
		Order:     NewOrderResponse(result.Order, engine.ReturnEligible),
		From:      result.From,
		Persisted: err == nil,
	}
	logSideEffects(ctx, logg, result.Order.ID, result.SideEffectErrors)
	if err != nil {
		if logg != nil {
			logg.Warn(logg.WithOrderID(ctx, result.Order.ID.String()), "order change kept locally, persistence unavailable")
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, resp)
		return
	}
	responses.WriteSuccess(w, resp)
}

func logSideEffects(ctx context.Context, logg *logger.Logger, orderID uuid.UUID, errs error) {
	if logg == nil || errs == nil {
		return
	}
	logg.Error(logg.WithOrderID(ctx, orderID.String()), "order side effects failed", errs)
}

func sellsOn(order *models.Order, sellerID uuid.UUID) bool {
	for _, item := range order.Items {
		if item.SellerID == sellerID {
			return true
		}
	}
	return false
}
