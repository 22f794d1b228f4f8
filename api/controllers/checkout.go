package controllers

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"

	ordersctl "github.com/angelmondragon/marketplace-orders/api/controllers/orders"
	"github.com/angelmondragon/marketplace-orders/api/middleware"
	"github.com/angelmondragon/marketplace-orders/api/responses"
	"github.com/angelmondragon/marketplace-orders/api/validators"
	checkoutsvc "github.com/angelmondragon/marketplace-orders/internal/checkout"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

type CheckoutService interface {
	Checkout(ctx context.Context, input checkoutsvc.CheckoutInput) (*checkoutsvc.Result, error)
}

type checkoutRequest struct {
	OrderID         *uuid.UUID          `json:"order_id,omitempty"`
	BuyerName       string              `json:"buyer_name" validate:"max=200"`
	ShippingAddress types.Address       `json:"shipping_address"`
	PaymentMethod   types.PaymentMethod `json:"payment_method"`
}

type checkoutResponse struct {
	Order        ordersctl.OrderResponse         `json:"order"`
	SellerOrders []ordersctl.SellerOrderResponse `json:"seller_orders"`
	Replayed     bool                            `json:"replayed"`
}

// Checkout converts the caller's cart into one order. Retrying with the
// order_id of an earlier attempt replays the post-placement steps and
// answers 200 instead of 201.
func Checkout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkoutsvc.CheckoutInput{
			BuyerID:         actor.ID,
			BuyerName:       strings.TrimSpace(payload.BuyerName),
			ShippingAddress: payload.ShippingAddress,
			PaymentMethod:   payload.PaymentMethod,
		}
		if input.BuyerName == "" {
			input.BuyerName = actor.Name
		}
		if input.BuyerName == "" {
			input.BuyerName = payload.ShippingAddress.FullName
		}
		if payload.OrderID != nil {
			input.OrderID = *payload.OrderID
		}

		result, err := svc.Checkout(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.SideEffectErrors != nil && logg != nil {
			logCtx := logg.WithOrderID(r.Context(), result.Order.ID.String())
			logg.Warn(logCtx, "checkout side effects incomplete: "+result.SideEffectErrors.Error())
		}

		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, newCheckoutResponse(result))
	}
}

func newCheckoutResponse(result *checkoutsvc.Result) checkoutResponse {
	resp := checkoutResponse{
		Order:        ordersctl.NewOrderResponse(result.Order, nil),
		SellerOrders: make([]ordersctl.SellerOrderResponse, 0, len(result.SellerOrders)),
		Replayed:     result.Replayed,
	}
	for _, so := range sortedSellerOrders(result.SellerOrders) {
		resp.SellerOrders = append(resp.SellerOrders, ordersctl.NewSellerOrderResponse(so))
	}
	return resp
}

func sortedSellerOrders(list []models.SellerOrder) []models.SellerOrder {
	out := make([]models.SellerOrder, len(list))
	copy(out, list)
	sort.Slice(out, func(i, j int) bool {
		return out[i].SellerID.String() < out[j].SellerID.String()
	})
	return out
}
