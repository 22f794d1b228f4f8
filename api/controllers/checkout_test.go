package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-orders/api/middleware"
	checkoutsvc "github.com/angelmondragon/marketplace-orders/internal/checkout"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

type stubCheckoutService struct {
	input  checkoutsvc.CheckoutInput
	result *checkoutsvc.Result
	err    error
}

func (s *stubCheckoutService) Checkout(_ context.Context, input checkoutsvc.CheckoutInput) (*checkoutsvc.Result, error) {
	s.input = input
	return s.result, s.err
}

const checkoutBody = `{
	"shipping_address": {"full_name":"Ana Cruz","phone":"0917","line1":"1 Main St","city":"Makati","province":"Metro Manila","postal_code":"1200"},
	"payment_method": {"type":"cod"}
}`

func checkoutPost(body string, actor middleware.Actor) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	return req.WithContext(middleware.WithActor(req.Context(), actor))
}

func placedResult(buyerID uuid.UUID, sellers ...uuid.UUID) *checkoutsvc.Result {
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD-20240603-0001",
		BuyerID:       buyerID,
		BuyerName:     "Ana Cruz",
		Status:        enums.OrderStatusPending,
		PaymentMethod: types.PaymentMethod{Type: enums.PaymentMethodTypeCOD},
		Total:         decimal.RequireFromString("45"),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	result := &checkoutsvc.Result{Order: order}
	for _, sellerID := range sellers {
		result.SellerOrders = append(result.SellerOrders, models.SellerOrder{
			ID:       uuid.New(),
			OrderID:  order.ID,
			SellerID: sellerID,
			Status:   enums.OrderStatusPending,
			Total:    decimal.RequireFromString("22.5"),
		})
	}
	return result
}

func TestCheckoutCreatesOrder(t *testing.T) {
	buyerID := uuid.New()
	sellerA, sellerB := uuid.New(), uuid.New()
	svc := &stubCheckoutService{result: placedResult(buyerID, sellerA, sellerB)}

	resp := httptest.NewRecorder()
	Checkout(svc, testLogger())(resp, checkoutPost(checkoutBody, middleware.Actor{ID: buyerID, Role: enums.ActorRoleBuyer}))

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, buyerID, svc.input.BuyerID)
	assert.Equal(t, "Ana Cruz", svc.input.BuyerName)
	assert.Equal(t, uuid.Nil, svc.input.OrderID)
	assert.Equal(t, enums.PaymentMethodTypeCOD, svc.input.PaymentMethod.Type)

	var envelope struct {
		Data checkoutResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, "45.00", envelope.Data.Order.Total)
	assert.False(t, envelope.Data.Replayed)
	require.Len(t, envelope.Data.SellerOrders, 2)
}

func TestCheckoutReplayAnswersOK(t *testing.T) {
	buyerID := uuid.New()
	result := placedResult(buyerID, uuid.New())
	result.Replayed = true
	result.SideEffectErrors = errors.New("notify seller: timeout")
	svc := &stubCheckoutService{result: result}

	body := `{"order_id":"` + result.Order.ID.String() + `",` + strings.TrimPrefix(checkoutBody, "{")
	resp := httptest.NewRecorder()
	Checkout(svc, testLogger())(resp, checkoutPost(body, middleware.Actor{ID: buyerID, Role: enums.ActorRoleBuyer, Name: "Ana"}))

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, result.Order.ID, svc.input.OrderID)
	assert.Equal(t, "Ana", svc.input.BuyerName)
	assert.Contains(t, resp.Body.String(), `"replayed":true`)
}

func TestCheckoutRejectsIncompleteAddress(t *testing.T) {
	svc := &stubCheckoutService{}
	resp := httptest.NewRecorder()
	Checkout(svc, testLogger())(resp, checkoutPost(`{"shipping_address":{"full_name":"Ana"},"payment_method":{"type":"card"}}`,
		middleware.Actor{ID: uuid.New(), Role: enums.ActorRoleBuyer}))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, uuid.Nil, svc.input.BuyerID)
}

func TestCheckoutSurfacesStockConflict(t *testing.T) {
	svc := &stubCheckoutService{err: pkgerrors.New(pkgerrors.CodeInsufficientStock, "Mug: only 1 left")}
	resp := httptest.NewRecorder()
	Checkout(svc, testLogger())(resp, checkoutPost(checkoutBody, middleware.Actor{ID: uuid.New(), Role: enums.ActorRoleBuyer}))

	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Contains(t, resp.Body.String(), "only 1 left")
}

func TestCheckoutRequiresActor(t *testing.T) {
	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutBody))
	Checkout(&stubCheckoutService{}, testLogger())(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}
