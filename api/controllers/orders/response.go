package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internalorders "github.com/angelmondragon/marketplace-orders/internal/orders"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

type LineItemResponse struct {
	ID              uuid.UUID `json:"id"`
	ProductID       uuid.UUID `json:"product_id"`
	SellerID        uuid.UUID `json:"seller_id"`
	Name            string    `json:"name"`
	Variant         string    `json:"variant,omitempty"`
	UnitPrice       string    `json:"unit_price"`
	Quantity        int       `json:"quantity"`
	LineTotal       string    `json:"line_total"`
	ReviewSubmitted bool      `json:"review_submitted"`
}

type ReturnRequestResponse struct {
	Reason        enums.ReturnReason   `json:"reason"`
	Solution      enums.ReturnSolution `json:"solution"`
	Comments      string               `json:"comments,omitempty"`
	EvidenceFiles []string             `json:"evidence_files,omitempty"`
	RefundAmount  string               `json:"refund_amount"`
	CreatedAt     time.Time            `json:"created_at"`
}

type ReviewResponse struct {
	ID         uuid.UUID `json:"id"`
	LineItemID uuid.UUID `json:"line_item_id"`
	ProductID  uuid.UUID `json:"product_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	Images     []string  `json:"images,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// OrderResponse is the buyer-facing order document.
type OrderResponse struct {
	ID                  uuid.UUID              `json:"id"`
	OrderNumber         string                 `json:"order_number"`
	BuyerID             uuid.UUID              `json:"buyer_id"`
	BuyerName           string                 `json:"buyer_name"`
	Status              enums.OrderStatus      `json:"status"`
	NextStatuses        []enums.OrderStatus    `json:"next_statuses"`
	PaymentMethod       types.PaymentMethod    `json:"payment_method"`
	ShippingAddress     types.Address          `json:"shipping_address"`
	IsPaid              bool                   `json:"is_paid"`
	Total               string                 `json:"total"`
	EstimatedDeliveryAt time.Time              `json:"estimated_delivery_at"`
	DeliveredAt         *time.Time             `json:"delivered_at,omitempty"`
	TrackingNumber      *string                `json:"tracking_number,omitempty"`
	CancelReason        *string                `json:"cancel_reason,omitempty"`
	ReturnEligible      bool                   `json:"return_eligible"`
	Items               []LineItemResponse     `json:"items"`
	ReturnRequest       *ReturnRequestResponse `json:"return_request,omitempty"`
	Reviews             []ReviewResponse       `json:"reviews,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// TransitionResponse reports an applied change. Persisted is false when the
// change stands locally but the backend could not be written.
type TransitionResponse struct {
	Order     OrderResponse     `json:"order"`
	From      enums.OrderStatus `json:"from"`
	Persisted bool              `json:"persisted"`
}

type SellerOrderItemResponse struct {
	LineItemID uuid.UUID `json:"line_item_id"`
	ProductID  uuid.UUID `json:"product_id"`
	Name       string    `json:"name"`
	Variant    string    `json:"variant,omitempty"`
	UnitPrice  string    `json:"unit_price"`
	Quantity   int       `json:"quantity"`
}

type SellerOrderResponse struct {
	ID                uuid.UUID                 `json:"id"`
	OrderID           uuid.UUID                 `json:"order_id"`
	OrderNumber       string                    `json:"order_number"`
	BuyerName         string                    `json:"buyer_name"`
	Status            enums.OrderStatus         `json:"status"`
	PaymentMethodType enums.PaymentMethodType   `json:"payment_method_type"`
	PaymentSettled    bool                      `json:"payment_settled"`
	ShippingAddress   types.Address             `json:"shipping_address"`
	Total             string                    `json:"total"`
	Items             []SellerOrderItemResponse `json:"items"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
}

// NewOrderResponse renders order. eligible may be nil, in which case
// return_eligible stays false.
func NewOrderResponse(order *models.Order, eligible func(*models.Order) bool) OrderResponse {
	resp := OrderResponse{
		ID:                  order.ID,
		OrderNumber:         order.OrderNumber,
		BuyerID:             order.BuyerID,
		BuyerName:           order.BuyerName,
		Status:              order.Status,
		NextStatuses:        internalorders.NextStatuses(order.Status),
		PaymentMethod:       order.PaymentMethod,
		ShippingAddress:     order.ShippingAddress,
		IsPaid:              order.IsPaid,
		Total:               order.Total.StringFixed(2),
		EstimatedDeliveryAt: order.EstimatedDeliveryAt,
		DeliveredAt:         order.DeliveredAt,
		TrackingNumber:      order.TrackingNumber,
		CancelReason:        order.CancelReason,
		Items:               make([]LineItemResponse, 0, len(order.Items)),
		CreatedAt:           order.CreatedAt,
		UpdatedAt:           order.UpdatedAt,
	}
	if eligible != nil && order.Status == enums.OrderStatusDelivered {
		resp.ReturnEligible = eligible(order)
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, LineItemResponse{
			ID:              item.ID,
			ProductID:       item.ProductID,
			SellerID:        item.SellerID,
			Name:            item.Name,
			Variant:         item.Variant,
			UnitPrice:       item.UnitPrice.StringFixed(2),
			Quantity:        item.Quantity,
			LineTotal:       item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).StringFixed(2),
			ReviewSubmitted: item.ReviewSubmitted,
		})
	}
	if rr := order.ReturnRequest; rr != nil {
		resp.ReturnRequest = &ReturnRequestResponse{
			Reason:        rr.Reason,
			Solution:      rr.Solution,
			Comments:      rr.Comments,
			EvidenceFiles: rr.EvidenceFiles,
			RefundAmount:  rr.RefundAmount.StringFixed(2),
			CreatedAt:     rr.CreatedAt,
		}
	}
	for _, review := range order.Reviews {
		resp.Reviews = append(resp.Reviews, NewReviewResponse(review))
	}
	return resp
}

func NewReviewResponse(review models.Review) ReviewResponse {
	return ReviewResponse{
		ID:         review.ID,
		LineItemID: review.LineItemID,
		ProductID:  review.ProductID,
		Rating:     review.Rating,
		Comment:    review.Comment,
		Images:     review.Images,
		CreatedAt:  review.CreatedAt,
	}
}

func NewSellerOrderResponse(so models.SellerOrder) SellerOrderResponse {
	resp := SellerOrderResponse{
		ID:                so.ID,
		OrderID:           so.OrderID,
		OrderNumber:       so.OrderNumber,
		BuyerName:         so.BuyerName,
		Status:            so.Status,
		PaymentMethodType: so.PaymentMethodType,
		PaymentSettled:    so.PaymentSettled,
		ShippingAddress:   so.ShippingAddress,
		Total:             so.Total.StringFixed(2),
		Items:             make([]SellerOrderItemResponse, 0, len(so.Items)),
		CreatedAt:         so.CreatedAt,
		UpdatedAt:         so.UpdatedAt,
	}
	for _, item := range so.Items {
		resp.Items = append(resp.Items, SellerOrderItemResponse{
			LineItemID: item.LineItemID,
			ProductID:  item.ProductID,
			Name:       item.Name,
			Variant:    item.Variant,
			UnitPrice:  item.UnitPrice.StringFixed(2),
			Quantity:   item.Quantity,
		})
	}
	return resp
}
