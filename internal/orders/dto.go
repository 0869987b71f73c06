package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/zenergy-backend/pkg/db/models"
	"github.com/angelmondragon/zenergy-backend/pkg/enums"
)

// AdminOrderFilters narrow the admin order queue.
type AdminOrderFilters struct {
	Status        *enums.OrderStatus
	PaymentMethod *enums.PaymentMethod
}

// OrderItemView is a single order line as returned to callers.
type OrderItemView struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	StoreID   uuid.UUID       `json:"store_id"`
	StoreName string          `json:"store_name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// OrderView is the order representation shared by customer, seller and
// admin endpoints. Seller views only carry the seller's own items.
type OrderView struct {
	ID              uuid.UUID           `json:"id"`
	UserID          uuid.UUID           `json:"user_id"`
	Status          enums.OrderStatus   `json:"status"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method"`
	ShippingAddress string              `json:"shipping_address"`
	Subtotal        decimal.Decimal     `json:"subtotal"`
	ShippingFee     decimal.Decimal     `json:"shipping_fee"`
	Tax             decimal.Decimal     `json:"tax"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	ConfirmedAt     *time.Time          `json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	Items           []OrderItemView     `json:"items"`
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderView `json:"orders"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// PaymentQRView carries the bank transfer QR for a pending QR order.
type PaymentQRView struct {
	OrderID     uuid.UUID `json:"order_id"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	QRURL       string    `json:"qr_url"`
}

// ItemRow is an order item joined with its store name.
type ItemRow struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	StoreID   uuid.UUID
	StoreName string
	Quantity  int
	UnitPrice decimal.Decimal
}

// NewOrderView maps an order and its item rows into the response shape.
func NewOrderView(order models.Order, items []ItemRow) OrderView {
	view := OrderView{
		ID:              order.ID,
		UserID:          order.UserID,
		Status:          order.Status,
		PaymentMethod:   order.PaymentMethod,
		ShippingAddress: order.ShippingAddress,
		Subtotal:        order.Subtotal,
		ShippingFee:     order.ShippingFee,
		Tax:             order.Tax,
		TotalAmount:     order.TotalAmount,
		ConfirmedAt:     order.ConfirmedAt,
		CancelledAt:     order.CancelledAt,
		CreatedAt:       order.CreatedAt,
		Items:           make([]OrderItemView, 0, len(items)),
	}
	for _, item := range items {
		view.Items = append(view.Items, OrderItemView{
			ID:        item.ID,
			ProductID: item.ProductID,
			StoreID:   item.StoreID,
			StoreName: item.StoreName,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
		})
	}
	return view
}
