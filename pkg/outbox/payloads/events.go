package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/zenergy-backend/pkg/enums"
)

// OrderLine is the per-item slice carried by order events.
type OrderLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	StoreID   uuid.UUID       `json:"store_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderCreatedEvent is emitted when checkout commits an order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	UserID        uuid.UUID           `json:"user_id"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	StoreIDs      []uuid.UUID         `json:"store_ids"`
	Lines         []OrderLine         `json:"lines"`
}

// OrderCancelledEvent records the stock returned by a cancellation.
type OrderCancelledEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	UserID         uuid.UUID         `json:"user_id"`
	PreviousStatus enums.OrderStatus `json:"previous_status"`
	Reason         string            `json:"reason,omitempty"`
	Restored       []OrderLine       `json:"restored"`
}

// OrderStatusChangedEvent covers admin confirmation and seller progress.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	From       enums.OrderStatus `json:"from"`
	To         enums.OrderStatus `json:"to"`
	ActorStore *uuid.UUID        `json:"actor_store_id,omitempty"`
}

// WithdrawRequestedEvent is emitted when a payout request is accepted.
type WithdrawRequestedEvent struct {
	WithdrawID uuid.UUID       `json:"withdraw_id"`
	StoreID    uuid.UUID       `json:"store_id"`
	Code       string          `json:"code"`
	Amount     decimal.Decimal `json:"amount"`
	Balance    decimal.Decimal `json:"balance_after"`
}
