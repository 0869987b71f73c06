package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/zenergy-backend/internal/inventory"
	"github.com/angelmondragon/zenergy-backend/pkg/config"
	"github.com/angelmondragon/zenergy-backend/pkg/db/models"
	"github.com/angelmondragon/zenergy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/zenergy-backend/pkg/errors"
	"github.com/angelmondragon/zenergy-backend/pkg/metrics"
	"github.com/angelmondragon/zenergy-backend/pkg/outbox"
	"github.com/angelmondragon/zenergy-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/zenergy-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives the order state machine and serves order reads.
type Service interface {
	CancelOrder(ctx context.Context, orderID, userID uuid.UUID) (*OrderView, error)
	ExpireOrder(ctx context.Context, orderID uuid.UUID) (*OrderView, error)
	SellerAdvanceStatus(ctx context.Context, input SellerStatusInput) (*OrderView, error)
	AdminConfirmPayment(ctx context.Context, orderID, adminID uuid.UUID) (*OrderView, error)
	ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	GetOrder(ctx context.Context, orderID, userID uuid.UUID) (*OrderView, error)
	ListStoreOrders(ctx context.Context, storeID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListAdminOrders(ctx context.Context, params pagination.Params, filters AdminOrderFilters) (*OrderList, error)
	PaymentQR(ctx context.Context, orderID, userID uuid.UUID) (*PaymentQRView, error)
}

// SellerStatusInput carries a seller's request to move an order forward.
type SellerStatusInput struct {
	OrderID     uuid.UUID
	StoreID     uuid.UUID
	ActorUserID uuid.UUID
	Status      enums.OrderStatus
}

// sellerTargets are the states a seller may move an order into.
var sellerTargets = map[enums.OrderStatus]bool{
	enums.OrderStatusShipping:  true,
	enums.OrderStatusCompleted: true,
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outbox.Emitter
	inventory inventory.Ledger
	qr        config.VietQRConfig
	metrics   *metrics.OrderMetrics
	now       func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, ledger inventory.Ledger, qr config.VietQRConfig, m *metrics.OrderMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		outbox:    emitter,
		inventory: ledger,
		qr:        qr,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// CancelOrder lets the owning customer cancel before shipping. The status
// guard is evaluated after the order row lock is taken and the stock
// restore commits or rolls back with the status change.
func (s *service) CancelOrder(ctx context.Context, orderID, userID uuid.UUID) (*OrderView, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.cancel(ctx, orderID, func(order *models.Order) error {
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		return nil
	}, buildActor(userID, nil, enums.UserRoleCustomer), "")
}

// ExpireOrder cancels a QR order whose payment never arrived. Only PENDING
// QR orders qualify; anything else is left untouched.
func (s *service) ExpireOrder(ctx context.Context, orderID uuid.UUID) (*OrderView, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.cancel(ctx, orderID, func(order *models.Order) error {
		if order.PaymentMethod != enums.PaymentMethodQR || order.Status != enums.OrderStatusPending {
			return invalidTransition(order.Status, enums.OrderStatusCancelled)
		}
		return nil
	}, nil, "payment_timeout")
}

func (s *service) cancel(ctx context.Context, orderID uuid.UUID, authorize func(*models.Order) error, actor *outbox.ActorRef, reason string) (*OrderView, error) {
	var (
		view *OrderView
		from enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		from = order.Status
		if err := authorize(order); err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(enums.OrderStatusCancelled) {
			return invalidTransition(order.Status, enums.OrderStatusCancelled)
		}

		items, err := repo.FindItems(ctx, []uuid.UUID{order.ID}, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		lines := make([]inventory.Line, 0, len(items))
		restored := make([]payloads.OrderLine, 0, len(items))
		for _, item := range items {
			lines = append(lines, inventory.Line{ProductID: item.ProductID, Quantity: item.Quantity})
			restored = append(restored, payloads.OrderLine{
				ProductID: item.ProductID,
				StoreID:   item.StoreID,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
			})
		}
		if err := s.inventory.Restore(ctx, tx, lines); err != nil {
			return err
		}

		now := s.now()
		if err := repo.UpdateStatus(ctx, order.ID, StatusChange{From: order.Status, To: enums.OrderStatusCancelled, CancelledAt: &now}); err != nil {
			return err
		}
		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderCancelledEvent{
				OrderID:        order.ID,
				UserID:         order.UserID,
				PreviousStatus: from,
				Reason:         reason,
				Restored:       restored,
			},
		}); err != nil {
			return err
		}

		v := NewOrderView(*order, items)
		view = &v
		return nil
	})
	s.metrics.ObserveTransition(string(from), string(enums.OrderStatusCancelled), err)
	if err != nil {
		return nil, err
	}
	return view, nil
}

// SellerAdvanceStatus moves an order containing the seller's items from
// CONFIRMED to SHIPPING or from SHIPPING to COMPLETED.
func (s *service) SellerAdvanceStatus(ctx context.Context, input SellerStatusInput) (*OrderView, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "store context missing")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", input.Status)).
			WithDetails(map[string]any{"field": "status"})
	}

	var (
		view *OrderView
		from enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		from = order.Status

		owns, err := repo.HasStoreItem(ctx, order.ID, input.StoreID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check order ownership")
		}
		if !owns {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order has no items from this store")
		}
		if !sellerTargets[input.Status] {
			return pkgerrors.New(pkgerrors.CodeForbidden, "sellers may only move orders to SHIPPING or COMPLETED").
				WithDetails(map[string]any{"current_status": order.Status, "target_status": input.Status})
		}
		if !order.Status.CanTransitionTo(input.Status) {
			return invalidTransition(order.Status, input.Status)
		}

		if err := repo.UpdateStatus(ctx, order.ID, StatusChange{From: order.Status, To: input.Status}); err != nil {
			return err
		}
		order.Status = input.Status

		storeID := input.StoreID
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         buildActor(input.ActorUserID, &storeID, enums.UserRoleSeller),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:    order.ID,
				From:       from,
				To:         input.Status,
				ActorStore: &storeID,
			},
		}); err != nil {
			return err
		}

		items, err := repo.FindItems(ctx, []uuid.UUID{order.ID}, &storeID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		v := NewOrderView(*order, items)
		view = &v
		return nil
	})
	s.metrics.ObserveTransition(string(from), string(input.Status), err)
	if err != nil {
		return nil, err
	}
	return view, nil
}

// AdminConfirmPayment settles a QR order. Confirming twice is a conflict,
// never a silent success.
func (s *service) AdminConfirmPayment(ctx context.Context, orderID, adminID uuid.UUID) (*OrderView, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var (
		view *OrderView
		from enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		from = order.Status
		if order.PaymentMethod != enums.PaymentMethodQR {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("payment confirmation only applies to QR orders, order uses %s", order.PaymentMethod)).
				WithDetails(map[string]any{"payment_method": order.PaymentMethod, "current_status": order.Status})
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order payment already settled: order is %s", order.Status)).
				WithDetails(map[string]any{"current_status": order.Status, "target_status": enums.OrderStatusConfirmed})
		}

		now := s.now()
		if err := repo.UpdateStatus(ctx, order.ID, StatusChange{From: order.Status, To: enums.OrderStatusConfirmed, ConfirmedAt: &now}); err != nil {
			return err
		}
		order.Status = enums.OrderStatusConfirmed
		order.ConfirmedAt = &now

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         buildActor(adminID, nil, enums.UserRoleAdmin),
			Data: payloads.OrderStatusChangedEvent{
				OrderID: order.ID,
				From:    from,
				To:      enums.OrderStatusConfirmed,
			},
		}); err != nil {
			return err
		}

		items, err := repo.FindItems(ctx, []uuid.UUID{order.ID}, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		v := NewOrderView(*order, items)
		view = &v
		return nil
	})
	s.metrics.ObserveTransition(string(from), string(enums.OrderStatusConfirmed), err)
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, next, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, err
	}
	return s.buildList(ctx, rows, next, nil)
}

func (s *service) GetOrder(ctx context.Context, orderID, userID uuid.UUID) (*OrderView, error) {
	order, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.FindItems(ctx, []uuid.UUID{order.ID}, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	view := NewOrderView(*order, items)
	return &view, nil
}

// ListStoreOrders returns orders with the store's items only; other
// sellers' lines in a multi-vendor order are never exposed.
func (s *service) ListStoreOrders(ctx context.Context, storeID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "store context missing")
	}
	rows, next, err := s.repo.ListByStore(ctx, storeID, params)
	if err != nil {
		return nil, err
	}
	return s.buildList(ctx, rows, next, &storeID)
}

func (s *service) ListAdminOrders(ctx context.Context, params pagination.Params, filters AdminOrderFilters) (*OrderList, error) {
	rows, next, err := s.repo.ListAll(ctx, params, filters)
	if err != nil {
		return nil, err
	}
	return s.buildList(ctx, rows, next, nil)
}

func (s *service) ownedOrder(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) buildList(ctx context.Context, rows []models.Order, next string, storeID *uuid.UUID) (*OrderList, error) {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	items, err := s.repo.FindItems(ctx, ids, storeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	byOrder := make(map[uuid.UUID][]ItemRow, len(rows))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	list := &OrderList{Orders: make([]OrderView, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		list.Orders = append(list.Orders, NewOrderView(row, byOrder[row.ID]))
	}
	return list, nil
}

func invalidTransition(current, target enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("invalid transition from %s to %s", current, target)).
		WithDetails(map[string]any{"current_status": current, "target_status": target})
}

func buildActor(userID uuid.UUID, storeID *uuid.UUID, role enums.UserRole) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, StoreID: storeID, Role: role}
}
