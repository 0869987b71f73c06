package checkout

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/zenergy-backend/internal/cart"
	"github.com/angelmondragon/zenergy-backend/internal/inventory"
	"github.com/angelmondragon/zenergy-backend/internal/orders"
	"github.com/angelmondragon/zenergy-backend/pkg/config"
	"github.com/angelmondragon/zenergy-backend/pkg/db/models"
	"github.com/angelmondragon/zenergy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/zenergy-backend/pkg/errors"
	"github.com/angelmondragon/zenergy-backend/pkg/metrics"
	"github.com/angelmondragon/zenergy-backend/pkg/money"
	"github.com/angelmondragon/zenergy-backend/pkg/outbox"
	"github.com/angelmondragon/zenergy-backend/pkg/outbox/payloads"
)

// MinAddressLength is the shortest accepted shipping address after trimming.
const MinAddressLength = 5

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service turns a customer's cart into an order.
type Service interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*orders.OrderView, error)
}

// CreateOrderInput captures the checkout form.
type CreateOrderInput struct {
	ShippingAddress string
	PaymentMethod   string
}

type service struct {
	tx          txRunner
	cartRepo    cart.Repository
	ordersRepo  orders.Repository
	ledger      inventory.Ledger
	outbox      outbox.Emitter
	shippingFee decimal.Decimal
	taxRate     decimal.Decimal
	metrics     *metrics.OrderMetrics
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	cartRepo cart.Repository,
	ordersRepo orders.Repository,
	ledger inventory.Ledger,
	emitter outbox.Emitter,
	cfg config.CheckoutConfig,
	m *metrics.OrderMetrics,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		tx:          tx,
		cartRepo:    cartRepo,
		ordersRepo:  ordersRepo,
		ledger:      ledger,
		outbox:      emitter,
		shippingFee: cfg.ShippingFeeAmount(),
		taxRate:     cfg.TaxRateValue(),
		metrics:     m,
	}, nil
}

// CreateOrder runs the whole checkout in one transaction: cart read,
// product locks in ascending id order, availability checks, order insert,
// stock decrement, cart clear and the order.created event. Any failure
// leaves no trace.
func (s *service) CreateOrder(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*orders.OrderView, error) {
	view, err := s.createOrder(ctx, userID, input)
	s.metrics.ObserveCheckout(strings.ToUpper(strings.TrimSpace(input.PaymentMethod)), err)
	return view, err
}

func (s *service) createOrder(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*orders.OrderView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	address, method, err := validateInput(input)
	if err != nil {
		return nil, err
	}

	var view *orders.OrderView
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		ordersRepo := s.ordersRepo.WithTx(tx)

		cartItems, err := cartRepo.ListByUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(cartItems) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		lines := make([]inventory.Line, 0, len(cartItems))
		for _, item := range cartItems {
			if item.Quantity <= 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity for product %s must be positive", item.ProductID)).
					WithDetails(map[string]any{"field": "quantity", "product_id": item.ProductID.String()})
			}
			lines = append(lines, inventory.Line{ProductID: item.ProductID, Quantity: item.Quantity})
		}
		requested := inventory.Aggregate(lines)
		productIDs := inventory.SortedIDs(keys(requested))

		products, err := s.ledger.Lock(ctx, tx, productIDs)
		if err != nil {
			return err
		}
		for _, id := range productIDs {
			product := products[id]
			if !product.IsActive {
				return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("product %s is not available", id)).
					WithDetails(map[string]any{"product_id": id.String()})
			}
			if product.Stock < requested[id] {
				return inventory.InsufficientStock(id, product.Stock)
			}
		}

		order, storeIDs := buildOrder(userID, address, method, cartItems, products)
		totals := money.ComputeTotals(order.Subtotal, s.shippingFee, s.taxRate)
		order.Subtotal = totals.Subtotal
		order.ShippingFee = totals.ShippingFee
		order.Tax = totals.Tax
		order.TotalAmount = totals.Total

		if err := ordersRepo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		for _, id := range productIDs {
			if err := s.ledger.Decrement(ctx, tx, id, requested[id]); err != nil {
				return err
			}
		}
		if _, err := cartRepo.ClearByUser(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}

		event := payloads.OrderCreatedEvent{
			OrderID:       order.ID,
			UserID:        userID,
			Status:        order.Status,
			PaymentMethod: order.PaymentMethod,
			TotalAmount:   order.TotalAmount,
			StoreIDs:      storeIDs,
			Lines:         make([]payloads.OrderLine, 0, len(order.Items)),
		}
		for _, item := range order.Items {
			event.Lines = append(event.Lines, payloads.OrderLine{
				ProductID: item.ProductID,
				StoreID:   item.StoreID,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
			})
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: userID, Role: enums.UserRoleCustomer},
			Data:          event,
		}); err != nil {
			return err
		}

		items, err := ordersRepo.FindItems(ctx, []uuid.UUID{order.ID}, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		v := orders.NewOrderView(*order, items)
		view = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func validateInput(input CreateOrderInput) (string, enums.PaymentMethod, error) {
	address := strings.TrimSpace(input.ShippingAddress)
	if utf8.RuneCountInString(address) < MinAddressLength {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("shipping address must be at least %d characters", MinAddressLength)).
			WithDetails(map[string]any{"field": "shipping_address"})
	}
	method, err := enums.ParsePaymentMethod(strings.ToUpper(strings.TrimSpace(input.PaymentMethod)))
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payment method must be COD or QR").
			WithDetails(map[string]any{"field": "payment_method"})
	}
	return address, method, nil
}

// buildOrder prices one item per cart line from the locked product rows.
// The cart's cached price is ignored.
func buildOrder(userID uuid.UUID, address string, method enums.PaymentMethod, cartItems []models.CartItem, products map[uuid.UUID]models.Product) (*models.Order, []uuid.UUID) {
	order := &models.Order{
		ID:              uuid.New(),
		UserID:          userID,
		Status:          method.InitialOrderStatus(),
		PaymentMethod:   method,
		ShippingAddress: address,
		Subtotal:        decimal.Zero,
		Items:           make([]models.OrderItem, 0, len(cartItems)),
	}
	seen := make(map[uuid.UUID]bool)
	var storeIDs []uuid.UUID
	for _, line := range cartItems {
		product := products[line.ProductID]
		item := models.OrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: product.ID,
			StoreID:   product.StoreID,
			Quantity:  line.Quantity,
			UnitPrice: money.Round(product.Price),
		}
		order.Items = append(order.Items, item)
		order.Subtotal = order.Subtotal.Add(item.LineTotal())
		if !seen[product.StoreID] {
			seen[product.StoreID] = true
			storeIDs = append(storeIDs, product.StoreID)
		}
	}
	return order, storeIDs
}

func keys(m map[uuid.UUID]int) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
