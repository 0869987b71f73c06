package orders

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/zenergy-backend/internal/inventory"
	"github.com/angelmondragon/zenergy-backend/pkg/config"
	"github.com/angelmondragon/zenergy-backend/pkg/db"
	"github.com/angelmondragon/zenergy-backend/pkg/db/dbtest"
	"github.com/angelmondragon/zenergy-backend/pkg/db/models"
	"github.com/angelmondragon/zenergy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/zenergy-backend/pkg/errors"
	"github.com/angelmondragon/zenergy-backend/pkg/outbox"
	"github.com/angelmondragon/zenergy-backend/pkg/pagination"
)

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox unavailable")
}

var testQR = config.VietQRConfig{
	BankBin:     "970436",
	AccountNo:   "0123456789",
	AccountName: "ZENERGY JSC",
	BaseURL:     "https://img.vietqr.io/image",
	Template:    "compact2",
}

func newTestService(t *testing.T, conn *gorm.DB, emitter outbox.Emitter) Service {
	t.Helper()
	if emitter == nil {
		emitter = outbox.NewService(outbox.NewRepository(conn), nil)
	}
	svc, err := NewService(NewRepository(conn), db.NewFromConn(conn), emitter, inventory.NewLedger(), testQR, nil)
	require.NoError(t, err)
	return svc
}

type fixture struct {
	store   models.Store
	product models.Product
	order   models.Order
}

// seedPlacedOrder mimics a committed checkout: stock already reduced by qty.
func seedPlacedOrder(t *testing.T, conn *gorm.DB, status enums.OrderStatus, method enums.PaymentMethod, qty int) fixture {
	t.Helper()
	store := dbtest.SeedStore(t, conn)
	product := dbtest.SeedProduct(t, conn, store.ID, "120000.00", 10-qty)
	order := dbtest.SeedOrder(t, conn, models.Order{
		UserID:          uuid.New(),
		Status:          status,
		PaymentMethod:   method,
		ShippingAddress: "12 Nguyen Hue, District 1",
		Subtotal:        decimal.RequireFromString("120000").Mul(decimal.NewFromInt(int64(qty))),
		ShippingFee:     decimal.RequireFromString("50000"),
		Tax:             decimal.RequireFromString("12000").Mul(decimal.NewFromInt(int64(qty))),
		TotalAmount:     decimal.RequireFromString("132000").Mul(decimal.NewFromInt(int64(qty))).Add(decimal.RequireFromString("50000")),
	}, models.OrderItem{ProductID: product.ID, StoreID: store.ID, Quantity: qty, UnitPrice: product.Price})
	return fixture{store: store, product: product, order: order}
}

func TestCancelOrderRestoresStockExactlyOnce(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, nil)
	f := seedPlacedOrder(t, conn, enums.OrderStatusConfirmed, enums.PaymentMethodCOD, 3)
	require.Equal(t, 7, dbtest.ProductStock(t, conn, f.product.ID))

	view, err := svc.CancelOrder(context.Background(), f.order.ID, f.order.UserID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, view.Status)
	require.NotNil(t, view.CancelledAt)
	require.Equal(t, 10, dbtest.ProductStock(t, conn, f.product.ID))

	_, err = svc.CancelOrder(context.Background(), f.order.ID, f.order.UserID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Contains(t, err.Error(), "CANCELLED")
	require.Equal(t, 10, dbtest.ProductStock(t, conn, f.product.ID))
	require.EqualValues(t, 1, dbtest.Count(t, conn, "outbox_events"))
}

func TestCancelOrderGuards(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, nil)
	ctx := context.Background()

	f := seedPlacedOrder(t, conn, enums.OrderStatusPending, enums.PaymentMethodQR, 1)
	_, err := svc.CancelOrder(ctx, f.order.ID, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	shipped := seedPlacedOrder(t, conn, enums.OrderStatusShipping, enums.PaymentMethodCOD, 2)
	_, err = svc.CancelOrder(ctx, shipped.order.ID, shipped.order.UserID)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	require.Equal(t, map[string]any{
		"current_status": enums.OrderStatusShipping,
		"target_status":  enums.OrderStatusCancelled,
	}, typed.Details())
	require.Equal(t, 8, dbtest.ProductStock(t, conn, shipped.product.ID))

	_, err = svc.CancelOrder(ctx, uuid.New(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCancelOrderRollsBackWhenEventFails(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, failingEmitter{})
	f := seedPlacedOrder(t, conn, enums.OrderStatusConfirmed, enums.PaymentMethodCOD, 4)

	_, err := svc.CancelOrder(context.Background(), f.order.ID, f.order.UserID)
	require.Error(t, err)
	require.Equal(t, 6, dbtest.ProductStock(t, conn, f.product.ID))

	var order models.Order
	require.NoError(t, conn.First(&order, "id = ?", f.order.ID).Error)
	require.Equal(t, enums.OrderStatusConfirmed, order.Status)
}

func TestSellerAdvanceStatus(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, nil)
	ctx := context.Background()
	f := seedPlacedOrder(t, conn, enums.OrderStatusConfirmed, enums.PaymentMethodCOD, 1)

	_, err := svc.SellerAdvanceStatus(ctx, SellerStatusInput{OrderID: f.order.ID, StoreID: uuid.New(), Status: enums.OrderStatusShipping})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.SellerAdvanceStatus(ctx, SellerStatusInput{OrderID: f.order.ID, StoreID: f.store.ID, Status: enums.OrderStatusCompleted})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	// cancelling and confirming payment belong to other actors
	_, err = svc.SellerAdvanceStatus(ctx, SellerStatusInput{OrderID: f.order.ID, StoreID: f.store.ID, Status: enums.OrderStatusCancelled})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "got %v", err)
	_, err = svc.SellerAdvanceStatus(ctx, SellerStatusInput{OrderID: f.order.ID, StoreID: f.store.ID, Status: enums.OrderStatusConfirmed})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "got %v", err)

	pending := seedPlacedOrder(t, conn, enums.OrderStatusPending, enums.PaymentMethodQR, 1)
	_, err = svc.SellerAdvanceStatus(ctx, SellerStatusInput{OrderID: pending.order.ID, StoreID: pending.store.ID, Status: enums.OrderStatusConfirmed})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeForbidden, typed.Code())
	require.Equal(t, map[string]any{
		"current_status": enums.OrderStatusPending,
		"target_status":  enums.OrderStatusConfirmed,
	}, typed.Details())
	var stillPending models.Order
	require.NoError(t, conn.First(&stillPending, "id = ?", pending.order.ID).Error)
	require.Equal(t, enums.OrderStatusPending, stillPending.Status)

	_, err = svc.SellerAdvanceStatus(ctx, SellerStatusInput{OrderID: f.order.ID, StoreID: f.store.ID, Status: "LOST"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	view, err := svc.SellerAdvanceStatus(ctx, SellerStatusInput{OrderID: f.order.ID, StoreID: f.store.ID, ActorUserID: f.store.OwnerID, Status: enums.OrderStatusShipping})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusShipping, view.Status)

	view, err = svc.SellerAdvanceStatus(ctx, SellerStatusInput{OrderID: f.order.ID, StoreID: f.store.ID, ActorUserID: f.store.OwnerID, Status: enums.OrderStatusCompleted})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCompleted, view.Status)

	_, err = svc.CancelOrder(ctx, f.order.ID, f.order.UserID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Equal(t, 9, dbtest.ProductStock(t, conn, f.product.ID))
}

func TestAdminConfirmPaymentIsOneShot(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, nil)
	ctx := context.Background()
	f := seedPlacedOrder(t, conn, enums.OrderStatusPending, enums.PaymentMethodQR, 1)

	view, err := svc.AdminConfirmPayment(ctx, f.order.ID, uuid.New())
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, view.Status)
	require.NotNil(t, view.ConfirmedAt)

	_, err = svc.AdminConfirmPayment(ctx, f.order.ID, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Contains(t, err.Error(), "CONFIRMED")

	events, err := outbox.NewRepository(conn).ListForAggregate(ctx, f.order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventOrderPaymentConfirmed, events[0].EventType)

	cod := seedPlacedOrder(t, conn, enums.OrderStatusConfirmed, enums.PaymentMethodCOD, 1)
	_, err = svc.AdminConfirmPayment(ctx, cod.order.ID, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestListStoreOrdersOnlyReturnsStoreItems(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, nil)
	storeA := dbtest.SeedStore(t, conn)
	storeB := dbtest.SeedStore(t, conn)
	pa := dbtest.SeedProduct(t, conn, storeA.ID, "10.00", 5)
	pb := dbtest.SeedProduct(t, conn, storeB.ID, "20.00", 5)
	dbtest.SeedOrder(t, conn, models.Order{
		UserID:          uuid.New(),
		Status:          enums.OrderStatusConfirmed,
		PaymentMethod:   enums.PaymentMethodCOD,
		ShippingAddress: "1 Le Loi Street",
		Subtotal:        decimal.RequireFromString("30"),
		ShippingFee:     decimal.RequireFromString("50000"),
		Tax:             decimal.RequireFromString("3"),
		TotalAmount:     decimal.RequireFromString("50033"),
	},
		models.OrderItem{ProductID: pa.ID, StoreID: storeA.ID, Quantity: 1, UnitPrice: pa.Price},
		models.OrderItem{ProductID: pb.ID, StoreID: storeB.ID, Quantity: 1, UnitPrice: pb.Price},
	)

	list, err := svc.ListStoreOrders(context.Background(), storeA.ID, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	require.Len(t, list.Orders[0].Items, 1)
	require.Equal(t, storeA.ID, list.Orders[0].Items[0].StoreID)
	require.Equal(t, storeA.Name, list.Orders[0].Items[0].StoreName)

	empty, err := svc.ListStoreOrders(context.Background(), uuid.New(), pagination.Params{})
	require.NoError(t, err)
	require.Empty(t, empty.Orders)
}

func TestListOrdersPaginatesNewestFirst(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, nil)
	userID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		o := dbtest.SeedOrder(t, conn, models.Order{
			UserID:          userID,
			Status:          enums.OrderStatusPending,
			PaymentMethod:   enums.PaymentMethodQR,
			ShippingAddress: "7 Hai Ba Trung",
			Subtotal:        decimal.Zero,
			ShippingFee:     decimal.Zero,
			Tax:             decimal.Zero,
			TotalAmount:     decimal.NewFromInt(int64(i + 1)),
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		})
		ids = append(ids, o.ID)
	}

	first, err := svc.ListOrders(context.Background(), userID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	require.Equal(t, ids[2], first.Orders[0].ID)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.ListOrders(context.Background(), userID, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	require.Equal(t, ids[0], second.Orders[0].ID)
	require.Empty(t, second.NextCursor)

	_, err = svc.ListOrders(context.Background(), userID, pagination.Params{Cursor: "%%%"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListAdminOrdersFiltersPaymentQueue(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, nil)
	pending := seedPlacedOrder(t, conn, enums.OrderStatusPending, enums.PaymentMethodQR, 1)
	seedPlacedOrder(t, conn, enums.OrderStatusConfirmed, enums.PaymentMethodCOD, 1)

	status, method := enums.OrderStatusPending, enums.PaymentMethodQR
	list, err := svc.ListAdminOrders(context.Background(), pagination.Params{}, AdminOrderFilters{Status: &status, PaymentMethod: &method})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	require.Equal(t, pending.order.ID, list.Orders[0].ID)

	all, err := svc.ListAdminOrders(context.Background(), pagination.Params{}, AdminOrderFilters{})
	require.NoError(t, err)
	require.Len(t, all.Orders, 2)
}

func TestGetOrderHidesOtherCustomersOrders(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, nil)
	f := seedPlacedOrder(t, conn, enums.OrderStatusConfirmed, enums.PaymentMethodCOD, 2)

	view, err := svc.GetOrder(context.Background(), f.order.ID, f.order.UserID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	require.True(t, view.Items[0].LineTotal.Equal(decimal.RequireFromString("240000")))

	_, err = svc.GetOrder(context.Background(), f.order.ID, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestPaymentQR(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, nil)
	ctx := context.Background()
	f := seedPlacedOrder(t, conn, enums.OrderStatusPending, enums.PaymentMethodQR, 1)

	qr, err := svc.PaymentQR(ctx, f.order.ID, f.order.UserID)
	require.NoError(t, err)
	require.EqualValues(t, 182000, qr.Amount)
	require.True(t, strings.HasPrefix(qr.QRURL, "https://img.vietqr.io/image/970436-0123456789-compact2.png?"))

	parsed, err := url.Parse(qr.QRURL)
	require.NoError(t, err)
	require.Equal(t, "182000", parsed.Query().Get("amount"))
	require.Equal(t, "ZENERGY ORDER #"+f.order.ID.String(), parsed.Query().Get("addInfo"))
	require.Equal(t, "ZENERGY JSC", parsed.Query().Get("accountName"))

	cod := seedPlacedOrder(t, conn, enums.OrderStatusConfirmed, enums.PaymentMethodCOD, 1)
	_, err = svc.PaymentQR(ctx, cod.order.ID, cod.order.UserID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, config.VietQRConfig{}, nil)
	require.Error(t, err)
}

func TestExpireOrderOnlyCancelsPendingQROrders(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, nil)
	ctx := context.Background()

	stale := seedPlacedOrder(t, conn, enums.OrderStatusPending, enums.PaymentMethodQR, 2)
	view, err := svc.ExpireOrder(ctx, stale.order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, view.Status)
	require.Equal(t, 10, dbtest.ProductStock(t, conn, stale.product.ID))

	cod := seedPlacedOrder(t, conn, enums.OrderStatusConfirmed, enums.PaymentMethodCOD, 2)
	_, err = svc.ExpireOrder(ctx, cod.order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Equal(t, 8, dbtest.ProductStock(t, conn, cod.product.ID))
}

func TestCancelRacingShipmentHasSingleWinner(t *testing.T) {
	for i := 0; i < 5; i++ {
		conn := dbtest.OpenFile(t)
		svc := newTestService(t, conn, nil)
		f := seedPlacedOrder(t, conn, enums.OrderStatusConfirmed, enums.PaymentMethodCOD, 3)

		var (
			wg        sync.WaitGroup
			start     = make(chan struct{})
			cancelErr error
			shipErr   error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, cancelErr = svc.CancelOrder(context.Background(), f.order.ID, f.order.UserID)
		}()
		go func() {
			defer wg.Done()
			<-start
			_, shipErr = svc.SellerAdvanceStatus(context.Background(), SellerStatusInput{
				OrderID:     f.order.ID,
				StoreID:     f.store.ID,
				ActorUserID: uuid.New(),
				Status:      enums.OrderStatusShipping,
			})
		}()
		close(start)
		wg.Wait()

		var order models.Order
		require.NoError(t, conn.First(&order, "id = ?", f.order.ID).Error)
		switch {
		case cancelErr == nil:
			require.True(t, pkgerrors.IsCode(shipErr, pkgerrors.CodeStateConflict), "shipment error: %v", shipErr)
			assert.Equal(t, enums.OrderStatusCancelled, order.Status)
			assert.Equal(t, 10, dbtest.ProductStock(t, conn, f.product.ID))
		case shipErr == nil:
			require.True(t, pkgerrors.IsCode(cancelErr, pkgerrors.CodeStateConflict), "cancel error: %v", cancelErr)
			assert.Equal(t, enums.OrderStatusShipping, order.Status)
			assert.Equal(t, 7, dbtest.ProductStock(t, conn, f.product.ID))
		default:
			t.Fatalf("both transitions failed: cancel=%v ship=%v", cancelErr, shipErr)
		}
		assert.EqualValues(t, 1, dbtest.Count(t, conn, "outbox_events"))
	}
}
