package wallet

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/zenergy-backend/internal/stores"
	"github.com/angelmondragon/zenergy-backend/pkg/db"
	"github.com/angelmondragon/zenergy-backend/pkg/db/dbtest"
	"github.com/angelmondragon/zenergy-backend/pkg/db/models"
	"github.com/angelmondragon/zenergy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/zenergy-backend/pkg/errors"
	"github.com/angelmondragon/zenergy-backend/pkg/outbox"
	"github.com/angelmondragon/zenergy-backend/pkg/pagination"
)

func newTestService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(
		NewRepository(conn),
		stores.NewRepository(conn),
		db.NewFromConn(conn),
		outbox.NewService(outbox.NewRepository(conn), nil),
		nil,
	)
	require.NoError(t, err)
	return svc
}

func seedSettledOrder(t *testing.T, conn *gorm.DB, status enums.OrderStatus, total string, storeIDs ...uuid.UUID) models.Order {
	t.Helper()
	items := make([]models.OrderItem, 0, len(storeIDs))
	for _, storeID := range storeIDs {
		items = append(items, models.OrderItem{ProductID: uuid.New(), StoreID: storeID, Quantity: 1, UnitPrice: decimal.RequireFromString("1")})
	}
	amount := decimal.RequireFromString(total)
	return dbtest.SeedOrder(t, conn, models.Order{
		UserID:          uuid.New(),
		Status:          status,
		PaymentMethod:   enums.PaymentMethodCOD,
		ShippingAddress: "21 Tran Phu Street",
		Subtotal:        amount,
		ShippingFee:     decimal.Zero,
		Tax:             decimal.Zero,
		TotalAmount:     amount,
	}, items...)
}

func seedWithdraw(t *testing.T, conn *gorm.DB, storeID uuid.UUID, amount string, status enums.WithdrawStatus) {
	t.Helper()
	id := uuid.New()
	row := models.WithdrawRequest{
		ID:          id,
		StoreID:     storeID,
		Code:        WithdrawCode(id),
		Amount:      decimal.RequireFromString(amount),
		Status:      status,
		BankName:    "Vietcombank",
		BankAccount: "0011223344",
		BankHolder:  "NGUYEN VAN A",
	}
	require.NoError(t, conn.Create(&row).Error)
}

func TestOverviewIgnoresRejectedWithdrawals(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn)
	store := dbtest.SeedStore(t, conn, dbtest.WithBankDetails())
	seedWithdraw(t, conn, store.ID, "500000", enums.WithdrawStatusRejected)

	overview, err := svc.Overview(context.Background(), store.ID)
	require.NoError(t, err)
	assert.True(t, overview.Balance.IsZero(), overview.Balance.String())
	assert.True(t, overview.TotalRevenue.IsZero())
	assert.True(t, overview.Withdrawn.IsZero())
}

func TestOverviewCountsSettledOrdersOncePerOrder(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn)
	store := dbtest.SeedStore(t, conn)
	other := dbtest.SeedStore(t, conn)

	seedSettledOrder(t, conn, enums.OrderStatusConfirmed, "100000", store.ID, store.ID)
	seedSettledOrder(t, conn, enums.OrderStatusShipping, "50000", store.ID, other.ID)
	seedSettledOrder(t, conn, enums.OrderStatusCompleted, "25000.50", store.ID)
	seedSettledOrder(t, conn, enums.OrderStatusPending, "999999", store.ID)
	seedSettledOrder(t, conn, enums.OrderStatusCancelled, "888888", store.ID)
	seedSettledOrder(t, conn, enums.OrderStatusConfirmed, "777777", other.ID)
	seedWithdraw(t, conn, store.ID, "30000", enums.WithdrawStatusPending)
	seedWithdraw(t, conn, store.ID, "20000", enums.WithdrawStatusCompleted)
	seedWithdraw(t, conn, store.ID, "40000", enums.WithdrawStatusRejected)

	overview, err := svc.Overview(context.Background(), store.ID)
	require.NoError(t, err)
	assert.Equal(t, "175000.50", overview.TotalRevenue.StringFixed(2))
	assert.Equal(t, "50000.00", overview.Withdrawn.StringFixed(2))
	assert.Equal(t, "125000.50", overview.Balance.StringFixed(2))

	_, err = svc.Overview(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRequestWithdrawRejectsAmountAboveBalance(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn)
	store := dbtest.SeedStore(t, conn, dbtest.WithBankDetails())
	seedSettledOrder(t, conn, enums.OrderStatusCompleted, "200000", store.ID)

	_, err := svc.RequestWithdraw(context.Background(), RequestWithdrawInput{StoreID: store.ID, Amount: decimal.NewFromInt(250000)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, "insufficient balance: 200000", pkgerrors.As(err).Message())
	assert.EqualValues(t, 0, dbtest.Count(t, conn, "withdraw_requests"))
	assert.EqualValues(t, 0, dbtest.Count(t, conn, "outbox_events"))
}

func TestRequestWithdrawPersistsPendingRequest(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn)
	store := dbtest.SeedStore(t, conn, dbtest.WithBankDetails())
	seedSettledOrder(t, conn, enums.OrderStatusConfirmed, "200000", store.ID)

	view, err := svc.RequestWithdraw(context.Background(), RequestWithdrawInput{
		StoreID:     store.ID,
		ActorUserID: store.OwnerID,
		Amount:      decimal.RequireFromString("150000"),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawStatusPending, view.Status)
	assert.True(t, strings.HasPrefix(view.Code, "WD-"))
	assert.Len(t, view.Code, 11)
	assert.Equal(t, *store.BankAccount, view.BankAccount)

	overview, err := svc.Overview(context.Background(), store.ID)
	require.NoError(t, err)
	assert.Equal(t, "50000.00", overview.Balance.StringFixed(2))

	_, err = svc.RequestWithdraw(context.Background(), RequestWithdrawInput{StoreID: store.ID, Amount: decimal.RequireFromString("50000.01")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	events, err := outbox.NewRepository(conn).ListForAggregate(context.Background(), view.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventWithdrawRequested, events[0].EventType)
}

func TestRequestWithdrawValidation(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn)
	ctx := context.Background()
	bare := dbtest.SeedStore(t, conn)
	seedSettledOrder(t, conn, enums.OrderStatusCompleted, "200000", bare.ID)

	for _, amount := range []string{"0", "-10", "0.001"} {
		_, err := svc.RequestWithdraw(ctx, RequestWithdrawInput{StoreID: bare.ID, Amount: decimal.RequireFromString(amount)})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "amount %s", amount)
	}

	_, err := svc.RequestWithdraw(ctx, RequestWithdrawInput{StoreID: bare.ID, Amount: decimal.NewFromInt(1000)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), "bank details")

	_, err = svc.RequestWithdraw(ctx, RequestWithdrawInput{StoreID: uuid.New(), Amount: decimal.NewFromInt(1000)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.EqualValues(t, 0, dbtest.Count(t, conn, "withdraw_requests"))
}

func TestConcurrentWithdrawalsCannotOverspend(t *testing.T) {
	conn := dbtest.OpenFile(t)
	svc := newTestService(t, conn)
	store := dbtest.SeedStore(t, conn, dbtest.WithBankDetails())
	seedSettledOrder(t, conn, enums.OrderStatusCompleted, "200000", store.ID)

	const attempts = 3
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, attempts)
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.RequestWithdraw(context.Background(), RequestWithdrawInput{StoreID: store.ID, Amount: decimal.NewFromInt(150000)})
		}(i)
	}
	close(start)
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, ok)
	assert.EqualValues(t, 1, dbtest.Count(t, conn, "withdraw_requests"))
}

func TestListWithdrawalsPaginates(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn)
	store := dbtest.SeedStore(t, conn)
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 3; i++ {
		id := uuid.New()
		require.NoError(t, conn.Create(&models.WithdrawRequest{
			ID:          id,
			StoreID:     store.ID,
			Code:        WithdrawCode(id),
			Amount:      decimal.NewFromInt(int64(1000 * (i + 1))),
			Status:      enums.WithdrawStatusPending,
			BankName:    "ACB",
			BankAccount: "123",
			BankHolder:  "TRAN B",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	first, err := svc.ListWithdrawals(context.Background(), store.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Withdrawals, 2)
	assert.True(t, first.Withdrawals[0].Amount.Equal(decimal.NewFromInt(3000)))
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.ListWithdrawals(context.Background(), store.ID, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Withdrawals, 1)
	assert.Empty(t, second.NextCursor)
}

func TestWithdrawCodeFormat(t *testing.T) {
	id := uuid.MustParse("a1b2c3d4-0000-4000-8000-000000000000")
	assert.Equal(t, "WD-A1B2C3D4", WithdrawCode(id))
}
