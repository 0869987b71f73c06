package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/zenergy-backend/pkg/db/models"
	"github.com/angelmondragon/zenergy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/zenergy-backend/pkg/errors"
	"github.com/angelmondragon/zenergy-backend/pkg/pagination"
)

// Repository reads the inputs of the balance formula and records
// withdrawal requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	TotalRevenue(ctx context.Context, storeID uuid.UUID) (decimal.Decimal, error)
	TotalWithdrawn(ctx context.Context, storeID uuid.UUID) (decimal.Decimal, error)
	CreateWithdraw(ctx context.Context, request *models.WithdrawRequest) error
	ListWithdrawals(ctx context.Context, storeID uuid.UUID, params pagination.Params) ([]models.WithdrawRequest, string, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the wallet repository to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// TotalRevenue sums the full total of every settled order that holds at
// least one item of the store. Each order counts once regardless of how
// many of its items belong to the store.
func (r *repository) TotalRevenue(ctx context.Context, storeID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(o.total_amount), 0)
		FROM orders o
		WHERE o.status IN ?
		  AND EXISTS (
			SELECT 1 FROM order_items oi
			WHERE oi.order_id = o.id AND oi.store_id = ?
		  )`, enums.SettledOrderStatuses, storeID).Row().Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// TotalWithdrawn sums every withdrawal that was not rejected.
func (r *repository) TotalWithdrawn(ctx context.Context, storeID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(amount), 0)
		FROM withdraw_requests
		WHERE store_id = ? AND status <> ?`, storeID, enums.WithdrawStatusRejected).Row().Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (r *repository) CreateWithdraw(ctx context.Context, request *models.WithdrawRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) ListWithdrawals(ctx context.Context, storeID uuid.UUID, params pagination.Params) ([]models.WithdrawRequest, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	q := r.db.WithContext(ctx).Where("store_id = ?", storeID)
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.WithdrawRequest
	err = q.Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, "", err
	}
	rows, next := pagination.Page(rows, params.Limit, func(w models.WithdrawRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: w.CreatedAt, ID: w.ID}
	})
	return rows, next, nil
}
