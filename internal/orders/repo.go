package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/zenergy-backend/pkg/db"
	"github.com/angelmondragon/zenergy-backend/pkg/db/models"
	"github.com/angelmondragon/zenergy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/zenergy-backend/pkg/errors"
	"github.com/angelmondragon/zenergy-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order row followed by its items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order == nil {
		return errors.New("order is required")
	}
	items := order.Items
	if err := r.db.WithContext(ctx).Omit("Items").Create(order).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&order).Error; err != nil {
		return nil, orderNotFound(err)
	}
	return &order, nil
}

// FindByIDForUpdate locks the order row for the rest of the transaction.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).Take(&order).Error; err != nil {
		return nil, orderNotFound(err)
	}
	return &order, nil
}

// FindItems loads the items of the given orders with their store names.
// A non-nil storeID restricts the result to that store's items.
func (r *repository) FindItems(ctx context.Context, orderIDs []uuid.UUID, storeID *uuid.UUID) ([]ItemRow, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	q := r.db.WithContext(ctx).
		Table("order_items AS oi").
		Select("oi.id, oi.order_id, oi.product_id, oi.store_id, oi.quantity, oi.unit_price, COALESCE(s.name, '') AS store_name").
		Joins("LEFT JOIN stores s ON s.id = oi.store_id").
		Where("oi.order_id IN ?", orderIDs)
	if storeID != nil {
		q = q.Where("oi.store_id = ?", *storeID)
	}
	var rows []ItemRow
	if err := q.Order("oi.created_at ASC").Order("oi.id ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) HasStoreItem(ctx context.Context, orderID, storeID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("order_id = ? AND store_id = ?", orderID, storeID).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateStatus is a compare-and-set on the status column. Zero affected
// rows means another writer moved the order first.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, change StatusChange) error {
	updates := map[string]any{
		"status":     change.To,
		"updated_at": time.Now().UTC(),
	}
	if change.ConfirmedAt != nil {
		updates["confirmed_at"] = *change.ConfirmedAt
	}
	if change.CancelledAt != nil {
		updates["cancelled_at"] = *change.CancelledAt
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, change.From).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
	}
	return nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{}).Where("orders.user_id = ?", userID)
	return r.page(q, params)
}

// ListByStore returns orders holding at least one item of the store.
func (r *repository) ListByStore(ctx context.Context, storeID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = orders.id AND oi.store_id = ?)", storeID)
	return r.page(q, params)
}

func (r *repository) ListAll(ctx context.Context, params pagination.Params, filters AdminOrderFilters) ([]models.Order, string, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{})
	if filters.Status != nil {
		q = q.Where("orders.status = ?", *filters.Status)
	}
	if filters.PaymentMethod != nil {
		q = q.Where("orders.payment_method = ?", *filters.PaymentMethod)
	}
	return r.page(q, params)
}

// FindPendingBefore lists orders still PENDING for the payment method that
// were created before cutoff, oldest first.
func (r *repository) FindPendingBefore(ctx context.Context, method enums.PaymentMethod, cutoff time.Time) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_method = ? AND created_at < ?", enums.OrderStatusPending, method, cutoff).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) page(q *gorm.DB, params pagination.Params) ([]models.Order, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		q = q.Where("(orders.created_at < ?) OR (orders.created_at = ? AND orders.id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Order
	err = q.Order("orders.created_at DESC").
		Order("orders.id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, "", err
	}
	rows, next := pagination.Page(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return rows, next, nil
}

func orderNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return err
}
