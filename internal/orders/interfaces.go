package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/zenergy-backend/pkg/db/models"
	"github.com/angelmondragon/zenergy-backend/pkg/enums"
	"github.com/angelmondragon/zenergy-backend/pkg/pagination"
)

// StatusChange describes a guarded status update. The update only applies
// while the row still holds From.
type StatusChange struct {
	From        enums.OrderStatus
	To          enums.OrderStatus
	ConfirmedAt *time.Time
	CancelledAt *time.Time
}

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindItems(ctx context.Context, orderIDs []uuid.UUID, storeID *uuid.UUID) ([]ItemRow, error)
	HasStoreItem(ctx context.Context, orderID, storeID uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, change StatusChange) error
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	ListByStore(ctx context.Context, storeID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	ListAll(ctx context.Context, params pagination.Params, filters AdminOrderFilters) ([]models.Order, string, error)
	FindPendingBefore(ctx context.Context, method enums.PaymentMethod, cutoff time.Time) ([]models.Order, error)
}
