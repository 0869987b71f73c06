package stores

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/zenergy-backend/pkg/db"
	"github.com/angelmondragon/zenergy-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/zenergy-backend/pkg/errors"
)

// Repository handles the store reads the order core needs. Storefront
// management lives with the catalog service.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to store operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads a store by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&store).Error; err != nil {
		return nil, notFound(err)
	}
	return &store, nil
}

// FindByIDForUpdate locks the store row until the surrounding transaction
// ends. Withdrawals for the same store serialize on this lock.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).Take(&store).Error; err != nil {
		return nil, notFound(err)
	}
	return &store, nil
}

// IsOwner reports whether ownerID owns the store.
func (r *Repository) IsOwner(ctx context.Context, storeID, ownerID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Store{}).
		Where("id = ? AND owner_id = ?", storeID, ownerID).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// NamesByID resolves display names for the given stores. Unknown ids are
// omitted from the result.
func (r *Repository) NamesByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var rows []models.Store
	if err := r.db.WithContext(ctx).Select("id", "name").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		names[row.ID] = row.Name
	}
	return names, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
	}
	return err
}
