package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/zenergy-backend/pkg/db"
	"github.com/angelmondragon/zenergy-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/zenergy-backend/pkg/errors"
)

// Line is a quantity of one product moving in or out of stock.
type Line struct {
	ProductID uuid.UUID
	Quantity  int
}

// Ledger mutates product stock. Every method must run inside the caller's
// transaction; row locks are held until that transaction ends.
type Ledger interface {
	Lock(ctx context.Context, tx *gorm.DB, productIDs []uuid.UUID) (map[uuid.UUID]models.Product, error)
	Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	Restore(ctx context.Context, tx *gorm.DB, lines []Line) error
}

type ledger struct{}

// NewLedger returns the row-lock backed stock ledger.
func NewLedger() Ledger {
	return ledger{}
}

// Lock takes FOR UPDATE locks on the given products one row at a time in
// ascending id order. Two transactions touching overlapping product sets
// therefore always acquire locks in the same sequence.
func (ledger) Lock(ctx context.Context, tx *gorm.DB, productIDs []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory lock requires a transaction")
	}
	locked := make(map[uuid.UUID]models.Product, len(productIDs))
	for _, id := range SortedIDs(productIDs) {
		var product models.Product
		err := db.ForUpdate(tx.WithContext(ctx)).
			Where("id = ?", id).
			Take(&product).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", id)).
					WithDetails(map[string]any{"product_id": id.String()})
			}
			return nil, err
		}
		locked[id] = product
	}
	return locked, nil
}

// Decrement removes qty units. The guarded update never drives stock below
// zero: when fewer units remain nothing is written and a conflict is
// returned.
func (ledger) Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	res := tx.WithContext(ctx).Exec(
		`UPDATE products SET stock = stock - ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND stock >= ?`,
		qty, productID, qty,
	)
	if res.Error != nil {
		if db.IsCheckViolation(res.Error) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, res.Error, fmt.Sprintf("insufficient stock for product %s", productID))
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		var product models.Product
		if err := tx.WithContext(ctx).Select("stock").Where("id = ?", productID).Take(&product).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", productID))
			}
			return err
		}
		return InsufficientStock(productID, product.Stock)
	}
	return nil
}

// Restore returns the recorded quantities to stock, aggregated per product
// and applied in ascending id order under row locks.
func (l ledger) Restore(ctx context.Context, tx *gorm.DB, lines []Line) error {
	totals := Aggregate(lines)
	if len(totals) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	if _, err := l.Lock(ctx, tx, ids); err != nil {
		return err
	}
	for _, id := range SortedIDs(ids) {
		res := tx.WithContext(ctx).Exec(
			`UPDATE products SET stock = stock + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			totals[id], id,
		)
		if res.Error != nil {
			return res.Error
		}
	}
	return nil
}

// InsufficientStock builds the conflict reported when a product cannot
// cover the requested quantity.
func InsufficientStock(productID uuid.UUID, available int) error {
	return pkgerrors.New(pkgerrors.CodeConflict,
		fmt.Sprintf("insufficient stock for product %s, available: %d", productID, available)).
		WithDetails(map[string]any{"product_id": productID.String(), "available": available})
}

// Aggregate sums quantities per product, ignoring non-positive lines.
func Aggregate(lines []Line) map[uuid.UUID]int {
	totals := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		totals[line.ProductID] += line.Quantity
	}
	return totals
}

// SortedIDs de-duplicates ids and orders them by their string form, which
// matches the ordering Postgres applies to uuid columns.
func SortedIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}
