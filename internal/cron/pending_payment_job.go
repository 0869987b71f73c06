package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/zenergy-backend/internal/orders"
	"github.com/angelmondragon/zenergy-backend/pkg/db/models"
	"github.com/angelmondragon/zenergy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/zenergy-backend/pkg/errors"
	"github.com/angelmondragon/zenergy-backend/pkg/logger"
)

const defaultStalePendingAfter = 48 * time.Hour

type pendingOrderFinder interface {
	FindPendingBefore(ctx context.Context, method enums.PaymentMethod, cutoff time.Time) ([]models.Order, error)
}

type orderExpirer interface {
	ExpireOrder(ctx context.Context, orderID uuid.UUID) (*orders.OrderView, error)
}

// PendingPaymentJobParams configure the unpaid QR order sweep.
type PendingPaymentJobParams struct {
	Logger *logger.Logger
	Orders pendingOrderFinder
	Expire orderExpirer
	After  time.Duration
}

// NewPendingPaymentJob cancels QR orders that stayed PENDING longer than
// After, returning their stock to the catalog.
func NewPendingPaymentJob(params PendingPaymentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Expire == nil {
		return nil, fmt.Errorf("orders service required")
	}
	after := params.After
	if after <= 0 {
		after = defaultStalePendingAfter
	}
	return &pendingPaymentJob{
		logg:   params.Logger,
		orders: params.Orders,
		expire: params.Expire,
		after:  after,
		now:    time.Now,
	}, nil
}

type pendingPaymentJob struct {
	logg   *logger.Logger
	orders pendingOrderFinder
	expire orderExpirer
	after  time.Duration
	now    func() time.Time
}

func (j *pendingPaymentJob) Name() string { return "pending-payment-expiry" }

func (j *pendingPaymentJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.after)
	stale, err := j.orders.FindPendingBefore(ctx, enums.PaymentMethodQR, cutoff)
	if err != nil {
		return fmt.Errorf("find pending qr orders: %w", err)
	}

	var (
		errs    error
		expired int
		skipped int
	)
	for _, order := range stale {
		if _, err := j.expire.ExpireOrder(ctx, order.ID); err != nil {
			// paid or cancelled between the scan and the lock
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				skipped++
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		expired++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"found":   len(stale),
		"expired": expired,
		"skipped": skipped,
		"failed":  len(multierr.Errors(errs)),
	}), "pending payment sweep complete")
	return errs
}
