package wallet

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/zenergy-backend/internal/stores"
	"github.com/angelmondragon/zenergy-backend/pkg/db"
	"github.com/angelmondragon/zenergy-backend/pkg/db/models"
	"github.com/angelmondragon/zenergy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/zenergy-backend/pkg/errors"
	"github.com/angelmondragon/zenergy-backend/pkg/metrics"
	"github.com/angelmondragon/zenergy-backend/pkg/money"
	"github.com/angelmondragon/zenergy-backend/pkg/outbox"
	"github.com/angelmondragon/zenergy-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/zenergy-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Overview is the seller's derived wallet position.
type Overview struct {
	StoreID      uuid.UUID       `json:"store_id"`
	Balance      decimal.Decimal `json:"balance"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	Withdrawn    decimal.Decimal `json:"withdrawn"`
}

// WithdrawView is a withdrawal request as returned to the seller.
type WithdrawView struct {
	ID          uuid.UUID            `json:"id"`
	Code        string               `json:"code"`
	Amount      decimal.Decimal      `json:"amount"`
	Status      enums.WithdrawStatus `json:"status"`
	BankName    string               `json:"bank_name"`
	BankAccount string               `json:"bank_account"`
	BankHolder  string               `json:"bank_holder"`
	CreatedAt   time.Time            `json:"created_at"`
}

// WithdrawList wraps a page of withdrawals plus the next page cursor.
type WithdrawList struct {
	Withdrawals []WithdrawView `json:"withdrawals"`
	NextCursor  string         `json:"next_cursor,omitempty"`
}

// RequestWithdrawInput identifies the acting seller and the amount.
type RequestWithdrawInput struct {
	StoreID     uuid.UUID
	ActorUserID uuid.UUID
	Amount      decimal.Decimal
}

// Service computes balances and gates withdrawal requests.
type Service interface {
	Overview(ctx context.Context, storeID uuid.UUID) (*Overview, error)
	RequestWithdraw(ctx context.Context, input RequestWithdrawInput) (*WithdrawView, error)
	ListWithdrawals(ctx context.Context, storeID uuid.UUID, params pagination.Params) (*WithdrawList, error)
}

type service struct {
	repo    Repository
	stores  *stores.Repository
	tx      txRunner
	outbox  outbox.Emitter
	metrics *metrics.OrderMetrics
}

// NewService wires the wallet service.
func NewService(repo Repository, storeRepo *stores.Repository, tx txRunner, emitter outbox.Emitter, m *metrics.OrderMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if storeRepo == nil {
		return nil, fmt.Errorf("store repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{repo: repo, stores: storeRepo, tx: tx, outbox: emitter, metrics: m}, nil
}

// Overview is an unlocked read; it may be stale by the time it is shown.
func (s *service) Overview(ctx context.Context, storeID uuid.UUID) (*Overview, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "store context missing")
	}
	if _, err := s.stores.FindByID(ctx, storeID); err != nil {
		return nil, err
	}
	return computeOverview(ctx, s.repo, storeID)
}

// RequestWithdraw serializes on the store row so two concurrent requests
// cannot both spend the same balance. The balance is recomputed after the
// lock is held.
func (s *service) RequestWithdraw(ctx context.Context, input RequestWithdrawInput) (*WithdrawView, error) {
	view, err := s.requestWithdraw(ctx, input)
	s.metrics.ObserveWithdraw(err)
	return view, err
}

func (s *service) requestWithdraw(ctx context.Context, input RequestWithdrawInput) (*WithdrawView, error) {
	if input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "store context missing")
	}
	amount := money.Round(input.Amount)
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than 0").
			WithDetails(map[string]any{"field": "amount"})
	}

	var view *WithdrawView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		store, err := s.stores.WithTx(tx).FindByIDForUpdate(ctx, input.StoreID)
		if err != nil {
			return err
		}
		if !store.HasPayoutDetails() {
			return pkgerrors.New(pkgerrors.CodeValidation, "store bank details are required before requesting a withdrawal").
				WithDetails(map[string]any{"field": "bank_details"})
		}

		repo := s.repo.WithTx(tx)
		overview, err := computeOverview(ctx, repo, store.ID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(overview.Balance) {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("insufficient balance: %s", overview.Balance.String())).
				WithDetails(map[string]any{"balance": overview.Balance.String(), "requested": amount.String()})
		}

		request := &models.WithdrawRequest{
			ID:          uuid.New(),
			StoreID:     store.ID,
			Amount:      amount,
			Status:      enums.WithdrawStatusPending,
			BankName:    strings.TrimSpace(*store.BankName),
			BankAccount: strings.TrimSpace(*store.BankAccount),
			BankHolder:  strings.TrimSpace(*store.BankHolder),
		}
		request.Code = WithdrawCode(request.ID)
		if err := repo.CreateWithdraw(ctx, request); err != nil {
			if db.IsUniqueViolation(err, "withdraw_requests_code_key") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "withdraw code collision, retry the request")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create withdraw request")
		}

		storeID := store.ID
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWithdrawRequested,
			AggregateType: enums.AggregateWithdrawRequest,
			AggregateID:   request.ID,
			Actor:         actor(input.ActorUserID, &storeID),
			Data: payloads.WithdrawRequestedEvent{
				WithdrawID: request.ID,
				StoreID:    store.ID,
				Code:       request.Code,
				Amount:     amount,
				Balance:    overview.Balance.Sub(amount),
			},
		}); err != nil {
			return err
		}

		v := newWithdrawView(*request)
		view = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) ListWithdrawals(ctx context.Context, storeID uuid.UUID, params pagination.Params) (*WithdrawList, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "store context missing")
	}
	rows, next, err := s.repo.ListWithdrawals(ctx, storeID, params)
	if err != nil {
		return nil, err
	}
	list := &WithdrawList{Withdrawals: make([]WithdrawView, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		list.Withdrawals = append(list.Withdrawals, newWithdrawView(row))
	}
	return list, nil
}

// WithdrawCode is the short reference shown to sellers and finance staff.
func WithdrawCode(id uuid.UUID) string {
	return "WD-" + strings.ToUpper(hex.EncodeToString(id[:4]))
}

func computeOverview(ctx context.Context, repo Repository, storeID uuid.UUID) (*Overview, error) {
	revenue, err := repo.TotalRevenue(ctx, storeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum store revenue")
	}
	withdrawn, err := repo.TotalWithdrawn(ctx, storeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum store withdrawals")
	}
	revenue = money.Round(revenue)
	withdrawn = money.Round(withdrawn)
	return &Overview{
		StoreID:      storeID,
		Balance:      revenue.Sub(withdrawn),
		TotalRevenue: revenue,
		Withdrawn:    withdrawn,
	}, nil
}

func newWithdrawView(w models.WithdrawRequest) WithdrawView {
	return WithdrawView{
		ID:          w.ID,
		Code:        w.Code,
		Amount:      w.Amount,
		Status:      w.Status,
		BankName:    w.BankName,
		BankAccount: w.BankAccount,
		BankHolder:  w.BankHolder,
		CreatedAt:   w.CreatedAt,
	}
}

func actor(userID uuid.UUID, storeID *uuid.UUID) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, StoreID: storeID, Role: enums.UserRoleSeller}
}
