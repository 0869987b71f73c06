package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/zenergy-backend/pkg/enums"
)

// WithdrawRequest is a seller payout ledger entry. Bank details are copied
// from the store at request time.
type WithdrawRequest struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID     uuid.UUID            `gorm:"column:store_id;type:uuid;not null"`
	Code        string               `gorm:"column:code;not null;uniqueIndex"`
	Amount      decimal.Decimal      `gorm:"column:amount;type:numeric(14,2);not null"`
	Status      enums.WithdrawStatus `gorm:"column:status;type:text;not null"`
	BankName    string               `gorm:"column:bank_name;not null"`
	BankAccount string               `gorm:"column:bank_account;not null"`
	BankHolder  string               `gorm:"column:bank_holder;not null"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
