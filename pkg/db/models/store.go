package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is a seller storefront. Bank fields are required before payouts.
type Store struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID     uuid.UUID `gorm:"column:owner_id;type:uuid;not null"`
	Name        string    `gorm:"column:name;not null"`
	BankName    *string   `gorm:"column:bank_name"`
	BankAccount *string   `gorm:"column:bank_account"`
	BankHolder  *string   `gorm:"column:bank_holder"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// HasPayoutDetails reports whether every bank field is present.
func (s Store) HasPayoutDetails() bool {
	for _, v := range []*string{s.BankName, s.BankAccount, s.BankHolder} {
		if v == nil || strings.TrimSpace(*v) == "" {
			return false
		}
	}
	return true
}
