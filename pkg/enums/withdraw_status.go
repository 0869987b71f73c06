package enums

import "fmt"

// WithdrawStatus tracks a seller payout request.
type WithdrawStatus string

const (
	WithdrawStatusPending   WithdrawStatus = "PENDING"
	WithdrawStatusCompleted WithdrawStatus = "COMPLETED"
	WithdrawStatusRejected  WithdrawStatus = "REJECTED"
)

var validWithdrawStatuses = []WithdrawStatus{
	WithdrawStatusPending,
	WithdrawStatusCompleted,
	WithdrawStatusRejected,
}

// String implements fmt.Stringer.
func (w WithdrawStatus) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WithdrawStatus.
func (w WithdrawStatus) IsValid() bool {
	for _, candidate := range validWithdrawStatuses {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWithdrawStatus converts raw input into a WithdrawStatus.
func ParseWithdrawStatus(value string) (WithdrawStatus, error) {
	for _, candidate := range validWithdrawStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid withdraw status %q", value)
}
