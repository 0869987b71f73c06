package enums

import "testing"

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusShipping, false},
		{OrderStatusConfirmed, OrderStatusShipping, true},
		{OrderStatusConfirmed, OrderStatusCancelled, true},
		{OrderStatusConfirmed, OrderStatusPending, false},
		{OrderStatusShipping, OrderStatusCompleted, true},
		{OrderStatusShipping, OrderStatusCancelled, false},
		{OrderStatusCompleted, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusConfirmed, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestOrderStatusTerminalAndSettled(t *testing.T) {
	if !OrderStatusCompleted.IsTerminal() || !OrderStatusCancelled.IsTerminal() {
		t.Fatal("completed and cancelled must be terminal")
	}
	if OrderStatusShipping.IsTerminal() {
		t.Fatal("shipping is not terminal")
	}
	for _, s := range []OrderStatus{OrderStatusConfirmed, OrderStatusShipping, OrderStatusCompleted} {
		if !s.IsSettled() {
			t.Fatalf("%s should be settled", s)
		}
	}
	if OrderStatusPending.IsSettled() || OrderStatusCancelled.IsSettled() {
		t.Fatal("pending and cancelled are not settled")
	}
}

func TestPaymentMethodInitialStatus(t *testing.T) {
	if got := PaymentMethodQR.InitialOrderStatus(); got != OrderStatusPending {
		t.Fatalf("QR should start PENDING, got %s", got)
	}
	if got := PaymentMethodCOD.InitialOrderStatus(); got != OrderStatusConfirmed {
		t.Fatalf("COD should start CONFIRMED, got %s", got)
	}
}

func TestParseRejectsUnknownValues(t *testing.T) {
	if _, err := ParseOrderStatus("DELIVERED"); err == nil {
		t.Fatal("expected error for unknown order status")
	}
	if _, err := ParsePaymentMethod("cash"); err == nil {
		t.Fatal("expected error for unknown payment method")
	}
	if _, err := ParseWithdrawStatus("APPROVED"); err == nil {
		t.Fatal("expected error for unknown withdraw status")
	}
	if role, err := ParseUserRole("seller"); err != nil || role != UserRoleSeller {
		t.Fatalf("expected seller role, got %q err=%v", role, err)
	}
}
