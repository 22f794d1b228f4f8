package enums

import "testing"

func TestOrderStatusTerminal(t *testing.T) {
	terminal := map[OrderStatus]bool{
		OrderStatusPending:   false,
		OrderStatusConfirmed: false,
		OrderStatusShipped:   false,
		OrderStatusDelivered: false,
		OrderStatusCancelled: true,
		OrderStatusReturned:  true,
		OrderStatusReviewed:  true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Fatalf("%s: expected terminal=%v got %v", status, want, got)
		}
	}
}

func TestParseOrderStatusRejectsUnknown(t *testing.T) {
	if _, err := ParseOrderStatus("refunded"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	got, err := ParseOrderStatus("shipped")
	if err != nil || got != OrderStatusShipped {
		t.Fatalf("unexpected parse result %q %v", got, err)
	}
}

func TestPaymentMethodPaidAtCreation(t *testing.T) {
	if PaymentMethodTypeCOD.IsPaidAtCreation() {
		t.Fatal("cash on delivery must not be paid at creation")
	}
	for _, method := range []PaymentMethodType{PaymentMethodTypeCard, PaymentMethodTypeEWalletA, PaymentMethodTypeEWalletB} {
		if !method.IsPaidAtCreation() {
			t.Fatalf("%s should be paid at creation", method)
		}
	}
}

func TestActorRolePrivileged(t *testing.T) {
	if ActorRoleBuyer.IsPrivileged() || ActorRoleSeller.IsPrivileged() {
		t.Fatal("buyer and seller are not privileged")
	}
	if !ActorRoleAdmin.IsPrivileged() || !ActorRoleSystem.IsPrivileged() {
		t.Fatal("admin and system are privileged")
	}
}
