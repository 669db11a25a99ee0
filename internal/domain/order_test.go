package domain

import "testing"

func TestOrderKind_WantsBinding(t *testing.T) {
	if KindOneOff.WantsBinding() {
		t.Fatalf("one-off orders must not capture bindings")
	}
	if !KindAutopayEnroll.WantsBinding() {
		t.Fatalf("enroll orders must capture bindings")
	}
	if !KindAutopayRecurring.WantsBinding() {
		t.Fatalf("recurring orders must refresh bindings")
	}
}

func TestOrderState_Terminal(t *testing.T) {
	terminal := []OrderState{StateAuthorized, StateDeclined, StateAbandoned}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []OrderState{StateSubmitted, StatePolling, OrderState("")} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestAutopayBinding_Enabled(t *testing.T) {
	var b AutopayBinding
	if b.Enabled() {
		t.Fatalf("nil binding must be disabled")
	}
	empty := ""
	b.BindingID = &empty
	if b.Enabled() {
		t.Fatalf("empty binding token must be disabled")
	}
	tok := "B1"
	b.BindingID = &tok
	if !b.Enabled() {
		t.Fatalf("non-empty binding token must be enabled")
	}
}
