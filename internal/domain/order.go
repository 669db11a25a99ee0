package domain

import "time"

// OrderKind distinguishes why an order was raised.
type OrderKind string

const (
	// KindOneOff is a plain top-up through the hosted card-entry form.
	KindOneOff OrderKind = "one-off"
	// KindAutopayEnroll is a top-up that also stores a card binding for
	// future recurring charges.
	KindAutopayEnroll OrderKind = "autopay-enroll"
	// KindAutopayRecurring is a charge against a previously stored binding.
	KindAutopayRecurring OrderKind = "autopay-recurring"
)

// WantsBinding reports whether a successful authorization of this order must
// capture (or refresh) the account's autopay binding.
func (k OrderKind) WantsBinding() bool {
	return k == KindAutopayEnroll || k == KindAutopayRecurring
}

// Order identifies one payment attempt registered at the acquiring gateway.
// Orders are immutable; the settlement state lives in the orchestrator, not
// here.
type Order struct {
	ID        string     // gateway-issued opaque token
	Account   AccountRef // validated account reference
	Amount    int64      // requested amount in minor currency units
	Kind      OrderKind
	CreatedAt time.Time
}

// OrderState is the settlement state machine position of one order.
type OrderState string

const (
	StateSubmitted  OrderState = "SUBMITTED"
	StatePolling    OrderState = "POLLING"
	StateAuthorized OrderState = "AUTHORIZED"
	StateDeclined   OrderState = "DECLINED"
	StateAbandoned  OrderState = "ABANDONED"
)

// Terminal reports whether the state ends the settlement loop.
func (s OrderState) Terminal() bool {
	switch s {
	case StateAuthorized, StateDeclined, StateAbandoned:
		return true
	default:
		return false
	}
}

// Gateway business-status codes, as returned in the OrderStatus field of a
// status query. Any other code keeps the order pending.
const (
	GatewayStatusAuthorized = 2
	GatewayStatusReversed   = 3
	GatewayStatusDeclined   = 6
)

// Outcome classifies one gateway status payload.
type Outcome int

const (
	// OutcomePending means the payload carried no terminal status; keep polling.
	OutcomePending Outcome = iota
	// OutcomeAuthorized means the full order amount was authorized.
	OutcomeAuthorized
	// OutcomeDeclined means authorization was reversed or declined.
	OutcomeDeclined
)

// Settlement carries the data extracted from an authorized status payload.
type Settlement struct {
	Amount    int64  // authorized amount in minor units
	BindingID string // present when the gateway stored a card binding
	SourceIP  string // client IP seen by the gateway at authorization
}
