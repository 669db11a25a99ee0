package domain

import (
	"time"
)

// AutopayBinding is the one-per-account autopay record. BindingID is non-null
// exactly when autopay is enabled; disabling nulls the binding fields but
// keeps the row so the audit trail survives.
//
// Fields:
//   - AccountID: unique account identifier (4 or 5 digits).
//   - BindingID: gateway-issued stored-card token; nil means disabled.
//   - Amount: last charged amount in minor units; nil when disabled.
//   - AuthIP: client IP seen by the gateway at the last authorization.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM. UpdatedAt doubles as
//     the last-writer-wins reference when an upsert races a disable.
type AutopayBinding struct {
	ID        uint      `json:"-"          gorm:"primaryKey;autoIncrement"`
	AccountID string    `json:"account_id" gorm:"type:varchar(8);not null;uniqueIndex:ux_autopay_account"`
	BindingID *string   `json:"binding_id" gorm:"type:varchar(64)"`
	Amount    *int64    `json:"amount"`
	AuthIP    string    `json:"auth_ip"    gorm:"type:varchar(45)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for AutopayBinding.
func (AutopayBinding) TableName() string { return "autopay_bindings" }

// Enabled reports whether the row represents an active binding.
func (b AutopayBinding) Enabled() bool { return b.BindingID != nil && *b.BindingID != "" }

// IncidentFlag is the one-per-account outage marker maintained by the
// incident correlator. After every correlation pass the set of rows with
// Affected=true equals exactly the last computed affected set.
type IncidentFlag struct {
	ID        uint      `json:"-"          gorm:"primaryKey;autoIncrement"`
	AccountID string    `json:"account_id" gorm:"type:varchar(8);not null;uniqueIndex:ux_incident_account"`
	Affected  bool      `json:"affected"   gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for IncidentFlag.
func (IncidentFlag) TableName() string { return "incident_flags" }

// Payment records one settled (authorized) order. The unique OrderID is the
// idempotency gate for terminal processing: a duplicate terminal observation
// finds the row and performs no second credit or binding upsert. SubmitKey
// backs the optional Idempotency-Key replay on payment submission.
type Payment struct {
	ID        uint       `json:"-"          gorm:"primaryKey;autoIncrement"`
	OrderID   string     `json:"order_id"   gorm:"type:varchar(64);not null;uniqueIndex:ux_payment_order"`
	AccountID string     `json:"account_id" gorm:"type:varchar(8);not null;index"`
	Amount    int64      `json:"amount"     gorm:"not null"`
	Kind      OrderKind  `json:"kind"       gorm:"type:varchar(20);not null"`
	SubmitKey *string    `json:"-"          gorm:"type:varchar(200);uniqueIndex:ux_payment_submit_key"`
	CreatedAt time.Time  `json:"created_at"`
	SettledAt *time.Time `json:"settled_at"`
}

// TableName returns the database table name for Payment.
func (Payment) TableName() string { return "payments" }

// LedgerOutbox queues a legacy-backend credit that could not be written when
// the order settled. The scheduler drains it until the credit lands; the
// orderID reference on the audit row keeps redelivery idempotent.
type LedgerOutbox struct {
	ID        uint      `json:"-"          gorm:"primaryKey;autoIncrement"`
	OrderID   string    `json:"order_id"   gorm:"type:varchar(64);not null;uniqueIndex:ux_outbox_order"`
	AccountID string    `json:"account_id" gorm:"type:varchar(8);not null"`
	Amount    int64     `json:"amount"     gorm:"not null"`
	Attempts  int       `json:"attempts"   gorm:"not null;default:0"`
	LastError string    `json:"last_error" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for LedgerOutbox.
func (LedgerOutbox) TableName() string { return "ledger_outbox" }
