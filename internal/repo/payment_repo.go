// Package repo implements the data persistence layer, backed by GORM. This
// file provides repository functions for settled payments and the legacy
// credit outbox.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/vt54/isp-mobile-backend/internal/domain"
)

// CreatePayment records a submitted order. The unique orderID later gates
// terminal processing; submitKey (optional) backs Idempotency-Key replays.
func CreatePayment(ctx context.Context, db *gorm.DB, orderID, accountID string, amount int64, kind domain.OrderKind, submitKey *string) error {
	p := domain.Payment{
		OrderID:   orderID,
		AccountID: accountID,
		Amount:    amount,
		Kind:      kind,
		SubmitKey: submitKey,
		CreatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(&p).Error
}

// GetPaymentBySubmitKey returns the payment previously registered under the
// given account and Idempotency-Key, or ErrNotFound.
func GetPaymentBySubmitKey(ctx context.Context, db *gorm.DB, accountID, submitKey string) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).
		Where("account_id = ? AND submit_key = ?", accountID, submitKey).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkPaymentSettled stamps settledAt on the payment row exactly once.
// It reports whether this call performed the transition; a second terminal
// observation for the same order sees false and must not credit again.
func MarkPaymentSettled(ctx context.Context, db *gorm.DB, orderID string, amount int64) (first bool, err error) {
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("order_id = ? AND settled_at IS NULL", orderID).
		Updates(map[string]any{
			"amount":     amount,
			"settled_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// EnqueueOutbox records a legacy credit that failed to land, keyed uniquely
// by orderID so duplicate settlement observations collapse into one entry.
func EnqueueOutbox(ctx context.Context, db *gorm.DB, orderID, accountID string, amount int64, cause error) error {
	entry := domain.LedgerOutbox{
		OrderID:   orderID,
		AccountID: accountID,
		Amount:    amount,
		Attempts:  1,
		CreatedAt: time.Now().UTC(),
	}
	if cause != nil {
		entry.LastError = cause.Error()
	}
	err := db.WithContext(ctx).Create(&entry).Error
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	return err
}

// ListOutbox returns pending outbox entries, oldest first.
func ListOutbox(ctx context.Context, db *gorm.DB, limit int) ([]domain.LedgerOutbox, error) {
	var out []domain.LedgerOutbox
	err := db.WithContext(ctx).
		Order("created_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ResolveOutbox removes a drained entry after its credit landed.
func ResolveOutbox(ctx context.Context, db *gorm.DB, orderID string) error {
	return db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Delete(&domain.LedgerOutbox{}).Error
}

// BumpOutboxAttempt increments the attempt counter and stores the last error
// after a failed drain.
func BumpOutboxAttempt(ctx context.Context, db *gorm.DB, orderID string, cause error) error {
	updates := map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"updated_at": time.Now().UTC(),
	}
	if cause != nil {
		updates["last_error"] = cause.Error()
	}
	return db.WithContext(ctx).
		Model(&domain.LedgerOutbox{}).
		Where("order_id = ?", orderID).
		Updates(updates).Error
}

// isUniqueViolation recognizes unique-index violations across the SQLite and
// MySQL drivers without importing either driver's error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return containsAny(msg, "UNIQUE constraint failed", "Duplicate entry", "constraint failed")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
