// Package repo implements the data persistence layer, backed by GORM. This
// file provides repository functions for the AutopayBinding model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a binding row is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/vt54/isp-mobile-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetBinding fetches the autopay row for accountID, enabled or not.
// Returns ErrNotFound when the account has never enrolled.
func GetBinding(ctx context.Context, db *gorm.DB, accountID string) (*domain.AutopayBinding, error) {
	var b domain.AutopayBinding
	err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpsertBinding inserts or refreshes the one-per-account binding row,
// idempotently keyed by accountID. authorizedAt is the moment the gateway
// authorized the order that produced the binding; when the stored row is
// newer (a disable raced in after authorization) the write is skipped and the
// stored state wins.
func UpsertBinding(ctx context.Context, db *gorm.DB, accountID, bindingID string, amount int64, authIP string, authorizedAt time.Time) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.AutopayBinding
		err := tx.Where("account_id = ?", accountID).First(&existing).Error
		switch {
		case err == nil:
			// Last-writer-wins on timestamps: a concurrent disable that
			// happened after this authorization must not be overwritten.
			if existing.UpdatedAt.After(authorizedAt) {
				return nil
			}
			return tx.Model(&existing).Updates(map[string]any{
				"binding_id": bindingID,
				"amount":     amount,
				"auth_ip":    authIP,
				"updated_at": time.Now().UTC(),
			}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			b := domain.AutopayBinding{
				AccountID: accountID,
				BindingID: &bindingID,
				Amount:    &amount,
				AuthIP:    authIP,
				CreatedAt: time.Now().UTC(),
			}
			return tx.Create(&b).Error
		default:
			return err
		}
	})
}

// DisableBinding nulls the binding fields for accountID but keeps the row so
// the enrollment history survives for audit. Missing rows are not an error:
// disabling a never-enrolled account is a no-op.
func DisableBinding(ctx context.Context, db *gorm.DB, accountID string) error {
	return db.WithContext(ctx).
		Model(&domain.AutopayBinding{}).
		Where("account_id = ?", accountID).
		Updates(map[string]any{
			"binding_id": nil,
			"amount":     nil,
			"updated_at": time.Now().UTC(),
		}).Error
}

// ListActiveBindings returns every row with a non-null binding, i.e. the
// accounts the recurring scheduler must re-charge.
func ListActiveBindings(ctx context.Context, db *gorm.DB) ([]domain.AutopayBinding, error) {
	var out []domain.AutopayBinding
	err := db.WithContext(ctx).
		Where("binding_id IS NOT NULL AND binding_id <> ''").
		Order("account_id asc").
		Find(&out).Error
	return out, err
}
