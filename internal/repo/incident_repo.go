// Package repo implements the data persistence layer, backed by GORM. This
// file provides repository functions for the IncidentFlag model.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/vt54/isp-mobile-backend/internal/domain"
)

// GetIncidentFlag reports whether accountID is currently marked affected.
// Accounts with no row default to false.
func GetIncidentFlag(ctx context.Context, db *gorm.DB, accountID string) (bool, error) {
	var f domain.IncidentFlag
	err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return f.Affected, nil
}

// ListAffectedAccounts returns the IDs of every account whose flag is set.
func ListAffectedAccounts(ctx context.Context, db *gorm.DB) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).
		Model(&domain.IncidentFlag{}).
		Where("affected = ?", true).
		Order("account_id asc").
		Pluck("account_id", &out).Error
	return out, err
}

// SetIncidentFlag writes the affected state for accountID, creating the row
// on first use. It reports whether the stored value actually changed, so the
// correlator can dispatch notifications only on real transitions.
func SetIncidentFlag(ctx context.Context, db *gorm.DB, accountID string, affected bool) (changed bool, err error) {
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var f domain.IncidentFlag
		ferr := tx.Where("account_id = ?", accountID).First(&f).Error
		switch {
		case ferr == nil:
			if f.Affected == affected {
				return nil
			}
			changed = true
			return tx.Model(&f).Updates(map[string]any{
				"affected":   affected,
				"updated_at": time.Now().UTC(),
			}).Error
		case errors.Is(ferr, gorm.ErrRecordNotFound):
			changed = affected // creating an unaffected row is not a transition
			return tx.Create(&domain.IncidentFlag{
				AccountID: accountID,
				Affected:  affected,
				CreatedAt: time.Now().UTC(),
			}).Error
		default:
			return ferr
		}
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}
