// Package repo implements the data persistence layer, backed by GORM. This
// file provides read and credit operations against the legacy billing
// database. The schema (contract, contract_balance, contract_payment,
// tariff_plan, contract_tariff) is owned by the billing system, so everything
// here is raw SQL; no models are migrated.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrUnknownContract is returned when an account has no contract row in the
// legacy billing database.
var ErrUnknownContract = errors.New("unknown billing contract")

// ErrDuplicateReference is returned when a credit carries a reference that
// has already been applied; callers treat it as success.
var ErrDuplicateReference = errors.New("payment reference already applied")

// ContractGroup is one account's monitoring-group assignment.
type ContractGroup struct {
	Account string
	GroupID int
}

// GetContractBalance returns the latest balance for the account in major
// currency units, or 0 when the account has no balance history.
func GetContractBalance(ctx context.Context, db *gorm.DB, account string) (float64, error) {
	const q = `
	SELECT (summa1 + summa2 - summa3 - summa4) AS sum_result
	  FROM contract_balance
	 WHERE cid = (SELECT id FROM contract WHERE title = ?)
	 ORDER BY yy DESC, mm DESC
	 LIMIT 1`
	var balance float64
	err := db.WithContext(ctx).Raw(q, account).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// GetContractTariff returns the web title of the account's latest tariff
// plan, or "" when none is assigned.
func GetContractTariff(ctx context.Context, db *gorm.DB, account string) (string, error) {
	const q = `
	SELECT title_web FROM tariff_plan
	 WHERE id = (SELECT tpid FROM contract_tariff
	              WHERE cid = (SELECT id FROM contract WHERE title = ?)
	              ORDER BY id DESC LIMIT 1)`
	var title string
	err := db.WithContext(ctx).Raw(q, account).Scan(&title).Error
	if err != nil {
		return "", err
	}
	return title, nil
}

// ListContractGroups returns every contract's account identifier with its
// monitoring-group assignment. Accounts without a group are omitted.
func ListContractGroups(ctx context.Context, db *gorm.DB) ([]ContractGroup, error) {
	const q = `SELECT title, gr FROM contract WHERE gr IS NOT NULL`
	rows, err := db.WithContext(ctx).Raw(q).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ContractGroup
	for rows.Next() {
		var g ContractGroup
		if err := rows.Scan(&g.Account, &g.GroupID); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CreditContract applies one payment to the legacy ledger: a payment-history
// insert and a balance increment in a single transaction. amount is in major
// currency units. reference (the gateway orderID) is stored on the payment
// row and checked first, so redelivering the same settlement returns
// ErrDuplicateReference instead of crediting twice.
func CreditContract(ctx context.Context, db *gorm.DB, account string, amount float64, reference string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cid int64
		if err := tx.Raw(`SELECT id FROM contract WHERE title = ?`, account).Scan(&cid).Error; err != nil {
			return err
		}
		if cid == 0 {
			return fmt.Errorf("%w: %s", ErrUnknownContract, account)
		}

		var applied int64
		if err := tx.Raw(`SELECT COUNT(*) FROM contract_payment WHERE cid = ? AND comment = ?`,
			cid, reference).Scan(&applied).Error; err != nil {
			return err
		}
		if applied > 0 {
			return ErrDuplicateReference
		}

		now := time.Now().UTC()
		if err := tx.Exec(
			`INSERT INTO contract_payment (cid, dt, summa, comment, lm) VALUES (?, ?, ?, ?, ?)`,
			cid, now, amount, reference, now,
		).Error; err != nil {
			return err
		}

		res := tx.Exec(`
		UPDATE contract_balance SET summa2 = summa2 + ?
		 WHERE cid = ?
		   AND (yy * 100 + mm) = (SELECT m FROM (SELECT MAX(yy * 100 + mm) AS m
		                                           FROM contract_balance WHERE cid = ?) latest)`,
			amount, cid, cid)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return tx.Exec(
				`INSERT INTO contract_balance (cid, yy, mm, summa1, summa2, summa3, summa4) VALUES (?, ?, ?, 0, ?, 0, 0)`,
				cid, now.Year(), int(now.Month()), amount,
			).Error
		}
		return nil
	})
}
