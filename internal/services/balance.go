// Package services – BalanceService
//
// This file implements the balance summary read used by the mobile app's
// top-up screen: current balance, the minimal payment that keeps the tariff
// running past the billing close, and the pay-by date (the month's cutoff
// day). Reads go straight to the legacy billing database; current-backend
// balances live downstream and are read through the same contract tables.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/vt54/isp-mobile-backend/internal/domain"
	"github.com/vt54/isp-mobile-backend/internal/repo"
)

// tariffCost is the monthly price per tariff plan, in major currency units,
// mirroring the billing price list.
var tariffCost = map[string]float64{
	"Минимальный-15":  3550,
	"Стартовый-50":    4990,
	"Оптимальный-100": 5990,
	"Ускоренный-300":  6990,
}

// BalanceSummary is the account's payment picture for the current month.
type BalanceSummary struct {
	Balance    float64 `json:"balance"`
	MinPayment float64 `json:"min_payment"`
	PayDay     string  `json:"pay_day"` // DD.MM.YY
}

// BalanceService reads balance and tariff data from the billing database.
type BalanceService struct {
	// Billing is the GORM handle for the legacy billing database.
	Billing *gorm.DB

	// Now is a clock seam for the pay-day computation; defaults to time.Now.
	Now func() time.Time
}

// NewBalanceService constructs a BalanceService.
func NewBalanceService(billing *gorm.DB) *BalanceService {
	return &BalanceService{Billing: billing, Now: time.Now}
}

// Summary returns the account's balance, minimal payment, and pay-by date.
// Accounts on an unknown tariff get a zero minimal payment rather than an
// error; the balance is still reported.
func (s *BalanceService) Summary(ctx context.Context, account domain.AccountRef) (BalanceSummary, error) {
	balance, err := repo.GetContractBalance(ctx, s.Billing, account.ID())
	if err != nil {
		return BalanceSummary{}, err
	}
	tariff, err := repo.GetContractTariff(ctx, s.Billing, account.ID())
	if err != nil {
		return BalanceSummary{}, err
	}

	minPay := 0.0
	if cost, ok := tariffCost[tariff]; ok {
		if due := cost - balance; due > 0 {
			minPay = due
		}
	}

	return BalanceSummary{
		Balance:    balance,
		MinPayment: minPay,
		PayDay:     CutoffDay(s.Now()).Format("02.01.06"),
	}, nil
}
