// Package services – AutopayService
//
// This file implements autopay management on top of the binding store and the
// acquiring gateway: enrollment status, explicit disable (which also unbinds
// every stored card at the gateway), and the daily recurring re-charge batch.
// The batch is fail-open per account: one account's gateway trouble is logged
// and the rest of the batch proceeds.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vt54/isp-mobile-backend/internal/domain"
	"github.com/vt54/isp-mobile-backend/internal/repo"
)

// AutopayStatus is the externally visible autopay state of one account.
type AutopayStatus struct {
	Enabled        bool       `json:"enabled"`
	Amount         *int64     `json:"amount,omitempty"`
	NextChargeDate *time.Time `json:"next_charge_date,omitempty"`
}

// AutopayService manages card bindings and the recurring charge batch.
type AutopayService struct {
	// DB is the GORM handle for the app store.
	DB *gorm.DB
	// Gateway issues acquiring calls (bindings listing, unbind, charges).
	Gateway Acquirer
	// Settlement drives recurring orders to their terminal state.
	Settlement *SettlementService
	// Log is the service logger.
	Log zerolog.Logger

	// Now is a clock seam for the cutoff-day guard; defaults to time.Now.
	Now func() time.Time
}

// NewAutopayService constructs an AutopayService.
func NewAutopayService(db *gorm.DB, gw Acquirer, st *SettlementService, log zerolog.Logger) *AutopayService {
	return &AutopayService{
		DB:         db,
		Gateway:    gw,
		Settlement: st,
		Log:        log.With().Str("component", "autopay").Logger(),
		Now:        time.Now,
	}
}

// Status reports whether autopay is enabled for the account, the amount of
// the next charge, and the next charge date (the current month's cutoff day).
func (s *AutopayService) Status(ctx context.Context, account domain.AccountRef) (AutopayStatus, error) {
	b, err := repo.GetBinding(ctx, s.DB, account.ID())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return AutopayStatus{}, nil
	}
	if err != nil {
		return AutopayStatus{}, err
	}
	if !b.Enabled() {
		return AutopayStatus{}, nil
	}
	next := CutoffDay(s.Now())
	return AutopayStatus{
		Enabled:        true,
		Amount:         b.Amount,
		NextChargeDate: &next,
	}, nil
}

// Disable turns autopay off for the account: every stored-card binding is
// removed at the gateway, then the local record is cleared (the row itself is
// kept for audit). Gateway unbind failures are logged and do not keep the
// local record enabled; the binding becomes unusable either way.
func (s *AutopayService) Disable(ctx context.Context, account domain.AccountRef) error {
	bindings, err := s.Gateway.Bindings(ctx, account)
	if err != nil {
		s.Log.Warn().Err(err).Str("account", account.ID()).Msg("listing gateway bindings for disable")
	}
	for _, b := range bindings {
		if err := s.Gateway.UnbindCard(ctx, b.BindingID); err != nil {
			s.Log.Warn().Err(err).
				Str("account", account.ID()).
				Str("binding", b.BindingID).
				Msg("unbinding card at gateway")
		}
	}
	if err := repo.DisableBinding(ctx, s.DB, account.ID()); err != nil {
		return err
	}
	s.Log.Info().Str("account", account.ID()).Msg("autopay disabled")
	return nil
}

// RunRecurring executes the daily re-charge batch. The whole run is skipped
// when today is the billing cutoff day, so the scheduled charge never
// collides with the billing close. Each active binding gets a fresh autopay
// order charged against the stored card; failures are per-account.
func (s *AutopayService) RunRecurring(ctx context.Context) error {
	today := s.Now()
	if sameDate(today, CutoffDay(today)) {
		s.Log.Info().Time("cutoff", CutoffDay(today)).Msg("billing cutoff day, skipping recurring batch")
		return nil
	}

	bindings, err := repo.ListActiveBindings(ctx, s.DB)
	if err != nil {
		return err
	}
	s.Log.Info().Int("accounts", len(bindings)).Msg("recurring batch started")

	for _, b := range bindings {
		if err := s.chargeOne(ctx, b); err != nil {
			s.Log.Error().Err(err).Str("account", b.AccountID).Msg("recurring charge failed, continuing batch")
		}
	}
	return nil
}

// chargeOne issues one recurring charge: register an autopay order, charge
// the stored binding, hand the order to the settlement orchestrator.
func (s *AutopayService) chargeOne(ctx context.Context, b domain.AutopayBinding) error {
	account, err := domain.ParseAccount(b.AccountID)
	if err != nil {
		return err
	}
	if !b.Enabled() || b.Amount == nil {
		return ErrAutopayNotEnrolled
	}

	reg, err := s.Gateway.RegisterOrder(ctx, account, *b.Amount, true)
	if err != nil {
		return err
	}
	if err := s.Gateway.ChargeBinding(ctx, reg.OrderID, *b.BindingID, b.AuthIP); err != nil {
		return err
	}
	if err := repo.CreatePayment(ctx, s.DB, reg.OrderID, account.ID(), *b.Amount, domain.KindAutopayRecurring, nil); err != nil {
		return err
	}
	return s.Settlement.Track(ctx, domain.Order{
		ID:        reg.OrderID,
		Account:   account,
		Amount:    *b.Amount,
		Kind:      domain.KindAutopayRecurring,
		CreatedAt: time.Now().UTC(),
	})
}

// CutoffDay returns the billing cutoff date for t's month: the penultimate
// calendar day. The comparison against it is date-only; the historical
// datetime-vs-date comparison could never be equal, which silently disabled
// the skip.
func CutoffDay(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	lastDay := firstOfNext.AddDate(0, 0, -1)
	return lastDay.AddDate(0, 0, -1)
}

// sameDate reports whether a and b fall on the same calendar date.
func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
