// Package ledger routes balance credits to one of two account backends. The
// two sides intentionally have different consistency models: the legacy
// backend is credited locally and transactionally, the current backend only
// receives a best-effort notification because its ledger is authoritative
// downstream. The asymmetry is part of the contract, not an accident.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vt54/isp-mobile-backend/internal/domain"
	"github.com/vt54/isp-mobile-backend/internal/repo"
)

// minorUnitsPerMajor converts gateway amounts (minor units) to the major
// units the billing ledgers account in.
const minorUnitsPerMajor = 100

// Router credits an account's ledger through the backend resolved by its
// AccountRef. Safe for concurrent use; credits for one account are
// serialized.
type Router struct {
	billing   *gorm.DB
	notifyURL string
	http      *http.Client
	log       zerolog.Logger

	locks KeyedMutex
}

// NewRouter constructs a ledger router. billing is the legacy MySQL handle;
// notifyURL is the current-backend payment collector endpoint.
func NewRouter(billing *gorm.DB, notifyURL string, timeout time.Duration, log zerolog.Logger) *Router {
	return &Router{
		billing:   billing,
		notifyURL: notifyURL,
		http:      &http.Client{Timeout: timeout},
		log:       log.With().Str("component", "ledger").Logger(),
	}
}

// Credit applies one authorized payment to the account's ledger. amount is in
// minor units; reference is the gateway orderID and doubles as the
// idempotency marker, so redelivering the same settlement is harmless.
//
// Legacy accounts: transactional local write; the error is returned so the
// caller can queue a retry. Current accounts: best-effort notification;
// delivery failures are logged and swallowed.
func (r *Router) Credit(ctx context.Context, account domain.AccountRef, amount int64, reference string) error {
	unlock := r.locks.Lock(account.ID())
	defer unlock()

	switch account.Backend() {
	case domain.BackendLegacy:
		return r.creditLegacy(ctx, account, amount, reference)
	case domain.BackendCurrent:
		r.notifyCurrent(ctx, account, amount, reference)
		return nil
	default:
		return fmt.Errorf("ledger: %w", domain.ErrInvalidAccount)
	}
}

func (r *Router) creditLegacy(ctx context.Context, account domain.AccountRef, amount int64, reference string) error {
	major := float64(amount) / minorUnitsPerMajor
	err := repo.CreditContract(ctx, r.billing, account.ID(), major, reference)
	if errors.Is(err, repo.ErrDuplicateReference) {
		r.log.Info().
			Str("account", account.ID()).
			Str("reference", reference).
			Msg("legacy credit already applied, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("ledger: legacy credit for %s: %w", account.ID(), err)
	}
	r.log.Info().
		Str("account", account.ID()).
		Str("reference", reference).
		Int64("amount", amount).
		Msg("legacy ledger credited")
	return nil
}

// notifyCurrent delivers the credit to the current-backend collector. The
// downstream ledger is authoritative, so a failed delivery is logged only.
func (r *Router) notifyCurrent(ctx context.Context, account domain.AccountRef, amount int64, reference string) {
	if r.notifyURL == "" {
		r.log.Warn().Str("account", account.ID()).Msg("current-backend notify URL not configured")
		return
	}
	major := float64(amount) / minorUnitsPerMajor

	params := url.Values{}
	params.Set("command", "pay")
	params.Set("txn_id", reference)
	params.Set("txn_date", time.Now().UTC().Format("2006-01-02 15:04:05"))
	params.Set("sum", strconv.FormatFloat(major, 'f', 2, 64))
	params.Set("account", account.ID())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.notifyURL+"?"+params.Encode(), nil)
	if err != nil {
		r.log.Error().Err(err).Str("account", account.ID()).Msg("building current-backend notification")
		return
	}
	resp, err := r.http.Do(req)
	if err != nil {
		r.log.Error().Err(err).
			Str("account", account.ID()).
			Str("reference", reference).
			Msg("current-backend notification failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.log.Error().
			Int("status", resp.StatusCode).
			Str("account", account.ID()).
			Str("reference", reference).
			Msg("current-backend notification rejected")
		return
	}
	r.log.Info().
		Str("account", account.ID()).
		Str("reference", reference).
		Int64("amount", amount).
		Msg("current-backend notified")
}
