// Package services – SettlementService
//
// This file implements the settlement orchestrator. Each submitted order is
// driven by one background goroutine through the state machine
//
//	Submitted → Polling → {Authorized, Declined, Abandoned}
//
// by polling the gateway status endpoint under an explicit backoff policy.
// Terminal processing is exactly-once per order: the unique payment row is
// flipped to settled first, and only the goroutine that wins that write
// performs the binding upsert and the ledger credit. A legacy credit that
// fails is parked in the outbox and re-driven by DrainOutbox, so the funds
// event is never dropped.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vt54/isp-mobile-backend/internal/domain"
	"github.com/vt54/isp-mobile-backend/internal/gateway"
	"github.com/vt54/isp-mobile-backend/internal/ledger"
	"github.com/vt54/isp-mobile-backend/internal/repo"
)

// Acquirer is the gateway contract required by the settlement and autopay
// services.
type Acquirer interface {
	// RegisterOrder registers a new order and returns its gateway ID plus the
	// hosted card-entry form URL.
	RegisterOrder(ctx context.Context, account domain.AccountRef, amount int64, autopay bool) (gateway.RegisteredOrder, error)

	// ChargeBinding charges a stored card binding for an already registered order.
	ChargeBinding(ctx context.Context, orderID, bindingID, sourceIP string) error

	// QueryStatus fetches the raw, uninterpreted order status.
	QueryStatus(ctx context.Context, orderID string) (gateway.RawStatus, error)

	// Bindings lists the account's stored-card bindings.
	Bindings(ctx context.Context, account domain.AccountRef) ([]gateway.Binding, error)

	// UnbindCard removes one stored-card binding.
	UnbindCard(ctx context.Context, bindingID string) error
}

// Ledger is the credit contract required by the settlement service.
type Ledger interface {
	// Credit applies an authorized payment to the account's ledger, keyed by
	// reference for idempotency.
	Credit(ctx context.Context, account domain.AccountRef, amount int64, reference string) error
}

// SettlementService drives orders to a terminal state and applies their
// financial effects.
type SettlementService struct {
	// DB is the GORM handle for the app store.
	DB *gorm.DB
	// Gateway issues acquiring calls.
	Gateway Acquirer
	// Ledger applies credits.
	Ledger Ledger
	// Log is the service logger.
	Log zerolog.Logger

	// PollInterval is the fixed delay between unresolved status polls.
	PollInterval time.Duration
	// PollDeadline bounds the whole poll loop; past it the order is abandoned.
	PollDeadline time.Duration

	mu     sync.Mutex
	active map[string]struct{}

	// accounts serializes per-account terminal processing (binding upsert +
	// credit) across concurrent settlements.
	accounts ledger.KeyedMutex

	wg sync.WaitGroup
}

// NewSettlementService constructs a settlement service with the given poll
// policy.
func NewSettlementService(db *gorm.DB, gw Acquirer, lg Ledger, pollInterval, pollDeadline time.Duration, log zerolog.Logger) *SettlementService {
	return &SettlementService{
		DB:           db,
		Gateway:      gw,
		Ledger:       lg,
		Log:          log.With().Str("component", "settlement").Logger(),
		PollInterval: pollInterval,
		PollDeadline: pollDeadline,
		active:       make(map[string]struct{}),
	}
}

// Submit registers a new order for the account and starts its settlement in
// the background. autopay selects the enroll flow (the gateway captures a
// card binding on authorization). submitKey, when non-nil, lets duplicate
// submissions under the same Idempotency-Key collapse onto one order; the
// handler resolves replays before calling Submit.
func (s *SettlementService) Submit(ctx context.Context, account domain.AccountRef, amount int64, autopay bool, submitKey *string) (gateway.RegisteredOrder, error) {
	if amount <= 0 {
		return gateway.RegisteredOrder{}, ErrAmountInvalid
	}

	reg, err := s.Gateway.RegisterOrder(ctx, account, amount, autopay)
	if err != nil {
		return gateway.RegisteredOrder{}, err
	}

	kind := domain.KindOneOff
	if autopay {
		kind = domain.KindAutopayEnroll
	}
	if err := repo.CreatePayment(ctx, s.DB, reg.OrderID, account.ID(), amount, kind, submitKey); err != nil {
		return gateway.RegisteredOrder{}, err
	}

	order := domain.Order{
		ID:        reg.OrderID,
		Account:   account,
		Amount:    amount,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Track(ctx, order); err != nil {
		return gateway.RegisteredOrder{}, err
	}
	return reg, nil
}

// Track starts the background settlement loop for an already registered
// order. At most one poller runs per orderID; a duplicate Track returns
// ErrOrderActive. The loop is detached from ctx's cancellation: a caller
// disconnect must not abort a payment in flight.
func (s *SettlementService) Track(ctx context.Context, order domain.Order) error {
	s.mu.Lock()
	if _, dup := s.active[order.ID]; dup {
		s.mu.Unlock()
		return ErrOrderActive
	}
	s.active[order.ID] = struct{}{}
	s.mu.Unlock()

	// Keep tracing/log values but drop the caller's cancellation.
	bg := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.active, order.ID)
			s.mu.Unlock()
		}()
		s.settle(bg, order)
	}()
	return nil
}

// Wait blocks until every in-flight settlement finishes. Used on shutdown.
func (s *SettlementService) Wait() { s.wg.Wait() }

// pollOutcome is the classified result of one terminal poll.
type pollOutcome struct {
	outcome    domain.Outcome
	settlement domain.Settlement
}

// errStillPending keeps the backoff loop going while the gateway reports no
// terminal status.
var errStillPending = errors.New("order status still pending")

// settle runs the poll loop and applies the terminal effects of one order.
func (s *SettlementService) settle(ctx context.Context, order domain.Order) {
	log := s.Log.With().
		Str("order", order.ID).
		Str("account", order.Account.ID()).
		Str("kind", string(order.Kind)).
		Logger()
	log.Info().Int64("amount", order.Amount).Msg("settlement started")

	res, err := backoff.Retry(ctx, func() (pollOutcome, error) {
		st, qerr := s.Gateway.QueryStatus(ctx, order.ID)
		if qerr != nil {
			// Transport failure: retry on the same schedule.
			log.Warn().Err(qerr).Msg("status poll failed")
			return pollOutcome{}, qerr
		}
		out := classifyStatus(st)
		if out.outcome == domain.OutcomePending {
			return pollOutcome{}, errStillPending
		}
		return out, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.PollInterval)),
		backoff.WithMaxElapsedTime(s.PollDeadline),
	)
	if err != nil {
		// Deadline exhausted without a terminal status: abandoned, no ledger
		// mutation, no automatic retry.
		log.Error().Err(err).Str("state", string(domain.StateAbandoned)).Msg("settlement abandoned")
		return
	}

	switch res.outcome {
	case domain.OutcomeAuthorized:
		s.applyAuthorized(ctx, order, res.settlement, log)
	case domain.OutcomeDeclined:
		log.Info().Str("state", string(domain.StateDeclined)).Msg("authorization declined")
	}
}

// applyAuthorized performs the exactly-once terminal effects of an authorized
// order: settle the payment row, capture the binding when requested, credit
// the ledger.
func (s *SettlementService) applyAuthorized(ctx context.Context, order domain.Order, st domain.Settlement, log zerolog.Logger) {
	unlock := s.accounts.Lock(order.Account.ID())
	defer unlock()

	first, err := repo.MarkPaymentSettled(ctx, s.DB, order.ID, st.Amount)
	if err != nil {
		log.Error().Err(err).Msg("marking payment settled")
		return
	}
	if !first {
		log.Info().Msg("duplicate terminal observation, effects already applied")
		return
	}

	if order.Kind.WantsBinding() && st.BindingID != "" {
		if err := repo.UpsertBinding(ctx, s.DB, order.Account.ID(), st.BindingID, st.Amount, st.SourceIP, time.Now().UTC()); err != nil {
			log.Error().Err(err).Msg("storing autopay binding")
		} else {
			log.Info().Str("binding", st.BindingID).Msg("autopay binding stored")
		}
	}

	if err := s.Ledger.Credit(ctx, order.Account, st.Amount, order.ID); err != nil {
		log.Error().Err(err).Msg("ledger credit failed, queueing for retry")
		if qerr := repo.EnqueueOutbox(ctx, s.DB, order.ID, order.Account.ID(), st.Amount, err); qerr != nil {
			log.Error().Err(qerr).Msg("queueing failed credit")
		}
		return
	}
	log.Info().Str("state", string(domain.StateAuthorized)).Int64("amount", st.Amount).Msg("settlement completed")
}

// DrainOutbox retries parked legacy credits. Each entry is independent; a
// failure bumps its attempt counter and moves on.
func (s *SettlementService) DrainOutbox(ctx context.Context) error {
	entries, err := repo.ListOutbox(ctx, s.DB, 100)
	if err != nil {
		return err
	}
	for _, e := range entries {
		account, perr := domain.ParseAccount(e.AccountID)
		if perr != nil {
			s.Log.Error().Str("order", e.OrderID).Str("account", e.AccountID).Msg("outbox entry has invalid account, dropping")
			if err := repo.ResolveOutbox(ctx, s.DB, e.OrderID); err != nil {
				return err
			}
			continue
		}
		if cerr := s.Ledger.Credit(ctx, account, e.Amount, e.OrderID); cerr != nil {
			s.Log.Warn().Err(cerr).Str("order", e.OrderID).Int("attempts", e.Attempts).Msg("outbox credit retry failed")
			if err := repo.BumpOutboxAttempt(ctx, s.DB, e.OrderID, cerr); err != nil {
				return err
			}
			continue
		}
		if err := repo.ResolveOutbox(ctx, s.DB, e.OrderID); err != nil {
			return err
		}
		s.Log.Info().Str("order", e.OrderID).Msg("outbox credit delivered")
	}
	return nil
}

// classifyStatus maps a raw gateway payload onto the settlement outcome.
// Status 2 is full authorization, 3 and 6 are reversal/decline, anything else
// (including an absent code) stays pending.
func classifyStatus(st gateway.RawStatus) pollOutcome {
	if st.OrderStatus == nil {
		return pollOutcome{outcome: domain.OutcomePending}
	}
	switch *st.OrderStatus {
	case domain.GatewayStatusAuthorized:
		return pollOutcome{
			outcome: domain.OutcomeAuthorized,
			settlement: domain.Settlement{
				Amount:    st.Amount,
				BindingID: st.BindingID,
				SourceIP:  st.IP,
			},
		}
	case domain.GatewayStatusReversed, domain.GatewayStatusDeclined:
		return pollOutcome{outcome: domain.OutcomeDeclined}
	default:
		return pollOutcome{outcome: domain.OutcomePending}
	}
}
