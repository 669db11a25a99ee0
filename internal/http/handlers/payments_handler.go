// Payment and account HTTP handlers.
//
// This file exposes the REST endpoints of the settlement core:
//   - POST   /payments                       (submit a payment, async settlement)
//   - GET    /accounts/{account}/autopay     (autopay status)
//   - DELETE /accounts/{account}/autopay     (disable autopay)
//   - GET    /accounts/{account}/incident    (incident flag)
//   - GET    /accounts/{account}/balance     (balance summary)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. Settlement itself runs in the
// background; submission returns 202 with the order identity.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vt54/isp-mobile-backend/internal/domain"
	"github.com/vt54/isp-mobile-backend/internal/gateway"
	"github.com/vt54/isp-mobile-backend/internal/repo"
	"github.com/vt54/isp-mobile-backend/internal/services"
)

// HeaderIdempotencyKey carries the client's replay token for POST /payments.
const HeaderIdempotencyKey = "Idempotency-Key"

// maxIdempotencyKeyLen caps the stored key length.
const maxIdempotencyKeyLen = 200

//
// Service contracts (context-aware)
//

// PaymentService submits orders for asynchronous settlement.
type PaymentService interface {
	// Submit registers an order and starts its background settlement.
	Submit(ctx context.Context, account domain.AccountRef, amount int64, autopay bool, submitKey *string) (gateway.RegisteredOrder, error)
}

// AutopayService exposes autopay status and disabling.
type AutopayService interface {
	// Status reports the account's autopay state.
	Status(ctx context.Context, account domain.AccountRef) (services.AutopayStatus, error)
	// Disable unbinds stored cards and clears the autopay record.
	Disable(ctx context.Context, account domain.AccountRef) error
}

// IncidentService exposes the per-account incident flag.
type IncidentService interface {
	Status(ctx context.Context, account domain.AccountRef) (bool, error)
}

// BalanceService exposes the balance summary read.
type BalanceService interface {
	Summary(ctx context.Context, account domain.AccountRef) (services.BalanceSummary, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the settlement core. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	db         *gorm.DB
	paySvc     PaymentService
	autopaySvc AutopayService
	incidents  IncidentService
	balances   BalanceService
}

// New constructs a Handlers instance bound to the given services. db is the
// app-store handle used for Idempotency-Key replay lookups.
func New(db *gorm.DB, pay PaymentService, ap AutopayService, inc IncidentService, bal BalanceService) *Handlers {
	return &Handlers{db: db, paySvc: pay, autopaySvc: ap, incidents: inc, balances: bal}
}

// submitPaymentRequest is the POST /payments body.
type submitPaymentRequest struct {
	Account string `json:"account" binding:"required"`
	Amount  int64  `json:"amount" binding:"required"`
	Autopay bool   `json:"autopay"`
}

// submitPaymentResponse is the POST /payments result.
type submitPaymentResponse struct {
	OrderID  string `json:"order_id"`
	FormURL  string `json:"form_url,omitempty"`
	Replayed bool   `json:"replayed,omitempty"`
}

// SubmitPayment handles POST /payments. The settlement runs asynchronously;
// the response carries the gateway order ID and the hosted card-entry form
// URL. A repeated request with the same Idempotency-Key returns the original
// order without registering a second one.
func (h *Handlers) SubmitPayment(c *gin.Context) {
	var req submitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	account, err := domain.ParseAccount(strings.TrimSpace(req.Account))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidAccount, "account must be a 4- or 5-digit identifier")
		return
	}
	if req.Amount <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "amount must be positive minor units")
		return
	}

	var submitKey *string
	if key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey)); key != "" {
		if len(key) > maxIdempotencyKeyLen {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Idempotency-Key too long")
			return
		}
		if prev, err := repo.GetPaymentBySubmitKey(c.Request.Context(), h.db, account.ID(), key); err == nil {
			ok(c, http.StatusOK, submitPaymentResponse{OrderID: prev.OrderID, Replayed: true})
			return
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "idempotency lookup failed")
			return
		}
		submitKey = &key
	}

	reg, err := h.paySvc.Submit(c.Request.Context(), account, req.Amount, req.Autopay, submitKey)
	switch {
	case err == nil:
		ok(c, http.StatusAccepted, submitPaymentResponse{OrderID: reg.OrderID, FormURL: reg.FormURL})
	case errors.Is(err, services.ErrAmountInvalid):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		fail(c, http.StatusBadGateway, ErrCodeGatewayDown, "acquiring gateway unavailable")
	case errors.Is(err, gateway.ErrGatewayRejected):
		fail(c, http.StatusUnprocessableEntity, ErrCodeSubmitFailed, "order was rejected by the gateway")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "payment submission failed")
	}
}

// accountParam parses and validates the :account path parameter.
func accountParam(c *gin.Context) (domain.AccountRef, bool) {
	account, err := domain.ParseAccount(strings.TrimSpace(c.Param("account")))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidAccount, "account must be a 4- or 5-digit identifier")
		return domain.AccountRef{}, false
	}
	return account, true
}

// GetAutopayStatus handles GET /accounts/:account/autopay.
func (h *Handlers) GetAutopayStatus(c *gin.Context) {
	account, okAcc := accountParam(c)
	if !okAcc {
		return
	}
	st, err := h.autopaySvc.Status(c.Request.Context(), account)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "autopay status lookup failed")
		return
	}
	ok(c, http.StatusOK, st)
}

// DisableAutopay handles DELETE /accounts/:account/autopay.
func (h *Handlers) DisableAutopay(c *gin.Context) {
	account, okAcc := accountParam(c)
	if !okAcc {
		return
	}
	if err := h.autopaySvc.Disable(c.Request.Context(), account); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "autopay disable failed")
		return
	}
	noContent(c)
}

// GetIncidentStatus handles GET /accounts/:account/incident.
func (h *Handlers) GetIncidentStatus(c *gin.Context) {
	account, okAcc := accountParam(c)
	if !okAcc {
		return
	}
	affected, err := h.incidents.Status(c.Request.Context(), account)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "incident status lookup failed")
		return
	}
	ok(c, http.StatusOK, gin.H{"affected": affected})
}

// GetBalance handles GET /accounts/:account/balance.
func (h *Handlers) GetBalance(c *gin.Context) {
	account, okAcc := accountParam(c)
	if !okAcc {
		return
	}
	sum, err := h.balances.Summary(c.Request.Context(), account)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "balance lookup failed")
		return
	}
	ok(c, http.StatusOK, sum)
}
