// Package services implements the business logic of the settlement and
// incident engine: the settlement orchestrator, autopay management with the
// recurring re-charge batch, and the incident correlator. This file
// centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrOrderActive is returned when a settlement poller is already running
	// for the order; the caller must not start a second one.
	ErrOrderActive = errors.New("order is already being settled")

	// ErrAutopayNotEnrolled is returned when an operation requires an active
	// autopay binding and the account has none.
	ErrAutopayNotEnrolled = errors.New("autopay is not enrolled for this account")

	// ErrAmountInvalid is returned when a payment amount is zero or negative.
	ErrAmountInvalid = errors.New("payment amount must be positive")
)
