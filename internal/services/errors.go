// Package services implements the business logic of the donor matching
// platform: candidate location and matching, push fan-out, the response
// ledger, donor accounts, verification, and donation records.
//
// This file centralizes the service-level error values so that they can be
// consistently returned by service methods and checked by callers with
// errors.Is. Translation into HTTP status codes happens in the handler layer.
package services

import (
	"errors"
	"fmt"
)

// Request errors.
var (
	// ErrRequestNotFound indicates the blood request does not exist.
	ErrRequestNotFound = errors.New("request not found")

	// ErrRequestNotPending is returned when an operation needs an open
	// request but it is Fulfilled, Cancelled, or Expired.
	ErrRequestNotPending = errors.New("request is not pending")

	// ErrDuplicateResponse is returned when the donor already responded to
	// the request.
	ErrDuplicateResponse = errors.New("donor already responded to this request")

	// ErrResponseNotFound indicates the donor has no response on the request.
	ErrResponseNotFound = errors.New("response not found")

	// ErrInvalidTransition is returned for a status change the state machine
	// does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Donor and access errors.
var (
	ErrDonorNotFound = errors.New("donor not found")
	ErrEmailTaken    = errors.New("email already registered")
	ErrForbidden     = errors.New("not allowed")
)

// ErrValidation is wrapped by every input validation failure. The wrapped
// message names the offending field.
var ErrValidation = errors.New("validation failed")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
