package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrConflict            = errors.New("conflict")
	ErrIdempotencyRequired = errors.New("idempotency key required")
	ErrIdempotencyConflict = errors.New("idempotency conflict")

	ErrInvalidTransition     = errors.New("invalid transition")
	ErrRevisionLimitExceeded = errors.New("revision limit exceeded")
	ErrDisputeAlreadyOpen    = errors.New("dispute already open")
	ErrDisputeResolved       = errors.New("dispute already resolved")
	ErrInsufficientHeldFunds = errors.New("insufficient held funds")
	ErrSplitMismatch         = errors.New("resolution split does not equal milestone amount")
	ErrEscrowClosed          = errors.New("escrow account closed to deposits")
)

// InvalidTransitionError names the current and attempted states so callers
// can tell a programming error from a legitimate business rejection.
type InvalidTransitionError struct {
	Entity    string
	Current   string
	Attempted string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition: %s -> %s", e.Entity, e.Current, e.Attempted)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

func NewInvalidTransition(entity, current, attempted string) error {
	return &InvalidTransitionError{Entity: entity, Current: current, Attempted: attempted}
}
