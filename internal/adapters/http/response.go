package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/johnthebelovedcoder/contralock/internal/contracts"
	"github.com/johnthebelovedcoder/contralock/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, contracts.SuccessResponse{Status: "success", Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message, requestID string) {
	writeJSON(w, status, contracts.ErrorResponse{Status: "error", Error: contracts.ErrorPayload{Code: code, Message: message, RequestID: requestID}})
}

func mapDomainError(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrIdempotencyRequired):
		return http.StatusBadRequest, "idempotency_key_required"
	case errors.Is(err, domain.ErrIdempotencyConflict):
		return http.StatusConflict, "idempotency_conflict"
	case errors.Is(err, domain.ErrRevisionLimitExceeded):
		return http.StatusConflict, "revision_limit_exceeded"
	case errors.Is(err, domain.ErrDisputeAlreadyOpen):
		return http.StatusConflict, "dispute_already_open"
	case errors.Is(err, domain.ErrDisputeResolved):
		return http.StatusConflict, "dispute_resolved"
	case errors.Is(err, domain.ErrSplitMismatch):
		return http.StatusUnprocessableEntity, "split_mismatch"
	case errors.Is(err, domain.ErrEscrowClosed):
		return http.StatusConflict, "escrow_closed"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrInsufficientHeldFunds):
		// Held funds short of an approved release is a ledger integrity fault,
		// not a client mistake.
		return http.StatusInternalServerError, "insufficient_held_funds"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
