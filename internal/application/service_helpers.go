package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/johnthebelovedcoder/contralock/internal/domain"
)

func (s *Service) requireActor(actor Actor) error {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *Service) requireIdempotency(actor Actor) error {
	if strings.TrimSpace(actor.IdempotencyKey) == "" {
		return domain.ErrIdempotencyRequired
	}
	return nil
}

// getIdempotentResponse returns a previously completed response body for this
// key, checking the request hash to catch key reuse across different payloads.
func (s *Service) getIdempotentResponse(ctx context.Context, actor Actor, requestHash string) ([]byte, bool, error) {
	if s.idempotency == nil {
		return nil, false, nil
	}
	rec, err := s.idempotency.Get(ctx, actor.IdempotencyKey, s.nowFn())
	if err != nil {
		return nil, false, err
	}
	if rec == nil {
		return nil, false, nil
	}
	if rec.RequestHash != requestHash {
		return nil, false, domain.ErrIdempotencyConflict
	}
	if len(rec.ResponseBody) == 0 {
		return nil, false, nil
	}
	return rec.ResponseBody, true, nil
}

func (s *Service) reserveIdempotency(ctx context.Context, actor Actor, requestHash string) error {
	if s.idempotency == nil {
		return nil
	}
	err := s.idempotency.Reserve(ctx, actor.IdempotencyKey, requestHash, s.nowFn().Add(s.cfg.IdempotencyTTL))
	if err == domain.ErrConflict {
		return domain.ErrIdempotencyConflict
	}
	return err
}

func (s *Service) completeIdempotent(ctx context.Context, key string, code int, payload any) {
	if s.idempotency == nil || strings.TrimSpace(key) == "" {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = s.idempotency.Complete(ctx, key, code, b, s.nowFn())
}

func (s *Service) recordTransition(ctx context.Context, entityType, entityID, oldStatus, newStatus, actor string, at time.Time) error {
	if s.transitions == nil {
		return nil
	}
	return s.transitions.Append(ctx, domain.TransitionRecord{
		RecordID:   uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
		Actor:      actor,
		OccurredAt: at,
	})
}

// inTransaction runs fn in the injected atomic unit, or directly when no
// runner is configured (in-memory adapters under the project lock).
func (s *Service) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.InTransaction(ctx, fn)
}

func hashPayload(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
