package ports

import (
	"context"
	"time"

	"github.com/johnthebelovedcoder/contralock/internal/domain"
)

type ProjectRepository interface {
	Create(ctx context.Context, row domain.Project) error
	GetByID(ctx context.Context, projectID string) (domain.Project, error)
	Update(ctx context.Context, row domain.Project) error
}

type MilestoneRepository interface {
	Create(ctx context.Context, row domain.Milestone) error
	GetByID(ctx context.Context, milestoneID string) (domain.Milestone, error)
	Update(ctx context.Context, row domain.Milestone) error
	ListByProjectID(ctx context.Context, projectID string) ([]domain.Milestone, error)
	// ListSubmitted feeds the auto-approval sweep.
	ListSubmitted(ctx context.Context) ([]domain.Milestone, error)
}

type EscrowAccountRepository interface {
	Create(ctx context.Context, row domain.EscrowAccount) error
	GetByProjectID(ctx context.Context, projectID string) (domain.EscrowAccount, error)
	Update(ctx context.Context, row domain.EscrowAccount) error
}

type TransactionRepository interface {
	Append(ctx context.Context, row domain.Transaction) error
	ListByProjectID(ctx context.Context, projectID string) ([]domain.Transaction, error)
}

type DisputeRepository interface {
	Create(ctx context.Context, row domain.Dispute) error
	GetByID(ctx context.Context, disputeID string) (domain.Dispute, error)
	GetOpenByMilestoneID(ctx context.Context, milestoneID string) (domain.Dispute, error)
	Update(ctx context.Context, row domain.Dispute) error
}

type EvidenceRepository interface {
	Append(ctx context.Context, row domain.Evidence) error
	ListByDisputeID(ctx context.Context, disputeID string) ([]domain.Evidence, error)
}

type DisputeMessageRepository interface {
	Append(ctx context.Context, row domain.DisputeMessage) error
	ListByDisputeID(ctx context.Context, disputeID string, limit int) ([]domain.DisputeMessage, error)
}

type TransitionRepository interface {
	Append(ctx context.Context, row domain.TransitionRecord) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.TransitionRecord, error)
}

type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
}

type IdempotencyRepository interface {
	Get(ctx context.Context, key string, now time.Time) (*IdempotencyRecord, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, record OutboxRecord) error
	ListPending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, recordID string, at time.Time) error
}

// TransactionRunner wraps cross-entity mutations in one all-or-nothing unit.
// The postgres adapter maps this to a database transaction; the in-memory
// adapter relies on the service's per-project serialization.
type TransactionRunner interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
