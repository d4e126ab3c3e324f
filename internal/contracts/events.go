package contracts

import (
	"encoding/json"
	"time"
)

type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	EventClass       string          `json:"event_class,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    string          `json:"schema_version"`
	Data             json.RawMessage `json:"data"`
}

type MilestoneStatusChangedPayload struct {
	MilestoneID string `json:"milestone_id"`
	ProjectID   string `json:"project_id"`
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
	Actor       string `json:"actor"`
	OccurredAt  string `json:"occurred_at"`
}

type ApprovalWarningPayload struct {
	MilestoneID          string `json:"milestone_id"`
	ProjectID            string `json:"project_id"`
	AutoApprovalDeadline string `json:"auto_approval_deadline"`
	HoursRemaining       int64  `json:"hours_remaining"`
}

type DepositReceivedPayload struct {
	ProjectID   string `json:"project_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	HeldAmount  int64  `json:"held_amount"`
	TotalAmount int64  `json:"total_amount"`
	ReceivedAt  string `json:"received_at"`
}

type FundsReleasedPayload struct {
	ProjectID   string `json:"project_id"`
	MilestoneID string `json:"milestone_id,omitempty"`
	DisputeID   string `json:"dispute_id,omitempty"`
	Amount      int64  `json:"amount"`
	HeldAmount  int64  `json:"held_amount"`
	ReleasedAt  string `json:"released_at"`
}

type FundsRefundedPayload struct {
	ProjectID   string `json:"project_id"`
	MilestoneID string `json:"milestone_id,omitempty"`
	DisputeID   string `json:"dispute_id,omitempty"`
	Amount      int64  `json:"amount"`
	Reason      string `json:"reason,omitempty"`
	RefundedAt  string `json:"refunded_at"`
}

type DisputeCreatedPayload struct {
	DisputeID   string `json:"dispute_id"`
	MilestoneID string `json:"milestone_id"`
	ProjectID   string `json:"project_id"`
	RaisedBy    string `json:"raised_by"`
	Reason      string `json:"reason"`
	CreatedAt   string `json:"created_at"`
}

type DisputeFeePaidPayload struct {
	DisputeID string `json:"dispute_id"`
	PaidBy    string `json:"paid_by"`
	Amount    int64  `json:"amount"`
	PaidAt    string `json:"paid_at"`
}

type DisputeEvidencePayload struct {
	DisputeID   string `json:"dispute_id"`
	EvidenceID  string `json:"evidence_id"`
	SubmittedBy string `json:"submitted_by"`
	SubmittedAt string `json:"submitted_at"`
}

type DisputeEscalatedPayload struct {
	DisputeID   string `json:"dispute_id"`
	EscalatedBy string `json:"escalated_by"`
	Reason      string `json:"reason,omitempty"`
	EscalatedAt string `json:"escalated_at"`
}

type DisputeResolvedPayload struct {
	DisputeID     string `json:"dispute_id"`
	MilestoneID   string `json:"milestone_id"`
	Decision      string `json:"decision"`
	AmountToPayee int64  `json:"amount_to_payee"`
	AmountToPayer int64  `json:"amount_to_payer"`
	ResolvedBy    string `json:"resolved_by"`
	ResolvedAt    string `json:"resolved_at"`
}

type DLQRecord struct {
	OriginalEvent EventEnvelope `json:"original_event"`
	ErrorSummary  string        `json:"error_summary"`
	RetryCount    int           `json:"retry_count"`
	FirstSeenAt   time.Time     `json:"first_seen_at"`
	LastErrorAt   time.Time     `json:"last_error_at"`
	SourceTopic   string        `json:"source_topic,omitempty"`
	DLQTopic      string        `json:"dlq_topic,omitempty"`
	TraceID       string        `json:"trace_id,omitempty"`
}
