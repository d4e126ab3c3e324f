package domain

import "time"

const (
	CanonicalEventClassDomain        = "domain"
	CanonicalEventClassAnalyticsOnly = "analytics_only"
	CanonicalEventClassOps           = "ops"
)

const (
	EventMilestoneStarted           = "milestone.started"
	EventMilestoneSubmitted         = "milestone.submitted"
	EventMilestoneApproved          = "milestone.approved"
	EventMilestoneRevisionRequested = "milestone.revision_requested"
	EventMilestoneCancelled         = "milestone.cancelled"
	EventMilestoneApprovalWarning   = "milestone.approval_warning"
	EventEscrowDepositReceived      = "escrow.deposit_received"
	EventEscrowFundsReleased        = "escrow.funds_released"
	EventEscrowFundsRefunded        = "escrow.funds_refunded"
	EventDisputeCreated             = "dispute.created"
	EventDisputeFeePaid             = "dispute.fee_paid"
	EventDisputeEvidenceSubmitted   = "dispute.evidence_submitted"
	EventDisputeEscalated           = "dispute.escalated"
	EventDisputeResolved            = "dispute.resolved"
)

func IsCanonicalEmittedEvent(eventType string) bool {
	switch eventType {
	case EventMilestoneStarted, EventMilestoneSubmitted, EventMilestoneApproved,
		EventMilestoneRevisionRequested, EventMilestoneCancelled, EventMilestoneApprovalWarning,
		EventEscrowDepositReceived, EventEscrowFundsReleased, EventEscrowFundsRefunded,
		EventDisputeCreated, EventDisputeFeePaid, EventDisputeEvidenceSubmitted,
		EventDisputeEscalated, EventDisputeResolved:
		return true
	default:
		return false
	}
}

func CanonicalEventClass(eventType string) string {
	switch eventType {
	case EventEscrowDepositReceived, EventEscrowFundsReleased, EventEscrowFundsRefunded,
		EventMilestoneApproved, EventDisputeCreated, EventDisputeResolved:
		return CanonicalEventClassDomain
	case EventMilestoneApprovalWarning:
		return CanonicalEventClassOps
	case EventMilestoneStarted, EventMilestoneSubmitted, EventMilestoneRevisionRequested,
		EventMilestoneCancelled, EventDisputeFeePaid, EventDisputeEvidenceSubmitted,
		EventDisputeEscalated:
		return CanonicalEventClassAnalyticsOnly
	default:
		return ""
	}
}

func CanonicalPartitionKeyPath(eventType string) string {
	switch eventType {
	case EventEscrowDepositReceived, EventEscrowFundsReleased, EventEscrowFundsRefunded:
		return "data.project_id"
	case EventDisputeCreated, EventDisputeFeePaid, EventDisputeEvidenceSubmitted,
		EventDisputeEscalated, EventDisputeResolved:
		return "data.dispute_id"
	default:
		if IsCanonicalEmittedEvent(eventType) {
			return "data.milestone_id"
		}
		return ""
	}
}

// TransitionRecord is the committed-transition feed consumable by the
// notification sink and audit tooling.
type TransitionRecord struct {
	RecordID   string    `json:"record_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	OldStatus  string    `json:"old_status"`
	NewStatus  string    `json:"new_status"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
}
