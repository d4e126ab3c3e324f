package domain

import (
	"strings"
	"time"
)

const (
	DisputePhasePendingFee     = "pending_fee"
	DisputePhasePendingReview  = "pending_review"
	DisputePhaseSelfResolution = "self_resolution"
	DisputePhaseInMediation    = "in_mediation"
	DisputePhaseInArbitration  = "in_arbitration"
	DisputePhaseEscalated      = "escalated"
	DisputePhaseResolved       = "resolved"
)

const (
	ResolutionDecisionReleaseFull = "release_full"
	ResolutionDecisionSplit       = "split"
	ResolutionDecisionRefundFull  = "refund_full"
	ResolutionDecisionRework      = "rework"
)

type Evidence struct {
	EvidenceID  string    `json:"evidence_id"`
	DisputeID   string    `json:"dispute_id"`
	SubmittedBy string    `json:"submitted_by"`
	Filename    string    `json:"filename,omitempty"`
	FileURL     string    `json:"file_url,omitempty"`
	Description string    `json:"description"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type DisputeMessage struct {
	MessageID   string    `json:"message_id"`
	DisputeID   string    `json:"dispute_id"`
	SenderID    string    `json:"sender_id"`
	MessageBody string    `json:"message_body"`
	CreatedAt   time.Time `json:"created_at"`
}

// Advisory is an optional automated analysis attached during review. It is an
// annotation the resolver may read, never an input resolve depends on.
type Advisory struct {
	ConfidenceScore    float64   `json:"confidence_score"`
	KeyIssues          []string  `json:"key_issues,omitempty"`
	RecommendedToPayee int64     `json:"recommended_to_payee"`
	RecommendedToPayer int64     `json:"recommended_to_payer"`
	Summary            string    `json:"summary"`
	GeneratedAt        time.Time `json:"generated_at"`
}

type Resolution struct {
	Decision      string    `json:"decision"`
	AmountToPayee int64     `json:"amount_to_payee"`
	AmountToPayer int64     `json:"amount_to_payer"`
	Reasoning     string    `json:"reasoning"`
	ResolvedBy    string    `json:"resolved_by"`
	ResolvedAt    time.Time `json:"resolved_at"`
}

type Dispute struct {
	DisputeID    string      `json:"dispute_id"`
	MilestoneID  string      `json:"milestone_id"`
	ProjectID    string      `json:"project_id"`
	RaisedBy     string      `json:"raised_by"`
	Reason       string      `json:"reason"`
	Phase        string      `json:"phase"`
	FeePaid      bool        `json:"fee_paid"`
	MediatorID   string      `json:"mediator_id,omitempty"`
	ArbitratorID string      `json:"arbitrator_id,omitempty"`
	Advisory     *Advisory   `json:"advisory,omitempty"`
	Resolution   *Resolution `json:"resolution,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	ResolvedAt   *time.Time  `json:"resolved_at,omitempty"`
}

func IsTerminalDisputePhase(phase string) bool { return phase == DisputePhaseResolved }

func ValidateDisputeTransition(from, to string) error {
	if from == to {
		return nil
	}
	allowed := map[string]map[string]bool{
		DisputePhasePendingFee:     {DisputePhasePendingReview: true},
		DisputePhasePendingReview:  {DisputePhaseSelfResolution: true, DisputePhaseInMediation: true, DisputePhaseInArbitration: true},
		DisputePhaseSelfResolution: {DisputePhaseResolved: true},
		DisputePhaseInMediation:    {DisputePhaseResolved: true, DisputePhaseEscalated: true},
		DisputePhaseEscalated:      {DisputePhaseInArbitration: true},
		DisputePhaseInArbitration:  {DisputePhaseResolved: true},
	}
	if next, ok := allowed[from]; ok && next[to] {
		return nil
	}
	return NewInvalidTransition("dispute", from, to)
}

func NormalizeResolutionDecision(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ResolutionDecisionReleaseFull:
		return ResolutionDecisionReleaseFull
	case ResolutionDecisionSplit:
		return ResolutionDecisionSplit
	case ResolutionDecisionRefundFull:
		return ResolutionDecisionRefundFull
	case ResolutionDecisionRework:
		return ResolutionDecisionRework
	default:
		return ""
	}
}

// ValidateResolutionSplit enforces amountToPayee + amountToPayer ==
// milestoneAmount before any ledger mutation happens.
func ValidateResolutionSplit(amountToPayee, amountToPayer, milestoneAmount int64) error {
	if amountToPayee < 0 || amountToPayer < 0 {
		return ErrInvalidInput
	}
	if amountToPayee+amountToPayer != milestoneAmount {
		return ErrSplitMismatch
	}
	return nil
}

// ResumeStatusForResolution maps a resolution onto the milestone status the
// dispute resumes to.
func ResumeStatusForResolution(decision string, amountToPayee, milestoneAmount int64) string {
	if decision == ResolutionDecisionRework {
		return MilestoneStatusRevisionRequested
	}
	if amountToPayee == milestoneAmount {
		return MilestoneStatusApproved
	}
	return MilestoneStatusApprovedPartial
}
