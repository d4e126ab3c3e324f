package domain

import "time"

const (
	EscrowStatusNotDeposited    = "not_deposited"
	EscrowStatusPartiallyFunded = "partially_funded"
	EscrowStatusFunded          = "funded"
)

const (
	TransactionTypeDeposit          = "deposit"
	TransactionTypeMilestoneRelease = "milestone_release"
	TransactionTypeDisputePayment   = "dispute_payment"
	TransactionTypeDisputeRefund    = "dispute_refund"
	TransactionTypeFee              = "fee"
	TransactionTypeWithdrawal       = "withdrawal"
)

const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// EscrowAccount carries the authoritative balances for one project.
// Transactions are the audit trail; balances are never recomputed from them.
type EscrowAccount struct {
	AccountID      string    `json:"account_id"`
	ProjectID      string    `json:"project_id"`
	Currency       string    `json:"currency"`
	TotalAmount    int64     `json:"total_amount"`
	HeldAmount     int64     `json:"held_amount"`
	ReleasedAmount int64     `json:"released_amount"`
	RefundedAmount int64     `json:"refunded_amount"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Balanced reports the core escrow invariant:
// held + released + refunded == total.
func (a EscrowAccount) Balanced() bool {
	return a.HeldAmount+a.ReleasedAmount+a.RefundedAmount == a.TotalAmount
}

type FeeBreakdown struct {
	PlatformFee   int64 `json:"platform_fee"`
	ProcessingFee int64 `json:"processing_fee"`
}

func (f FeeBreakdown) Total() int64 { return f.PlatformFee + f.ProcessingFee }

type Transaction struct {
	TransactionID    string       `json:"transaction_id"`
	ProjectID        string       `json:"project_id"`
	Type             string       `json:"type"`
	Amount           int64        `json:"amount"`
	Currency         string       `json:"currency"`
	FromParty        string       `json:"from_party,omitempty"`
	ToParty          string       `json:"to_party,omitempty"`
	MilestoneID      string       `json:"milestone_id,omitempty"`
	DisputeID        string       `json:"dispute_id,omitempty"`
	Fees             FeeBreakdown `json:"fees"`
	GatewayReference string       `json:"gateway_reference,omitempty"`
	Status           string       `json:"status"`
	CreatedAt        time.Time    `json:"created_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
}

// FeeSchedule is the fixed, documented schedule: platform and processing fees
// are charged additively to the payer on deposit so the payee's contracted
// milestone amount is never reduced. The dispute fee is a flat charge to the
// raising party.
type FeeSchedule struct {
	PlatformFeeBps     int64
	ProcessingFeeBps   int64
	ProcessingFeeFixed int64
	DisputeFee         int64
}

func (f FeeSchedule) DepositFees(amount int64) FeeBreakdown {
	return FeeBreakdown{
		PlatformFee:   amount * f.PlatformFeeBps / 10000,
		ProcessingFee: amount*f.ProcessingFeeBps/10000 + f.ProcessingFeeFixed,
	}
}
