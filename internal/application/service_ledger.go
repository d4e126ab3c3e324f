package application

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/johnthebelovedcoder/contralock/internal/domain"
)

// Deposit funds the project's escrow account through the payment gateway.
// Fees are charged additively to the payer and recorded as separate fee
// transactions; escrow balances only ever carry the contracted amounts.
func (s *Service) Deposit(ctx context.Context, actor Actor, projectID string, input DepositInput) (domain.EscrowAccount, error) {
	if err := s.requireActor(actor); err != nil {
		return domain.EscrowAccount{}, err
	}
	if err := s.requireIdempotency(actor); err != nil {
		return domain.EscrowAccount{}, err
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" || input.Amount <= 0 {
		return domain.EscrowAccount{}, domain.ErrInvalidInput
	}
	unlock := s.locks.lock(projectID)
	defer unlock()

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	if !actor.IsSystem() && actor.SubjectID != project.ClientID {
		return domain.EscrowAccount{}, domain.ErrForbidden
	}
	requestHash := hashPayload(input)
	if body, ok, err := s.getIdempotentResponse(ctx, actor, requestHash); err != nil {
		return domain.EscrowAccount{}, err
	} else if ok {
		var cached domain.EscrowAccount
		if err := json.Unmarshal(body, &cached); err == nil {
			return cached, nil
		}
	}
	if err := s.reserveIdempotency(ctx, actor, requestHash); err != nil {
		return domain.EscrowAccount{}, err
	}

	now := s.nowFn()
	account, err := s.accounts.GetByProjectID(ctx, projectID)
	created := false
	if err == domain.ErrNotFound {
		account = domain.EscrowAccount{
			AccountID: uuid.NewString(),
			ProjectID: projectID,
			Currency:  project.Currency,
			Status:    domain.EscrowStatusNotDeposited,
			CreatedAt: now,
			UpdatedAt: now,
		}
		created = true
	} else if err != nil {
		return domain.EscrowAccount{}, err
	}
	if account.Status == domain.EscrowStatusFunded {
		return domain.EscrowAccount{}, domain.ErrEscrowClosed
	}
	if account.TotalAmount+input.Amount > project.TotalBudget {
		return domain.EscrowAccount{}, domain.ErrInvalidInput
	}

	fees := s.cfg.Fees.DepositFees(input.Amount)
	ref, err := s.gateway.ChargePayer(ctx, project.ClientID, input.Amount+fees.Total(), account.Currency, input.Method)
	if err != nil {
		return domain.EscrowAccount{}, err
	}

	account.TotalAmount += input.Amount
	account.HeldAmount += input.Amount
	if account.TotalAmount >= project.TotalBudget {
		account.Status = domain.EscrowStatusFunded
	} else {
		account.Status = domain.EscrowStatusPartiallyFunded
	}
	account.UpdatedAt = now

	err = s.inTransaction(ctx, func(ctx context.Context) error {
		if created {
			if err := s.accounts.Create(ctx, account); err != nil {
				return err
			}
		} else if err := s.accounts.Update(ctx, account); err != nil {
			return err
		}
		deposit := domain.Transaction{
			TransactionID:    uuid.NewString(),
			ProjectID:        projectID,
			Type:             domain.TransactionTypeDeposit,
			Amount:           input.Amount,
			Currency:         account.Currency,
			FromParty:        project.ClientID,
			Fees:             fees,
			GatewayReference: ref,
			Status:           domain.TransactionStatusCompleted,
			CreatedAt:        now,
			CompletedAt:      &now,
		}
		if err := s.transactions.Append(ctx, deposit); err != nil {
			return err
		}
		if fees.Total() > 0 {
			fee := domain.Transaction{
				TransactionID:    uuid.NewString(),
				ProjectID:        projectID,
				Type:             domain.TransactionTypeFee,
				Amount:           fees.Total(),
				Currency:         account.Currency,
				FromParty:        project.ClientID,
				Fees:             fees,
				GatewayReference: ref,
				Status:           domain.TransactionStatusCompleted,
				CreatedAt:        now,
				CompletedAt:      &now,
			}
			if err := s.transactions.Append(ctx, fee); err != nil {
				return err
			}
		}
		return s.enqueueDepositReceived(ctx, account, input.Amount, actor.RequestID, now)
	})
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	s.completeIdempotent(ctx, actor.IdempotencyKey, 200, account)
	return account, nil
}

// GetBalance reads the authoritative balances off the EscrowAccount row.
func (s *Service) GetBalance(ctx context.Context, actor Actor, projectID string) (Balance, error) {
	if err := s.requireActor(actor); err != nil {
		return Balance{}, err
	}
	account, err := s.accounts.GetByProjectID(ctx, strings.TrimSpace(projectID))
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		ProjectID: account.ProjectID,
		Currency:  account.Currency,
		Total:     account.TotalAmount,
		Held:      account.HeldAmount,
		Released:  account.ReleasedAmount,
		Refunded:  account.RefundedAmount,
		Status:    account.Status,
	}, nil
}

func (s *Service) ListTransactions(ctx context.Context, actor Actor, projectID string) ([]domain.Transaction, error) {
	if err := s.requireActor(actor); err != nil {
		return nil, err
	}
	return s.transactions.ListByProjectID(ctx, strings.TrimSpace(projectID))
}

// releaseHeldFunds moves amount from held to released and pays the payee out.
// Caller holds the project lock and runs inside the atomic unit. A shortfall
// here means a ledger invariant was breached upstream, so it is surfaced
// loudly and fails the whole transition.
func (s *Service) releaseHeldFunds(ctx context.Context, project domain.Project, account domain.EscrowAccount, txType, milestoneID, disputeID string, amount int64, traceID string, now time.Time) (domain.EscrowAccount, error) {
	if account.HeldAmount < amount {
		s.logger.ErrorContext(ctx, "escrow invariant breach: held funds below release amount",
			"module", "application.ledger",
			"layer", "application",
			"operation", "release_held_funds",
			"outcome", "invariant_breach",
			"alert", true,
			"project_id", project.ProjectID,
			"milestone_id", milestoneID,
			"held_amount", account.HeldAmount,
			"release_amount", amount,
		)
		return domain.EscrowAccount{}, domain.ErrInsufficientHeldFunds
	}
	ref := ""
	if project.FreelancerID != "" && amount > 0 {
		var err error
		ref, err = s.gateway.PayOutToPayee(ctx, project.FreelancerID, amount, account.Currency, "default")
		if err != nil {
			return domain.EscrowAccount{}, err
		}
	}
	account.HeldAmount -= amount
	account.ReleasedAmount += amount
	account.UpdatedAt = now
	if err := s.accounts.Update(ctx, account); err != nil {
		return domain.EscrowAccount{}, err
	}
	release := domain.Transaction{
		TransactionID:    uuid.NewString(),
		ProjectID:        project.ProjectID,
		Type:             txType,
		Amount:           amount,
		Currency:         account.Currency,
		ToParty:          project.FreelancerID,
		MilestoneID:      milestoneID,
		DisputeID:        disputeID,
		GatewayReference: ref,
		Status:           domain.TransactionStatusCompleted,
		CreatedAt:        now,
		CompletedAt:      &now,
	}
	if err := s.transactions.Append(ctx, release); err != nil {
		return domain.EscrowAccount{}, err
	}
	if err := s.enqueueFundsReleased(ctx, account, milestoneID, disputeID, amount, traceID, now); err != nil {
		return domain.EscrowAccount{}, err
	}
	return account, nil
}

// refundHeldFunds moves amount from held back to the payer side of the ledger.
func (s *Service) refundHeldFunds(ctx context.Context, project domain.Project, account domain.EscrowAccount, txType, milestoneID, disputeID string, amount int64, reason, traceID string, now time.Time) (domain.EscrowAccount, error) {
	if account.HeldAmount < amount {
		return domain.EscrowAccount{}, domain.ErrInsufficientHeldFunds
	}
	account.HeldAmount -= amount
	account.RefundedAmount += amount
	account.UpdatedAt = now
	if err := s.accounts.Update(ctx, account); err != nil {
		return domain.EscrowAccount{}, err
	}
	refund := domain.Transaction{
		TransactionID: uuid.NewString(),
		ProjectID:     project.ProjectID,
		Type:          txType,
		Amount:        amount,
		Currency:      account.Currency,
		ToParty:       project.ClientID,
		MilestoneID:   milestoneID,
		DisputeID:     disputeID,
		Status:        domain.TransactionStatusCompleted,
		CreatedAt:     now,
		CompletedAt:   &now,
	}
	if err := s.transactions.Append(ctx, refund); err != nil {
		return domain.EscrowAccount{}, err
	}
	if err := s.enqueueFundsRefunded(ctx, account, milestoneID, disputeID, amount, reason, traceID, now); err != nil {
		return domain.EscrowAccount{}, err
	}
	return account, nil
}

// splitOnDisputeResolution performs one release and one refund as a single
// ledger event. The split invariant is validated by the caller before any
// mutation starts.
func (s *Service) splitOnDisputeResolution(ctx context.Context, project domain.Project, milestone domain.Milestone, dispute domain.Dispute, amountToPayee, amountToPayer int64, traceID string, now time.Time) error {
	account, err := s.accounts.GetByProjectID(ctx, project.ProjectID)
	if err != nil {
		return err
	}
	if account.HeldAmount < amountToPayee+amountToPayer {
		s.logger.ErrorContext(ctx, "escrow invariant breach: held funds below dispute split",
			"module", "application.ledger",
			"layer", "application",
			"operation", "split_on_dispute_resolution",
			"outcome", "invariant_breach",
			"alert", true,
			"project_id", project.ProjectID,
			"dispute_id", dispute.DisputeID,
			"held_amount", account.HeldAmount,
			"split_amount", amountToPayee+amountToPayer,
		)
		return domain.ErrInsufficientHeldFunds
	}
	if amountToPayee > 0 {
		account, err = s.releaseHeldFunds(ctx, project, account, domain.TransactionTypeDisputePayment, milestone.MilestoneID, dispute.DisputeID, amountToPayee, traceID, now)
		if err != nil {
			return err
		}
	}
	if amountToPayer > 0 {
		if _, err := s.refundHeldFunds(ctx, project, account, domain.TransactionTypeDisputeRefund, milestone.MilestoneID, dispute.DisputeID, amountToPayer, "dispute resolution", traceID, now); err != nil {
			return err
		}
	}
	return nil
}
