package unit

import (
	"context"
	"errors"
	"testing"

	"github.com/johnthebelovedcoder/contralock/internal/application"
	"github.com/johnthebelovedcoder/contralock/internal/domain"
)

func adminActor(key string) application.Actor {
	return application.Actor{SubjectID: "user_admin", Role: "admin", RequestID: "req-" + key, IdempotencyKey: key}
}

func mediatorActor(key string) application.Actor {
	return application.Actor{SubjectID: "user_mediator", Role: "resolver", RequestID: "req-" + key, IdempotencyKey: key}
}

// openDispute funds a single-milestone project, walks it to submitted, and
// raises a dispute as the client.
func openDispute(t *testing.T, f *fixture, amount int64) (domain.Project, domain.Milestone, domain.Dispute) {
	t.Helper()
	ctx := context.Background()
	project, milestones := f.fundedProject(t, amount, 2, amount)
	milestone := milestones[0]
	if _, err := f.svc.StartMilestone(ctx, freelancerActor("idem-start"), milestone.MilestoneID); err != nil {
		t.Fatalf("StartMilestone error: %v", err)
	}
	if _, err := f.svc.SubmitMilestone(ctx, freelancerActor("idem-submit"), milestone.MilestoneID, application.SubmitMilestoneInput{Notes: "done"}); err != nil {
		t.Fatalf("SubmitMilestone error: %v", err)
	}
	dispute, err := f.svc.RaiseDispute(ctx, clientActor("idem-raise"), milestone.MilestoneID, application.RaiseDisputeInput{
		Reason:   "deliverable does not match the brief",
		Evidence: []domain.Deliverable{{Filename: "brief.pdf", FileURL: "https://files.example.com/brief.pdf"}},
	})
	if err != nil {
		t.Fatalf("RaiseDispute error: %v", err)
	}
	return project, milestone, dispute
}

func TestDisputeLifecycle_MediatedSplit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	project, milestone, dispute := openDispute(t, f, 100000)

	if dispute.Phase != domain.DisputePhasePendingFee {
		t.Fatalf("expected pending_fee, got %s", dispute.Phase)
	}
	suspended, err := f.svc.GetMilestone(ctx, clientActor("idem-get"), milestone.MilestoneID)
	if err != nil {
		t.Fatalf("GetMilestone error: %v", err)
	}
	if suspended.Status != domain.MilestoneStatusDisputed {
		t.Fatalf("expected disputed milestone, got %s", suspended.Status)
	}

	// One open dispute per milestone.
	if _, err := f.svc.RaiseDispute(ctx, freelancerActor("idem-raise-2"), milestone.MilestoneID, application.RaiseDisputeInput{Reason: "counter claim"}); !errors.Is(err, domain.ErrDisputeAlreadyOpen) {
		t.Fatalf("expected dispute already open, got %v", err)
	}

	chargesBefore := len(f.gateway.Charges)
	paid, err := f.svc.PayDisputeFee(ctx, clientActor("idem-fee"), dispute.DisputeID, "card")
	if err != nil {
		t.Fatalf("PayDisputeFee error: %v", err)
	}
	if paid.Phase != domain.DisputePhasePendingReview || !paid.FeePaid {
		t.Fatalf("unexpected dispute after fee: %+v", paid)
	}
	if len(f.gateway.Charges) != chargesBefore+1 {
		t.Fatalf("expected one fee charge, got %d new", len(f.gateway.Charges)-chargesBefore)
	}
	if fee := f.gateway.Charges[len(f.gateway.Charges)-1]; fee.PartyID != clientID || fee.Amount != 2500 {
		t.Fatalf("unexpected fee charge: %+v", fee)
	}

	if _, err := f.svc.SubmitEvidence(ctx, freelancerActor("idem-evidence"), dispute.DisputeID, application.SubmitEvidenceInput{
		Filename:    "chat-log.txt",
		FileURL:     "https://files.example.com/chat-log.txt",
		Description: "agreed scope in chat",
	}); err != nil {
		t.Fatalf("SubmitEvidence error: %v", err)
	}

	mediated, err := f.svc.AssignMediator(ctx, adminActor("idem-assign"), dispute.DisputeID, "user_mediator")
	if err != nil {
		t.Fatalf("AssignMediator error: %v", err)
	}
	if mediated.Phase != domain.DisputePhaseInMediation || mediated.MediatorID != "user_mediator" {
		t.Fatalf("unexpected mediation state: %+v", mediated)
	}

	// Parties cannot resolve someone else's mediation.
	if _, err := f.svc.ResolveDispute(ctx, clientActor("idem-bad-resolve"), dispute.DisputeID, application.ResolveDisputeInput{
		Decision: "split", AmountToPayee: 60000, AmountToPayer: 40000, Reasoning: "my call",
	}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	resolved, err := f.svc.ResolveDispute(ctx, mediatorActor("idem-resolve"), dispute.DisputeID, application.ResolveDisputeInput{
		Decision:      "split",
		AmountToPayee: 60000,
		AmountToPayer: 40000,
		Reasoning:     "work partially usable",
	})
	if err != nil {
		t.Fatalf("ResolveDispute error: %v", err)
	}
	if resolved.Phase != domain.DisputePhaseResolved || resolved.Resolution == nil || resolved.ResolvedAt == nil {
		t.Fatalf("unexpected resolved dispute: %+v", resolved)
	}

	final, err := f.svc.GetMilestone(ctx, clientActor("idem-get-2"), milestone.MilestoneID)
	if err != nil {
		t.Fatalf("GetMilestone error: %v", err)
	}
	if final.Status != domain.MilestoneStatusApprovedPartial {
		t.Fatalf("expected approved_partial, got %s", final.Status)
	}

	balance, err := f.svc.GetBalance(ctx, clientActor("idem-balance"), project.ProjectID)
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if balance.Held != 0 || balance.Released != 60000 || balance.Refunded != 40000 {
		t.Fatalf("unexpected balance after split: %+v", balance)
	}
	if balance.Held+balance.Released+balance.Refunded != balance.Total {
		t.Fatalf("ledger out of balance: %+v", balance)
	}

	transactions, err := f.svc.ListTransactions(ctx, clientActor("idem-txs"), project.ProjectID)
	if err != nil {
		t.Fatalf("ListTransactions error: %v", err)
	}
	if countByType(transactions, domain.TransactionTypeDisputePayment) != 1 || countByType(transactions, domain.TransactionTypeDisputeRefund) != 1 {
		t.Fatalf("expected one payment and one refund, got %+v", transactions)
	}

	// A resolved dispute is sealed.
	if _, err := f.svc.ResolveDispute(ctx, mediatorActor("idem-resolve-2"), dispute.DisputeID, application.ResolveDisputeInput{
		Decision: "refund_full", AmountToPayee: 0, AmountToPayer: 100000, Reasoning: "second thoughts",
	}); !errors.Is(err, domain.ErrDisputeResolved) {
		t.Fatalf("expected dispute resolved error, got %v", err)
	}

	got, evidence, err := f.svc.GetDispute(ctx, clientActor("idem-get-dispute"), dispute.DisputeID)
	if err != nil {
		t.Fatalf("GetDispute error: %v", err)
	}
	if got.DisputeID != dispute.DisputeID {
		t.Fatalf("unexpected dispute: %+v", got)
	}
	if len(evidence) != 2 {
		t.Fatalf("expected initial plus submitted evidence, got %d", len(evidence))
	}
}

func TestResolveDispute_SplitMismatchRejectedBeforeLedger(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	project, _, dispute := openDispute(t, f, 100000)

	if _, err := f.svc.PayDisputeFee(ctx, clientActor("idem-fee"), dispute.DisputeID, "card"); err != nil {
		t.Fatalf("PayDisputeFee error: %v", err)
	}
	if _, err := f.svc.ProposeSelfResolution(ctx, freelancerActor("idem-self"), dispute.DisputeID); err != nil {
		t.Fatalf("ProposeSelfResolution error: %v", err)
	}

	if _, err := f.svc.ResolveDispute(ctx, clientActor("idem-resolve"), dispute.DisputeID, application.ResolveDisputeInput{
		Decision: "split", AmountToPayee: 60000, AmountToPayer: 30000, Reasoning: "uneven split",
	}); !errors.Is(err, domain.ErrSplitMismatch) {
		t.Fatalf("expected split mismatch, got %v", err)
	}

	// Nothing moved.
	transactions, err := f.svc.ListTransactions(ctx, clientActor("idem-txs"), project.ProjectID)
	if err != nil {
		t.Fatalf("ListTransactions error: %v", err)
	}
	if countByType(transactions, domain.TransactionTypeDisputePayment) != 0 || countByType(transactions, domain.TransactionTypeDisputeRefund) != 0 {
		t.Fatalf("expected no dispute ledger entries, got %+v", transactions)
	}
	balance, err := f.svc.GetBalance(ctx, clientActor("idem-balance"), project.ProjectID)
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if balance.Held != 100000 {
		t.Fatalf("expected held funds untouched, got %+v", balance)
	}
	current, _, err := f.svc.GetDispute(ctx, clientActor("idem-get"), dispute.DisputeID)
	if err != nil {
		t.Fatalf("GetDispute error: %v", err)
	}
	if current.Phase != domain.DisputePhaseSelfResolution {
		t.Fatalf("expected dispute still open, got %s", current.Phase)
	}
}

func TestPayDisputeFee_RaiserOnlyAndOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _, dispute := openDispute(t, f, 100000)

	if _, err := f.svc.PayDisputeFee(ctx, freelancerActor("idem-fee-wrong"), dispute.DisputeID, "card"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for non-raiser, got %v", err)
	}
	payer := clientActor("idem-fee")
	paid, err := f.svc.PayDisputeFee(ctx, payer, dispute.DisputeID, "card")
	if err != nil {
		t.Fatalf("PayDisputeFee error: %v", err)
	}

	// A same-key retry replays the recorded response without a second charge.
	replay, err := f.svc.PayDisputeFee(ctx, payer, dispute.DisputeID, "card")
	if err != nil {
		t.Fatalf("same-key retry error: %v", err)
	}
	if replay.Phase != paid.Phase || !replay.FeePaid {
		t.Fatalf("replay diverged: first %+v, replay %+v", paid, replay)
	}
	feeCharges := 0
	for _, charge := range f.gateway.Charges {
		if charge.Amount == 2500 {
			feeCharges++
		}
	}
	if feeCharges != 1 {
		t.Fatalf("expected a single fee charge across retries, got %d", feeCharges)
	}

	if _, err := f.svc.PayDisputeFee(ctx, clientActor("idem-fee-again"), dispute.DisputeID, "card"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on double payment, got %v", err)
	}
}

func TestEscalation_MediationToArbitration(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	project, milestone, dispute := openDispute(t, f, 100000)

	if _, err := f.svc.PayDisputeFee(ctx, clientActor("idem-fee"), dispute.DisputeID, "card"); err != nil {
		t.Fatalf("PayDisputeFee error: %v", err)
	}
	if _, err := f.svc.AssignMediator(ctx, adminActor("idem-assign-m"), dispute.DisputeID, "user_mediator"); err != nil {
		t.Fatalf("AssignMediator error: %v", err)
	}
	escalated, err := f.svc.EscalateDispute(ctx, freelancerActor("idem-escalate"), dispute.DisputeID, "mediation stalled")
	if err != nil {
		t.Fatalf("EscalateDispute error: %v", err)
	}
	if escalated.Phase != domain.DisputePhaseEscalated || escalated.MediatorID != "" {
		t.Fatalf("unexpected escalation state: %+v", escalated)
	}

	arbitrated, err := f.svc.AssignArbitrator(ctx, adminActor("idem-assign-a"), dispute.DisputeID, "user_arbitrator")
	if err != nil {
		t.Fatalf("AssignArbitrator error: %v", err)
	}
	if arbitrated.Phase != domain.DisputePhaseInArbitration || arbitrated.ArbitratorID != "user_arbitrator" {
		t.Fatalf("unexpected arbitration state: %+v", arbitrated)
	}

	arbitrator := application.Actor{SubjectID: "user_arbitrator", Role: "resolver", RequestID: "req-arb", IdempotencyKey: "idem-arb-resolve"}
	resolved, err := f.svc.ResolveDispute(ctx, arbitrator, dispute.DisputeID, application.ResolveDisputeInput{
		Decision:      "refund_full",
		AmountToPayee: 0,
		AmountToPayer: 100000,
		Reasoning:     "work never delivered",
	})
	if err != nil {
		t.Fatalf("ResolveDispute error: %v", err)
	}
	if resolved.Resolution.Decision != domain.ResolutionDecisionRefundFull {
		t.Fatalf("unexpected decision: %+v", resolved.Resolution)
	}

	balance, err := f.svc.GetBalance(ctx, clientActor("idem-balance"), project.ProjectID)
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if balance.Refunded != 100000 || balance.Held != 0 || balance.Released != 0 {
		t.Fatalf("unexpected balance after full refund: %+v", balance)
	}
	final, err := f.svc.GetMilestone(ctx, clientActor("idem-get"), milestone.MilestoneID)
	if err != nil {
		t.Fatalf("GetMilestone error: %v", err)
	}
	if final.Status != domain.MilestoneStatusApprovedPartial {
		t.Fatalf("expected approved_partial after refund, got %s", final.Status)
	}
}

func TestResolveDispute_ReworkKeepsFundsHeld(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	project, milestone, dispute := openDispute(t, f, 100000)

	if _, err := f.svc.PayDisputeFee(ctx, clientActor("idem-fee"), dispute.DisputeID, "card"); err != nil {
		t.Fatalf("PayDisputeFee error: %v", err)
	}
	if _, err := f.svc.ProposeSelfResolution(ctx, clientActor("idem-self"), dispute.DisputeID); err != nil {
		t.Fatalf("ProposeSelfResolution error: %v", err)
	}
	resolved, err := f.svc.ResolveDispute(ctx, freelancerActor("idem-resolve"), dispute.DisputeID, application.ResolveDisputeInput{
		Decision:  "rework",
		Reasoning: "another iteration agreed",
	})
	if err != nil {
		t.Fatalf("ResolveDispute error: %v", err)
	}
	if resolved.Phase != domain.DisputePhaseResolved {
		t.Fatalf("expected resolved, got %s", resolved.Phase)
	}

	reworked, err := f.svc.GetMilestone(ctx, clientActor("idem-get"), milestone.MilestoneID)
	if err != nil {
		t.Fatalf("GetMilestone error: %v", err)
	}
	if reworked.Status != domain.MilestoneStatusRevisionRequested {
		t.Fatalf("expected revision_requested, got %s", reworked.Status)
	}
	balance, err := f.svc.GetBalance(ctx, clientActor("idem-balance"), project.ProjectID)
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if balance.Held != 100000 {
		t.Fatalf("expected funds still held on rework, got %+v", balance)
	}
}

func TestAttachAdvisory_ReviewOnlyAnnotation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _, dispute := openDispute(t, f, 100000)

	// Advisory before review is rejected, naming the phase it needs.
	_, err := f.svc.AttachAdvisory(ctx, adminActor("idem-adv-early"), dispute.DisputeID, application.AttachAdvisoryInput{Summary: "too early"})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	var detail *domain.InvalidTransitionError
	if !errors.As(err, &detail) {
		t.Fatalf("expected typed transition error, got %v", err)
	}
	if detail.Current != domain.DisputePhasePendingFee || detail.Attempted != domain.DisputePhasePendingReview {
		t.Fatalf("unexpected transition detail: %+v", detail)
	}
	if _, err := f.svc.PayDisputeFee(ctx, clientActor("idem-fee"), dispute.DisputeID, "card"); err != nil {
		t.Fatalf("PayDisputeFee error: %v", err)
	}
	if _, err := f.svc.AttachAdvisory(ctx, clientActor("idem-adv-party"), dispute.DisputeID, application.AttachAdvisoryInput{Summary: "mine"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for party, got %v", err)
	}

	annotated, err := f.svc.AttachAdvisory(ctx, adminActor("idem-adv"), dispute.DisputeID, application.AttachAdvisoryInput{
		ConfidenceScore:    0.8,
		KeyIssues:          []string{"scope mismatch"},
		RecommendedToPayee: 70000,
		RecommendedToPayer: 30000,
		Summary:            "deliverable covers most of the brief",
	})
	if err != nil {
		t.Fatalf("AttachAdvisory error: %v", err)
	}
	if annotated.Advisory == nil || annotated.Advisory.RecommendedToPayee != 70000 {
		t.Fatalf("unexpected advisory: %+v", annotated.Advisory)
	}
	if annotated.Phase != domain.DisputePhasePendingReview {
		t.Fatalf("advisory must not change the phase, got %s", annotated.Phase)
	}
}
