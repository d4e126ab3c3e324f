package unit

import (
	"context"
	"testing"
	"time"

	"github.com/johnthebelovedcoder/contralock/internal/application"
	"github.com/johnthebelovedcoder/contralock/internal/domain"
)

// Walks the documented review-window scenario: a submitted milestone on a
// 7-day grace project gets one warning inside the final 24 hours and is
// auto-approved once the deadline passes.
func TestAutoApprovalSweep_WarnsThenApproves(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	project, milestones := f.fundedProject(t, 500000, 2, 500000)
	milestone := milestones[0]

	if _, err := f.svc.StartMilestone(ctx, freelancerActor("idem-start"), milestone.MilestoneID); err != nil {
		t.Fatalf("StartMilestone error: %v", err)
	}
	if _, err := f.svc.SubmitMilestone(ctx, freelancerActor("idem-submit"), milestone.MilestoneID, application.SubmitMilestoneInput{Notes: "final cut"}); err != nil {
		t.Fatalf("SubmitMilestone error: %v", err)
	}

	// Day 3: inside the review window, nothing to do.
	f.clock.Advance(3 * 24 * time.Hour)
	report, err := f.svc.RunAutoApprovalSweep(ctx)
	if err != nil {
		t.Fatalf("sweep error: %v", err)
	}
	if report.Scanned != 1 || report.Approved != 0 || report.Warned != 0 || report.Failed != 0 {
		t.Fatalf("unexpected mid-window report: %+v", report)
	}

	// 12 hours before the deadline: exactly one warning, even across repeated
	// sweeps.
	f.clock.Advance(3*24*time.Hour + 12*time.Hour)
	report, err = f.svc.RunAutoApprovalSweep(ctx)
	if err != nil {
		t.Fatalf("sweep error: %v", err)
	}
	if report.Warned != 1 {
		t.Fatalf("expected one warning, got %+v", report)
	}
	report, err = f.svc.RunAutoApprovalSweep(ctx)
	if err != nil {
		t.Fatalf("repeat sweep error: %v", err)
	}
	if report.Warned != 0 {
		t.Fatalf("expected warning sent once, got %+v", report)
	}
	if err := f.svc.FlushOutbox(ctx); err != nil {
		t.Fatalf("FlushOutbox error: %v", err)
	}
	warnings := 0
	for _, env := range f.publisher.Domain {
		if env.EventType == domain.EventMilestoneApprovalWarning {
			warnings++
		}
	}
	if warnings != 1 {
		t.Fatalf("expected one warning event, got %d", warnings)
	}

	// Past the deadline: the milestone is approved and funds released.
	f.clock.Advance(24 * time.Hour)
	report, err = f.svc.RunAutoApprovalSweep(ctx)
	if err != nil {
		t.Fatalf("sweep error: %v", err)
	}
	if report.Approved != 1 || report.Failed != 0 {
		t.Fatalf("unexpected approval report: %+v", report)
	}
	approved, err := f.svc.GetMilestone(ctx, clientActor("idem-get"), milestone.MilestoneID)
	if err != nil {
		t.Fatalf("GetMilestone error: %v", err)
	}
	if approved.Status != domain.MilestoneStatusApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}
	balance, err := f.svc.GetBalance(ctx, clientActor("idem-balance"), project.ProjectID)
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if balance.Released != 500000 || balance.Held != 0 {
		t.Fatalf("unexpected balance after auto-approval: %+v", balance)
	}

	feed, err := f.svc.GetTransitionFeed(ctx, clientActor("idem-feed"), "milestone", milestone.MilestoneID)
	if err != nil {
		t.Fatalf("GetTransitionFeed error: %v", err)
	}
	last := feed[len(feed)-1]
	if last.Actor != "system" || last.NewStatus != domain.MilestoneStatusApproved {
		t.Fatalf("expected system-actored approval, got %+v", last)
	}
}

func TestAutoApprovalSweep_SecondPassReleasesNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	project, milestones := f.fundedProject(t, 200000, 2, 200000)
	milestone := milestones[0]

	if _, err := f.svc.StartMilestone(ctx, freelancerActor("idem-start"), milestone.MilestoneID); err != nil {
		t.Fatalf("StartMilestone error: %v", err)
	}
	if _, err := f.svc.SubmitMilestone(ctx, freelancerActor("idem-submit"), milestone.MilestoneID, application.SubmitMilestoneInput{Notes: "done"}); err != nil {
		t.Fatalf("SubmitMilestone error: %v", err)
	}

	f.clock.Advance(8 * 24 * time.Hour)
	if _, err := f.svc.RunAutoApprovalSweep(ctx); err != nil {
		t.Fatalf("first sweep error: %v", err)
	}
	if _, err := f.svc.RunAutoApprovalSweep(ctx); err != nil {
		t.Fatalf("second sweep error: %v", err)
	}

	transactions, err := f.svc.ListTransactions(ctx, clientActor("idem-txs"), project.ProjectID)
	if err != nil {
		t.Fatalf("ListTransactions error: %v", err)
	}
	if countByType(transactions, domain.TransactionTypeMilestoneRelease) != 1 {
		t.Fatalf("expected a single release across sweeps, got %+v", transactions)
	}
	if len(f.gateway.Payouts) != 1 {
		t.Fatalf("expected a single payout, got %d", len(f.gateway.Payouts))
	}
}

func TestAutoApprovalSweep_IgnoresDisputedMilestones(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, milestones := f.fundedProject(t, 100000, 2, 100000)
	milestone := milestones[0]

	if _, err := f.svc.StartMilestone(ctx, freelancerActor("idem-start"), milestone.MilestoneID); err != nil {
		t.Fatalf("StartMilestone error: %v", err)
	}
	if _, err := f.svc.SubmitMilestone(ctx, freelancerActor("idem-submit"), milestone.MilestoneID, application.SubmitMilestoneInput{Notes: "done"}); err != nil {
		t.Fatalf("SubmitMilestone error: %v", err)
	}
	f.clock.Advance(8 * 24 * time.Hour)

	// The client disputed before the sweep fired; the suspended milestone is
	// out of the sweep's reach entirely.
	if _, err := f.svc.RaiseDispute(ctx, clientActor("idem-raise"), milestone.MilestoneID, application.RaiseDisputeInput{Reason: "not accepted"}); err != nil {
		t.Fatalf("RaiseDispute error: %v", err)
	}
	report, err := f.svc.RunAutoApprovalSweep(ctx)
	if err != nil {
		t.Fatalf("sweep error: %v", err)
	}
	if report.Scanned != 0 || report.Failed != 0 || report.Approved != 0 {
		t.Fatalf("expected empty report for disputed milestone, got %+v", report)
	}
}
