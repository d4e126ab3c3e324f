package domain

import (
	"errors"
	"testing"
	"time"
)

func TestStartMilestone_OnlyFromPending(t *testing.T) {
	now := time.Now().UTC()
	m := Milestone{MilestoneID: "ms_1", Status: MilestoneStatusPending}

	started, err := StartMilestone(m, now)
	if err != nil {
		t.Fatalf("StartMilestone error: %v", err)
	}
	if started.Status != MilestoneStatusInProgress {
		t.Fatalf("expected in_progress, got %s", started.Status)
	}

	if _, err := StartMilestone(started, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	var detail *InvalidTransitionError
	_, err = StartMilestone(started, now)
	if !errors.As(err, &detail) {
		t.Fatalf("expected typed transition error, got %v", err)
	}
	if detail.Current != MilestoneStatusInProgress || detail.Attempted != MilestoneStatusInProgress {
		t.Fatalf("unexpected transition detail: %+v", detail)
	}
}

func TestSubmitMilestone_OpensReviewWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := Milestone{MilestoneID: "ms_1", Status: MilestoneStatusInProgress, ApprovalWarningSent: true}

	next, err := SubmitMilestone(m, "  done  ", []Deliverable{
		{Filename: "design.fig", FileURL: "https://files.example.com/design.fig"},
		{Filename: "  ", FileURL: ""},
	}, 7, now)
	if err != nil {
		t.Fatalf("SubmitMilestone error: %v", err)
	}
	if next.Status != MilestoneStatusSubmitted {
		t.Fatalf("expected submitted, got %s", next.Status)
	}
	if next.Submission == nil || next.Submission.Notes != "done" {
		t.Fatalf("unexpected submission: %+v", next.Submission)
	}
	if len(next.Submission.Deliverables) != 1 {
		t.Fatalf("expected empty deliverable dropped, got %d", len(next.Submission.Deliverables))
	}
	wantDeadline := now.Add(7 * 24 * time.Hour)
	if next.AutoApprovalDeadline == nil || !next.AutoApprovalDeadline.Equal(wantDeadline) {
		t.Fatalf("expected deadline %v, got %v", wantDeadline, next.AutoApprovalDeadline)
	}
	if next.ApprovalWarningSent {
		t.Fatal("expected warning flag reset on fresh submission")
	}
}

func TestRequestMilestoneRevision_EnforcesLimit(t *testing.T) {
	now := time.Now().UTC()
	m := Milestone{MilestoneID: "ms_1", Status: MilestoneStatusSubmitted, RevisionCount: 1}

	next, err := RequestMilestoneRevision(m, 2, now)
	if err != nil {
		t.Fatalf("RequestMilestoneRevision error: %v", err)
	}
	if next.Status != MilestoneStatusRevisionRequested || next.RevisionCount != 2 {
		t.Fatalf("unexpected revision result: %+v", next)
	}

	resumed, err := ResumeMilestoneAfterRevision(next, now)
	if err != nil {
		t.Fatalf("ResumeMilestoneAfterRevision error: %v", err)
	}
	resubmitted, err := SubmitMilestone(resumed, "again", nil, 7, now)
	if err != nil {
		t.Fatalf("resubmit error: %v", err)
	}
	if _, err := RequestMilestoneRevision(resubmitted, 2, now); !errors.Is(err, ErrRevisionLimitExceeded) {
		t.Fatalf("expected revision limit error, got %v", err)
	}
}

func TestResumeMilestoneFromDispute(t *testing.T) {
	now := time.Now().UTC()
	m := Milestone{MilestoneID: "ms_1", Status: MilestoneStatusDisputed, RevisionCount: 1}

	approved, err := ResumeMilestoneFromDispute(m, MilestoneStatusApproved, now)
	if err != nil {
		t.Fatalf("resume to approved error: %v", err)
	}
	if approved.Status != MilestoneStatusApproved || approved.RevisionCount != 1 {
		t.Fatalf("unexpected approved result: %+v", approved)
	}

	rework, err := ResumeMilestoneFromDispute(m, MilestoneStatusRevisionRequested, now)
	if err != nil {
		t.Fatalf("resume to revision error: %v", err)
	}
	if rework.RevisionCount != 2 {
		t.Fatalf("expected rework to count as a revision, got %d", rework.RevisionCount)
	}

	if _, err := ResumeMilestoneFromDispute(m, MilestoneStatusCancelled, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid resume target, got %v", err)
	}
	notDisputed := Milestone{Status: MilestoneStatusSubmitted}
	if _, err := ResumeMilestoneFromDispute(notDisputed, MilestoneStatusApproved, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid source status, got %v", err)
	}
}

func TestCancelMilestone_OnlyFromPending(t *testing.T) {
	now := time.Now().UTC()
	cancelled, err := CancelMilestone(Milestone{Status: MilestoneStatusPending}, now)
	if err != nil {
		t.Fatalf("CancelMilestone error: %v", err)
	}
	if cancelled.Status != MilestoneStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	for _, status := range []string{MilestoneStatusInProgress, MilestoneStatusSubmitted, MilestoneStatusDisputed, MilestoneStatusApproved} {
		if _, err := CancelMilestone(Milestone{Status: status}, now); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected cancel from %s rejected, got %v", status, err)
		}
	}
}

func TestMarkMilestoneDisputed(t *testing.T) {
	now := time.Now().UTC()
	for _, status := range []string{MilestoneStatusInProgress, MilestoneStatusSubmitted} {
		next, err := MarkMilestoneDisputed(Milestone{Status: status}, now)
		if err != nil {
			t.Fatalf("MarkMilestoneDisputed from %s error: %v", status, err)
		}
		if next.Status != MilestoneStatusDisputed {
			t.Fatalf("expected disputed, got %s", next.Status)
		}
	}
	if _, err := MarkMilestoneDisputed(Milestone{Status: MilestoneStatusPending}, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected dispute from pending rejected, got %v", err)
	}
}

func TestIsTerminalMilestoneStatus(t *testing.T) {
	terminal := []string{MilestoneStatusApproved, MilestoneStatusApprovedPartial, MilestoneStatusCancelled}
	for _, status := range terminal {
		if !IsTerminalMilestoneStatus(status) {
			t.Fatalf("expected %s terminal", status)
		}
	}
	for _, status := range []string{MilestoneStatusPending, MilestoneStatusSubmitted, MilestoneStatusDisputed} {
		if IsTerminalMilestoneStatus(status) {
			t.Fatalf("expected %s non-terminal", status)
		}
	}
}
