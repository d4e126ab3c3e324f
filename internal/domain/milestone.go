package domain

import (
	"strings"
	"time"
)

const (
	MilestoneStatusPending           = "pending"
	MilestoneStatusInProgress        = "in_progress"
	MilestoneStatusSubmitted         = "submitted"
	MilestoneStatusApproved          = "approved"
	MilestoneStatusApprovedPartial   = "approved_partial"
	MilestoneStatusRevisionRequested = "revision_requested"
	MilestoneStatusDisputed          = "disputed"
	MilestoneStatusCancelled         = "cancelled"
)

type Deliverable struct {
	Filename string `json:"filename"`
	FileURL  string `json:"file_url"`
}

type Submission struct {
	Notes        string        `json:"notes"`
	Deliverables []Deliverable `json:"deliverables,omitempty"`
	SubmittedAt  time.Time     `json:"submitted_at"`
}

type Milestone struct {
	MilestoneID          string      `json:"milestone_id"`
	ProjectID            string      `json:"project_id"`
	Position             int         `json:"position"`
	Title                string      `json:"title"`
	Amount               int64       `json:"amount"`
	Status               string      `json:"status"`
	Deadline             *time.Time  `json:"deadline,omitempty"`
	Submission           *Submission `json:"submission,omitempty"`
	RevisionCount        int         `json:"revision_count"`
	AutoApprovalDeadline *time.Time  `json:"auto_approval_deadline,omitempty"`
	ApprovalWarningSent  bool        `json:"approval_warning_sent"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

func IsTerminalMilestoneStatus(status string) bool {
	switch status {
	case MilestoneStatusApproved, MilestoneStatusApprovedPartial, MilestoneStatusCancelled:
		return true
	default:
		return false
	}
}

// The transition functions below are pure: they take a milestone snapshot and
// an intent and return the next snapshot or a typed rejection. Persistence and
// ledger side effects are the application layer's job.

func StartMilestone(m Milestone, now time.Time) (Milestone, error) {
	if m.Status != MilestoneStatusPending {
		return Milestone{}, NewInvalidTransition("milestone", m.Status, MilestoneStatusInProgress)
	}
	m.Status = MilestoneStatusInProgress
	m.UpdatedAt = now
	return m, nil
}

func SubmitMilestone(m Milestone, notes string, deliverables []Deliverable, graceDays int, now time.Time) (Milestone, error) {
	if m.Status != MilestoneStatusInProgress {
		return Milestone{}, NewInvalidTransition("milestone", m.Status, MilestoneStatusSubmitted)
	}
	deadline := now.Add(time.Duration(graceDays) * 24 * time.Hour)
	m.Status = MilestoneStatusSubmitted
	m.Submission = &Submission{Notes: strings.TrimSpace(notes), Deliverables: cloneDeliverables(deliverables), SubmittedAt: now}
	m.AutoApprovalDeadline = &deadline
	// A fresh submission opens a new warning cycle.
	m.ApprovalWarningSent = false
	m.UpdatedAt = now
	return m, nil
}

func ApproveMilestone(m Milestone, now time.Time) (Milestone, error) {
	if m.Status != MilestoneStatusSubmitted {
		return Milestone{}, NewInvalidTransition("milestone", m.Status, MilestoneStatusApproved)
	}
	m.Status = MilestoneStatusApproved
	m.UpdatedAt = now
	return m, nil
}

func RequestMilestoneRevision(m Milestone, maxRevisions int, now time.Time) (Milestone, error) {
	if m.Status != MilestoneStatusSubmitted {
		return Milestone{}, NewInvalidTransition("milestone", m.Status, MilestoneStatusRevisionRequested)
	}
	if m.RevisionCount >= maxRevisions {
		return Milestone{}, ErrRevisionLimitExceeded
	}
	m.Status = MilestoneStatusRevisionRequested
	m.RevisionCount++
	m.UpdatedAt = now
	return m, nil
}

// ResumeMilestoneAfterRevision moves a revision-requested milestone back into
// progress; the revision counter was already incremented by the request.
func ResumeMilestoneAfterRevision(m Milestone, now time.Time) (Milestone, error) {
	if m.Status != MilestoneStatusRevisionRequested {
		return Milestone{}, NewInvalidTransition("milestone", m.Status, MilestoneStatusInProgress)
	}
	m.Status = MilestoneStatusInProgress
	m.UpdatedAt = now
	return m, nil
}

func MarkMilestoneDisputed(m Milestone, now time.Time) (Milestone, error) {
	if m.Status != MilestoneStatusSubmitted && m.Status != MilestoneStatusInProgress {
		return Milestone{}, NewInvalidTransition("milestone", m.Status, MilestoneStatusDisputed)
	}
	m.Status = MilestoneStatusDisputed
	m.UpdatedAt = now
	return m, nil
}

// ResumeMilestoneFromDispute applies the resolution outcome. Only the three
// resume statuses are reachable from disputed.
func ResumeMilestoneFromDispute(m Milestone, to string, now time.Time) (Milestone, error) {
	if m.Status != MilestoneStatusDisputed {
		return Milestone{}, NewInvalidTransition("milestone", m.Status, to)
	}
	switch to {
	case MilestoneStatusApproved, MilestoneStatusApprovedPartial:
		m.Status = to
	case MilestoneStatusRevisionRequested:
		m.Status = to
		m.RevisionCount++
	default:
		return Milestone{}, NewInvalidTransition("milestone", m.Status, to)
	}
	m.UpdatedAt = now
	return m, nil
}

func CancelMilestone(m Milestone, now time.Time) (Milestone, error) {
	if m.Status != MilestoneStatusPending {
		return Milestone{}, NewInvalidTransition("milestone", m.Status, MilestoneStatusCancelled)
	}
	m.Status = MilestoneStatusCancelled
	m.UpdatedAt = now
	return m, nil
}

func cloneDeliverables(in []Deliverable) []Deliverable {
	out := make([]Deliverable, 0, len(in))
	for _, d := range in {
		filename := strings.TrimSpace(d.Filename)
		fileURL := strings.TrimSpace(d.FileURL)
		if filename == "" && fileURL == "" {
			continue
		}
		out = append(out, Deliverable{Filename: filename, FileURL: fileURL})
	}
	return out
}
