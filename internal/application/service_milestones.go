package application

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/johnthebelovedcoder/contralock/internal/domain"
)

// StartMilestone moves a pending milestone into progress. Only the payee may
// start work.
func (s *Service) StartMilestone(ctx context.Context, actor Actor, milestoneID string) (domain.Milestone, error) {
	return s.transitionMilestone(ctx, actor, milestoneID, "start", nil, func(project domain.Project, m domain.Milestone) (domain.Milestone, string, error) {
		if actor.SubjectID != project.FreelancerID {
			return domain.Milestone{}, "", domain.ErrForbidden
		}
		next, err := domain.StartMilestone(m, s.nowFn())
		return next, domain.EventMilestoneStarted, err
	})
}

// SubmitMilestone records the deliverables and opens the auto-approval window.
func (s *Service) SubmitMilestone(ctx context.Context, actor Actor, milestoneID string, input SubmitMilestoneInput) (domain.Milestone, error) {
	return s.transitionMilestone(ctx, actor, milestoneID, "submit", input, func(project domain.Project, m domain.Milestone) (domain.Milestone, string, error) {
		if actor.SubjectID != project.FreelancerID {
			return domain.Milestone{}, "", domain.ErrForbidden
		}
		next, err := domain.SubmitMilestone(m, input.Notes, input.Deliverables, project.GraceDays, s.nowFn())
		return next, domain.EventMilestoneSubmitted, err
	})
}

// ApproveMilestone releases the milestone amount from escrow. Callable by the
// payer or by the scheduler acting as the system actor.
func (s *Service) ApproveMilestone(ctx context.Context, actor Actor, milestoneID, feedback string) (domain.Milestone, error) {
	if err := s.requireActor(actor); err != nil {
		return domain.Milestone{}, err
	}
	if err := s.requireIdempotency(actor); err != nil {
		return domain.Milestone{}, err
	}
	milestoneID = strings.TrimSpace(milestoneID)
	if milestoneID == "" {
		return domain.Milestone{}, domain.ErrInvalidInput
	}
	probe, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return domain.Milestone{}, err
	}
	unlock := s.locks.lock(probe.ProjectID)
	defer unlock()

	milestone, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return domain.Milestone{}, err
	}
	project, err := s.projects.GetByID(ctx, milestone.ProjectID)
	if err != nil {
		return domain.Milestone{}, err
	}
	if !actor.IsSystem() && actor.SubjectID != project.ClientID {
		return domain.Milestone{}, domain.ErrForbidden
	}
	requestHash := hashPayload(map[string]string{"milestone_id": milestoneID, "feedback": feedback})
	if body, ok, err := s.getIdempotentResponse(ctx, actor, requestHash); err != nil {
		return domain.Milestone{}, err
	} else if ok {
		var cached domain.Milestone
		if err := json.Unmarshal(body, &cached); err == nil {
			return cached, nil
		}
	}
	if err := s.reserveIdempotency(ctx, actor, requestHash); err != nil {
		return domain.Milestone{}, err
	}

	now := s.nowFn()
	oldStatus := milestone.Status
	next, err := domain.ApproveMilestone(milestone, now)
	if err != nil {
		return domain.Milestone{}, err
	}
	account, err := s.accounts.GetByProjectID(ctx, project.ProjectID)
	if err != nil {
		return domain.Milestone{}, err
	}
	err = s.inTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.releaseHeldFunds(ctx, project, account, domain.TransactionTypeMilestoneRelease, next.MilestoneID, "", next.Amount, actor.RequestID, now); err != nil {
			return err
		}
		if err := s.milestones.Update(ctx, next); err != nil {
			return err
		}
		if err := s.recordTransition(ctx, "milestone", next.MilestoneID, oldStatus, next.Status, actor.SubjectID, now); err != nil {
			return err
		}
		return s.enqueueMilestoneStatusChanged(ctx, domain.EventMilestoneApproved, next, oldStatus, actor, now)
	})
	if err != nil {
		return domain.Milestone{}, err
	}
	s.completeIdempotent(ctx, actor.IdempotencyKey, 200, next)
	return next, nil
}

// RequestRevision sends a submission back for rework, bounded by the
// project's revision limit.
func (s *Service) RequestRevision(ctx context.Context, actor Actor, milestoneID, notes string) (domain.Milestone, error) {
	if strings.TrimSpace(notes) == "" {
		return domain.Milestone{}, domain.ErrInvalidInput
	}
	return s.transitionMilestone(ctx, actor, milestoneID, "request_revision", notes, func(project domain.Project, m domain.Milestone) (domain.Milestone, string, error) {
		if actor.SubjectID != project.ClientID {
			return domain.Milestone{}, "", domain.ErrForbidden
		}
		next, err := domain.RequestMilestoneRevision(m, project.MaxRevisions, s.nowFn())
		return next, domain.EventMilestoneRevisionRequested, err
	})
}

// ResumeAfterRevision lets the payee pick work back up after a revision
// request.
func (s *Service) ResumeAfterRevision(ctx context.Context, actor Actor, milestoneID string) (domain.Milestone, error) {
	return s.transitionMilestone(ctx, actor, milestoneID, "resume", nil, func(project domain.Project, m domain.Milestone) (domain.Milestone, string, error) {
		if actor.SubjectID != project.FreelancerID {
			return domain.Milestone{}, "", domain.ErrForbidden
		}
		next, err := domain.ResumeMilestoneAfterRevision(m, s.nowFn())
		return next, domain.EventMilestoneStarted, err
	})
}

// CancelMilestone is terminal; funded milestones get their amount refunded to
// the payer. The row is never deleted.
func (s *Service) CancelMilestone(ctx context.Context, actor Actor, milestoneID string) (domain.Milestone, error) {
	if err := s.requireActor(actor); err != nil {
		return domain.Milestone{}, err
	}
	if err := s.requireIdempotency(actor); err != nil {
		return domain.Milestone{}, err
	}
	milestoneID = strings.TrimSpace(milestoneID)
	if milestoneID == "" {
		return domain.Milestone{}, domain.ErrInvalidInput
	}
	probe, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return domain.Milestone{}, err
	}
	unlock := s.locks.lock(probe.ProjectID)
	defer unlock()

	milestone, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return domain.Milestone{}, err
	}
	project, err := s.projects.GetByID(ctx, milestone.ProjectID)
	if err != nil {
		return domain.Milestone{}, err
	}
	if !actor.IsSystem() && actor.SubjectID != project.ClientID {
		return domain.Milestone{}, domain.ErrForbidden
	}
	requestHash := hashPayload(map[string]string{"milestone_id": milestoneID, "op": "cancel"})
	if err := s.reserveIdempotency(ctx, actor, requestHash); err != nil {
		return domain.Milestone{}, err
	}

	now := s.nowFn()
	oldStatus := milestone.Status
	next, err := domain.CancelMilestone(milestone, now)
	if err != nil {
		return domain.Milestone{}, err
	}
	err = s.inTransaction(ctx, func(ctx context.Context) error {
		account, err := s.accounts.GetByProjectID(ctx, project.ProjectID)
		if err == nil && account.HeldAmount >= next.Amount {
			if _, err := s.refundHeldFunds(ctx, project, account, domain.TransactionTypeWithdrawal, next.MilestoneID, "", next.Amount, "milestone cancelled", actor.RequestID, now); err != nil {
				return err
			}
		} else if err != nil && err != domain.ErrNotFound {
			return err
		}
		if err := s.milestones.Update(ctx, next); err != nil {
			return err
		}
		if err := s.recordTransition(ctx, "milestone", next.MilestoneID, oldStatus, next.Status, actor.SubjectID, now); err != nil {
			return err
		}
		return s.enqueueMilestoneStatusChanged(ctx, domain.EventMilestoneCancelled, next, oldStatus, actor, now)
	})
	if err != nil {
		return domain.Milestone{}, err
	}
	s.completeIdempotent(ctx, actor.IdempotencyKey, 200, next)
	return next, nil
}

func (s *Service) GetMilestone(ctx context.Context, actor Actor, milestoneID string) (domain.Milestone, error) {
	if err := s.requireActor(actor); err != nil {
		return domain.Milestone{}, err
	}
	return s.milestones.GetByID(ctx, strings.TrimSpace(milestoneID))
}

// transitionMilestone is the shared path for transitions without ledger side
// effects: lock, load, authorize+apply, persist, record, emit. The request
// hash covers only the caller-supplied op and payload so a same-key retry
// after success replays the recorded response.
func (s *Service) transitionMilestone(ctx context.Context, actor Actor, milestoneID, op string, payload any, apply func(domain.Project, domain.Milestone) (domain.Milestone, string, error)) (domain.Milestone, error) {
	if err := s.requireActor(actor); err != nil {
		return domain.Milestone{}, err
	}
	if err := s.requireIdempotency(actor); err != nil {
		return domain.Milestone{}, err
	}
	milestoneID = strings.TrimSpace(milestoneID)
	if milestoneID == "" {
		return domain.Milestone{}, domain.ErrInvalidInput
	}
	probe, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return domain.Milestone{}, err
	}
	unlock := s.locks.lock(probe.ProjectID)
	defer unlock()

	milestone, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return domain.Milestone{}, err
	}
	project, err := s.projects.GetByID(ctx, milestone.ProjectID)
	if err != nil {
		return domain.Milestone{}, err
	}
	requestHash := hashPayload(map[string]any{"milestone_id": milestoneID, "op": op, "payload": payload})
	if body, ok, err := s.getIdempotentResponse(ctx, actor, requestHash); err != nil {
		return domain.Milestone{}, err
	} else if ok {
		var cached domain.Milestone
		if err := json.Unmarshal(body, &cached); err == nil {
			return cached, nil
		}
	}
	oldStatus := milestone.Status
	next, eventType, err := apply(project, milestone)
	if err != nil {
		return domain.Milestone{}, err
	}
	if err := s.reserveIdempotency(ctx, actor, requestHash); err != nil {
		return domain.Milestone{}, err
	}
	now := next.UpdatedAt
	err = s.inTransaction(ctx, func(ctx context.Context) error {
		if err := s.milestones.Update(ctx, next); err != nil {
			return err
		}
		if err := s.recordTransition(ctx, "milestone", next.MilestoneID, oldStatus, next.Status, actor.SubjectID, now); err != nil {
			return err
		}
		return s.enqueueMilestoneStatusChanged(ctx, eventType, next, oldStatus, actor, now)
	})
	if err != nil {
		return domain.Milestone{}, err
	}
	s.completeIdempotent(ctx, actor.IdempotencyKey, 200, next)
	return next, nil
}
