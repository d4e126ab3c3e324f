package application

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/johnthebelovedcoder/contralock/internal/domain"
)

// RaiseDispute contests a submitted or in-progress milestone. The milestone
// is suspended in disputed status until the dispute resolves.
func (s *Service) RaiseDispute(ctx context.Context, actor Actor, milestoneID string, input RaiseDisputeInput) (domain.Dispute, error) {
	if err := s.requireActor(actor); err != nil {
		return domain.Dispute{}, err
	}
	if err := s.requireIdempotency(actor); err != nil {
		return domain.Dispute{}, err
	}
	milestoneID = strings.TrimSpace(milestoneID)
	if milestoneID == "" || strings.TrimSpace(input.Reason) == "" {
		return domain.Dispute{}, domain.ErrInvalidInput
	}
	probe, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return domain.Dispute{}, err
	}
	unlock := s.locks.lock(probe.ProjectID)
	defer unlock()

	milestone, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return domain.Dispute{}, err
	}
	project, err := s.projects.GetByID(ctx, milestone.ProjectID)
	if err != nil {
		return domain.Dispute{}, err
	}
	if !project.HasParty(actor.SubjectID) {
		return domain.Dispute{}, domain.ErrForbidden
	}
	if existing, err := s.disputes.GetOpenByMilestoneID(ctx, milestoneID); err == nil && existing.DisputeID != "" {
		return domain.Dispute{}, domain.ErrDisputeAlreadyOpen
	}
	requestHash := hashPayload(input)
	if body, ok, err := s.getIdempotentResponse(ctx, actor, requestHash); err != nil {
		return domain.Dispute{}, err
	} else if ok {
		var cached domain.Dispute
		if err := json.Unmarshal(body, &cached); err == nil {
			return cached, nil
		}
	}
	if err := s.reserveIdempotency(ctx, actor, requestHash); err != nil {
		return domain.Dispute{}, err
	}

	now := s.nowFn()
	oldStatus := milestone.Status
	next, err := domain.MarkMilestoneDisputed(milestone, now)
	if err != nil {
		return domain.Dispute{}, err
	}
	dispute := domain.Dispute{
		DisputeID:   uuid.NewString(),
		MilestoneID: milestoneID,
		ProjectID:   project.ProjectID,
		RaisedBy:    actor.SubjectID,
		Reason:      strings.TrimSpace(input.Reason),
		Phase:       domain.DisputePhasePendingFee,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.inTransaction(ctx, func(ctx context.Context) error {
		if err := s.disputes.Create(ctx, dispute); err != nil {
			return err
		}
		if err := s.milestones.Update(ctx, next); err != nil {
			return err
		}
		for _, ev := range input.Evidence {
			row := domain.Evidence{
				EvidenceID:  uuid.NewString(),
				DisputeID:   dispute.DisputeID,
				SubmittedBy: actor.SubjectID,
				Filename:    strings.TrimSpace(ev.Filename),
				FileURL:     strings.TrimSpace(ev.FileURL),
				Description: "initial evidence",
				SubmittedAt: now,
			}
			if err := s.evidence.Append(ctx, row); err != nil {
				return err
			}
		}
		if err := s.recordTransition(ctx, "milestone", next.MilestoneID, oldStatus, next.Status, actor.SubjectID, now); err != nil {
			return err
		}
		if err := s.recordTransition(ctx, "dispute", dispute.DisputeID, "", dispute.Phase, actor.SubjectID, now); err != nil {
			return err
		}
		return s.enqueueDisputeCreated(ctx, dispute, actor.RequestID, now)
	})
	if err != nil {
		return domain.Dispute{}, err
	}
	s.completeIdempotent(ctx, actor.IdempotencyKey, 201, dispute)
	return dispute, nil
}

// PayDisputeFee charges the raising party the flat dispute fee and opens the
// evidence review phase.
func (s *Service) PayDisputeFee(ctx context.Context, actor Actor, disputeID, method string) (domain.Dispute, error) {
	return s.transitionDispute(ctx, actor, disputeID, "pay_fee", method, func(project domain.Project, dispute domain.Dispute) (domain.Dispute, error) {
		if actor.SubjectID != dispute.RaisedBy {
			return domain.Dispute{}, domain.ErrForbidden
		}
		if dispute.FeePaid {
			return domain.Dispute{}, domain.ErrConflict
		}
		if err := domain.ValidateDisputeTransition(dispute.Phase, domain.DisputePhasePendingReview); err != nil {
			return domain.Dispute{}, err
		}
		now := s.nowFn()
		ref, err := s.gateway.ChargePayer(ctx, actor.SubjectID, s.cfg.Fees.DisputeFee, project.Currency, method)
		if err != nil {
			return domain.Dispute{}, err
		}
		fee := domain.Transaction{
			TransactionID:    uuid.NewString(),
			ProjectID:        project.ProjectID,
			Type:             domain.TransactionTypeFee,
			Amount:           s.cfg.Fees.DisputeFee,
			Currency:         project.Currency,
			FromParty:        actor.SubjectID,
			DisputeID:        dispute.DisputeID,
			GatewayReference: ref,
			Status:           domain.TransactionStatusCompleted,
			CreatedAt:        now,
			CompletedAt:      &now,
		}
		if err := s.transactions.Append(ctx, fee); err != nil {
			return domain.Dispute{}, err
		}
		dispute.Phase = domain.DisputePhasePendingReview
		dispute.FeePaid = true
		dispute.UpdatedAt = now
		if err := s.enqueueDisputeFeePaid(ctx, dispute, s.cfg.Fees.DisputeFee, actor.RequestID, now); err != nil {
			return domain.Dispute{}, err
		}
		return dispute, nil
	})
}

// SubmitEvidence appends to the dispute's evidence list; nothing is ever
// overwritten. Legal in any non-terminal phase.
func (s *Service) SubmitEvidence(ctx context.Context, actor Actor, disputeID string, input SubmitEvidenceInput) (domain.Evidence, error) {
	if err := s.requireActor(actor); err != nil {
		return domain.Evidence{}, err
	}
	if err := s.requireIdempotency(actor); err != nil {
		return domain.Evidence{}, err
	}
	disputeID = strings.TrimSpace(disputeID)
	if disputeID == "" || strings.TrimSpace(input.Description) == "" {
		return domain.Evidence{}, domain.ErrInvalidInput
	}
	probe, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return domain.Evidence{}, err
	}
	unlock := s.locks.lock(probe.ProjectID)
	defer unlock()

	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return domain.Evidence{}, err
	}
	project, err := s.projects.GetByID(ctx, dispute.ProjectID)
	if err != nil {
		return domain.Evidence{}, err
	}
	if !project.HasParty(actor.SubjectID) && actor.SubjectID != dispute.MediatorID && actor.SubjectID != dispute.ArbitratorID {
		return domain.Evidence{}, domain.ErrForbidden
	}
	if domain.IsTerminalDisputePhase(dispute.Phase) {
		return domain.Evidence{}, domain.ErrDisputeResolved
	}
	requestHash := hashPayload(input)
	if body, ok, err := s.getIdempotentResponse(ctx, actor, requestHash); err != nil {
		return domain.Evidence{}, err
	} else if ok {
		var cached domain.Evidence
		if err := json.Unmarshal(body, &cached); err == nil {
			return cached, nil
		}
	}
	if err := s.reserveIdempotency(ctx, actor, requestHash); err != nil {
		return domain.Evidence{}, err
	}
	now := s.nowFn()
	row := domain.Evidence{
		EvidenceID:  uuid.NewString(),
		DisputeID:   dispute.DisputeID,
		SubmittedBy: actor.SubjectID,
		Filename:    strings.TrimSpace(input.Filename),
		FileURL:     strings.TrimSpace(input.FileURL),
		Description: strings.TrimSpace(input.Description),
		SubmittedAt: now,
	}
	err = s.inTransaction(ctx, func(ctx context.Context) error {
		if err := s.evidence.Append(ctx, row); err != nil {
			return err
		}
		if s.messages != nil {
			msg := domain.DisputeMessage{
				MessageID:   uuid.NewString(),
				DisputeID:   dispute.DisputeID,
				SenderID:    actor.SubjectID,
				MessageBody: row.Description,
				CreatedAt:   now,
			}
			if err := s.messages.Append(ctx, msg); err != nil {
				return err
			}
		}
		return s.enqueueDisputeEvidence(ctx, row, actor.RequestID, now)
	})
	if err != nil {
		return domain.Evidence{}, err
	}
	s.completeIdempotent(ctx, actor.IdempotencyKey, 201, row)
	return row, nil
}

// AttachAdvisory stores the automated analysis annotation. It never applies a
// decision; resolve reads it or ignores it.
func (s *Service) AttachAdvisory(ctx context.Context, actor Actor, disputeID string, input AttachAdvisoryInput) (domain.Dispute, error) {
	return s.transitionDispute(ctx, actor, disputeID, "attach_advisory", input, func(_ domain.Project, dispute domain.Dispute) (domain.Dispute, error) {
		if !actor.IsSystem() && actor.Role != "admin" {
			return domain.Dispute{}, domain.ErrForbidden
		}
		if dispute.Phase != domain.DisputePhasePendingReview {
			return domain.Dispute{}, domain.NewInvalidTransition("dispute", dispute.Phase, domain.DisputePhasePendingReview)
		}
		now := s.nowFn()
		dispute.Advisory = &domain.Advisory{
			ConfidenceScore:    input.ConfidenceScore,
			KeyIssues:          input.KeyIssues,
			RecommendedToPayee: input.RecommendedToPayee,
			RecommendedToPayer: input.RecommendedToPayer,
			Summary:            strings.TrimSpace(input.Summary),
			GeneratedAt:        now,
		}
		dispute.UpdatedAt = now
		return dispute, nil
	})
}

// AssignMediator moves review into mediation. Mediator and arbitrator are
// mutually exclusive.
func (s *Service) AssignMediator(ctx context.Context, actor Actor, disputeID, mediatorID string) (domain.Dispute, error) {
	return s.transitionDispute(ctx, actor, disputeID, "assign_mediator", mediatorID, func(_ domain.Project, dispute domain.Dispute) (domain.Dispute, error) {
		if !actor.IsSystem() && actor.Role != "admin" {
			return domain.Dispute{}, domain.ErrForbidden
		}
		mediatorID = strings.TrimSpace(mediatorID)
		if mediatorID == "" {
			return domain.Dispute{}, domain.ErrInvalidInput
		}
		if err := domain.ValidateDisputeTransition(dispute.Phase, domain.DisputePhaseInMediation); err != nil {
			return domain.Dispute{}, err
		}
		dispute.Phase = domain.DisputePhaseInMediation
		dispute.MediatorID = mediatorID
		dispute.ArbitratorID = ""
		dispute.UpdatedAt = s.nowFn()
		return dispute, nil
	})
}

// AssignArbitrator moves the dispute into arbitration, either directly from
// review or after an escalation.
func (s *Service) AssignArbitrator(ctx context.Context, actor Actor, disputeID, arbitratorID string) (domain.Dispute, error) {
	return s.transitionDispute(ctx, actor, disputeID, "assign_arbitrator", arbitratorID, func(_ domain.Project, dispute domain.Dispute) (domain.Dispute, error) {
		if !actor.IsSystem() && actor.Role != "admin" {
			return domain.Dispute{}, domain.ErrForbidden
		}
		arbitratorID = strings.TrimSpace(arbitratorID)
		if arbitratorID == "" {
			return domain.Dispute{}, domain.ErrInvalidInput
		}
		if err := domain.ValidateDisputeTransition(dispute.Phase, domain.DisputePhaseInArbitration); err != nil {
			return domain.Dispute{}, err
		}
		dispute.Phase = domain.DisputePhaseInArbitration
		dispute.ArbitratorID = arbitratorID
		dispute.MediatorID = ""
		dispute.UpdatedAt = s.nowFn()
		return dispute, nil
	})
}

// ProposeSelfResolution lets the parties settle without a mediator.
func (s *Service) ProposeSelfResolution(ctx context.Context, actor Actor, disputeID string) (domain.Dispute, error) {
	return s.transitionDispute(ctx, actor, disputeID, "self_resolution", nil, func(project domain.Project, dispute domain.Dispute) (domain.Dispute, error) {
		if !project.HasParty(actor.SubjectID) {
			return domain.Dispute{}, domain.ErrForbidden
		}
		if err := domain.ValidateDisputeTransition(dispute.Phase, domain.DisputePhaseSelfResolution); err != nil {
			return domain.Dispute{}, err
		}
		dispute.Phase = domain.DisputePhaseSelfResolution
		dispute.UpdatedAt = s.nowFn()
		return dispute, nil
	})
}

// EscalateDispute moves mediation to escalated; arbitration starts once an
// arbitrator is assigned.
func (s *Service) EscalateDispute(ctx context.Context, actor Actor, disputeID, reason string) (domain.Dispute, error) {
	return s.transitionDispute(ctx, actor, disputeID, "escalate", reason, func(project domain.Project, dispute domain.Dispute) (domain.Dispute, error) {
		if !project.HasParty(actor.SubjectID) && actor.SubjectID != dispute.MediatorID {
			return domain.Dispute{}, domain.ErrForbidden
		}
		if err := domain.ValidateDisputeTransition(dispute.Phase, domain.DisputePhaseEscalated); err != nil {
			return domain.Dispute{}, err
		}
		now := s.nowFn()
		dispute.Phase = domain.DisputePhaseEscalated
		dispute.MediatorID = ""
		dispute.UpdatedAt = now
		if err := s.enqueueDisputeEscalated(ctx, dispute, actor, strings.TrimSpace(reason), now); err != nil {
			return domain.Dispute{}, err
		}
		return dispute, nil
	})
}

// ResolveDispute validates the split invariant before touching the ledger,
// performs the split as one ledger event, seals the dispute, and resumes the
// milestone to the status the resolution implies.
func (s *Service) ResolveDispute(ctx context.Context, actor Actor, disputeID string, input ResolveDisputeInput) (domain.Dispute, error) {
	if err := s.requireActor(actor); err != nil {
		return domain.Dispute{}, err
	}
	if err := s.requireIdempotency(actor); err != nil {
		return domain.Dispute{}, err
	}
	disputeID = strings.TrimSpace(disputeID)
	decision := domain.NormalizeResolutionDecision(input.Decision)
	if disputeID == "" || decision == "" || strings.TrimSpace(input.Reasoning) == "" {
		return domain.Dispute{}, domain.ErrInvalidInput
	}
	probe, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return domain.Dispute{}, err
	}
	unlock := s.locks.lock(probe.ProjectID)
	defer unlock()

	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return domain.Dispute{}, err
	}
	project, err := s.projects.GetByID(ctx, dispute.ProjectID)
	if err != nil {
		return domain.Dispute{}, err
	}
	milestone, err := s.milestones.GetByID(ctx, dispute.MilestoneID)
	if err != nil {
		return domain.Dispute{}, err
	}
	if domain.IsTerminalDisputePhase(dispute.Phase) {
		return domain.Dispute{}, domain.ErrDisputeResolved
	}
	if err := s.authorizeResolver(actor, project, dispute); err != nil {
		return domain.Dispute{}, err
	}
	if err := domain.ValidateDisputeTransition(dispute.Phase, domain.DisputePhaseResolved); err != nil {
		return domain.Dispute{}, err
	}
	// Rework moves no funds, so the amounts carry no meaning there.
	if decision != domain.ResolutionDecisionRework {
		if err := domain.ValidateResolutionSplit(input.AmountToPayee, input.AmountToPayer, milestone.Amount); err != nil {
			return domain.Dispute{}, err
		}
	}
	requestHash := hashPayload(input)
	if body, ok, err := s.getIdempotentResponse(ctx, actor, requestHash); err != nil {
		return domain.Dispute{}, err
	} else if ok {
		var cached domain.Dispute
		if err := json.Unmarshal(body, &cached); err == nil {
			return cached, nil
		}
	}
	if err := s.reserveIdempotency(ctx, actor, requestHash); err != nil {
		return domain.Dispute{}, err
	}

	now := s.nowFn()
	oldPhase := dispute.Phase
	oldMilestoneStatus := milestone.Status
	resumeStatus := domain.ResumeStatusForResolution(decision, input.AmountToPayee, milestone.Amount)
	nextMilestone, err := domain.ResumeMilestoneFromDispute(milestone, resumeStatus, now)
	if err != nil {
		return domain.Dispute{}, err
	}
	dispute.Phase = domain.DisputePhaseResolved
	dispute.Resolution = &domain.Resolution{
		Decision:      decision,
		AmountToPayee: input.AmountToPayee,
		AmountToPayer: input.AmountToPayer,
		Reasoning:     strings.TrimSpace(input.Reasoning),
		ResolvedBy:    actor.SubjectID,
		ResolvedAt:    now,
	}
	dispute.UpdatedAt = now
	dispute.ResolvedAt = &now

	err = s.inTransaction(ctx, func(ctx context.Context) error {
		// Rework sends the funds question back to the normal milestone flow;
		// every other decision settles the milestone amount now.
		if decision != domain.ResolutionDecisionRework {
			if err := s.splitOnDisputeResolution(ctx, project, milestone, dispute, input.AmountToPayee, input.AmountToPayer, actor.RequestID, now); err != nil {
				return err
			}
		}
		if err := s.disputes.Update(ctx, dispute); err != nil {
			return err
		}
		if err := s.milestones.Update(ctx, nextMilestone); err != nil {
			return err
		}
		if err := s.recordTransition(ctx, "dispute", dispute.DisputeID, oldPhase, dispute.Phase, actor.SubjectID, now); err != nil {
			return err
		}
		if err := s.recordTransition(ctx, "milestone", nextMilestone.MilestoneID, oldMilestoneStatus, nextMilestone.Status, actor.SubjectID, now); err != nil {
			return err
		}
		return s.enqueueDisputeResolved(ctx, dispute, actor.RequestID, now)
	})
	if err != nil {
		return domain.Dispute{}, err
	}
	s.completeIdempotent(ctx, actor.IdempotencyKey, 200, dispute)
	return dispute, nil
}

func (s *Service) GetDispute(ctx context.Context, actor Actor, disputeID string) (domain.Dispute, []domain.Evidence, error) {
	if err := s.requireActor(actor); err != nil {
		return domain.Dispute{}, nil, err
	}
	dispute, err := s.disputes.GetByID(ctx, strings.TrimSpace(disputeID))
	if err != nil {
		return domain.Dispute{}, nil, err
	}
	var evidence []domain.Evidence
	if s.evidence != nil {
		evidence, _ = s.evidence.ListByDisputeID(ctx, dispute.DisputeID)
	}
	return dispute, evidence, nil
}

func (s *Service) authorizeResolver(actor Actor, project domain.Project, dispute domain.Dispute) error {
	switch dispute.Phase {
	case domain.DisputePhaseSelfResolution:
		if project.HasParty(actor.SubjectID) {
			return nil
		}
	case domain.DisputePhaseInMediation:
		if actor.SubjectID == dispute.MediatorID || actor.Role == "admin" {
			return nil
		}
	case domain.DisputePhaseInArbitration:
		if actor.SubjectID == dispute.ArbitratorID || actor.Role == "admin" {
			return nil
		}
	}
	return domain.ErrForbidden
}

// transitionDispute is the shared lock/load/apply/persist path for dispute
// phase changes without milestone or ledger coupling. The request hash covers
// only the caller-supplied op and payload so a same-key retry after success
// replays the recorded response, and the key is reserved before the commit so
// a crash after the commit cannot strand the key unprotected.
func (s *Service) transitionDispute(ctx context.Context, actor Actor, disputeID, op string, payload any, apply func(domain.Project, domain.Dispute) (domain.Dispute, error)) (domain.Dispute, error) {
	if err := s.requireActor(actor); err != nil {
		return domain.Dispute{}, err
	}
	if err := s.requireIdempotency(actor); err != nil {
		return domain.Dispute{}, err
	}
	disputeID = strings.TrimSpace(disputeID)
	if disputeID == "" {
		return domain.Dispute{}, domain.ErrInvalidInput
	}
	probe, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return domain.Dispute{}, err
	}
	unlock := s.locks.lock(probe.ProjectID)
	defer unlock()

	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return domain.Dispute{}, err
	}
	project, err := s.projects.GetByID(ctx, dispute.ProjectID)
	if err != nil {
		return domain.Dispute{}, err
	}
	if domain.IsTerminalDisputePhase(dispute.Phase) {
		return domain.Dispute{}, domain.ErrDisputeResolved
	}
	requestHash := hashPayload(map[string]any{"dispute_id": disputeID, "op": op, "payload": payload})
	if body, ok, err := s.getIdempotentResponse(ctx, actor, requestHash); err != nil {
		return domain.Dispute{}, err
	} else if ok {
		var cached domain.Dispute
		if err := json.Unmarshal(body, &cached); err == nil {
			return cached, nil
		}
	}
	if err := s.reserveIdempotency(ctx, actor, requestHash); err != nil {
		return domain.Dispute{}, err
	}
	oldPhase := dispute.Phase
	var next domain.Dispute
	err = s.inTransaction(ctx, func(ctx context.Context) error {
		next, err = apply(project, dispute)
		if err != nil {
			return err
		}
		if err := s.disputes.Update(ctx, next); err != nil {
			return err
		}
		if next.Phase != oldPhase {
			return s.recordTransition(ctx, "dispute", next.DisputeID, oldPhase, next.Phase, actor.SubjectID, next.UpdatedAt)
		}
		return nil
	})
	if err != nil {
		return domain.Dispute{}, err
	}
	s.completeIdempotent(ctx, actor.IdempotencyKey, 200, next)
	return next, nil
}
