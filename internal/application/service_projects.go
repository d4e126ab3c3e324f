package application

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/johnthebelovedcoder/contralock/internal/domain"
)

func (s *Service) CreateProject(ctx context.Context, actor Actor, input CreateProjectInput) (domain.Project, error) {
	if err := s.requireActor(actor); err != nil {
		return domain.Project{}, err
	}
	if err := s.requireIdempotency(actor); err != nil {
		return domain.Project{}, err
	}
	input.ClientID = strings.TrimSpace(input.ClientID)
	input.FreelancerID = strings.TrimSpace(input.FreelancerID)
	currency := domain.NormalizeCurrency(input.Currency)
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	if input.ClientID == "" || strings.TrimSpace(input.Title) == "" || input.TotalBudget <= 0 {
		return domain.Project{}, domain.ErrInvalidInput
	}
	if input.GraceDays <= 0 || input.MaxRevisions < 0 {
		return domain.Project{}, domain.ErrInvalidInput
	}
	requestHash := hashPayload(input)
	if body, ok, err := s.getIdempotentResponse(ctx, actor, requestHash); err != nil {
		return domain.Project{}, err
	} else if ok {
		var cached domain.Project
		if err := json.Unmarshal(body, &cached); err == nil {
			return cached, nil
		}
	}
	if err := s.reserveIdempotency(ctx, actor, requestHash); err != nil {
		return domain.Project{}, err
	}
	now := s.nowFn()
	project := domain.Project{
		ProjectID:    uuid.NewString(),
		ClientID:     input.ClientID,
		FreelancerID: input.FreelancerID,
		Title:        strings.TrimSpace(input.Title),
		Currency:     currency,
		TotalBudget:  input.TotalBudget,
		GraceDays:    input.GraceDays,
		MaxRevisions: input.MaxRevisions,
		Status:       domain.ProjectStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.projects.Create(ctx, project); err != nil {
		return domain.Project{}, err
	}
	s.completeIdempotent(ctx, actor.IdempotencyKey, 201, project)
	return project, nil
}

func (s *Service) GetProject(ctx context.Context, actor Actor, projectID string) (domain.Project, error) {
	if err := s.requireActor(actor); err != nil {
		return domain.Project{}, err
	}
	return s.projects.GetByID(ctx, strings.TrimSpace(projectID))
}

// AddMilestone defines one unit of the project's scope. Positions are assigned
// in creation order. Budget is immutable once escrow is funded, so the sum of
// milestone amounts may not exceed it.
func (s *Service) AddMilestone(ctx context.Context, actor Actor, projectID string, input AddMilestoneInput) (domain.Milestone, error) {
	if err := s.requireActor(actor); err != nil {
		return domain.Milestone{}, err
	}
	if err := s.requireIdempotency(actor); err != nil {
		return domain.Milestone{}, err
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" || strings.TrimSpace(input.Title) == "" || input.Amount <= 0 {
		return domain.Milestone{}, domain.ErrInvalidInput
	}
	unlock := s.locks.lock(projectID)
	defer unlock()

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return domain.Milestone{}, err
	}
	if !actor.IsSystem() && actor.SubjectID != project.ClientID {
		return domain.Milestone{}, domain.ErrForbidden
	}
	existing, err := s.milestones.ListByProjectID(ctx, projectID)
	if err != nil {
		return domain.Milestone{}, err
	}
	var committed int64
	for _, m := range existing {
		if m.Status != domain.MilestoneStatusCancelled {
			committed += m.Amount
		}
	}
	if committed+input.Amount > project.TotalBudget {
		return domain.Milestone{}, domain.ErrInvalidInput
	}
	requestHash := hashPayload(input)
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
	milestone := domain.Milestone{
		MilestoneID: uuid.NewString(),
		ProjectID:   projectID,
		Position:    len(existing) + 1,
		Title:       strings.TrimSpace(input.Title),
		Amount:      input.Amount,
		Status:      domain.MilestoneStatusPending,
		Deadline:    input.Deadline,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.milestones.Create(ctx, milestone); err != nil {
		return domain.Milestone{}, err
	}
	s.completeIdempotent(ctx, actor.IdempotencyKey, 201, milestone)
	return milestone, nil
}

func (s *Service) ListMilestones(ctx context.Context, actor Actor, projectID string) ([]domain.Milestone, error) {
	if err := s.requireActor(actor); err != nil {
		return nil, err
	}
	return s.milestones.ListByProjectID(ctx, strings.TrimSpace(projectID))
}

func (s *Service) GetTransitionFeed(ctx context.Context, actor Actor, entityType, entityID string) ([]domain.TransitionRecord, error) {
	if err := s.requireActor(actor); err != nil {
		return nil, err
	}
	if s.transitions == nil {
		return nil, nil
	}
	return s.transitions.ListByEntity(ctx, strings.TrimSpace(entityType), strings.TrimSpace(entityID))
}
