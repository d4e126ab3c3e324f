package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/johnthebelovedcoder/contralock/internal/application"
	"github.com/johnthebelovedcoder/contralock/internal/contracts"
	"github.com/johnthebelovedcoder/contralock/internal/domain"
)

type Handler struct{ service *application.Service }

func NewHandler(service *application.Service) *Handler { return &Handler{service: service} }

// --- projects ---

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", requestIDFromContext(r.Context()))
		return
	}
	project, err := h.service.CreateProject(r.Context(), actor, application.CreateProjectInput{
		ClientID:     strings.TrimSpace(req.ClientID),
		FreelancerID: strings.TrimSpace(req.FreelancerID),
		Title:        strings.TrimSpace(req.Title),
		Currency:     req.Currency,
		TotalBudget:  req.TotalBudget,
		GraceDays:    req.GraceDays,
		MaxRevisions: req.MaxRevisions,
	})
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusCreated, "project created", project)
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	project, err := h.service.GetProject(r.Context(), actor, chi.URLParam(r, "project_id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", project)
}

func (h *Handler) addMilestone(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.AddMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", requestIDFromContext(r.Context()))
		return
	}
	input := application.AddMilestoneInput{Title: strings.TrimSpace(req.Title), Amount: req.Amount}
	if raw := strings.TrimSpace(req.Deadline); raw != "" {
		deadline, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "deadline must be RFC3339", requestIDFromContext(r.Context()))
			return
		}
		input.Deadline = &deadline
	}
	milestone, err := h.service.AddMilestone(r.Context(), actor, chi.URLParam(r, "project_id"), input)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusCreated, "milestone added", milestone)
}

func (h *Handler) listMilestones(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	milestones, err := h.service.ListMilestones(r.Context(), actor, chi.URLParam(r, "project_id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", milestones)
}

func (h *Handler) transitionFeed(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	entityType := strings.TrimSpace(r.URL.Query().Get("entity_type"))
	entityID := strings.TrimSpace(r.URL.Query().Get("entity_id"))
	feed, err := h.service.GetTransitionFeed(r.Context(), actor, entityType, entityID)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", feed)
}

// --- escrow ledger ---

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", requestIDFromContext(r.Context()))
		return
	}
	account, err := h.service.Deposit(r.Context(), actor, chi.URLParam(r, "project_id"), application.DepositInput{
		Amount: req.Amount,
		Method: strings.TrimSpace(req.Method),
	})
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "deposit recorded", toBalanceResponse(account))
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	balance, err := h.service.GetBalance(r.Context(), actor, chi.URLParam(r, "project_id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", contracts.BalanceResponse{
		ProjectID: balance.ProjectID,
		Currency:  balance.Currency,
		Total:     balance.Total,
		Held:      balance.Held,
		Released:  balance.Released,
		Refunded:  balance.Refunded,
		Status:    balance.Status,
	})
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	transactions, err := h.service.ListTransactions(r.Context(), actor, chi.URLParam(r, "project_id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", transactions)
}

// --- milestone lifecycle ---

func (h *Handler) startMilestone(w http.ResponseWriter, r *http.Request) {
	h.milestoneTransition(w, r, func(actor application.Actor, milestoneID string) (domain.Milestone, error) {
		return h.service.StartMilestone(r.Context(), actor, milestoneID)
	}, "milestone started")
}

func (h *Handler) submitMilestone(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.SubmitMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", requestIDFromContext(r.Context()))
		return
	}
	milestone, err := h.service.SubmitMilestone(r.Context(), actor, chi.URLParam(r, "milestone_id"), application.SubmitMilestoneInput{
		Notes:        strings.TrimSpace(req.Notes),
		Deliverables: mapDeliverables(req.Deliverables),
	})
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "milestone submitted", milestone)
}

func (h *Handler) approveMilestone(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.ApproveMilestoneRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	milestone, err := h.service.ApproveMilestone(r.Context(), actor, chi.URLParam(r, "milestone_id"), strings.TrimSpace(req.Feedback))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "milestone approved", milestone)
}

func (h *Handler) requestRevision(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.RequestRevisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", requestIDFromContext(r.Context()))
		return
	}
	milestone, err := h.service.RequestRevision(r.Context(), actor, chi.URLParam(r, "milestone_id"), strings.TrimSpace(req.Notes))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "revision requested", milestone)
}

func (h *Handler) resumeMilestone(w http.ResponseWriter, r *http.Request) {
	h.milestoneTransition(w, r, func(actor application.Actor, milestoneID string) (domain.Milestone, error) {
		return h.service.ResumeAfterRevision(r.Context(), actor, milestoneID)
	}, "milestone resumed")
}

func (h *Handler) cancelMilestone(w http.ResponseWriter, r *http.Request) {
	h.milestoneTransition(w, r, func(actor application.Actor, milestoneID string) (domain.Milestone, error) {
		return h.service.CancelMilestone(r.Context(), actor, milestoneID)
	}, "milestone cancelled")
}

func (h *Handler) getMilestone(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	milestone, err := h.service.GetMilestone(r.Context(), actor, chi.URLParam(r, "milestone_id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", milestone)
}

func (h *Handler) milestoneTransition(w http.ResponseWriter, r *http.Request, call func(application.Actor, string) (domain.Milestone, error), message string) {
	actor := actorFromContext(r.Context())
	milestone, err := call(actor, chi.URLParam(r, "milestone_id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, message, milestone)
}

// --- disputes ---

func (h *Handler) raiseDispute(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.RaiseDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", requestIDFromContext(r.Context()))
		return
	}
	dispute, err := h.service.RaiseDispute(r.Context(), actor, chi.URLParam(r, "milestone_id"), application.RaiseDisputeInput{
		Reason:   strings.TrimSpace(req.Reason),
		Evidence: mapDeliverables(req.Evidence),
	})
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusCreated, "dispute raised", dispute)
}

func (h *Handler) getDispute(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	dispute, evidence, err := h.service.GetDispute(r.Context(), actor, chi.URLParam(r, "dispute_id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{"dispute": dispute, "evidence": evidence})
}

func (h *Handler) payDisputeFee(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.PayDisputeFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", requestIDFromContext(r.Context()))
		return
	}
	dispute, err := h.service.PayDisputeFee(r.Context(), actor, chi.URLParam(r, "dispute_id"), strings.TrimSpace(req.Method))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "dispute fee paid", dispute)
}

func (h *Handler) submitEvidence(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.SubmitEvidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", requestIDFromContext(r.Context()))
		return
	}
	evidence, err := h.service.SubmitEvidence(r.Context(), actor, chi.URLParam(r, "dispute_id"), application.SubmitEvidenceInput{
		Filename:    strings.TrimSpace(req.Filename),
		FileURL:     strings.TrimSpace(req.FileURL),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusCreated, "evidence submitted", evidence)
}

func (h *Handler) proposeSelfResolution(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	dispute, err := h.service.ProposeSelfResolution(r.Context(), actor, chi.URLParam(r, "dispute_id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "self resolution opened", dispute)
}

func (h *Handler) escalateDispute(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.EscalateDisputeRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	dispute, err := h.service.EscalateDispute(r.Context(), actor, chi.URLParam(r, "dispute_id"), strings.TrimSpace(req.Reason))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "dispute escalated", dispute)
}

func (h *Handler) resolveDispute(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.ResolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", requestIDFromContext(r.Context()))
		return
	}
	dispute, err := h.service.ResolveDispute(r.Context(), actor, chi.URLParam(r, "dispute_id"), application.ResolveDisputeInput{
		Decision:      req.Decision,
		AmountToPayee: req.AmountToPayee,
		AmountToPayer: req.AmountToPayer,
		Reasoning:     strings.TrimSpace(req.Reasoning),
	})
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "dispute resolved", dispute)
}

// --- admin surface ---

func (h *Handler) assignMediator(w http.ResponseWriter, r *http.Request) {
	h.assignResolver(w, r, h.service.AssignMediator, "mediator assigned")
}

func (h *Handler) assignArbitrator(w http.ResponseWriter, r *http.Request) {
	h.assignResolver(w, r, h.service.AssignArbitrator, "arbitrator assigned")
}

func (h *Handler) assignResolver(w http.ResponseWriter, r *http.Request, call func(ctx context.Context, actor application.Actor, disputeID, resolverID string) (domain.Dispute, error), message string) {
	actor := actorFromContext(r.Context())
	var req contracts.AssignResolverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", requestIDFromContext(r.Context()))
		return
	}
	dispute, err := call(r.Context(), actor, chi.URLParam(r, "dispute_id"), strings.TrimSpace(req.ResolverID))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, message, dispute)
}

func (h *Handler) attachAdvisory(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.AttachAdvisoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", requestIDFromContext(r.Context()))
		return
	}
	dispute, err := h.service.AttachAdvisory(r.Context(), actor, chi.URLParam(r, "dispute_id"), application.AttachAdvisoryInput{
		ConfidenceScore:    req.ConfidenceScore,
		KeyIssues:          req.KeyIssues,
		RecommendedToPayee: req.RecommendedToPayee,
		RecommendedToPayer: req.RecommendedToPayer,
		Summary:            strings.TrimSpace(req.Summary),
	})
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "advisory attached", dispute)
}

func toBalanceResponse(account domain.EscrowAccount) contracts.BalanceResponse {
	return contracts.BalanceResponse{
		ProjectID: account.ProjectID,
		Currency:  account.Currency,
		Total:     account.TotalAmount,
		Held:      account.HeldAmount,
		Released:  account.ReleasedAmount,
		Refunded:  account.RefundedAmount,
		Status:    account.Status,
	}
}

func mapDeliverables(in []contracts.DeliverableRef) []domain.Deliverable {
	out := make([]domain.Deliverable, 0, len(in))
	for _, item := range in {
		out = append(out, domain.Deliverable{Filename: strings.TrimSpace(item.Filename), FileURL: strings.TrimSpace(item.FileURL)})
	}
	return out
}
