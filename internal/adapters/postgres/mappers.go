package postgres

import (
	"encoding/json"
	"errors"

	"github.com/johnthebelovedcoder/contralock/internal/contracts"
	"github.com/johnthebelovedcoder/contralock/internal/domain"
	"github.com/johnthebelovedcoder/contralock/internal/ports"
	"gorm.io/gorm"
)

func toProjectModel(row domain.Project) projectModel {
	return projectModel{
		ProjectID:    row.ProjectID,
		ClientID:     row.ClientID,
		FreelancerID: row.FreelancerID,
		Title:        row.Title,
		Currency:     row.Currency,
		TotalBudget:  row.TotalBudget,
		GraceDays:    row.GraceDays,
		MaxRevisions: row.MaxRevisions,
		Status:       row.Status,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func toDomainProject(rec projectModel) domain.Project {
	return domain.Project{
		ProjectID:    rec.ProjectID,
		ClientID:     rec.ClientID,
		FreelancerID: rec.FreelancerID,
		Title:        rec.Title,
		Currency:     rec.Currency,
		TotalBudget:  rec.TotalBudget,
		GraceDays:    rec.GraceDays,
		MaxRevisions: rec.MaxRevisions,
		Status:       rec.Status,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func toMilestoneModel(row domain.Milestone) (milestoneModel, error) {
	rec := milestoneModel{
		MilestoneID:          row.MilestoneID,
		ProjectID:            row.ProjectID,
		Position:             row.Position,
		Title:                row.Title,
		Amount:               row.Amount,
		Status:               row.Status,
		Deadline:             row.Deadline,
		RevisionCount:        row.RevisionCount,
		AutoApprovalDeadline: row.AutoApprovalDeadline,
		ApprovalWarningSent:  row.ApprovalWarningSent,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
	}
	if row.Submission != nil {
		raw, err := json.Marshal(row.Submission)
		if err != nil {
			return milestoneModel{}, err
		}
		s := string(raw)
		rec.Submission = &s
	}
	return rec, nil
}

func toDomainMilestone(rec milestoneModel) (domain.Milestone, error) {
	row := domain.Milestone{
		MilestoneID:          rec.MilestoneID,
		ProjectID:            rec.ProjectID,
		Position:             rec.Position,
		Title:                rec.Title,
		Amount:               rec.Amount,
		Status:               rec.Status,
		Deadline:             rec.Deadline,
		RevisionCount:        rec.RevisionCount,
		AutoApprovalDeadline: rec.AutoApprovalDeadline,
		ApprovalWarningSent:  rec.ApprovalWarningSent,
		CreatedAt:            rec.CreatedAt,
		UpdatedAt:            rec.UpdatedAt,
	}
	if rec.Submission != nil && *rec.Submission != "" {
		var sub domain.Submission
		if err := json.Unmarshal([]byte(*rec.Submission), &sub); err != nil {
			return domain.Milestone{}, err
		}
		row.Submission = &sub
	}
	return row, nil
}

func toEscrowAccountModel(row domain.EscrowAccount) escrowAccountModel {
	return escrowAccountModel{
		AccountID:      row.AccountID,
		ProjectID:      row.ProjectID,
		Currency:       row.Currency,
		TotalAmount:    row.TotalAmount,
		HeldAmount:     row.HeldAmount,
		ReleasedAmount: row.ReleasedAmount,
		RefundedAmount: row.RefundedAmount,
		Status:         row.Status,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

func toDomainEscrowAccount(rec escrowAccountModel) domain.EscrowAccount {
	return domain.EscrowAccount{
		AccountID:      rec.AccountID,
		ProjectID:      rec.ProjectID,
		Currency:       rec.Currency,
		TotalAmount:    rec.TotalAmount,
		HeldAmount:     rec.HeldAmount,
		ReleasedAmount: rec.ReleasedAmount,
		RefundedAmount: rec.RefundedAmount,
		Status:         rec.Status,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

func toTransactionModel(row domain.Transaction) transactionModel {
	return transactionModel{
		TransactionID:    row.TransactionID,
		ProjectID:        row.ProjectID,
		Type:             row.Type,
		Amount:           row.Amount,
		Currency:         row.Currency,
		FromParty:        row.FromParty,
		ToParty:          row.ToParty,
		MilestoneID:      optionalID(row.MilestoneID),
		DisputeID:        optionalID(row.DisputeID),
		PlatformFee:      row.Fees.PlatformFee,
		ProcessingFee:    row.Fees.ProcessingFee,
		GatewayReference: row.GatewayReference,
		Status:           row.Status,
		CreatedAt:        row.CreatedAt,
		CompletedAt:      row.CompletedAt,
	}
}

func toDomainTransaction(rec transactionModel) domain.Transaction {
	row := domain.Transaction{
		TransactionID:    rec.TransactionID,
		ProjectID:        rec.ProjectID,
		Type:             rec.Type,
		Amount:           rec.Amount,
		Currency:         rec.Currency,
		FromParty:        rec.FromParty,
		ToParty:          rec.ToParty,
		Fees:             domain.FeeBreakdown{PlatformFee: rec.PlatformFee, ProcessingFee: rec.ProcessingFee},
		GatewayReference: rec.GatewayReference,
		Status:           rec.Status,
		CreatedAt:        rec.CreatedAt,
		CompletedAt:      rec.CompletedAt,
	}
	if rec.MilestoneID != nil {
		row.MilestoneID = *rec.MilestoneID
	}
	if rec.DisputeID != nil {
		row.DisputeID = *rec.DisputeID
	}
	return row
}

func toDisputeModel(row domain.Dispute) (disputeModel, error) {
	rec := disputeModel{
		DisputeID:    row.DisputeID,
		MilestoneID:  row.MilestoneID,
		ProjectID:    row.ProjectID,
		RaisedBy:     row.RaisedBy,
		Reason:       row.Reason,
		Phase:        row.Phase,
		FeePaid:      row.FeePaid,
		MediatorID:   row.MediatorID,
		ArbitratorID: row.ArbitratorID,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		ResolvedAt:   row.ResolvedAt,
	}
	if row.Advisory != nil {
		raw, err := json.Marshal(row.Advisory)
		if err != nil {
			return disputeModel{}, err
		}
		s := string(raw)
		rec.Advisory = &s
	}
	if row.Resolution != nil {
		raw, err := json.Marshal(row.Resolution)
		if err != nil {
			return disputeModel{}, err
		}
		s := string(raw)
		rec.Resolution = &s
	}
	return rec, nil
}

func toDomainDispute(rec disputeModel) (domain.Dispute, error) {
	row := domain.Dispute{
		DisputeID:    rec.DisputeID,
		MilestoneID:  rec.MilestoneID,
		ProjectID:    rec.ProjectID,
		RaisedBy:     rec.RaisedBy,
		Reason:       rec.Reason,
		Phase:        rec.Phase,
		FeePaid:      rec.FeePaid,
		MediatorID:   rec.MediatorID,
		ArbitratorID: rec.ArbitratorID,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		ResolvedAt:   rec.ResolvedAt,
	}
	if rec.Advisory != nil && *rec.Advisory != "" {
		var adv domain.Advisory
		if err := json.Unmarshal([]byte(*rec.Advisory), &adv); err != nil {
			return domain.Dispute{}, err
		}
		row.Advisory = &adv
	}
	if rec.Resolution != nil && *rec.Resolution != "" {
		var res domain.Resolution
		if err := json.Unmarshal([]byte(*rec.Resolution), &res); err != nil {
			return domain.Dispute{}, err
		}
		row.Resolution = &res
	}
	return row, nil
}

func toDomainEvidence(rec evidenceModel) domain.Evidence {
	return domain.Evidence{
		EvidenceID:  rec.EvidenceID,
		DisputeID:   rec.DisputeID,
		SubmittedBy: rec.SubmittedBy,
		Filename:    rec.Filename,
		FileURL:     rec.FileURL,
		Description: rec.Description,
		SubmittedAt: rec.SubmittedAt,
	}
}

func toDomainDisputeMessage(rec disputeMessageModel) domain.DisputeMessage {
	return domain.DisputeMessage{
		MessageID:   rec.MessageID,
		DisputeID:   rec.DisputeID,
		SenderID:    rec.SenderID,
		MessageBody: rec.MessageBody,
		CreatedAt:   rec.CreatedAt,
	}
}

func toDomainTransition(rec transitionModel) domain.TransitionRecord {
	return domain.TransitionRecord{
		RecordID:   rec.RecordID,
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		OldStatus:  rec.OldStatus,
		NewStatus:  rec.NewStatus,
		Actor:      rec.Actor,
		OccurredAt: rec.OccurredAt,
	}
}

func toOutboxModel(record ports.OutboxRecord) (outboxModel, error) {
	raw, err := json.Marshal(record.Envelope)
	if err != nil {
		return outboxModel{}, err
	}
	return outboxModel{
		RecordID:   record.RecordID,
		EventClass: record.EventClass,
		Envelope:   string(raw),
		CreatedAt:  record.CreatedAt,
		SentAt:     record.SentAt,
	}, nil
}

func toPortsOutboxRecord(rec outboxModel) (ports.OutboxRecord, error) {
	var envelope contracts.EventEnvelope
	if err := json.Unmarshal([]byte(rec.Envelope), &envelope); err != nil {
		return ports.OutboxRecord{}, err
	}
	return ports.OutboxRecord{
		RecordID:   rec.RecordID,
		EventClass: rec.EventClass,
		Envelope:   envelope,
		CreatedAt:  rec.CreatedAt,
		SentAt:     rec.SentAt,
	}, nil
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
