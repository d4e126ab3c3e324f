package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/johnthebelovedcoder/contralock/internal/contracts"
	"github.com/johnthebelovedcoder/contralock/internal/domain"
	"github.com/johnthebelovedcoder/contralock/internal/ports"
)

// FlushOutbox publishes pending outbox records to the class-appropriate
// publisher. Called by the outbox worker; delivery never blocks transitions.
func (s *Service) FlushOutbox(ctx context.Context) error {
	if s.outbox == nil {
		return nil
	}
	pending, err := s.outbox.ListPending(ctx, s.cfg.OutboxFlushBatchSize)
	if err != nil {
		return err
	}
	for _, rec := range pending {
		now := s.nowFn()
		switch rec.EventClass {
		case domain.CanonicalEventClassDomain, domain.CanonicalEventClassOps:
			if s.domainEvents != nil {
				if err := s.domainEvents.PublishDomain(ctx, rec.Envelope); err != nil {
					if s.dlq != nil {
						_ = s.dlq.PublishDLQ(ctx, contracts.DLQRecord{
							OriginalEvent: rec.Envelope,
							ErrorSummary:  err.Error(),
							RetryCount:    1,
							FirstSeenAt:   now,
							LastErrorAt:   now,
							SourceTopic:   rec.Envelope.EventType,
							DLQTopic:      "contralock-escrow.dlq",
							TraceID:       rec.Envelope.TraceID,
						})
					}
					return err
				}
			}
		case domain.CanonicalEventClassAnalyticsOnly:
			if s.analytics != nil {
				_ = s.analytics.PublishAnalytics(ctx, rec.Envelope)
			}
		default:
			return fmt.Errorf("unsupported event class: %s", rec.EventClass)
		}
		if err := s.outbox.MarkSent(ctx, rec.RecordID, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) enqueueEvent(ctx context.Context, eventType, traceID, partitionKey string, data any, now time.Time) error {
	if s.outbox == nil {
		return nil
	}
	if !domain.IsCanonicalEmittedEvent(eventType) {
		return domain.ErrInvalidInput
	}
	b, err := json.Marshal(data)
	if err != nil {
		return domain.ErrInvalidInput
	}
	if strings.TrimSpace(traceID) == "" {
		traceID = uuid.NewString()
	}
	env := contracts.EventEnvelope{
		EventID:          uuid.NewString(),
		EventType:        eventType,
		EventClass:       domain.CanonicalEventClass(eventType),
		OccurredAt:       now,
		PartitionKeyPath: domain.CanonicalPartitionKeyPath(eventType),
		PartitionKey:     partitionKey,
		SourceService:    s.cfg.ServiceName,
		TraceID:          traceID,
		SchemaVersion:    "v1",
		Data:             b,
	}
	return s.outbox.Enqueue(ctx, ports.OutboxRecord{RecordID: uuid.NewString(), EventClass: env.EventClass, Envelope: env, CreatedAt: now})
}

func (s *Service) enqueueMilestoneStatusChanged(ctx context.Context, eventType string, m domain.Milestone, oldStatus string, actor Actor, now time.Time) error {
	return s.enqueueEvent(ctx, eventType, actor.RequestID, m.MilestoneID, contracts.MilestoneStatusChangedPayload{
		MilestoneID: m.MilestoneID,
		ProjectID:   m.ProjectID,
		OldStatus:   oldStatus,
		NewStatus:   m.Status,
		Actor:       actor.SubjectID,
		OccurredAt:  now.UTC().Format(time.RFC3339),
	}, now)
}

func (s *Service) enqueueApprovalWarning(ctx context.Context, m domain.Milestone, now time.Time) error {
	var remaining int64
	if m.AutoApprovalDeadline != nil {
		remaining = int64(m.AutoApprovalDeadline.Sub(now).Hours())
	}
	deadline := ""
	if m.AutoApprovalDeadline != nil {
		deadline = m.AutoApprovalDeadline.UTC().Format(time.RFC3339)
	}
	return s.enqueueEvent(ctx, domain.EventMilestoneApprovalWarning, "", m.MilestoneID, contracts.ApprovalWarningPayload{
		MilestoneID:          m.MilestoneID,
		ProjectID:            m.ProjectID,
		AutoApprovalDeadline: deadline,
		HoursRemaining:       remaining,
	}, now)
}

func (s *Service) enqueueDepositReceived(ctx context.Context, account domain.EscrowAccount, amount int64, traceID string, now time.Time) error {
	return s.enqueueEvent(ctx, domain.EventEscrowDepositReceived, traceID, account.ProjectID, contracts.DepositReceivedPayload{
		ProjectID:   account.ProjectID,
		Amount:      amount,
		Currency:    account.Currency,
		HeldAmount:  account.HeldAmount,
		TotalAmount: account.TotalAmount,
		ReceivedAt:  now.UTC().Format(time.RFC3339),
	}, now)
}

func (s *Service) enqueueFundsReleased(ctx context.Context, account domain.EscrowAccount, milestoneID, disputeID string, amount int64, traceID string, now time.Time) error {
	return s.enqueueEvent(ctx, domain.EventEscrowFundsReleased, traceID, account.ProjectID, contracts.FundsReleasedPayload{
		ProjectID:   account.ProjectID,
		MilestoneID: milestoneID,
		DisputeID:   disputeID,
		Amount:      amount,
		HeldAmount:  account.HeldAmount,
		ReleasedAt:  now.UTC().Format(time.RFC3339),
	}, now)
}

func (s *Service) enqueueFundsRefunded(ctx context.Context, account domain.EscrowAccount, milestoneID, disputeID string, amount int64, reason, traceID string, now time.Time) error {
	return s.enqueueEvent(ctx, domain.EventEscrowFundsRefunded, traceID, account.ProjectID, contracts.FundsRefundedPayload{
		ProjectID:   account.ProjectID,
		MilestoneID: milestoneID,
		DisputeID:   disputeID,
		Amount:      amount,
		Reason:      reason,
		RefundedAt:  now.UTC().Format(time.RFC3339),
	}, now)
}

func (s *Service) enqueueDisputeCreated(ctx context.Context, d domain.Dispute, traceID string, now time.Time) error {
	return s.enqueueEvent(ctx, domain.EventDisputeCreated, traceID, d.DisputeID, contracts.DisputeCreatedPayload{
		DisputeID:   d.DisputeID,
		MilestoneID: d.MilestoneID,
		ProjectID:   d.ProjectID,
		RaisedBy:    d.RaisedBy,
		Reason:      d.Reason,
		CreatedAt:   now.UTC().Format(time.RFC3339),
	}, now)
}

func (s *Service) enqueueDisputeFeePaid(ctx context.Context, d domain.Dispute, amount int64, traceID string, now time.Time) error {
	return s.enqueueEvent(ctx, domain.EventDisputeFeePaid, traceID, d.DisputeID, contracts.DisputeFeePaidPayload{
		DisputeID: d.DisputeID,
		PaidBy:    d.RaisedBy,
		Amount:    amount,
		PaidAt:    now.UTC().Format(time.RFC3339),
	}, now)
}

func (s *Service) enqueueDisputeEvidence(ctx context.Context, ev domain.Evidence, traceID string, now time.Time) error {
	return s.enqueueEvent(ctx, domain.EventDisputeEvidenceSubmitted, traceID, ev.DisputeID, contracts.DisputeEvidencePayload{
		DisputeID:   ev.DisputeID,
		EvidenceID:  ev.EvidenceID,
		SubmittedBy: ev.SubmittedBy,
		SubmittedAt: now.UTC().Format(time.RFC3339),
	}, now)
}

func (s *Service) enqueueDisputeEscalated(ctx context.Context, d domain.Dispute, actor Actor, reason string, now time.Time) error {
	return s.enqueueEvent(ctx, domain.EventDisputeEscalated, actor.RequestID, d.DisputeID, contracts.DisputeEscalatedPayload{
		DisputeID:   d.DisputeID,
		EscalatedBy: actor.SubjectID,
		Reason:      reason,
		EscalatedAt: now.UTC().Format(time.RFC3339),
	}, now)
}

func (s *Service) enqueueDisputeResolved(ctx context.Context, d domain.Dispute, traceID string, now time.Time) error {
	if d.Resolution == nil {
		return nil
	}
	return s.enqueueEvent(ctx, domain.EventDisputeResolved, traceID, d.DisputeID, contracts.DisputeResolvedPayload{
		DisputeID:     d.DisputeID,
		MilestoneID:   d.MilestoneID,
		Decision:      d.Resolution.Decision,
		AmountToPayee: d.Resolution.AmountToPayee,
		AmountToPayer: d.Resolution.AmountToPayer,
		ResolvedBy:    d.Resolution.ResolvedBy,
		ResolvedAt:    now.UTC().Format(time.RFC3339),
	}, now)
}
