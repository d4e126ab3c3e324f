package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/johnthebelovedcoder/contralock/internal/domain"
	"github.com/johnthebelovedcoder/contralock/internal/ports"
	"gorm.io/gorm"
)

// Repositories bundles every Postgres-backed port behind one connection pool.
type Repositories struct {
	Projects     *ProjectRepository
	Milestones   *MilestoneRepository
	Accounts     *EscrowAccountRepository
	Transactions *TransactionRepository
	Disputes     *DisputeRepository
	Evidence     *EvidenceRepository
	Messages     *DisputeMessageRepository
	Transitions  *TransitionRepository
	Idempotency  *IdempotencyRepository
	Outbox       *OutboxRepository
	Tx           *TxRunner
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Projects:     &ProjectRepository{db: db},
		Milestones:   &MilestoneRepository{db: db},
		Accounts:     &EscrowAccountRepository{db: db},
		Transactions: &TransactionRepository{db: db},
		Disputes:     &DisputeRepository{db: db},
		Evidence:     &EvidenceRepository{db: db},
		Messages:     &DisputeMessageRepository{db: db},
		Transitions:  &TransitionRepository{db: db},
		Idempotency:  &IdempotencyRepository{db: db},
		Outbox:       &OutboxRepository{db: db},
		Tx:           &TxRunner{db: db},
	}
}

type txContextKey struct{}

// TxRunner runs a function inside one database transaction. The transactional
// handle travels in the context so every repository call inside the function
// joins the same transaction.
type TxRunner struct {
	db *gorm.DB
}

func (r *TxRunner) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txContextKey{}).(*gorm.DB); ok {
		// Already inside a transaction: join it.
		return fn(ctx)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txContextKey{}, tx))
	})
}

func dbFrom(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txContextKey{}).(*gorm.DB); ok {
		return tx
	}
	return fallback.WithContext(ctx)
}

// --- projects ---

type ProjectRepository struct{ db *gorm.DB }

func (r *ProjectRepository) Create(ctx context.Context, row domain.Project) error {
	rec := toProjectModel(row)
	if err := dbFrom(ctx, r.db).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *ProjectRepository) GetByID(ctx context.Context, projectID string) (domain.Project, error) {
	var rec projectModel
	if err := dbFrom(ctx, r.db).Where("project_id = ?", projectID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Project{}, domain.ErrNotFound
		}
		return domain.Project{}, err
	}
	return toDomainProject(rec), nil
}

func (r *ProjectRepository) Update(ctx context.Context, row domain.Project) error {
	rec := toProjectModel(row)
	res := dbFrom(ctx, r.db).Model(&projectModel{}).Where("project_id = ?", row.ProjectID).Updates(&rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// --- milestones ---

type MilestoneRepository struct{ db *gorm.DB }

func (r *MilestoneRepository) Create(ctx context.Context, row domain.Milestone) error {
	rec, err := toMilestoneModel(row)
	if err != nil {
		return err
	}
	if err := dbFrom(ctx, r.db).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *MilestoneRepository) GetByID(ctx context.Context, milestoneID string) (domain.Milestone, error) {
	var rec milestoneModel
	if err := dbFrom(ctx, r.db).Where("milestone_id = ?", milestoneID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Milestone{}, domain.ErrNotFound
		}
		return domain.Milestone{}, err
	}
	return toDomainMilestone(rec)
}

func (r *MilestoneRepository) Update(ctx context.Context, row domain.Milestone) error {
	rec, err := toMilestoneModel(row)
	if err != nil {
		return err
	}
	// Save with a full column list so cleared optional fields are not skipped
	// by gorm's zero-value handling.
	res := dbFrom(ctx, r.db).Model(&milestoneModel{}).Where("milestone_id = ?", row.MilestoneID).
		Select("*").Omit("milestone_id", "project_id", "created_at").Updates(&rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MilestoneRepository) ListByProjectID(ctx context.Context, projectID string) ([]domain.Milestone, error) {
	var recs []milestoneModel
	if err := dbFrom(ctx, r.db).Where("project_id = ?", projectID).Order("position asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Milestone, 0, len(recs))
	for _, rec := range recs {
		row, err := toDomainMilestone(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *MilestoneRepository) ListSubmitted(ctx context.Context) ([]domain.Milestone, error) {
	var recs []milestoneModel
	if err := dbFrom(ctx, r.db).
		Where("status = ?", domain.MilestoneStatusSubmitted).
		Order("auto_approval_deadline asc").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Milestone, 0, len(recs))
	for _, rec := range recs {
		row, err := toDomainMilestone(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// --- escrow accounts ---

type EscrowAccountRepository struct{ db *gorm.DB }

func (r *EscrowAccountRepository) Create(ctx context.Context, row domain.EscrowAccount) error {
	rec := toEscrowAccountModel(row)
	if err := dbFrom(ctx, r.db).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *EscrowAccountRepository) GetByProjectID(ctx context.Context, projectID string) (domain.EscrowAccount, error) {
	var rec escrowAccountModel
	if err := dbFrom(ctx, r.db).Where("project_id = ?", projectID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.EscrowAccount{}, domain.ErrNotFound
		}
		return domain.EscrowAccount{}, err
	}
	return toDomainEscrowAccount(rec), nil
}

func (r *EscrowAccountRepository) Update(ctx context.Context, row domain.EscrowAccount) error {
	rec := toEscrowAccountModel(row)
	res := dbFrom(ctx, r.db).Model(&escrowAccountModel{}).Where("account_id = ?", row.AccountID).
		Select("total_amount", "held_amount", "released_amount", "refunded_amount", "status", "updated_at").
		Updates(&rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// --- transactions ---

type TransactionRepository struct{ db *gorm.DB }

func (r *TransactionRepository) Append(ctx context.Context, row domain.Transaction) error {
	rec := toTransactionModel(row)
	if err := dbFrom(ctx, r.db).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *TransactionRepository) ListByProjectID(ctx context.Context, projectID string) ([]domain.Transaction, error) {
	var recs []transactionModel
	if err := dbFrom(ctx, r.db).Where("project_id = ?", projectID).Order("created_at asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Transaction, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toDomainTransaction(rec))
	}
	return out, nil
}

// --- disputes ---

type DisputeRepository struct{ db *gorm.DB }

func (r *DisputeRepository) Create(ctx context.Context, row domain.Dispute) error {
	rec, err := toDisputeModel(row)
	if err != nil {
		return err
	}
	if err := dbFrom(ctx, r.db).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *DisputeRepository) GetByID(ctx context.Context, disputeID string) (domain.Dispute, error) {
	var rec disputeModel
	if err := dbFrom(ctx, r.db).Where("dispute_id = ?", disputeID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Dispute{}, domain.ErrNotFound
		}
		return domain.Dispute{}, err
	}
	return toDomainDispute(rec)
}

func (r *DisputeRepository) GetOpenByMilestoneID(ctx context.Context, milestoneID string) (domain.Dispute, error) {
	var rec disputeModel
	if err := dbFrom(ctx, r.db).
		Where("milestone_id = ? AND phase <> ?", milestoneID, domain.DisputePhaseResolved).
		Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Dispute{}, domain.ErrNotFound
		}
		return domain.Dispute{}, err
	}
	return toDomainDispute(rec)
}

func (r *DisputeRepository) Update(ctx context.Context, row domain.Dispute) error {
	rec, err := toDisputeModel(row)
	if err != nil {
		return err
	}
	res := dbFrom(ctx, r.db).Model(&disputeModel{}).Where("dispute_id = ?", row.DisputeID).
		Select("*").Omit("dispute_id", "milestone_id", "project_id", "created_at").Updates(&rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// --- evidence ---

type EvidenceRepository struct{ db *gorm.DB }

func (r *EvidenceRepository) Append(ctx context.Context, row domain.Evidence) error {
	rec := evidenceModel{
		EvidenceID:  row.EvidenceID,
		DisputeID:   row.DisputeID,
		SubmittedBy: row.SubmittedBy,
		Filename:    row.Filename,
		FileURL:     row.FileURL,
		Description: row.Description,
		SubmittedAt: row.SubmittedAt,
	}
	return dbFrom(ctx, r.db).Create(&rec).Error
}

func (r *EvidenceRepository) ListByDisputeID(ctx context.Context, disputeID string) ([]domain.Evidence, error) {
	var recs []evidenceModel
	if err := dbFrom(ctx, r.db).Where("dispute_id = ?", disputeID).Order("submitted_at asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Evidence, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toDomainEvidence(rec))
	}
	return out, nil
}

// --- dispute messages ---

type DisputeMessageRepository struct{ db *gorm.DB }

func (r *DisputeMessageRepository) Append(ctx context.Context, row domain.DisputeMessage) error {
	rec := disputeMessageModel{
		MessageID:   row.MessageID,
		DisputeID:   row.DisputeID,
		SenderID:    row.SenderID,
		MessageBody: row.MessageBody,
		CreatedAt:   row.CreatedAt,
	}
	return dbFrom(ctx, r.db).Create(&rec).Error
}

func (r *DisputeMessageRepository) ListByDisputeID(ctx context.Context, disputeID string, limit int) ([]domain.DisputeMessage, error) {
	q := dbFrom(ctx, r.db).Where("dispute_id = ?", disputeID).Order("created_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []disputeMessageModel
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]domain.DisputeMessage, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toDomainDisputeMessage(rec))
	}
	return out, nil
}

// --- transition records ---

type TransitionRepository struct{ db *gorm.DB }

func (r *TransitionRepository) Append(ctx context.Context, row domain.TransitionRecord) error {
	rec := transitionModel{
		RecordID:   row.RecordID,
		EntityType: row.EntityType,
		EntityID:   row.EntityID,
		OldStatus:  row.OldStatus,
		NewStatus:  row.NewStatus,
		Actor:      row.Actor,
		OccurredAt: row.OccurredAt,
	}
	return dbFrom(ctx, r.db).Create(&rec).Error
}

func (r *TransitionRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.TransitionRecord, error) {
	var recs []transitionModel
	if err := dbFrom(ctx, r.db).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("occurred_at asc").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]domain.TransitionRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toDomainTransition(rec))
	}
	return out, nil
}

// --- idempotency ---

type IdempotencyRepository struct{ db *gorm.DB }

func (r *IdempotencyRepository) Get(ctx context.Context, key string, now time.Time) (*ports.IdempotencyRecord, error) {
	var rec idempotencyModel
	if err := dbFrom(ctx, r.db).
		Where("idempotency_key = ? AND expires_at > ?", key, now).
		Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := ports.IdempotencyRecord{
		Key:          rec.IdempotencyKey,
		RequestHash:  rec.RequestHash,
		ResponseCode: rec.ResponseCode,
		ExpiresAt:    rec.ExpiresAt,
	}
	if rec.ResponseBody != nil {
		out.ResponseBody = []byte(*rec.ResponseBody)
	}
	return &out, nil
}

func (r *IdempotencyRepository) Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error {
	rec := idempotencyModel{
		IdempotencyKey: key,
		RequestHash:    requestHash,
		ExpiresAt:      expiresAt,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := dbFrom(ctx, r.db).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			var existing idempotencyModel
			if lookupErr := dbFrom(ctx, r.db).Where("idempotency_key = ?", key).Take(&existing).Error; lookupErr == nil {
				if existing.RequestHash != requestHash {
					return domain.ErrIdempotencyConflict
				}
				return nil
			}
			return domain.ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

func (r *IdempotencyRepository) Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error {
	var body *string
	if len(responseBody) > 0 {
		raw := string(responseBody)
		body = &raw
	}
	return dbFrom(ctx, r.db).
		Model(&idempotencyModel{}).
		Where("idempotency_key = ?", key).
		Updates(map[string]any{
			"response_code": responseCode,
			"response_body": body,
			"updated_at":    at,
		}).Error
}

// --- outbox ---

type OutboxRepository struct{ db *gorm.DB }

func (r *OutboxRepository) Enqueue(ctx context.Context, record ports.OutboxRecord) error {
	rec, err := toOutboxModel(record)
	if err != nil {
		return err
	}
	return dbFrom(ctx, r.db).Create(&rec).Error
}

func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]ports.OutboxRecord, error) {
	q := dbFrom(ctx, r.db).Where("sent_at IS NULL").Order("created_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []outboxModel
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]ports.OutboxRecord, 0, len(recs))
	for _, rec := range recs {
		record, err := toPortsOutboxRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, recordID string, at time.Time) error {
	res := dbFrom(ctx, r.db).
		Model(&outboxModel{}).
		Where("record_id = ?", recordID).
		Update("sent_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
