// Package memory provides in-process adapters used by unit tests and local
// development. Every repository copies on read and write so callers never
// share mutable state with the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/johnthebelovedcoder/contralock/internal/contracts"
	"github.com/johnthebelovedcoder/contralock/internal/domain"
	"github.com/johnthebelovedcoder/contralock/internal/ports"
)

type Store struct {
	mu sync.RWMutex

	projects     map[string]domain.Project
	milestones   map[string]domain.Milestone
	accounts     map[string]domain.EscrowAccount // keyed by project_id
	transactions []domain.Transaction
	disputes     map[string]domain.Dispute
	evidence     []domain.Evidence
	messages     []domain.DisputeMessage
	transitions  []domain.TransitionRecord
	idempotency  map[string]ports.IdempotencyRecord
	outbox       []ports.OutboxRecord
}

func NewStore() *Store {
	return &Store{
		projects:    make(map[string]domain.Project),
		milestones:  make(map[string]domain.Milestone),
		accounts:    make(map[string]domain.EscrowAccount),
		disputes:    make(map[string]domain.Dispute),
		idempotency: make(map[string]ports.IdempotencyRecord),
	}
}

// --- projects ---

type ProjectRepository struct{ store *Store }

func NewProjectRepository(store *Store) *ProjectRepository { return &ProjectRepository{store: store} }

func (r *ProjectRepository) Create(_ context.Context, row domain.Project) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.projects[row.ProjectID]; ok {
		return domain.ErrConflict
	}
	r.store.projects[row.ProjectID] = row
	return nil
}

func (r *ProjectRepository) GetByID(_ context.Context, projectID string) (domain.Project, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	row, ok := r.store.projects[projectID]
	if !ok {
		return domain.Project{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *ProjectRepository) Update(_ context.Context, row domain.Project) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.projects[row.ProjectID]; !ok {
		return domain.ErrNotFound
	}
	r.store.projects[row.ProjectID] = row
	return nil
}

// --- milestones ---

type MilestoneRepository struct{ store *Store }

func NewMilestoneRepository(store *Store) *MilestoneRepository {
	return &MilestoneRepository{store: store}
}

func (r *MilestoneRepository) Create(_ context.Context, row domain.Milestone) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.milestones[row.MilestoneID]; ok {
		return domain.ErrConflict
	}
	r.store.milestones[row.MilestoneID] = row
	return nil
}

func (r *MilestoneRepository) GetByID(_ context.Context, milestoneID string) (domain.Milestone, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	row, ok := r.store.milestones[milestoneID]
	if !ok {
		return domain.Milestone{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *MilestoneRepository) Update(_ context.Context, row domain.Milestone) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.milestones[row.MilestoneID]; !ok {
		return domain.ErrNotFound
	}
	r.store.milestones[row.MilestoneID] = row
	return nil
}

func (r *MilestoneRepository) ListByProjectID(_ context.Context, projectID string) ([]domain.Milestone, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.Milestone
	for _, row := range r.store.milestones {
		if row.ProjectID == projectID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *MilestoneRepository) ListSubmitted(_ context.Context) ([]domain.Milestone, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.Milestone
	for _, row := range r.store.milestones {
		if row.Status == domain.MilestoneStatusSubmitted {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MilestoneID < out[j].MilestoneID })
	return out, nil
}

// --- escrow accounts ---

type EscrowAccountRepository struct{ store *Store }

func NewEscrowAccountRepository(store *Store) *EscrowAccountRepository {
	return &EscrowAccountRepository{store: store}
}

func (r *EscrowAccountRepository) Create(_ context.Context, row domain.EscrowAccount) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.accounts[row.ProjectID]; ok {
		return domain.ErrConflict
	}
	r.store.accounts[row.ProjectID] = row
	return nil
}

func (r *EscrowAccountRepository) GetByProjectID(_ context.Context, projectID string) (domain.EscrowAccount, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	row, ok := r.store.accounts[projectID]
	if !ok {
		return domain.EscrowAccount{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *EscrowAccountRepository) Update(_ context.Context, row domain.EscrowAccount) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.accounts[row.ProjectID]; !ok {
		return domain.ErrNotFound
	}
	r.store.accounts[row.ProjectID] = row
	return nil
}

// --- transactions ---

type TransactionRepository struct{ store *Store }

func NewTransactionRepository(store *Store) *TransactionRepository {
	return &TransactionRepository{store: store}
}

func (r *TransactionRepository) Append(_ context.Context, row domain.Transaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.transactions = append(r.store.transactions, row)
	return nil
}

func (r *TransactionRepository) ListByProjectID(_ context.Context, projectID string) ([]domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.Transaction
	for _, row := range r.store.transactions {
		if row.ProjectID == projectID {
			out = append(out, row)
		}
	}
	return out, nil
}

// --- disputes ---

type DisputeRepository struct{ store *Store }

func NewDisputeRepository(store *Store) *DisputeRepository { return &DisputeRepository{store: store} }

func (r *DisputeRepository) Create(_ context.Context, row domain.Dispute) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.disputes[row.DisputeID]; ok {
		return domain.ErrConflict
	}
	r.store.disputes[row.DisputeID] = row
	return nil
}

func (r *DisputeRepository) GetByID(_ context.Context, disputeID string) (domain.Dispute, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	row, ok := r.store.disputes[disputeID]
	if !ok {
		return domain.Dispute{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *DisputeRepository) GetOpenByMilestoneID(_ context.Context, milestoneID string) (domain.Dispute, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, row := range r.store.disputes {
		if row.MilestoneID == milestoneID && !domain.IsTerminalDisputePhase(row.Phase) {
			return row, nil
		}
	}
	return domain.Dispute{}, domain.ErrNotFound
}

func (r *DisputeRepository) Update(_ context.Context, row domain.Dispute) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.disputes[row.DisputeID]; !ok {
		return domain.ErrNotFound
	}
	r.store.disputes[row.DisputeID] = row
	return nil
}

// --- evidence ---

type EvidenceRepository struct{ store *Store }

func NewEvidenceRepository(store *Store) *EvidenceRepository { return &EvidenceRepository{store: store} }

func (r *EvidenceRepository) Append(_ context.Context, row domain.Evidence) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.evidence = append(r.store.evidence, row)
	return nil
}

func (r *EvidenceRepository) ListByDisputeID(_ context.Context, disputeID string) ([]domain.Evidence, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.Evidence
	for _, row := range r.store.evidence {
		if row.DisputeID == disputeID {
			out = append(out, row)
		}
	}
	return out, nil
}

// --- dispute messages ---

type DisputeMessageRepository struct{ store *Store }

func NewDisputeMessageRepository(store *Store) *DisputeMessageRepository {
	return &DisputeMessageRepository{store: store}
}

func (r *DisputeMessageRepository) Append(_ context.Context, row domain.DisputeMessage) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.messages = append(r.store.messages, row)
	return nil
}

func (r *DisputeMessageRepository) ListByDisputeID(_ context.Context, disputeID string, limit int) ([]domain.DisputeMessage, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.DisputeMessage
	for _, row := range r.store.messages {
		if row.DisputeID == disputeID {
			out = append(out, row)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// --- transition records ---

type TransitionRepository struct{ store *Store }

func NewTransitionRepository(store *Store) *TransitionRepository {
	return &TransitionRepository{store: store}
}

func (r *TransitionRepository) Append(_ context.Context, row domain.TransitionRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.transitions = append(r.store.transitions, row)
	return nil
}

func (r *TransitionRepository) ListByEntity(_ context.Context, entityType, entityID string) ([]domain.TransitionRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.TransitionRecord
	for _, row := range r.store.transitions {
		if row.EntityType == entityType && row.EntityID == entityID {
			out = append(out, row)
		}
	}
	return out, nil
}

// --- idempotency ---

type IdempotencyRepository struct{ store *Store }

func NewIdempotencyRepository(store *Store) *IdempotencyRepository {
	return &IdempotencyRepository{store: store}
}

func (r *IdempotencyRepository) Get(_ context.Context, key string, now time.Time) (*ports.IdempotencyRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	row, ok := r.store.idempotency[key]
	if !ok || now.After(row.ExpiresAt) {
		return nil, nil
	}
	out := row
	return &out, nil
}

func (r *IdempotencyRepository) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if existing, ok := r.store.idempotency[key]; ok && existing.RequestHash != requestHash {
		return domain.ErrIdempotencyConflict
	}
	r.store.idempotency[key] = ports.IdempotencyRecord{Key: key, RequestHash: requestHash, ExpiresAt: expiresAt}
	return nil
}

func (r *IdempotencyRepository) Complete(_ context.Context, key string, responseCode int, responseBody []byte, _ time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	row, ok := r.store.idempotency[key]
	if !ok {
		return domain.ErrNotFound
	}
	row.ResponseCode = responseCode
	row.ResponseBody = append([]byte(nil), responseBody...)
	r.store.idempotency[key] = row
	return nil
}

// --- outbox ---

type OutboxRepository struct{ store *Store }

func NewOutboxRepository(store *Store) *OutboxRepository { return &OutboxRepository{store: store} }

func (r *OutboxRepository) Enqueue(_ context.Context, record ports.OutboxRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.outbox = append(r.store.outbox, record)
	return nil
}

func (r *OutboxRepository) ListPending(_ context.Context, limit int) ([]ports.OutboxRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []ports.OutboxRecord
	for _, row := range r.store.outbox {
		if row.SentAt == nil {
			out = append(out, row)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, recordID string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for i := range r.store.outbox {
		if r.store.outbox[i].RecordID == recordID {
			sent := at
			r.store.outbox[i].SentAt = &sent
			return nil
		}
	}
	return domain.ErrNotFound
}

// --- transaction runner ---

// PassthroughTx runs the function directly. Atomicity in memory comes from the
// service's per-project serialization.
type PassthroughTx struct{}

func (PassthroughTx) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- payment gateway ---

// Gateway simulates the charge/payout boundary and records every call so tests
// can assert exactly what money moved.
type Gateway struct {
	mu       sync.Mutex
	seq      int
	Charges  []GatewayCall
	Payouts  []GatewayCall
	FailNext error
}

type GatewayCall struct {
	PartyID   string
	Amount    int64
	Currency  string
	Reference string
}

func NewGateway() *Gateway { return &Gateway{} }

func (g *Gateway) ChargePayer(_ context.Context, payerID string, amount int64, currency, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailNext != nil {
		err := g.FailNext
		g.FailNext = nil
		return "", err
	}
	g.seq++
	ref := fmt.Sprintf("chg_%06d", g.seq)
	g.Charges = append(g.Charges, GatewayCall{PartyID: payerID, Amount: amount, Currency: currency, Reference: ref})
	return ref, nil
}

func (g *Gateway) PayOutToPayee(_ context.Context, payeeID string, amount int64, currency, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailNext != nil {
		err := g.FailNext
		g.FailNext = nil
		return "", err
	}
	g.seq++
	ref := fmt.Sprintf("pay_%06d", g.seq)
	g.Payouts = append(g.Payouts, GatewayCall{PartyID: payeeID, Amount: amount, Currency: currency, Reference: ref})
	return ref, nil
}

// --- publishers ---

// Publisher collects envelopes in memory for tests.
type Publisher struct {
	mu     sync.Mutex
	Domain []contracts.EventEnvelope
	Stats  []contracts.EventEnvelope
	Dead   []contracts.DLQRecord
}

func NewPublisher() *Publisher { return &Publisher{} }

func (p *Publisher) PublishDomain(_ context.Context, event contracts.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Domain = append(p.Domain, event)
	return nil
}

func (p *Publisher) PublishAnalytics(_ context.Context, event contracts.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Stats = append(p.Stats, event)
	return nil
}

func (p *Publisher) PublishDLQ(_ context.Context, record contracts.DLQRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Dead = append(p.Dead, record)
	return nil
}

// --- sweep lock ---

// SweepLock is a single-process lock with TTL semantics matching the redis
// adapter.
type SweepLock struct {
	mu    sync.Mutex
	held  map[string]time.Time
	nowFn func() time.Time
}

func NewSweepLock() *SweepLock {
	return &SweepLock{held: make(map[string]time.Time), nowFn: time.Now}
}

func (l *SweepLock) Acquire(_ context.Context, key string, ttlSeconds int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFn()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return false, nil
	}
	l.held[key] = now.Add(time.Duration(ttlSeconds) * time.Second)
	return true, nil
}

func (l *SweepLock) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
