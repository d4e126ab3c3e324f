package unit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/johnthebelovedcoder/contralock/internal/adapters/memory"
	"github.com/johnthebelovedcoder/contralock/internal/application"
	"github.com/johnthebelovedcoder/contralock/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc       *application.Service
	outbox    *memory.OutboxRepository
	gateway   *memory.Gateway
	publisher *memory.Publisher
	clock     *fakeClock
}

func newFixture() *fixture {
	store := memory.NewStore()
	gateway := memory.NewGateway()
	publisher := memory.NewPublisher()
	outbox := memory.NewOutboxRepository(store)
	clock := &fakeClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	svc := application.NewService(application.Dependencies{
		Projects:     memory.NewProjectRepository(store),
		Milestones:   memory.NewMilestoneRepository(store),
		Accounts:     memory.NewEscrowAccountRepository(store),
		Transactions: memory.NewTransactionRepository(store),
		Disputes:     memory.NewDisputeRepository(store),
		Evidence:     memory.NewEvidenceRepository(store),
		Messages:     memory.NewDisputeMessageRepository(store),
		Transitions:  memory.NewTransitionRepository(store),
		Idempotency:  memory.NewIdempotencyRepository(store),
		Outbox:       outbox,
		Gateway:      gateway,
		Tx:           memory.PassthroughTx{},
		DomainEvents: publisher,
		Analytics:    publisher,
		DLQ:          publisher,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:          clock.Now,
	})
	return &fixture{svc: svc, outbox: outbox, gateway: gateway, publisher: publisher, clock: clock}
}

const (
	clientID     = "user_client"
	freelancerID = "user_freelancer"
)

func clientActor(key string) application.Actor {
	return application.Actor{SubjectID: clientID, Role: "party", RequestID: "req-" + key, IdempotencyKey: key}
}

func freelancerActor(key string) application.Actor {
	return application.Actor{SubjectID: freelancerID, Role: "party", RequestID: "req-" + key, IdempotencyKey: key}
}

// fundedProject creates a project with the given budget and milestones, then
// deposits the full budget so every milestone amount is held in escrow.
func (f *fixture) fundedProject(t *testing.T, budget int64, maxRevisions int, amounts ...int64) (domain.Project, []domain.Milestone) {
	t.Helper()
	ctx := context.Background()
	project, err := f.svc.CreateProject(ctx, clientActor("idem-project"), application.CreateProjectInput{
		ClientID:     clientID,
		FreelancerID: freelancerID,
		Title:        "Logo redesign",
		Currency:     "usd",
		TotalBudget:  budget,
		GraceDays:    7,
		MaxRevisions: maxRevisions,
	})
	if err != nil {
		t.Fatalf("CreateProject error: %v", err)
	}
	milestones := make([]domain.Milestone, 0, len(amounts))
	for i, amount := range amounts {
		m, err := f.svc.AddMilestone(ctx, clientActor(uniq(t, "idem-milestone", i)), project.ProjectID, application.AddMilestoneInput{
			Title:  "Milestone",
			Amount: amount,
		})
		if err != nil {
			t.Fatalf("AddMilestone error: %v", err)
		}
		milestones = append(milestones, m)
	}
	if _, err := f.svc.Deposit(ctx, clientActor("idem-deposit"), project.ProjectID, application.DepositInput{Amount: budget, Method: "card"}); err != nil {
		t.Fatalf("Deposit error: %v", err)
	}
	return project, milestones
}

func uniq(t *testing.T, prefix string, i int) string {
	t.Helper()
	return prefix + "-" + string(rune('a'+i))
}

func TestDeposit_FundsEscrowAndChargesFees(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	project, _ := f.fundedProject(t, 500000, 2, 200000, 300000)

	balance, err := f.svc.GetBalance(ctx, clientActor("idem-balance"), project.ProjectID)
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if balance.Status != domain.EscrowStatusFunded {
		t.Fatalf("expected funded escrow, got %s", balance.Status)
	}
	if balance.Held != 500000 || balance.Total != 500000 || balance.Released != 0 || balance.Refunded != 0 {
		t.Fatalf("unexpected balance: %+v", balance)
	}
	if balance.Currency != "USD" {
		t.Fatalf("expected normalized currency, got %s", balance.Currency)
	}

	// Payer is charged the deposit plus additive fees:
	// platform 10% = 50000, processing 2.9% + 30 = 14530.
	if len(f.gateway.Charges) != 1 {
		t.Fatalf("expected one gateway charge, got %d", len(f.gateway.Charges))
	}
	if charge := f.gateway.Charges[0]; charge.PartyID != clientID || charge.Amount != 564530 {
		t.Fatalf("unexpected charge: %+v", charge)
	}

	transactions, err := f.svc.ListTransactions(ctx, clientActor("idem-txs"), project.ProjectID)
	if err != nil {
		t.Fatalf("ListTransactions error: %v", err)
	}
	if countByType(transactions, domain.TransactionTypeDeposit) != 1 || countByType(transactions, domain.TransactionTypeFee) != 1 {
		t.Fatalf("unexpected transaction mix: %+v", transactions)
	}
}

func TestDeposit_IdempotentReplay(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	project, err := f.svc.CreateProject(ctx, clientActor("idem-project"), application.CreateProjectInput{
		ClientID: clientID, FreelancerID: freelancerID, Title: "Site build",
		TotalBudget: 100000, GraceDays: 7, MaxRevisions: 2,
	})
	if err != nil {
		t.Fatalf("CreateProject error: %v", err)
	}

	actor := clientActor("idem-deposit-once")
	first, err := f.svc.Deposit(ctx, actor, project.ProjectID, application.DepositInput{Amount: 100000, Method: "card"})
	if err != nil {
		t.Fatalf("first Deposit error: %v", err)
	}
	replay, err := f.svc.Deposit(ctx, actor, project.ProjectID, application.DepositInput{Amount: 100000, Method: "card"})
	if err != nil {
		t.Fatalf("replayed Deposit error: %v", err)
	}
	if replay.TotalAmount != first.TotalAmount || replay.HeldAmount != first.HeldAmount {
		t.Fatalf("replay diverged: first %+v, replay %+v", first, replay)
	}
	if len(f.gateway.Charges) != 1 {
		t.Fatalf("expected a single charge across replays, got %d", len(f.gateway.Charges))
	}

	// Same key with a different payload is a conflict, not a replay.
	if _, err := f.svc.Deposit(ctx, actor, project.ProjectID, application.DepositInput{Amount: 50000, Method: "card"}); !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
}

func TestDeposit_OnlyClientMayFund(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	project, err := f.svc.CreateProject(ctx, clientActor("idem-project"), application.CreateProjectInput{
		ClientID: clientID, FreelancerID: freelancerID, Title: "Site build",
		TotalBudget: 100000, GraceDays: 7, MaxRevisions: 2,
	})
	if err != nil {
		t.Fatalf("CreateProject error: %v", err)
	}
	if _, err := f.svc.Deposit(ctx, freelancerActor("idem-bad-deposit"), project.ProjectID, application.DepositInput{Amount: 100000}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestApproveMilestone_ReleasesExactAmount(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	project, milestones := f.fundedProject(t, 500000, 2, 200000, 300000)
	milestone := milestones[0]

	if _, err := f.svc.StartMilestone(ctx, freelancerActor("idem-start"), milestone.MilestoneID); err != nil {
		t.Fatalf("StartMilestone error: %v", err)
	}
	if _, err := f.svc.SubmitMilestone(ctx, freelancerActor("idem-submit"), milestone.MilestoneID, application.SubmitMilestoneInput{
		Notes:        "first pass",
		Deliverables: []domain.Deliverable{{Filename: "logo.svg", FileURL: "https://files.example.com/logo.svg"}},
	}); err != nil {
		t.Fatalf("SubmitMilestone error: %v", err)
	}

	approved, err := f.svc.ApproveMilestone(ctx, clientActor("idem-approve"), milestone.MilestoneID, "looks great")
	if err != nil {
		t.Fatalf("ApproveMilestone error: %v", err)
	}
	if approved.Status != domain.MilestoneStatusApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}

	balance, err := f.svc.GetBalance(ctx, clientActor("idem-balance"), project.ProjectID)
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if balance.Held != 300000 || balance.Released != 200000 || balance.Refunded != 0 {
		t.Fatalf("unexpected balance after release: %+v", balance)
	}
	if balance.Held+balance.Released+balance.Refunded != balance.Total {
		t.Fatalf("ledger out of balance: %+v", balance)
	}
	if len(f.gateway.Payouts) != 1 || f.gateway.Payouts[0].PartyID != freelancerID || f.gateway.Payouts[0].Amount != 200000 {
		t.Fatalf("unexpected payouts: %+v", f.gateway.Payouts)
	}

	// A repeat approval with a fresh key hits the state machine, not the ledger.
	if _, err := f.svc.ApproveMilestone(ctx, clientActor("idem-approve-again"), milestone.MilestoneID, "again"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	transactions, err := f.svc.ListTransactions(ctx, clientActor("idem-txs"), project.ProjectID)
	if err != nil {
		t.Fatalf("ListTransactions error: %v", err)
	}
	if countByType(transactions, domain.TransactionTypeMilestoneRelease) != 1 {
		t.Fatalf("expected exactly one release, got %+v", transactions)
	}

	feed, err := f.svc.GetTransitionFeed(ctx, clientActor("idem-feed"), "milestone", milestone.MilestoneID)
	if err != nil {
		t.Fatalf("GetTransitionFeed error: %v", err)
	}
	if len(feed) != 3 {
		t.Fatalf("expected start/submit/approve transitions, got %d", len(feed))
	}
}

func TestRequestRevision_LimitEnforced(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, milestones := f.fundedProject(t, 100000, 1, 100000)
	milestone := milestones[0]

	if _, err := f.svc.StartMilestone(ctx, freelancerActor("idem-start"), milestone.MilestoneID); err != nil {
		t.Fatalf("StartMilestone error: %v", err)
	}
	if _, err := f.svc.SubmitMilestone(ctx, freelancerActor("idem-submit-1"), milestone.MilestoneID, application.SubmitMilestoneInput{Notes: "v1"}); err != nil {
		t.Fatalf("SubmitMilestone error: %v", err)
	}
	if _, err := f.svc.RequestRevision(ctx, clientActor("idem-revise-1"), milestone.MilestoneID, "wrong palette"); err != nil {
		t.Fatalf("first RequestRevision error: %v", err)
	}
	if _, err := f.svc.ResumeAfterRevision(ctx, freelancerActor("idem-resume"), milestone.MilestoneID); err != nil {
		t.Fatalf("ResumeAfterRevision error: %v", err)
	}
	if _, err := f.svc.SubmitMilestone(ctx, freelancerActor("idem-submit-2"), milestone.MilestoneID, application.SubmitMilestoneInput{Notes: "v2"}); err != nil {
		t.Fatalf("resubmit error: %v", err)
	}
	if _, err := f.svc.RequestRevision(ctx, clientActor("idem-revise-2"), milestone.MilestoneID, "still wrong"); !errors.Is(err, domain.ErrRevisionLimitExceeded) {
		t.Fatalf("expected revision limit error, got %v", err)
	}
}

func TestCancelMilestone_RefundsHeldFunds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	project, milestones := f.fundedProject(t, 300000, 2, 100000, 200000)

	cancelled, err := f.svc.CancelMilestone(ctx, clientActor("idem-cancel"), milestones[0].MilestoneID)
	if err != nil {
		t.Fatalf("CancelMilestone error: %v", err)
	}
	if cancelled.Status != domain.MilestoneStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	balance, err := f.svc.GetBalance(ctx, clientActor("idem-balance"), project.ProjectID)
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if balance.Held != 200000 || balance.Refunded != 100000 {
		t.Fatalf("unexpected balance after cancel: %+v", balance)
	}
	if balance.Held+balance.Released+balance.Refunded != balance.Total {
		t.Fatalf("ledger out of balance: %+v", balance)
	}
}

func TestFlushOutbox_RoutesByEventClass(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, milestones := f.fundedProject(t, 100000, 2, 100000)

	if _, err := f.svc.StartMilestone(ctx, freelancerActor("idem-start"), milestones[0].MilestoneID); err != nil {
		t.Fatalf("StartMilestone error: %v", err)
	}
	if err := f.svc.FlushOutbox(ctx); err != nil {
		t.Fatalf("FlushOutbox error: %v", err)
	}

	if len(f.publisher.Domain) == 0 {
		t.Fatal("expected domain events published")
	}
	if len(f.publisher.Stats) == 0 {
		t.Fatal("expected analytics events published")
	}
	seen := map[string]bool{}
	for _, env := range f.publisher.Domain {
		seen[env.EventType] = true
	}
	if !seen[domain.EventEscrowDepositReceived] {
		t.Fatalf("expected deposit event on domain stream, got %v", seen)
	}
	pending, err := f.outbox.ListPending(ctx, 50)
	if err != nil {
		t.Fatalf("ListPending error: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected drained outbox, got %d pending", len(pending))
	}
}

// Hammers one submitted milestone with parallel approvals, some sharing an
// idempotency key and some with their own. Exactly one release may reach the
// ledger regardless of interleaving.
func TestApproveMilestone_ConcurrentAttemptsReleaseOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	project, milestones := f.fundedProject(t, 200000, 2, 200000)
	milestone := milestones[0]

	if _, err := f.svc.StartMilestone(ctx, freelancerActor("idem-start"), milestone.MilestoneID); err != nil {
		t.Fatalf("StartMilestone error: %v", err)
	}
	if _, err := f.svc.SubmitMilestone(ctx, freelancerActor("idem-submit"), milestone.MilestoneID, application.SubmitMilestoneInput{Notes: "done"}); err != nil {
		t.Fatalf("SubmitMilestone error: %v", err)
	}

	const attempts = 10
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "idem-approve-shared"
			if i%2 == 0 {
				key = uniq(t, "idem-approve", i)
			}
			actor := clientActor(key)
			_, errs[i] = f.svc.ApproveMilestone(ctx, actor, milestone.MilestoneID, "ship it")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInvalidTransition):
		default:
			t.Fatalf("attempt %d: unexpected error: %v", i, err)
		}
	}
	if succeeded == 0 {
		t.Fatal("expected at least one approval to succeed")
	}

	transactions, err := f.svc.ListTransactions(ctx, clientActor("idem-txs"), project.ProjectID)
	if err != nil {
		t.Fatalf("ListTransactions error: %v", err)
	}
	if countByType(transactions, domain.TransactionTypeMilestoneRelease) != 1 {
		t.Fatalf("expected exactly one release, got %+v", transactions)
	}
	if len(f.gateway.Payouts) != 1 {
		t.Fatalf("expected exactly one payout, got %d", len(f.gateway.Payouts))
	}
	balance, err := f.svc.GetBalance(ctx, clientActor("idem-balance"), project.ProjectID)
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if balance.Released != 200000 || balance.Held != 0 {
		t.Fatalf("unexpected balance: %+v", balance)
	}
	if balance.Held+balance.Released+balance.Refunded != balance.Total {
		t.Fatalf("ledger out of balance: %+v", balance)
	}
	approved, err := f.svc.GetMilestone(ctx, clientActor("idem-get"), milestone.MilestoneID)
	if err != nil {
		t.Fatalf("GetMilestone error: %v", err)
	}
	if approved.Status != domain.MilestoneStatusApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}
}

func TestStartMilestone_SameKeyRetryReplays(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, milestones := f.fundedProject(t, 100000, 2, 100000)
	milestone := milestones[0]

	actor := freelancerActor("idem-start-retry")
	first, err := f.svc.StartMilestone(ctx, actor, milestone.MilestoneID)
	if err != nil {
		t.Fatalf("StartMilestone error: %v", err)
	}
	replay, err := f.svc.StartMilestone(ctx, actor, milestone.MilestoneID)
	if err != nil {
		t.Fatalf("same-key retry error: %v", err)
	}
	if replay.Status != first.Status || replay.MilestoneID != first.MilestoneID {
		t.Fatalf("replay diverged: first %+v, replay %+v", first, replay)
	}

	feed, err := f.svc.GetTransitionFeed(ctx, actor, "milestone", milestone.MilestoneID)
	if err != nil {
		t.Fatalf("GetTransitionFeed error: %v", err)
	}
	if len(feed) != 1 {
		t.Fatalf("expected single recorded transition across retries, got %d", len(feed))
	}
}

func countByType(transactions []domain.Transaction, txType string) int {
	n := 0
	for _, tx := range transactions {
		if tx.Type == txType {
			n++
		}
	}
	return n
}
