package application

import (
	"log/slog"
	"time"

	"github.com/johnthebelovedcoder/contralock/internal/domain"
	"github.com/johnthebelovedcoder/contralock/internal/ports"
)

type Config struct {
	ServiceName          string
	DefaultCurrency      string
	IdempotencyTTL       time.Duration
	OutboxFlushBatchSize int
	SweepInterval        time.Duration
	WarningWindow        time.Duration
	Fees                 domain.FeeSchedule
}

type Actor struct {
	SubjectID      string
	Role           string
	RequestID      string
	IdempotencyKey string
}

// SystemActor is the scheduler's identity when it drives the same transition
// entry points a user would.
func SystemActor(requestID, idempotencyKey string) Actor {
	return Actor{SubjectID: "system", Role: "system", RequestID: requestID, IdempotencyKey: idempotencyKey}
}

func (a Actor) IsSystem() bool { return a.Role == "system" }

type CreateProjectInput struct {
	ClientID     string
	FreelancerID string
	Title        string
	Currency     string
	TotalBudget  int64
	GraceDays    int
	MaxRevisions int
}

type AddMilestoneInput struct {
	Title    string
	Amount   int64
	Deadline *time.Time
}

type SubmitMilestoneInput struct {
	Notes        string
	Deliverables []domain.Deliverable
}

type RaiseDisputeInput struct {
	Reason   string
	Evidence []domain.Deliverable
}

type DepositInput struct {
	Amount int64
	Method string
}

type SubmitEvidenceInput struct {
	Filename    string
	FileURL     string
	Description string
}

type ResolveDisputeInput struct {
	Decision      string
	AmountToPayee int64
	AmountToPayer int64
	Reasoning     string
}

type AttachAdvisoryInput struct {
	ConfidenceScore    float64
	KeyIssues          []string
	RecommendedToPayee int64
	RecommendedToPayer int64
	Summary            string
}

type Balance struct {
	ProjectID string `json:"project_id"`
	Currency  string `json:"currency"`
	Total     int64  `json:"total"`
	Held      int64  `json:"held"`
	Released  int64  `json:"released"`
	Refunded  int64  `json:"refunded"`
	Status    string `json:"status"`
}

type Service struct {
	cfg Config

	projects     ports.ProjectRepository
	milestones   ports.MilestoneRepository
	accounts     ports.EscrowAccountRepository
	transactions ports.TransactionRepository
	disputes     ports.DisputeRepository
	evidence     ports.EvidenceRepository
	messages     ports.DisputeMessageRepository
	transitions  ports.TransitionRepository
	idempotency  ports.IdempotencyRepository
	outbox       ports.OutboxRepository

	gateway ports.PaymentGateway
	tx      ports.TransactionRunner

	domainEvents ports.DomainPublisher
	analytics    ports.AnalyticsPublisher
	dlq          ports.DLQPublisher

	logger *slog.Logger
	locks  *projectLocks
	nowFn  func() time.Time
}

type Dependencies struct {
	Config Config

	Projects     ports.ProjectRepository
	Milestones   ports.MilestoneRepository
	Accounts     ports.EscrowAccountRepository
	Transactions ports.TransactionRepository
	Disputes     ports.DisputeRepository
	Evidence     ports.EvidenceRepository
	Messages     ports.DisputeMessageRepository
	Transitions  ports.TransitionRepository
	Idempotency  ports.IdempotencyRepository
	Outbox       ports.OutboxRepository

	Gateway ports.PaymentGateway
	Tx      ports.TransactionRunner

	DomainEvents ports.DomainPublisher
	Analytics    ports.AnalyticsPublisher
	DLQ          ports.DLQPublisher

	Logger *slog.Logger

	// Now overrides the service clock. Leave nil outside tests.
	Now func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "ContraLock-Escrow-Engine"
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 7 * 24 * time.Hour
	}
	if cfg.OutboxFlushBatchSize <= 0 {
		cfg.OutboxFlushBatchSize = 100
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.WarningWindow <= 0 {
		cfg.WarningWindow = 24 * time.Hour
	}
	if cfg.Fees.PlatformFeeBps == 0 {
		cfg.Fees.PlatformFeeBps = 1000
	}
	if cfg.Fees.ProcessingFeeBps == 0 {
		cfg.Fees.ProcessingFeeBps = 290
	}
	if cfg.Fees.ProcessingFeeFixed == 0 {
		cfg.Fees.ProcessingFeeFixed = 30
	}
	if cfg.Fees.DisputeFee == 0 {
		cfg.Fees.DisputeFee = 2500
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := deps.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:          cfg,
		projects:     deps.Projects,
		milestones:   deps.Milestones,
		accounts:     deps.Accounts,
		transactions: deps.Transactions,
		disputes:     deps.Disputes,
		evidence:     deps.Evidence,
		messages:     deps.Messages,
		transitions:  deps.Transitions,
		idempotency:  deps.Idempotency,
		outbox:       deps.Outbox,
		gateway:      deps.Gateway,
		tx:           deps.Tx,
		domainEvents: deps.DomainEvents,
		analytics:    deps.Analytics,
		dlq:          deps.DLQ,
		logger:       logger,
		locks:        newProjectLocks(),
		nowFn:        nowFn,
	}
}
