package postgres

import "time"

type projectModel struct {
	ProjectID    string    `gorm:"column:project_id;type:uuid;primaryKey"`
	ClientID     string    `gorm:"column:client_id"`
	FreelancerID string    `gorm:"column:freelancer_id"`
	Title        string    `gorm:"column:title"`
	Currency     string    `gorm:"column:currency"`
	TotalBudget  int64     `gorm:"column:total_budget"`
	GraceDays    int       `gorm:"column:grace_days"`
	MaxRevisions int       `gorm:"column:max_revisions"`
	Status       string    `gorm:"column:status"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (projectModel) TableName() string { return "projects" }

type milestoneModel struct {
	MilestoneID          string     `gorm:"column:milestone_id;type:uuid;primaryKey"`
	ProjectID            string     `gorm:"column:project_id;type:uuid"`
	Position             int        `gorm:"column:position"`
	Title                string     `gorm:"column:title"`
	Amount               int64      `gorm:"column:amount"`
	Status               string     `gorm:"column:status"`
	Deadline             *time.Time `gorm:"column:deadline"`
	Submission           *string    `gorm:"column:submission;type:jsonb"`
	RevisionCount        int        `gorm:"column:revision_count"`
	AutoApprovalDeadline *time.Time `gorm:"column:auto_approval_deadline"`
	ApprovalWarningSent  bool       `gorm:"column:approval_warning_sent"`
	CreatedAt            time.Time  `gorm:"column:created_at"`
	UpdatedAt            time.Time  `gorm:"column:updated_at"`
}

func (milestoneModel) TableName() string { return "milestones" }

type escrowAccountModel struct {
	AccountID      string    `gorm:"column:account_id;type:uuid;primaryKey"`
	ProjectID      string    `gorm:"column:project_id;type:uuid;uniqueIndex"`
	Currency       string    `gorm:"column:currency"`
	TotalAmount    int64     `gorm:"column:total_amount"`
	HeldAmount     int64     `gorm:"column:held_amount"`
	ReleasedAmount int64     `gorm:"column:released_amount"`
	RefundedAmount int64     `gorm:"column:refunded_amount"`
	Status         string    `gorm:"column:status"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (escrowAccountModel) TableName() string { return "escrow_accounts" }

type transactionModel struct {
	TransactionID    string     `gorm:"column:transaction_id;type:uuid;primaryKey"`
	ProjectID        string     `gorm:"column:project_id;type:uuid"`
	Type             string     `gorm:"column:type"`
	Amount           int64      `gorm:"column:amount"`
	Currency         string     `gorm:"column:currency"`
	FromParty        string     `gorm:"column:from_party"`
	ToParty          string     `gorm:"column:to_party"`
	MilestoneID      *string    `gorm:"column:milestone_id;type:uuid"`
	DisputeID        *string    `gorm:"column:dispute_id;type:uuid"`
	PlatformFee      int64      `gorm:"column:platform_fee"`
	ProcessingFee    int64      `gorm:"column:processing_fee"`
	GatewayReference string     `gorm:"column:gateway_reference"`
	Status           string     `gorm:"column:status"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
	CompletedAt      *time.Time `gorm:"column:completed_at"`
}

func (transactionModel) TableName() string { return "escrow_transactions" }

type disputeModel struct {
	DisputeID    string     `gorm:"column:dispute_id;type:uuid;primaryKey"`
	MilestoneID  string     `gorm:"column:milestone_id;type:uuid"`
	ProjectID    string     `gorm:"column:project_id;type:uuid"`
	RaisedBy     string     `gorm:"column:raised_by"`
	Reason       string     `gorm:"column:reason"`
	Phase        string     `gorm:"column:phase"`
	FeePaid      bool       `gorm:"column:fee_paid"`
	MediatorID   string     `gorm:"column:mediator_id"`
	ArbitratorID string     `gorm:"column:arbitrator_id"`
	Advisory     *string    `gorm:"column:advisory;type:jsonb"`
	Resolution   *string    `gorm:"column:resolution;type:jsonb"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
	ResolvedAt   *time.Time `gorm:"column:resolved_at"`
}

func (disputeModel) TableName() string { return "disputes" }

type evidenceModel struct {
	EvidenceID  string    `gorm:"column:evidence_id;type:uuid;primaryKey"`
	DisputeID   string    `gorm:"column:dispute_id;type:uuid"`
	SubmittedBy string    `gorm:"column:submitted_by"`
	Filename    string    `gorm:"column:filename"`
	FileURL     string    `gorm:"column:file_url"`
	Description string    `gorm:"column:description"`
	SubmittedAt time.Time `gorm:"column:submitted_at"`
}

func (evidenceModel) TableName() string { return "dispute_evidence" }

type disputeMessageModel struct {
	MessageID   string    `gorm:"column:message_id;type:uuid;primaryKey"`
	DisputeID   string    `gorm:"column:dispute_id;type:uuid"`
	SenderID    string    `gorm:"column:sender_id"`
	MessageBody string    `gorm:"column:message_body"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (disputeMessageModel) TableName() string { return "dispute_messages" }

type transitionModel struct {
	RecordID   string    `gorm:"column:record_id;type:uuid;primaryKey"`
	EntityType string    `gorm:"column:entity_type"`
	EntityID   string    `gorm:"column:entity_id"`
	OldStatus  string    `gorm:"column:old_status"`
	NewStatus  string    `gorm:"column:new_status"`
	Actor      string    `gorm:"column:actor"`
	OccurredAt time.Time `gorm:"column:occurred_at"`
}

func (transitionModel) TableName() string { return "transition_records" }

type idempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	ResponseCode   int       `gorm:"column:response_code"`
	ResponseBody   *string   `gorm:"column:response_body;type:jsonb"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (idempotencyModel) TableName() string { return "escrow_idempotency" }

type outboxModel struct {
	RecordID   string     `gorm:"column:record_id;type:uuid;primaryKey"`
	EventClass string     `gorm:"column:event_class"`
	Envelope   string     `gorm:"column:envelope;type:jsonb"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	SentAt     *time.Time `gorm:"column:sent_at"`
}

func (outboxModel) TableName() string { return "escrow_outbox" }
