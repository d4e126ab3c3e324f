package contracts

type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorResponse struct {
	Status string       `json:"status"`
	Error  ErrorPayload `json:"error"`
}

type CreateProjectRequest struct {
	ClientID     string `json:"client_id"`
	FreelancerID string `json:"freelancer_id,omitempty"`
	Title        string `json:"title"`
	Currency     string `json:"currency"`
	TotalBudget  int64  `json:"total_budget"`
	GraceDays    int    `json:"grace_days"`
	MaxRevisions int    `json:"max_revisions"`
}

type AddMilestoneRequest struct {
	Title    string `json:"title"`
	Amount   int64  `json:"amount"`
	Deadline string `json:"deadline,omitempty"`
}

type DeliverableRef struct {
	Filename string `json:"filename"`
	FileURL  string `json:"file_url"`
}

type SubmitMilestoneRequest struct {
	Notes        string           `json:"notes"`
	Deliverables []DeliverableRef `json:"deliverables,omitempty"`
}

type ApproveMilestoneRequest struct {
	Feedback string `json:"feedback,omitempty"`
}

type RequestRevisionRequest struct {
	Notes string `json:"notes"`
}

type RaiseDisputeRequest struct {
	Reason   string           `json:"reason"`
	Evidence []DeliverableRef `json:"evidence,omitempty"`
}

type DepositRequest struct {
	Amount int64  `json:"amount"`
	Method string `json:"method"`
}

type SubmitEvidenceRequest struct {
	Filename    string `json:"filename,omitempty"`
	FileURL     string `json:"file_url,omitempty"`
	Description string `json:"description"`
}

type PayDisputeFeeRequest struct {
	Method string `json:"method"`
}

type AssignResolverRequest struct {
	ResolverID string `json:"resolver_id"`
}

type EscalateDisputeRequest struct {
	Reason string `json:"reason"`
}

type ResolveDisputeRequest struct {
	Decision      string `json:"decision"`
	AmountToPayee int64  `json:"amount_to_payee"`
	AmountToPayer int64  `json:"amount_to_payer"`
	Reasoning     string `json:"reasoning"`
}

type AttachAdvisoryRequest struct {
	ConfidenceScore    float64  `json:"confidence_score"`
	KeyIssues          []string `json:"key_issues,omitempty"`
	RecommendedToPayee int64    `json:"recommended_to_payee"`
	RecommendedToPayer int64    `json:"recommended_to_payer"`
	Summary            string   `json:"summary"`
}

type BalanceResponse struct {
	ProjectID string `json:"project_id"`
	Currency  string `json:"currency"`
	Total     int64  `json:"total"`
	Held      int64  `json:"held"`
	Released  int64  `json:"released"`
	Refunded  int64  `json:"refunded"`
	Status    string `json:"status"`
}
