package domain

import (
	"strings"
	"time"
)

const (
	ProjectStatusDraft     = "draft"
	ProjectStatusActive    = "active"
	ProjectStatusCompleted = "completed"
	ProjectStatusCancelled = "cancelled"
)

type Project struct {
	ProjectID    string     `json:"project_id"`
	ClientID     string     `json:"client_id"`
	FreelancerID string     `json:"freelancer_id,omitempty"`
	Title        string     `json:"title"`
	Currency     string     `json:"currency"`
	TotalBudget  int64      `json:"total_budget"`
	GraceDays    int        `json:"grace_days"`
	MaxRevisions int        `json:"max_revisions"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func NormalizeCurrency(raw string) string {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if len(c) != 3 {
		return ""
	}
	return c
}

// PartyRole reports which side of the project the subject is on.
func (p Project) PartyRole(subjectID string) string {
	switch subjectID {
	case p.ClientID:
		return "client"
	case p.FreelancerID:
		return "freelancer"
	default:
		return ""
	}
}

func (p Project) HasParty(subjectID string) bool { return p.PartyRole(subjectID) != "" }
