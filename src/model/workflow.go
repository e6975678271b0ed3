package model

import "time"

const (
	WorkflowModeSpot    = "spot"
	WorkflowModeFutures = "futures"
)

const (
	WorkflowStatusDraft    = "draft"
	WorkflowStatusActive   = "active"
	WorkflowStatusInactive = "inactive"
	WorkflowStatusRetired  = "retired"
)

// Workflow is a user-configured recurring trading strategy. A workflow is
// re-reviewed on its ReviewInterval; each review may or may not produce a
// rebalance. Workflows are never hard-deleted while referenced by history,
// they are retired instead.
type Workflow struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"not null;index" json:"user_id"`
	Name   string `gorm:"size:255;not null" json:"name"`
	Mode   string `gorm:"size:20;not null;default:spot" json:"mode"`
	Status string `gorm:"size:20;not null;default:draft" json:"status"`

	CashToken       string        `gorm:"size:20;not null" json:"cash_token"`
	ReviewInterval  time.Duration `gorm:"not null" json:"review_interval"`
	ManualRebalance bool          `gorm:"not null;default:false" json:"manual_rebalance"`

	// Decision model and exchange credentials. Key/secret are stored
	// encrypted, see src/security.
	AgentModel    string `gorm:"size:100" json:"agent_model"`
	APIKeyHash    string `gorm:"column:api_key;type:text" json:"-"`
	APISecretHash string `gorm:"column:api_secret;type:text" json:"-"`

	// Futures defaults applied when an action does not carry its own.
	DefaultLeverage   int    `gorm:"default:1" json:"default_leverage"`
	DefaultMarginMode string `gorm:"size:20;default:cross" json:"default_margin_mode"`

	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	Tokens []WorkflowToken `gorm:"foreignKey:WorkflowID" json:"tokens,omitempty"`
}

func (Workflow) TableName() string {
	return "workflows"
}

// WorkflowToken is one tradable token of a workflow with its minimum
// allocation share.
type WorkflowToken struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	WorkflowID    uint    `gorm:"not null;index" json:"workflow_id"`
	Token         string  `gorm:"size:20;not null" json:"token"`
	MinAllocation float64 `gorm:"not null;default:0" json:"min_allocation"`

	Workflow *Workflow `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (WorkflowToken) TableName() string {
	return "workflow_tokens"
}

// IsDue reports whether the workflow is eligible for a scheduled review at
// the given instant.
func (w *Workflow) IsDue(now time.Time) bool {
	if w.Status != WorkflowStatusActive {
		return false
	}
	if w.LastReviewedAt == nil {
		return true
	}
	return now.Sub(*w.LastReviewedAt) >= w.ReviewInterval
}

// AllowsToken reports whether the token belongs to the workflow's configured
// set (cash token included).
func (w *Workflow) AllowsToken(token string) bool {
	if token == w.CashToken {
		return true
	}
	for i := range w.Tokens {
		if w.Tokens[i].Token == token {
			return true
		}
	}
	return false
}
