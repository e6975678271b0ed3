package model

import "time"

// ReviewResult is the durable record of one pipeline execution. Exactly one
// row is written per run, whether the run succeeded or failed, and the row is
// immutable after creation.
type ReviewResult struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	WorkflowID uint `gorm:"not null;index" json:"workflow_id"`

	Rebalance   bool   `gorm:"not null;default:false" json:"rebalance"`
	ShortReport string `gorm:"type:text" json:"short_report"`
	Error       string `gorm:"type:text" json:"error,omitempty"`
	RawLogID    *uint  `gorm:"index" json:"raw_log_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	Workflow *Workflow `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	RawLog   *RawLog   `gorm:"constraint:OnDelete:SET NULL" json:"raw_log,omitempty"`
}

func (ReviewResult) TableName() string {
	return "review_results"
}
