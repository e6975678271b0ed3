package model

import "time"

// RawLog stores the verbatim prompt/response pair of one decision agent call
// for audit. Review results reference it by id.
type RawLog struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	WorkflowID uint   `gorm:"not null;index" json:"workflow_id"`
	RequestID  string `gorm:"size:64;index" json:"request_id"`
	Prompt     string `gorm:"type:text" json:"prompt"`
	Response   string `gorm:"type:text" json:"response"`

	CreatedAt time.Time `json:"created_at"`
}

func (RawLog) TableName() string {
	return "raw_logs"
}
