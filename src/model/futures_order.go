package model

import "time"

// FuturesOrder status values. Futures actions have no open state, every row
// is terminal at creation.
const (
	FuturesOrderStatusExecuted = "executed"
	FuturesOrderStatusFailed   = "failed"
	FuturesOrderStatusSkipped  = "skipped"
)

// Futures action kinds as produced by the decision agent.
const (
	FuturesActionOpen  = "OPEN"
	FuturesActionClose = "CLOSE"
	FuturesActionScale = "SCALE"
	FuturesActionHold  = "HOLD"
)

// FuturesOrder is one futures action attempt with its terminal outcome.
type FuturesOrder struct {
	ID             uint `gorm:"primaryKey" json:"id"`
	UserID         uint `gorm:"not null;index" json:"user_id"`
	WorkflowID     uint `gorm:"not null;index" json:"workflow_id"`
	ReviewResultID uint `gorm:"not null;index" json:"review_result_id"`

	OrderID      string   `gorm:"size:64;index" json:"order_id"`
	Symbol       string   `gorm:"size:50;not null" json:"symbol"`
	PositionSide string   `gorm:"size:10" json:"position_side"`
	ActionKind   string   `gorm:"size:10;not null" json:"action_kind"`
	OrderType    string   `gorm:"size:20" json:"order_type"`
	Quantity     float64  `json:"quantity"`
	Price        *float64 `json:"price,omitempty"`
	Leverage     int      `json:"leverage"`
	StopLoss     *float64 `json:"stop_loss,omitempty"`
	TakeProfit   *float64 `json:"take_profit,omitempty"`

	Status        string `gorm:"size:20;not null;index" json:"status"`
	FailureReason string `gorm:"size:255" json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	ReviewResult *ReviewResult `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (FuturesOrder) TableName() string {
	return "futures_orders"
}
