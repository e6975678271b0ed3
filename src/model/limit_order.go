package model

import "time"

// LimitOrder status values. Filled and canceled are terminal; the only
// documented exception is a cancel that races a fill, which resolves to
// filled.
const (
	LimitOrderStatusOpen     = "open"
	LimitOrderStatusFilled   = "filled"
	LimitOrderStatusCanceled = "canceled"
)

// Cancellation reasons written by the builder and the cleanup step.
const (
	CancelReasonUnfilledInterval = "could not fill within interval"
	CancelReasonPriceDivergence  = "price divergence too high"
	CancelReasonInvalidPairToken = "invalid pair/token"
	CancelReasonBelowMinNotional = "below minimum notional"
	CancelReasonOrderIDMissing   = "order id missing"
	CancelReasonWorkflowInactive = "workflow no longer active"
)

// LimitOrder is one spot order attempt. A row is created at placement attempt
// time, including rejected attempts that never reached the exchange. Rows are
// mutated only by the reconciler or an explicit cancel path.
type LimitOrder struct {
	ID             uint `gorm:"primaryKey" json:"id"`
	UserID         uint `gorm:"not null;index" json:"user_id"`
	WorkflowID     uint `gorm:"not null;index" json:"workflow_id"`
	ReviewResultID uint `gorm:"not null;index" json:"review_result_id"`

	// OrderID is the exchange-assigned id, or a synthetic uuid when the
	// order was rejected before dispatch.
	OrderID string `gorm:"size:64;index" json:"order_id"`

	Symbol   string  `gorm:"size:50;not null" json:"symbol"`
	Token    string  `gorm:"size:20;not null" json:"token"`
	Side     string  `gorm:"size:10;not null" json:"side"`
	Price    float64 `gorm:"not null" json:"price"`
	Quantity float64 `gorm:"not null" json:"quantity"`

	Status             string `gorm:"size:20;not null;default:open;index" json:"status"`
	CancellationReason string `gorm:"size:255" json:"cancellation_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ReviewResult *ReviewResult `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (LimitOrder) TableName() string {
	return "limit_orders"
}

// Terminal reports whether the order is in a final state.
func (o *LimitOrder) Terminal() bool {
	return o.Status == LimitOrderStatusFilled || o.Status == LimitOrderStatusCanceled
}
