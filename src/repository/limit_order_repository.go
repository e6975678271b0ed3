package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"workflowengine/src/database"
	"workflowengine/src/model"
)

// LimitOrderRepository handles the spot order ledger. Rows are written at
// placement attempt time and mutated only by the reconciler or an explicit
// cancel path.
type LimitOrderRepository struct {
	db *gorm.DB
}

func NewLimitOrderRepository() *LimitOrderRepository {
	return &LimitOrderRepository{db: database.MainDB}
}

func (r *LimitOrderRepository) WithDB(db *gorm.DB) *LimitOrderRepository {
	return &LimitOrderRepository{db: db}
}

// Create inserts a new order attempt into the ledger.
func (r *LimitOrderRepository) Create(ctx context.Context, order *model.LimitOrder) error {
	err := r.db.WithContext(ctx).Create(order).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "LimitOrderRepository",
			"op":     "Create",
			"symbol": order.Symbol,
			"side":   order.Side,
			"status": order.Status,
		}).WithError(err).Error("Failed to create limit order")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "LimitOrderRepository",
		"op":       "Create",
		"order_id": order.OrderID,
		"symbol":   order.Symbol,
		"status":   order.Status,
	}).Info("Limit order created")

	return nil
}

// FindOpenByWorkflow returns the workflow's non-terminal orders, used by the
// cleanup step to cancel leftovers from the prior run.
func (r *LimitOrderRepository) FindOpenByWorkflow(ctx context.Context, workflowID uint) ([]model.LimitOrder, error) {
	var orders []model.LimitOrder

	err := r.db.WithContext(ctx).
		Where("workflow_id = ? AND status = ?", workflowID, model.LimitOrderStatusOpen).
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "LimitOrderRepository",
			"op":          "FindOpenByWorkflow",
			"workflow_id": workflowID,
		}).WithError(err).Error("Failed to fetch open orders")

		return nil, err
	}

	return orders, nil
}

// FindAllOpen returns every non-terminal order in the ledger. Terminal rows
// are excluded here, which is what makes repeated reconciler sweeps
// idempotent.
func (r *LimitOrderRepository) FindAllOpen(ctx context.Context) ([]model.LimitOrder, error) {
	var orders []model.LimitOrder

	err := r.db.WithContext(ctx).
		Where("status = ?", model.LimitOrderStatusOpen).
		Order("user_id, symbol").
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "LimitOrderRepository",
			"op":   "FindAllOpen",
		}).WithError(err).Error("Failed to fetch open orders")

		return nil, err
	}

	return orders, nil
}

// MarkFilled transitions the order to its filled terminal state.
func (r *LimitOrderRepository) MarkFilled(ctx context.Context, id uint) error {
	return r.updateStatus(ctx, id, model.LimitOrderStatusFilled, "")
}

// MarkCanceled transitions the order to its canceled terminal state with the
// given reason.
func (r *LimitOrderRepository) MarkCanceled(ctx context.Context, id uint, reason string) error {
	return r.updateStatus(ctx, id, model.LimitOrderStatusCanceled, reason)
}

func (r *LimitOrderRepository) updateStatus(ctx context.Context, id uint, status, reason string) error {
	updates := map[string]interface{}{"status": status}
	if reason != "" {
		updates["cancellation_reason"] = reason
	}

	err := r.db.WithContext(ctx).
		Model(&model.LimitOrder{}).
		Where("id = ?", id).
		Updates(updates).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "LimitOrderRepository",
			"op":     "updateStatus",
			"id":     id,
			"status": status,
		}).WithError(err).Error("Failed to update limit order status")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "LimitOrderRepository",
		"op":     "updateStatus",
		"id":     id,
		"status": status,
		"reason": reason,
	}).Info("Limit order status updated")

	return nil
}
