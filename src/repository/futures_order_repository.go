package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"workflowengine/src/database"
	"workflowengine/src/model"
)

// FuturesOrderRepository handles the futures action ledger. Rows are terminal
// at creation; there is no update path.
type FuturesOrderRepository struct {
	db *gorm.DB
}

func NewFuturesOrderRepository() *FuturesOrderRepository {
	return &FuturesOrderRepository{db: database.MainDB}
}

func (r *FuturesOrderRepository) WithDB(db *gorm.DB) *FuturesOrderRepository {
	return &FuturesOrderRepository{db: db}
}

func (r *FuturesOrderRepository) Create(ctx context.Context, order *model.FuturesOrder) error {
	err := r.db.WithContext(ctx).Create(order).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "FuturesOrderRepository",
			"op":     "Create",
			"symbol": order.Symbol,
			"kind":   order.ActionKind,
			"status": order.Status,
		}).WithError(err).Error("Failed to create futures order")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "FuturesOrderRepository",
		"op":     "Create",
		"symbol": order.Symbol,
		"kind":   order.ActionKind,
		"status": order.Status,
	}).Info("Futures order recorded")

	return nil
}

// FindByReviewResult returns all actions recorded for one run.
func (r *FuturesOrderRepository) FindByReviewResult(ctx context.Context, reviewResultID uint) ([]model.FuturesOrder, error) {
	var orders []model.FuturesOrder

	err := r.db.WithContext(ctx).
		Where("review_result_id = ?", reviewResultID).
		Order("id ASC").
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":             "FuturesOrderRepository",
			"op":               "FindByReviewResult",
			"review_result_id": reviewResultID,
		}).WithError(err).Error("Failed to fetch futures orders")

		return nil, err
	}

	return orders, nil
}
