package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"workflowengine/src/database"
	"workflowengine/src/model"
)

// ReviewResultRepository handles the immutable run-outcome records.
type ReviewResultRepository struct {
	db *gorm.DB
}

func NewReviewResultRepository() *ReviewResultRepository {
	return &ReviewResultRepository{db: database.MainDB}
}

func (r *ReviewResultRepository) WithDB(db *gorm.DB) *ReviewResultRepository {
	return &ReviewResultRepository{db: db}
}

// Create inserts the review result. Results are write-once; there is no
// update path.
func (r *ReviewResultRepository) Create(ctx context.Context, result *model.ReviewResult) error {
	err := r.db.WithContext(ctx).Create(result).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "ReviewResultRepository",
			"op":          "Create",
			"workflow_id": result.WorkflowID,
		}).WithError(err).Error("Failed to create review result")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":             "ReviewResultRepository",
		"op":               "Create",
		"workflow_id":      result.WorkflowID,
		"review_result_id": result.ID,
		"rebalance":        result.Rebalance,
	}).Info("Review result created")

	return nil
}

// FindLatestByWorkflow returns the most recent results, newest first. Used to
// give the decision agent recent history in the snapshot.
func (r *ReviewResultRepository) FindLatestByWorkflow(ctx context.Context, workflowID uint, limit int) ([]model.ReviewResult, error) {
	if limit <= 0 {
		limit = 10
	}

	var results []model.ReviewResult

	err := r.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("id DESC").
		Limit(limit).
		Find(&results).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "ReviewResultRepository",
			"op":          "FindLatestByWorkflow",
			"workflow_id": workflowID,
		}).WithError(err).Error("Failed to fetch review results")

		return nil, err
	}

	return results, nil
}
