package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"workflowengine/src/database"
	"workflowengine/src/model"
)

// WorkflowRepository handles read/write operations for workflows.
type WorkflowRepository struct {
	db *gorm.DB
}

func NewWorkflowRepository() *WorkflowRepository {
	return &WorkflowRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *WorkflowRepository) WithDB(db *gorm.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// FindByID fetches a workflow with its token set.
// Returns (nil, nil) if the workflow is not found.
func (r *WorkflowRepository) FindByID(ctx context.Context, id uint) (*model.Workflow, error) {
	var workflow model.Workflow

	err := r.db.WithContext(ctx).
		Preload("Tokens").
		First(&workflow, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":        "WorkflowRepository",
			"op":          "FindByID",
			"workflow_id": id,
		}).WithError(err).Error("Failed to fetch workflow")

		return nil, err
	}

	return &workflow, nil
}

// FindActive returns all active workflows with their token sets.
func (r *WorkflowRepository) FindActive(ctx context.Context) ([]model.Workflow, error) {
	var workflows []model.Workflow

	err := r.db.WithContext(ctx).
		Preload("Tokens").
		Where("status = ?", model.WorkflowStatusActive).
		Find(&workflows).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "WorkflowRepository",
			"op":   "FindActive",
		}).WithError(err).Error("Failed to fetch active workflows")

		return nil, err
	}

	return workflows, nil
}

// UpdateLastReviewedAt stamps the workflow after a completed run.
func (r *WorkflowRepository) UpdateLastReviewedAt(ctx context.Context, id uint, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.Workflow{}).
		Where("id = ?", id).
		Update("last_reviewed_at", at).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "WorkflowRepository",
			"op":          "UpdateLastReviewedAt",
			"workflow_id": id,
		}).WithError(err).Error("Failed to update last_reviewed_at")

		return err
	}

	return nil
}

// UpdateStatus transitions the workflow's status.
func (r *WorkflowRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	err := r.db.WithContext(ctx).
		Model(&model.Workflow{}).
		Where("id = ?", id).
		Update("status", status).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "WorkflowRepository",
			"op":          "UpdateStatus",
			"workflow_id": id,
			"status":      status,
		}).WithError(err).Error("Failed to update workflow status")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "WorkflowRepository",
		"op":          "UpdateStatus",
		"workflow_id": id,
		"status":      status,
	}).Info("Workflow status updated")

	return nil
}

// UpdateCredentials stores the encrypted key pair on the workflow.
func (r *WorkflowRepository) UpdateCredentials(ctx context.Context, id uint, keyHash, secretHash string) error {
	err := r.db.WithContext(ctx).
		Model(&model.Workflow{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"api_key":    keyHash,
			"api_secret": secretHash,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "WorkflowRepository",
			"op":          "UpdateCredentials",
			"workflow_id": id,
		}).WithError(err).Error("Failed to update workflow credentials")

		return err
	}

	return nil
}
