package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"workflowengine/src/database"
	"workflowengine/src/model"
)

// RawLogRepository stores verbatim agent prompt/response pairs.
type RawLogRepository struct {
	db *gorm.DB
}

func NewRawLogRepository() *RawLogRepository {
	return &RawLogRepository{db: database.MainDB}
}

func (r *RawLogRepository) WithDB(db *gorm.DB) *RawLogRepository {
	return &RawLogRepository{db: db}
}

func (r *RawLogRepository) Create(ctx context.Context, rawLog *model.RawLog) error {
	err := r.db.WithContext(ctx).Create(rawLog).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "RawLogRepository",
			"op":          "Create",
			"workflow_id": rawLog.WorkflowID,
		}).WithError(err).Error("Failed to create raw log")

		return err
	}

	return nil
}
