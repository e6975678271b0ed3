package scheduler

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"

	"workflowengine/src/guard"
	"workflowengine/src/model"
	"workflowengine/src/pipeline"
	"workflowengine/src/reconciler"
)

type workflowSource interface {
	FindActive(ctx context.Context) ([]model.Workflow, error)
}

// Scheduler drives the two background loops: the review tick that starts
// pipelines for due workflows and the reconciliation tick that sweeps the
// order ledger. The loops are independent; neither waits for the other.
type Scheduler struct {
	workflows  workflowSource
	pipeline   *pipeline.Pipeline
	reconciler *reconciler.Reconciler

	reviewTick    time.Duration
	reconcileTick time.Duration
	now           func() time.Time
}

func New(workflows workflowSource, p *pipeline.Pipeline, r *reconciler.Reconciler, config Config) *Scheduler {
	return &Scheduler{
		workflows:     workflows,
		pipeline:      p,
		reconciler:    r,
		reviewTick:    config.ReviewTick,
		reconcileTick: config.ReconcileTick,
		now:           time.Now,
	}
}

// Start runs both loops until the context is canceled. It blocks.
func (s *Scheduler) Start(ctx context.Context) {
	logger.WithFields(map[string]interface{}{
		"review_tick":    s.reviewTick.String(),
		"reconcile_tick": s.reconcileTick.String(),
	}).Info("scheduler started")

	go s.reconcileLoop(ctx)
	s.reviewLoop(ctx)
}

// TriggerWorkflow starts a review outside the schedule. Admission is
// synchronous: an unknown workflow or a run already in flight is surfaced to
// the caller, execution then proceeds in the background.
func (s *Scheduler) TriggerWorkflow(ctx context.Context, workflowID uint) error {
	return s.pipeline.RunAsync(ctx, workflowID)
}

func (s *Scheduler) reviewLoop(ctx context.Context) {
	ticker := time.NewTicker(s.reviewTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("review loop stopped")
			return
		case <-ticker.C:
			s.reviewDueWorkflows(ctx)
		}
	}
}

// reviewDueWorkflows starts one pipeline goroutine per due workflow. A
// workflow whose previous run is still in flight is skipped silently; its
// guard rejects the new run.
func (s *Scheduler) reviewDueWorkflows(ctx context.Context) {
	workflows, err := s.workflows.FindActive(ctx)
	if err != nil {
		logger.WithError(err).Error("failed to list active workflows")
		return
	}

	now := s.now()
	for i := range workflows {
		workflow := workflows[i]
		if !workflow.IsDue(now) {
			continue
		}

		go func() {
			err := s.pipeline.Run(ctx, workflow.ID)
			if err != nil && !errors.Is(err, guard.ErrAlreadyRunning) {
				logger.WithError(err).WithField("workflow_id", workflow.ID).
					Error("scheduled review failed")
			}
		}()
	}
}

func (s *Scheduler) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(s.reconcileTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("reconcile loop stopped")
			return
		case <-ticker.C:
			if err := s.reconciler.Sweep(ctx); err != nil {
				logger.WithError(err).Error("reconciliation sweep failed")
			}
		}
	}
}
