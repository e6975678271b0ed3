package pipeline

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"workflowengine/src/gateway"
	"workflowengine/src/model"
)

// cleanupOpenOrders cancels orders still open from the prior run. Cancels run
// through a bounded pool to respect exchange rate limits; a failing cancel is
// logged and left for the reconciler, it never aborts the run.
func (p *Pipeline) cleanupOpenOrders(ctx context.Context, workflow *model.Workflow, gw gateway.Gateway) {
	spot, ok := gw.Spot()
	if !ok {
		return
	}

	open, err := p.limitOrders.FindOpenByWorkflow(ctx, workflow.ID)
	if err != nil {
		logger.WithError(err).WithField("workflow_id", workflow.ID).
			Warn("cleanup: failed to load open orders")
		return
	}
	if len(open) == 0 {
		return
	}

	logger.WithFields(map[string]interface{}{
		"workflow_id": workflow.ID,
		"open_orders": len(open),
		"step":        "cleanup",
	}).Info("canceling unfilled orders from prior run")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cleanupWorkers)

	for i := range open {
		order := open[i]
		g.Go(func() error {
			if err := spot.CancelOrder(gctx, order.Symbol, order.OrderID); err != nil {
				if !gateway.IsOrderNotFound(err) {
					logger.WithError(err).WithField("order_id", order.OrderID).
						Warn("cleanup: cancel failed, reconciler will retry")
					return nil
				}
				// Already gone on the exchange; fall through and close the
				// local row.
			}

			if err := p.limitOrders.MarkCanceled(gctx, order.ID, model.CancelReasonUnfilledInterval); err != nil {
				logger.WithError(err).WithField("order_id", order.OrderID).
					Warn("cleanup: failed to mark order canceled")
			}
			return nil
		})
	}

	_ = g.Wait()
}
