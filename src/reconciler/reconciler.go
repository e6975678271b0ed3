package reconciler

import (
	"context"
	"fmt"
	"sync"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"workflowengine/src/gateway"
	"workflowengine/src/metrics"
	"workflowengine/src/model"
)

type limitOrderRepository interface {
	FindAllOpen(ctx context.Context) ([]model.LimitOrder, error)
	MarkFilled(ctx context.Context, id uint) error
	MarkCanceled(ctx context.Context, id uint, reason string) error
}

type workflowRepository interface {
	FindByID(ctx context.Context, id uint) (*model.Workflow, error)
}

// GatewayResolver builds a credentialed gateway for a workflow.
type GatewayResolver func(workflow *model.Workflow) (gateway.Gateway, error)

// Reconciler aligns the local order ledger with exchange-reported truth. It
// runs on its own interval, oblivious to pipeline runs, and picks up whatever
// they missed: crashed runs, process restarts, and fills the poll-only
// exchange API never pushed.
type Reconciler struct {
	orders    limitOrderRepository
	workflows workflowRepository
	resolve   GatewayResolver
	workers   int
}

func NewReconciler(orders limitOrderRepository, workflows workflowRepository, resolve GatewayResolver, workers int) *Reconciler {
	if workers <= 0 {
		workers = 4
	}
	return &Reconciler{orders: orders, workflows: workflows, resolve: resolve, workers: workers}
}

// Orders are grouped by (workflow, symbol), not (user, symbol): credentials
// live on the workflow, and two workflows of one user can trade the same
// symbol on different exchange accounts. Checking an order against the wrong
// account would misread "absent" as an implicit cancellation.
type groupKey struct {
	workflowID uint
	symbol     string
}

// Sweep performs one reconciliation pass. Per-order failures are logged and
// the order is left open for the next sweep; the sweep itself never aborts
// because of them. Terminal rows are excluded from the scan, so a second
// sweep over unchanged exchange state performs zero additional writes.
func (r *Reconciler) Sweep(ctx context.Context) error {
	metrics.ReconcilerSweeps.Inc()

	open, err := r.orders.FindAllOpen(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open orders: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	logger.WithField("open_orders", len(open)).Info("reconciliation sweep started")

	groups := make(map[groupKey][]model.LimitOrder)
	for i := range open {
		key := groupKey{workflowID: open[i].WorkflowID, symbol: open[i].Symbol}
		groups[key] = append(groups[key], open[i])
	}

	workflowCache := newWorkflowCache(r.workflows)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for key, orders := range groups {
		key, orders := key, orders
		g.Go(func() error {
			r.reconcileGroup(gctx, key, orders, workflowCache)
			return nil
		})
	}

	return g.Wait()
}

// reconcileGroup fetches the live open-order list once per (workflow, symbol)
// group, against the owning workflow's own account, and resolves every local
// order against it.
func (r *Reconciler) reconcileGroup(ctx context.Context, key groupKey, orders []model.LimitOrder, workflows *workflowCache) {
	log := logger.WithFields(map[string]interface{}{
		"workflow_id": key.workflowID,
		"symbol":      key.symbol,
	})

	workflow, err := workflows.get(ctx, key.workflowID)
	if err != nil || workflow == nil {
		log.WithError(err).Warn("cannot resolve workflow for group, leaving orders open")
		return
	}

	gw, err := r.resolve(workflow)
	if err != nil {
		log.WithError(err).Warn("cannot resolve gateway for group, leaving orders open")
		return
	}
	spot, ok := gw.Spot()
	if !ok {
		log.Warn("gateway lacks spot capability, leaving orders open")
		return
	}

	live, err := spot.FetchOpenOrders(ctx, key.symbol)
	if err != nil {
		log.WithError(err).Warn("failed to fetch live open orders, leaving group for next sweep")
		return
	}

	liveSet := make(map[string]bool, len(live))
	for i := range live {
		liveSet[live[i].OrderID] = true
	}

	for i := range orders {
		order := &orders[i]
		if liveSet[order.OrderID] {
			r.reconcileLive(ctx, spot, order, workflow)
		} else {
			r.reconcileAbsent(ctx, spot, order)
		}
	}
}

// reconcileLive handles an order still open on the exchange: if its owning
// workflow is no longer active the order is canceled. A cancel that races a
// fill resolves to filled, never canceled.
func (r *Reconciler) reconcileLive(ctx context.Context, spot gateway.SpotService, order *model.LimitOrder, workflow *model.Workflow) {
	if workflow.Status == model.WorkflowStatusActive {
		// Still legitimately open.
		return
	}

	if err := spot.CancelOrder(ctx, order.Symbol, order.OrderID); err != nil {
		// The cancel may have lost a race against a fill; ask the exchange.
		snapshot, fetchErr := spot.FetchOrder(ctx, order.Symbol, order.OrderID)
		if fetchErr == nil && snapshot.Status == gateway.OrderStatusFilled {
			r.markFilled(ctx, order)
			return
		}

		logger.WithError(err).WithField("order_id", order.OrderID).
			Warn("failed to cancel order of inactive workflow, leaving for next sweep")
		return
	}

	r.markCanceled(ctx, order, model.CancelReasonWorkflowInactive)
}

// reconcileAbsent handles an order missing from the live list: the specific
// order is fetched by id and its terminal state applied. Unknown statuses and
// fetch failures are never guessed, the order stays open for the next sweep.
func (r *Reconciler) reconcileAbsent(ctx context.Context, spot gateway.SpotService, order *model.LimitOrder) {
	snapshot, err := spot.FetchOrder(ctx, order.Symbol, order.OrderID)
	if err != nil {
		if gateway.IsOrderNotFound(err) {
			// The exchange no longer knows the order: implicit cancellation.
			r.markCanceled(ctx, order, "order not found on exchange")
			return
		}

		logger.WithError(err).WithField("order_id", order.OrderID).
			Warn("failed to fetch order status, leaving open for next sweep")
		return
	}

	switch {
	case snapshot.Status == gateway.OrderStatusFilled:
		r.markFilled(ctx, order)
	case gateway.ClosedStatuses[snapshot.Status]:
		r.markCanceled(ctx, order, snapshot.Status)
	default:
		logger.WithFields(map[string]interface{}{
			"order_id": order.OrderID,
			"status":   snapshot.Status,
		}).Info("order in unexpected non-terminal state, leaving open")
	}
}

func (r *Reconciler) markFilled(ctx context.Context, order *model.LimitOrder) {
	if err := r.orders.MarkFilled(ctx, order.ID); err != nil {
		return
	}
	metrics.ReconcilerTransitions.WithLabelValues(model.LimitOrderStatusFilled).Inc()
}

func (r *Reconciler) markCanceled(ctx context.Context, order *model.LimitOrder, reason string) {
	if err := r.orders.MarkCanceled(ctx, order.ID, reason); err != nil {
		return
	}
	metrics.ReconcilerTransitions.WithLabelValues(model.LimitOrderStatusCanceled).Inc()
}

// workflowCache memoizes workflow lookups within one sweep.
type workflowCache struct {
	mu        sync.Mutex
	repo      workflowRepository
	workflows map[uint]*model.Workflow
}

func newWorkflowCache(repo workflowRepository) *workflowCache {
	return &workflowCache{repo: repo, workflows: make(map[uint]*model.Workflow)}
}

func (c *workflowCache) get(ctx context.Context, id uint) (*model.Workflow, error) {
	c.mu.Lock()
	if workflow, ok := c.workflows[id]; ok {
		c.mu.Unlock()
		return workflow, nil
	}
	c.mu.Unlock()

	workflow, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.workflows[id] = workflow
	c.mu.Unlock()

	return workflow, nil
}
