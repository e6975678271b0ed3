package futures

import (
	"context"
	"math"
	"strings"

	logger "github.com/sirupsen/logrus"

	"workflowengine/src/agent"
	"workflowengine/src/gateway"
	"workflowengine/src/metrics"
	"workflowengine/src/model"
)

const (
	minLeverage = 1
	maxLeverage = 125
)

// ReasonNoFuturesCapability is recorded on every action of a batch dispatched
// to a gateway without a futures module.
const ReasonNoFuturesCapability = "exchange does not support futures trading"

type futuresOrderRepository interface {
	Create(ctx context.Context, order *model.FuturesOrder) error
}

// Engine sequences futures actions against the exchange. Every action is
// recorded with a terminal status; per-action failures never affect siblings.
type Engine struct {
	orders futuresOrderRepository
}

func NewEngine(orders futuresOrderRepository) *Engine {
	return &Engine{orders: orders}
}

// Result counts the terminal outcomes of one batch.
type Result struct {
	Executed int
	Failed   int
	Skipped  int
}

// Execute runs the ordered action list. If the gateway lacks futures
// capability the whole batch is recorded failed with one uniform reason and
// zero exchange calls are made.
func (e *Engine) Execute(ctx context.Context, gw gateway.Gateway, workflow *model.Workflow, reviewResultID uint, actions []agent.FuturesAction) Result {
	result := Result{}

	futuresAPI, ok := gw.Futures()
	if !ok {
		logger.WithFields(map[string]interface{}{
			"workflow_id": workflow.ID,
			"exchange":    gw.Name(),
			"actions":     len(actions),
		}).Warn("futures batch dispatched to spot-only gateway")

		for i := range actions {
			e.record(ctx, workflow, reviewResultID, &actions[i], "", model.FuturesOrderStatusFailed, ReasonNoFuturesCapability)
			result.Failed++
		}
		return result
	}

	for i := range actions {
		action := &actions[i]

		if action.Kind == model.FuturesActionHold {
			e.record(ctx, workflow, reviewResultID, action, "", model.FuturesOrderStatusSkipped, "")
			result.Skipped++
			continue
		}

		if reason := validateAction(action); reason != "" {
			e.record(ctx, workflow, reviewResultID, action, "", model.FuturesOrderStatusFailed, reason)
			result.Failed++
			continue
		}

		orderID, err := e.dispatch(ctx, futuresAPI, workflow, action)
		if err != nil {
			e.record(ctx, workflow, reviewResultID, action, orderID, model.FuturesOrderStatusFailed, err.Error())
			result.Failed++
			continue
		}

		e.record(ctx, workflow, reviewResultID, action, orderID, model.FuturesOrderStatusExecuted, "")
		result.Executed++
	}

	logger.WithFields(map[string]interface{}{
		"workflow_id": workflow.ID,
		"executed":    result.Executed,
		"failed":      result.Failed,
		"skipped":     result.Skipped,
	}).Info("futures batch finished")

	return result
}

// validateAction runs entirely before any exchange call; a non-empty return
// is the failure reason.
func validateAction(action *agent.FuturesAction) string {
	if action.Symbol == "" {
		return "symbol is required"
	}
	if !isFinitePositive(action.Quantity) {
		return "quantity must be a finite positive number"
	}
	if strings.EqualFold(action.OrderType, "LIMIT") && action.Price == nil {
		return "limit order requires an explicit price"
	}
	if action.Price != nil && !isFinitePositive(*action.Price) {
		return "price must be a finite positive number"
	}
	if action.StopLoss != nil && !isFinitePositive(*action.StopLoss) {
		return "stop loss must be a finite positive number"
	}
	if action.TakeProfit != nil && !isFinitePositive(*action.TakeProfit) {
		return "take profit must be a finite positive number"
	}
	return ""
}

// dispatch performs the action's exchange sequence: leverage, position,
// stop-loss, take-profit. The first failing sub-step aborts the action;
// already applied sub-steps (e.g. a leverage change) are not rolled back.
func (e *Engine) dispatch(ctx context.Context, api gateway.FuturesService, workflow *model.Workflow, action *agent.FuturesAction) (string, error) {
	if action.Kind == model.FuturesActionOpen && workflow.DefaultMarginMode != "" {
		if err := api.SetMarginMode(ctx, action.Symbol, workflow.DefaultMarginMode); err != nil {
			return "", err
		}
	}

	if leverage, ok := resolveLeverage(workflow, action); ok {
		if err := api.SetLeverage(ctx, action.Symbol, leverage); err != nil {
			return "", err
		}
	}

	orderID, err := api.OpenPosition(ctx, gateway.PositionParams{
		Symbol:       action.Symbol,
		PositionSide: action.PositionSide,
		OrderType:    action.OrderType,
		Quantity:     action.Quantity,
		Price:        action.Price,
		ReduceOnly:   action.Kind == model.FuturesActionClose,
	})
	if err != nil {
		return "", err
	}

	if action.StopLoss != nil {
		if err := api.SetStopLoss(ctx, action.Symbol, action.PositionSide, *action.StopLoss); err != nil {
			return orderID, err
		}
	}

	if action.TakeProfit != nil {
		if err := api.SetTakeProfit(ctx, action.Symbol, action.PositionSide, *action.TakeProfit); err != nil {
			return orderID, err
		}
	}

	return orderID, nil
}

func (e *Engine) record(ctx context.Context, workflow *model.Workflow, reviewResultID uint, action *agent.FuturesAction, orderID, status, reason string) {
	order := &model.FuturesOrder{
		UserID:         workflow.UserID,
		WorkflowID:     workflow.ID,
		ReviewResultID: reviewResultID,
		OrderID:        orderID,
		Symbol:         action.Symbol,
		PositionSide:   action.PositionSide,
		ActionKind:     action.Kind,
		OrderType:      action.OrderType,
		Quantity:       action.Quantity,
		Price:          action.Price,
		StopLoss:       action.StopLoss,
		TakeProfit:     action.TakeProfit,
		Status:         status,
		FailureReason:  reason,
	}
	if leverage, ok := resolveLeverage(workflow, action); ok {
		order.Leverage = leverage
	}

	if err := e.orders.Create(ctx, order); err != nil {
		logger.WithError(err).WithFields(map[string]interface{}{
			"workflow_id": workflow.ID,
			"symbol":      action.Symbol,
			"kind":        action.Kind,
		}).Error("failed to record futures action outcome")
		return
	}

	metrics.Orders.WithLabelValues(model.WorkflowModeFutures, status).Inc()
}

// resolveLeverage picks the leverage to apply: the action's own when it
// carries one, else the workflow's futures default.
func resolveLeverage(workflow *model.Workflow, action *agent.FuturesAction) (int, bool) {
	if action.Leverage != nil {
		return ClampLeverage(*action.Leverage), true
	}
	if workflow.DefaultLeverage > 0 {
		return ClampLeverage(workflow.DefaultLeverage), true
	}
	return 0, false
}

// ClampLeverage bounds leverage to the exchange-safe range.
func ClampLeverage(leverage int) int {
	if leverage < minLeverage {
		return minLeverage
	}
	if leverage > maxLeverage {
		return maxLeverage
	}
	return leverage
}

func isFinitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
