package rebalance

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"workflowengine/src/agent"
	"workflowengine/src/gateway"
	"workflowengine/src/metrics"
	"workflowengine/src/model"
)

// executionSpread is the fixed maker-favorable adjustment applied to the
// market price when no limit price is given: a BUY bids 0.1% under market, a
// SELL asks 0.1% over.
var executionSpread = decimal.NewFromFloat(0.001)

type orderRepository interface {
	Create(ctx context.Context, order *model.LimitOrder) error
}

// PriceSource resolves the current market price for a symbol. The advisory
// cache satisfies it; a miss falls back to the gateway ticker.
type PriceSource interface {
	Get(symbol string) (float64, bool)
}

// Builder converts abstract rebalance intents into exchange-safe spot limit
// orders. Each intent is processed independently: one rejection never blocks
// the others.
type Builder struct {
	metadata gateway.MetadataService
	spot     gateway.SpotService
	prices   PriceSource
	orders   orderRepository
}

func NewBuilder(metadata gateway.MetadataService, spot gateway.SpotService, prices PriceSource, orders orderRepository) *Builder {
	return &Builder{metadata: metadata, spot: spot, prices: prices, orders: orders}
}

// Result summarizes one batch.
type Result struct {
	Placed   int
	Rejected int
}

// Build sizes, validates and dispatches every intent, persisting one ledger
// row per intent whether it reached the exchange or not.
func (b *Builder) Build(ctx context.Context, workflow *model.Workflow, reviewResultID uint, intents []agent.OrderIntent) Result {
	result := Result{}

	for i := range intents {
		order := b.buildOne(ctx, workflow, reviewResultID, &intents[i])

		if err := b.orders.Create(ctx, order); err != nil {
			// The ledger write failed; nothing more can be recorded for
			// this intent.
			result.Rejected++
			continue
		}

		metrics.Orders.WithLabelValues(model.WorkflowModeSpot, order.Status).Inc()

		if order.Status == model.LimitOrderStatusOpen {
			result.Placed++
		} else {
			result.Rejected++
		}
	}

	return result
}

func (b *Builder) buildOne(ctx context.Context, workflow *model.Workflow, reviewResultID uint, intent *agent.OrderIntent) *model.LimitOrder {
	log := logger.WithFields(map[string]interface{}{
		"workflow_id": workflow.ID,
		"pair":        intent.Pair,
		"side":        intent.Side,
	})

	order := &model.LimitOrder{
		UserID:         workflow.UserID,
		WorkflowID:     workflow.ID,
		ReviewResultID: reviewResultID,
		OrderID:        uuid.NewString(),
		Symbol:         intent.Pair,
		Token:          intent.Token,
		Side:           intent.Side,
		Status:         model.LimitOrderStatusOpen,
	}

	reject := func(reason string) *model.LimitOrder {
		log.WithField("reason", reason).Warn("rebalance order rejected")
		order.Status = model.LimitOrderStatusCanceled
		order.CancellationReason = reason
		return order
	}

	market, err := b.metadata.FetchMarket(ctx, intent.Pair)
	if err != nil {
		return reject(exchangeReason(err))
	}

	marketPrice, err := b.marketPrice(ctx, intent.Pair)
	if err != nil {
		return reject(exchangeReason(err))
	}
	if marketPrice.LessThanOrEqual(decimal.Zero) {
		return reject("market price unavailable")
	}

	price, diverged := resolvePrice(intent, marketPrice)
	if diverged {
		return reject(model.CancelReasonPriceDivergence)
	}

	quantity, ok := resolveQuantity(intent, market, price)
	if !ok {
		return reject(model.CancelReasonInvalidPairToken)
	}

	if quantity.Mul(price).LessThan(decimal.NewFromFloat(market.MinNotional)) {
		return reject(model.CancelReasonBelowMinNotional)
	}

	// Truncate, never round up, so the order cannot exceed the available
	// balance or the symbol's precision.
	price = price.Truncate(market.PricePrecision)
	quantity = quantity.Truncate(market.QuantityPrecision)
	if quantity.LessThanOrEqual(decimal.Zero) {
		return reject(model.CancelReasonBelowMinNotional)
	}

	// Truncation can shave the notional back under the minimum; the values
	// that actually dispatch are the ones that have to clear it.
	if quantity.Mul(price).LessThan(decimal.NewFromFloat(market.MinNotional)) {
		return reject(model.CancelReasonBelowMinNotional)
	}

	order.Price = price.InexactFloat64()
	order.Quantity = quantity.InexactFloat64()

	exchangeID, err := b.spot.PlaceLimitOrder(ctx, gateway.PlaceLimitOrderParams{
		Symbol:   intent.Pair,
		Side:     intent.Side,
		Price:    price.String(),
		Quantity: quantity.String(),
	})
	if err != nil {
		return reject(exchangeReason(err))
	}
	if exchangeID == "" {
		return reject(model.CancelReasonOrderIDMissing)
	}

	order.OrderID = exchangeID

	log.WithFields(map[string]interface{}{
		"order_id": exchangeID,
		"price":    order.Price,
		"quantity": order.Quantity,
	}).Info("limit order placed")

	return order
}

func (b *Builder) marketPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if b.prices != nil {
		if last, ok := b.prices.Get(symbol); ok {
			return decimal.NewFromFloat(last), nil
		}
	}

	ticker, err := b.metadata.FetchTicker(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(ticker.Last), nil
}

// resolvePrice applies the execution spread and the divergence guard. The
// returned price is always at least as favorable as the spread-adjusted
// market price, preventing worse-than-market fills.
func resolvePrice(intent *agent.OrderIntent, marketPrice decimal.Decimal) (price decimal.Decimal, diverged bool) {
	spreadAdjusted := marketPrice.Mul(decimal.NewFromInt(1).Sub(executionSpread))
	if intent.Side == gateway.SideSell {
		spreadAdjusted = marketPrice.Mul(decimal.NewFromInt(1).Add(executionSpread))
	}

	if intent.LimitPrice == nil {
		return spreadAdjusted, false
	}

	requested := decimal.NewFromFloat(*intent.LimitPrice)

	if intent.MaxPriceDivergence != nil {
		gap := requested.Sub(marketPrice).Abs().Div(marketPrice)
		if gap.GreaterThan(decimal.NewFromFloat(*intent.MaxPriceDivergence)) {
			return decimal.Zero, true
		}
	}

	// Clamp toward the maker-favorable side.
	if intent.Side == gateway.SideBuy {
		if requested.GreaterThan(spreadAdjusted) {
			return spreadAdjusted, false
		}
		return requested, false
	}
	if requested.LessThan(spreadAdjusted) {
		return spreadAdjusted, false
	}
	return requested, false
}

// resolveQuantity converts an amount denominated in the pair's base or quote
// asset into a base-asset order quantity.
func resolveQuantity(intent *agent.OrderIntent, market *gateway.Market, price decimal.Decimal) (decimal.Decimal, bool) {
	amount := decimal.NewFromFloat(intent.Amount)
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}

	switch intent.Token {
	case market.BaseAsset:
		return amount, true
	case market.QuoteAsset:
		if price.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, false
		}
		return amount.Div(price), true
	default:
		return decimal.Zero, false
	}
}

// exchangeReason extracts the human-readable reason from a gateway error.
func exchangeReason(err error) string {
	var exchangeErr *gateway.ExchangeError
	if errors.As(err, &exchangeErr) {
		if exchangeErr.Message != "" {
			return exchangeErr.Message
		}
		return gateway.GetErrorMsg(exchangeErr.Code)
	}
	return err.Error()
}
