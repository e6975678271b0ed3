package rebalance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"workflowengine/src/agent"
	"workflowengine/src/gateway"
	"workflowengine/src/model"
)

type fakeMetadata struct {
	market *gateway.Market
	ticker *gateway.Ticker
}

func (f *fakeMetadata) FetchMarket(_ context.Context, _ string) (*gateway.Market, error) {
	return f.market, nil
}

func (f *fakeMetadata) FetchTicker(_ context.Context, _ string) (*gateway.Ticker, error) {
	return f.ticker, nil
}

type fakeSpot struct {
	placed   []gateway.PlaceLimitOrderParams
	placeID  string
	placeErr error
}

func (f *fakeSpot) FetchBalances(_ context.Context) ([]gateway.Balance, error) { return nil, nil }

func (f *fakeSpot) PlaceLimitOrder(_ context.Context, params gateway.PlaceLimitOrderParams) (string, error) {
	f.placed = append(f.placed, params)
	return f.placeID, f.placeErr
}

func (f *fakeSpot) CancelOrder(_ context.Context, _, _ string) error { return nil }

func (f *fakeSpot) FetchOpenOrders(_ context.Context, _ string) ([]gateway.OrderSnapshot, error) {
	return nil, nil
}

func (f *fakeSpot) FetchOrder(_ context.Context, _, _ string) (*gateway.OrderSnapshot, error) {
	return nil, nil
}

type fakeOrderRepo struct {
	created []*model.LimitOrder
}

func (f *fakeOrderRepo) Create(_ context.Context, order *model.LimitOrder) error {
	f.created = append(f.created, order)
	return nil
}

func btcMarket() *gateway.Market {
	return &gateway.Market{
		Symbol:            "BTCUSDT",
		BaseAsset:         "BTC",
		QuoteAsset:        "USDT",
		PricePrecision:    2,
		QuantityPrecision: 4,
		MinNotional:       10,
	}
}

func testWorkflow() *model.Workflow {
	return &model.Workflow{ID: 1, UserID: 2, CashToken: "USDT"}
}

func newTestBuilder(marketPrice float64, placeID string) (*Builder, *fakeSpot, *fakeOrderRepo) {
	metadata := &fakeMetadata{
		market: btcMarket(),
		ticker: &gateway.Ticker{Symbol: "BTCUSDT", Last: marketPrice},
	}
	spot := &fakeSpot{placeID: placeID}
	repo := &fakeOrderRepo{}
	return NewBuilder(metadata, spot, nil, repo), spot, repo
}

func TestBuildBuyAppliesExecutionSpread(t *testing.T) {
	builder, spot, repo := newTestBuilder(100, "ex-1")

	result := builder.Build(context.Background(), testWorkflow(), 10, []agent.OrderIntent{
		{Pair: "BTCUSDT", Token: "BTC", Side: gateway.SideBuy, Amount: 1},
	})

	require.Equal(t, 1, result.Placed)
	require.Len(t, spot.placed, 1)
	require.Equal(t, "99.9", spot.placed[0].Price)

	require.Len(t, repo.created, 1)
	require.Equal(t, model.LimitOrderStatusOpen, repo.created[0].Status)
	require.Equal(t, "ex-1", repo.created[0].OrderID)
}

func TestBuildSellAppliesExecutionSpread(t *testing.T) {
	builder, spot, _ := newTestBuilder(100, "ex-1")

	result := builder.Build(context.Background(), testWorkflow(), 10, []agent.OrderIntent{
		{Pair: "BTCUSDT", Token: "BTC", Side: gateway.SideSell, Amount: 1},
	})

	require.Equal(t, 1, result.Placed)
	require.Len(t, spot.placed, 1)
	require.Equal(t, "100.1", spot.placed[0].Price)
}

func TestBuildTruncatesQuantityNeverRoundsUp(t *testing.T) {
	builder, spot, _ := newTestBuilder(100, "ex-1")

	result := builder.Build(context.Background(), testWorkflow(), 10, []agent.OrderIntent{
		{Pair: "BTCUSDT", Token: "BTC", Side: gateway.SideBuy, Amount: 0.123456789},
	})

	require.Equal(t, 1, result.Placed)
	require.Len(t, spot.placed, 1)
	require.Equal(t, "0.1234", spot.placed[0].Quantity)
}

func TestBuildConvertsQuoteAmountToBaseQuantity(t *testing.T) {
	builder, spot, _ := newTestBuilder(100, "ex-1")

	// 1000 USDT at the spread-adjusted bid of 99.9 buys 10.0100... BTC,
	// truncated to the symbol's 4-decimal step.
	result := builder.Build(context.Background(), testWorkflow(), 10, []agent.OrderIntent{
		{Pair: "BTCUSDT", Token: "USDT", Side: gateway.SideBuy, Amount: 1000},
	})

	require.Equal(t, 1, result.Placed)
	require.Len(t, spot.placed, 1)
	require.Equal(t, "10.01", spot.placed[0].Quantity)
}

func TestBuildRejectsBelowMinNotionalWithoutExchangeCall(t *testing.T) {
	builder, spot, repo := newTestBuilder(100, "ex-1")

	result := builder.Build(context.Background(), testWorkflow(), 10, []agent.OrderIntent{
		{Pair: "BTCUSDT", Token: "BTC", Side: gateway.SideBuy, Amount: 0.05},
	})

	require.Equal(t, 1, result.Rejected)
	require.Empty(t, spot.placed, "rejected order must never reach the exchange")

	require.Len(t, repo.created, 1)
	require.Equal(t, model.LimitOrderStatusCanceled, repo.created[0].Status)
	require.Equal(t, model.CancelReasonBelowMinNotional, repo.created[0].CancellationReason)
}

func TestBuildRechecksMinNotionalAfterTruncation(t *testing.T) {
	builder, spot, repo := newTestBuilder(100, "ex-1")

	// 0.100199 BTC clears the minimum at the untruncated bid (10.0099) but
	// truncates to 0.1001, worth 9.99999 at 99.9.
	result := builder.Build(context.Background(), testWorkflow(), 10, []agent.OrderIntent{
		{Pair: "BTCUSDT", Token: "BTC", Side: gateway.SideBuy, Amount: 0.100199},
	})

	require.Equal(t, 1, result.Rejected)
	require.Empty(t, spot.placed, "truncated order under the minimum must never reach the exchange")
	require.Equal(t, model.CancelReasonBelowMinNotional, repo.created[0].CancellationReason)
}

func TestBuildRejectsDivergentLimitPriceWithoutExchangeCall(t *testing.T) {
	builder, spot, repo := newTestBuilder(100, "ex-1")

	limitPrice := 150.0
	maxDivergence := 0.01

	result := builder.Build(context.Background(), testWorkflow(), 10, []agent.OrderIntent{
		{
			Pair:               "BTCUSDT",
			Token:              "BTC",
			Side:               gateway.SideBuy,
			Amount:             1,
			LimitPrice:         &limitPrice,
			MaxPriceDivergence: &maxDivergence,
		},
	})

	require.Equal(t, 1, result.Rejected)
	require.Empty(t, spot.placed, "diverged order must never reach the exchange")
	require.Equal(t, model.CancelReasonPriceDivergence, repo.created[0].CancellationReason)
}

func TestBuildClampsLimitPriceToMakerSide(t *testing.T) {
	builder, spot, _ := newTestBuilder(100, "ex-1")

	// A BUY limit above the spread-adjusted bid would cross the book; the
	// builder clamps it down instead of rejecting.
	limitPrice := 100.5
	maxDivergence := 0.05

	result := builder.Build(context.Background(), testWorkflow(), 10, []agent.OrderIntent{
		{
			Pair:               "BTCUSDT",
			Token:              "BTC",
			Side:               gateway.SideBuy,
			Amount:             1,
			LimitPrice:         &limitPrice,
			MaxPriceDivergence: &maxDivergence,
		},
	})

	require.Equal(t, 1, result.Placed)
	require.Equal(t, "99.9", spot.placed[0].Price)
}

func TestBuildRejectsMissingExchangeOrderID(t *testing.T) {
	builder, spot, repo := newTestBuilder(100, "")

	result := builder.Build(context.Background(), testWorkflow(), 10, []agent.OrderIntent{
		{Pair: "BTCUSDT", Token: "BTC", Side: gateway.SideBuy, Amount: 1},
	})

	require.Equal(t, 1, result.Rejected)
	require.Len(t, spot.placed, 1, "the order did reach the exchange")
	require.Equal(t, model.LimitOrderStatusCanceled, repo.created[0].Status)
	require.Equal(t, model.CancelReasonOrderIDMissing, repo.created[0].CancellationReason)
}

func TestBuildRejectsUnknownToken(t *testing.T) {
	builder, spot, repo := newTestBuilder(100, "ex-1")

	result := builder.Build(context.Background(), testWorkflow(), 10, []agent.OrderIntent{
		{Pair: "BTCUSDT", Token: "DOGE", Side: gateway.SideBuy, Amount: 1},
	})

	require.Equal(t, 1, result.Rejected)
	require.Empty(t, spot.placed)
	require.Equal(t, model.CancelReasonInvalidPairToken, repo.created[0].CancellationReason)
}

func TestBuildOneRejectionDoesNotBlockSiblings(t *testing.T) {
	builder, spot, repo := newTestBuilder(100, "ex-1")

	result := builder.Build(context.Background(), testWorkflow(), 10, []agent.OrderIntent{
		{Pair: "BTCUSDT", Token: "BTC", Side: gateway.SideBuy, Amount: 0.05}, // below min notional
		{Pair: "BTCUSDT", Token: "BTC", Side: gateway.SideBuy, Amount: 1},
	})

	require.Equal(t, 1, result.Placed)
	require.Equal(t, 1, result.Rejected)
	require.Len(t, spot.placed, 1)
	require.Len(t, repo.created, 2)
}
