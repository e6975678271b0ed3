package gateway

import "context"

// Gateway is a capability-tagged exchange adapter. Every exchange exposes
// market metadata; spot and futures trading are optional capabilities and
// their absence is a legitimate, handled state, not an error.
type Gateway interface {
	Name() string
	Metadata() MetadataService
	Spot() (SpotService, bool)
	Futures() (FuturesService, bool)
}

// MetadataService exposes public market data endpoints.
type MetadataService interface {
	FetchMarket(ctx context.Context, symbol string) (*Market, error)
	FetchTicker(ctx context.Context, symbol string) (*Ticker, error)
}

// SpotService exposes the spot trading endpoints used by the rebalance
// builder, the cleanup step and the reconciler.
type SpotService interface {
	FetchBalances(ctx context.Context) ([]Balance, error)
	PlaceLimitOrder(ctx context.Context, params PlaceLimitOrderParams) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	FetchOpenOrders(ctx context.Context, symbol string) ([]OrderSnapshot, error)
	FetchOrder(ctx context.Context, symbol, orderID string) (*OrderSnapshot, error)
}

// FuturesService exposes the futures endpoints used by the execution engine.
type FuturesService interface {
	FetchWallet(ctx context.Context) ([]Balance, error)
	SetMarginMode(ctx context.Context, symbol, mode string) error
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	OpenPosition(ctx context.Context, params PositionParams) (string, error)
	SetStopLoss(ctx context.Context, symbol, positionSide string, price float64) error
	SetTakeProfit(ctx context.Context, symbol, positionSide string, price float64) error
}

// Factory builds a gateway bound to one user's credentials. The pipeline
// resolves one gateway per workflow run.
type Factory func(apiKey, apiSecret string) Gateway
