package gateway

// Exchange-reported order status values. The reconciler treats ClosedStatuses
// as canceled; anything outside FILLED and that set is left untouched.
const (
	OrderStatusNew             = "NEW"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCanceled        = "CANCELED"
	OrderStatusPendingCancel   = "PENDING_CANCEL"
	OrderStatusExpired         = "EXPIRED"
	OrderStatusRejected        = "REJECTED"
	OrderStatusExpiredInMatch  = "EXPIRED_IN_MATCH"
)

// ClosedStatuses is the fixed set of exchange statuses that map to a local
// canceled order.
var ClosedStatuses = map[string]bool{
	OrderStatusCanceled:       true,
	OrderStatusPendingCancel:  true,
	OrderStatusExpired:        true,
	OrderStatusRejected:       true,
	OrderStatusExpiredInMatch: true,
}

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Market is the exchange symbol metadata needed to size an order safely.
type Market struct {
	Symbol            string
	BaseAsset         string
	QuoteAsset        string
	PricePrecision    int32
	QuantityPrecision int32
	MinNotional       float64
}

// Ticker is a point-in-time market price.
type Ticker struct {
	Symbol string
	Last   float64
}

// Balance is one asset balance, spot or futures wallet.
type Balance struct {
	Token string
	Free  float64
}

// OrderSnapshot is the exchange's view of one order.
type OrderSnapshot struct {
	OrderID  string
	Symbol   string
	Side     string
	Price    float64
	Quantity float64
	Status   string
}

// PlaceLimitOrderParams carries an already validated and rounded spot limit
// order.
type PlaceLimitOrderParams struct {
	Symbol   string
	Side     string
	Price    string
	Quantity string
}

// PositionParams carries one futures position change. ReduceOnly marks CLOSE
// semantics.
type PositionParams struct {
	Symbol       string
	PositionSide string
	OrderType    string
	Quantity     float64
	Price        *float64
	ReduceOnly   bool
}
