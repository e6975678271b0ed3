// REST API CLIENT FOR BINANCE SPOT + USDT-M FUTURES
// RESTY ONLY + INTERNAL RETRY
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

// apiError is the Binance error envelope, e.g. {"code":-2013,"msg":"Order does not exist."}
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// BinanceGateway implements Gateway against the Binance REST API. Spot and
// futures run on separate base URLs but share credentials and signing.
type BinanceGateway struct {
	apiKey    string
	apiSecret string

	spot    *resty.Client
	futures *resty.Client

	futuresEnabled bool
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

func newRestyClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)
}

// NewBinanceGateway builds a gateway bound to one user's credentials.
func NewBinanceGateway(apiKey, apiSecret string) *BinanceGateway {
	config := GetConfig()

	return &BinanceGateway{
		apiKey:         apiKey,
		apiSecret:      apiSecret,
		spot:           newRestyClient(config.SpotBaseURL),
		futures:        newRestyClient(config.FuturesBaseURL),
		futuresEnabled: config.FuturesEnabled,
	}
}

// BinanceFactory adapts NewBinanceGateway to the Factory signature.
func BinanceFactory(apiKey, apiSecret string) Gateway {
	return NewBinanceGateway(apiKey, apiSecret)
}

func (g *BinanceGateway) Name() string { return "binance" }

func (g *BinanceGateway) Metadata() MetadataService { return g }

func (g *BinanceGateway) Spot() (SpotService, bool) { return g, true }

func (g *BinanceGateway) Futures() (FuturesService, bool) {
	if !g.futuresEnabled {
		return nil, false
	}
	return g, true
}

func (g *BinanceGateway) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(g.apiSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// doSigned executes an authenticated request. params are signed together with
// a timestamp; the signature rides as the last query parameter.
func (g *BinanceGateway) doSigned(ctx context.Context, client *resty.Client, method, path string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

	query := params.Encode()
	query += "&signature=" + g.sign(query)

	resp, err := client.R().
		SetContext(ctx).
		SetHeader("X-MBX-APIKEY", g.apiKey).
		SetQueryString(query).
		Execute(method, path)
	if err != nil {
		return nil, err
	}

	return parseResponse(resp)
}

func (g *BinanceGateway) doPublic(ctx context.Context, client *resty.Client, path string, params url.Values) ([]byte, error) {
	req := client.R().SetContext(ctx)
	if params != nil {
		req = req.SetQueryString(params.Encode())
	}

	resp, err := req.Get(path)
	if err != nil {
		return nil, err
	}

	return parseResponse(resp)
}

func parseResponse(resp *resty.Response) ([]byte, error) {
	raw := resp.Body()

	if resp.StatusCode() != 200 {
		var apiErr apiError
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Code != 0 {
			return nil, &ExchangeError{Code: apiErr.Code, Message: apiErr.Msg}
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(raw))
	}

	return raw, nil
}

// -----------------------------
// METADATA
// -----------------------------

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol             string `json:"symbol"`
		BaseAsset          string `json:"baseAsset"`
		QuoteAsset         string `json:"quoteAsset"`
		QuotePrecision     int32  `json:"quotePrecision"`
		BaseAssetPrecision int32  `json:"baseAssetPrecision"`
		Filters            []struct {
			FilterType  string `json:"filterType"`
			TickSize    string `json:"tickSize"`
			StepSize    string `json:"stepSize"`
			MinNotional string `json:"minNotional"`
		} `json:"filters"`
	} `json:"symbols"`
}

func (g *BinanceGateway) FetchMarket(ctx context.Context, symbol string) (*Market, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	raw, err := g.doPublic(ctx, g.spot, "/api/v3/exchangeInfo", params)
	if err != nil {
		return nil, err
	}

	var parsed exchangeInfoResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Symbols) == 0 {
		return nil, &ExchangeError{Code: -1121, Message: "Invalid symbol."}
	}

	info := parsed.Symbols[0]
	market := &Market{
		Symbol:            info.Symbol,
		BaseAsset:         info.BaseAsset,
		QuoteAsset:        info.QuoteAsset,
		PricePrecision:    info.QuotePrecision,
		QuantityPrecision: info.BaseAssetPrecision,
	}

	for _, f := range info.Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			market.PricePrecision = stepPrecision(f.TickSize)
		case "LOT_SIZE":
			market.QuantityPrecision = stepPrecision(f.StepSize)
		case "NOTIONAL", "MIN_NOTIONAL":
			if v, err := strconv.ParseFloat(f.MinNotional, 64); err == nil {
				market.MinNotional = v
			}
		}
	}

	return market, nil
}

// stepPrecision converts a tick/step size like "0.0100" into the number of
// meaningful decimal places (2).
func stepPrecision(step string) int32 {
	v, err := strconv.ParseFloat(step, 64)
	if err != nil || v <= 0 {
		return 8
	}

	trimmed := strings.TrimRight(strings.TrimRight(step, "0"), ".")
	if idx := strings.Index(trimmed, "."); idx >= 0 {
		return int32(len(trimmed) - idx - 1)
	}
	return 0
}

func (g *BinanceGateway) FetchTicker(ctx context.Context, symbol string) (*Ticker, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	raw, err := g.doPublic(ctx, g.spot, "/api/v3/ticker/price", params)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}

	last, err := strconv.ParseFloat(parsed.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("unparsable ticker price %q: %w", parsed.Price, err)
	}

	return &Ticker{Symbol: parsed.Symbol, Last: last}, nil
}

// -----------------------------
// SPOT
// -----------------------------

func (g *BinanceGateway) FetchBalances(ctx context.Context) ([]Balance, error) {
	raw, err := g.doSigned(ctx, g.spot, "GET", "/api/v3/account", nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}

	balances := make([]Balance, 0, len(parsed.Balances))
	for _, b := range parsed.Balances {
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			continue
		}
		balances = append(balances, Balance{Token: b.Asset, Free: free})
	}

	return balances, nil
}

func (g *BinanceGateway) PlaceLimitOrder(ctx context.Context, p PlaceLimitOrderParams) (string, error) {
	params := url.Values{}
	params.Set("symbol", p.Symbol)
	params.Set("side", p.Side)
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "GTC")
	params.Set("quantity", p.Quantity)
	params.Set("price", p.Price)

	raw, err := g.doSigned(ctx, g.spot, "POST", "/api/v3/order", params)
	if err != nil {
		return "", err
	}

	var parsed struct {
		OrderID int64 `json:"orderId"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	if parsed.OrderID == 0 {
		return "", nil
	}

	return strconv.FormatInt(parsed.OrderID, 10), nil
}

func (g *BinanceGateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	_, err := g.doSigned(ctx, g.spot, "DELETE", "/api/v3/order", params)
	return err
}

type orderResponse struct {
	OrderID int64  `json:"orderId"`
	Symbol  string `json:"symbol"`
	Side    string `json:"side"`
	Price   string `json:"price"`
	OrigQty string `json:"origQty"`
	Status  string `json:"status"`
}

func (o *orderResponse) toSnapshot() OrderSnapshot {
	price, _ := strconv.ParseFloat(o.Price, 64)
	qty, _ := strconv.ParseFloat(o.OrigQty, 64)

	return OrderSnapshot{
		OrderID:  strconv.FormatInt(o.OrderID, 10),
		Symbol:   o.Symbol,
		Side:     o.Side,
		Price:    price,
		Quantity: qty,
		Status:   o.Status,
	}
}

func (g *BinanceGateway) FetchOpenOrders(ctx context.Context, symbol string) ([]OrderSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	raw, err := g.doSigned(ctx, g.spot, "GET", "/api/v3/openOrders", params)
	if err != nil {
		return nil, err
	}

	var parsed []orderResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}

	snapshots := make([]OrderSnapshot, 0, len(parsed))
	for i := range parsed {
		snapshots = append(snapshots, parsed[i].toSnapshot())
	}

	return snapshots, nil
}

func (g *BinanceGateway) FetchOrder(ctx context.Context, symbol, orderID string) (*OrderSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	raw, err := g.doSigned(ctx, g.spot, "GET", "/api/v3/order", params)
	if err != nil {
		return nil, err
	}

	var parsed orderResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}

	snapshot := parsed.toSnapshot()
	return &snapshot, nil
}

// -----------------------------
// FUTURES (USDT-M)
// -----------------------------

func (g *BinanceGateway) FetchWallet(ctx context.Context) ([]Balance, error) {
	raw, err := g.doSigned(ctx, g.futures, "GET", "/fapi/v2/balance", nil)
	if err != nil {
		return nil, err
	}

	var parsed []struct {
		Asset            string `json:"asset"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}

	balances := make([]Balance, 0, len(parsed))
	for _, b := range parsed {
		free, err := strconv.ParseFloat(b.AvailableBalance, 64)
		if err != nil {
			continue
		}
		balances = append(balances, Balance{Token: b.Asset, Free: free})
	}

	return balances, nil
}

func (g *BinanceGateway) SetMarginMode(ctx context.Context, symbol, mode string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("marginType", strings.ToUpper(mode))

	_, err := g.doSigned(ctx, g.futures, "POST", "/fapi/v1/marginType", params)
	// Binance rejects a no-op margin change with a dedicated code; treat it
	// as success.
	var exchangeErr *ExchangeError
	if errors.As(err, &exchangeErr) && exchangeErr.Code == -4046 {
		return nil
	}
	return err
}

func (g *BinanceGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))

	_, err := g.doSigned(ctx, g.futures, "POST", "/fapi/v1/leverage", params)
	return err
}

func (g *BinanceGateway) OpenPosition(ctx context.Context, p PositionParams) (string, error) {
	params := url.Values{}
	params.Set("symbol", p.Symbol)
	params.Set("positionSide", strings.ToUpper(p.PositionSide))
	params.Set("quantity", strconv.FormatFloat(p.Quantity, 'f', -1, 64))

	side := SideBuy
	if strings.EqualFold(p.PositionSide, "SHORT") {
		side = SideSell
	}
	if p.ReduceOnly {
		// Closing inverts the entry side.
		if side == SideBuy {
			side = SideSell
		} else {
			side = SideBuy
		}
	}
	params.Set("side", side)

	orderType := p.OrderType
	if orderType == "" {
		orderType = "MARKET"
	}
	params.Set("type", orderType)
	if p.Price != nil {
		params.Set("price", strconv.FormatFloat(*p.Price, 'f', -1, 64))
		params.Set("timeInForce", "GTC")
	}

	raw, err := g.doSigned(ctx, g.futures, "POST", "/fapi/v1/order", params)
	if err != nil {
		return "", err
	}

	var parsed struct {
		OrderID int64 `json:"orderId"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}

	return strconv.FormatInt(parsed.OrderID, 10), nil
}

func (g *BinanceGateway) SetStopLoss(ctx context.Context, symbol, positionSide string, price float64) error {
	return g.placeTrigger(ctx, symbol, positionSide, "STOP_MARKET", price)
}

func (g *BinanceGateway) SetTakeProfit(ctx context.Context, symbol, positionSide string, price float64) error {
	return g.placeTrigger(ctx, symbol, positionSide, "TAKE_PROFIT_MARKET", price)
}

func (g *BinanceGateway) placeTrigger(ctx context.Context, symbol, positionSide, triggerType string, price float64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("positionSide", strings.ToUpper(positionSide))
	params.Set("type", triggerType)
	params.Set("stopPrice", strconv.FormatFloat(price, 'f', -1, 64))
	params.Set("closePosition", "true")

	side := SideSell
	if strings.EqualFold(positionSide, "SHORT") {
		side = SideBuy
	}
	params.Set("side", side)

	_, err := g.doSigned(ctx, g.futures, "POST", "/fapi/v1/order", params)
	if err != nil {
		logger.WithError(err).WithFields(logger.Fields{
			"symbol":       symbol,
			"trigger_type": triggerType,
		}).Error("failed to place trigger order")
	}
	return err
}
