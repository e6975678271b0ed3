package marketdata

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar used by the technical analyst.
type Candle struct {
	Datetime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// CandleSource fetches recent bars for a symbol. The goex-backed
// implementation is the default; tests substitute a stub.
type CandleSource interface {
	RecentCandles(symbol string, limit int) ([]Candle, error)
}

// GoexCandleSource pulls klines from Binance public market data through goex.
type GoexCandleSource struct {
	exchange goex.API
}

var _ CandleSource = (*GoexCandleSource)(nil)

func NewGoexCandleSource() *GoexCandleSource {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return &GoexCandleSource{exchange: binance.NewWithConfig(apiConfig)}
}

// RecentCandles returns up to limit 1h bars, oldest first. symbol is in
// exchange form, e.g. BTCUSDT.
func (s *GoexCandleSource) RecentCandles(symbol string, limit int) ([]Candle, error) {
	pair, err := currencyPairFromSymbol(symbol)
	if err != nil {
		return nil, err
	}

	klines, err := s.exchange.GetKlineRecords(pair, goex.KLINE_PERIOD_1H, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch klines for %s: %w", symbol, err)
	}

	candles := make([]Candle, 0, len(klines))
	for i := range klines {
		k := klines[i]
		candles = append(candles, Candle{
			Datetime: time.Unix(k.Timestamp, 0).UTC(),
			Open:     decimal.NewFromFloat(k.Open),
			High:     decimal.NewFromFloat(k.High),
			Low:      decimal.NewFromFloat(k.Low),
			Close:    decimal.NewFromFloat(k.Close),
			Volume:   decimal.NewFromFloat(k.Vol),
		})
	}

	// goex returns newest first for some exchanges; normalize oldest first.
	for i, j := 0, len(candles)-1; i < j && candles[i].Datetime.After(candles[j].Datetime); i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}

// currencyPairFromSymbol splits an exchange symbol against the common quote
// assets.
func currencyPairFromSymbol(symbol string) (goex.CurrencyPair, error) {
	upper := strings.ToUpper(symbol)
	for _, quote := range []string{"USDT", "BUSD", "USDC", "BTC", "ETH"} {
		if strings.HasSuffix(upper, quote) && len(upper) > len(quote) {
			base := strings.TrimSuffix(upper, quote)
			return goex.NewCurrencyPair2(base + "_" + quote), nil
		}
	}
	return goex.UNKNOWN_PAIR, fmt.Errorf("unrecognized symbol %q", symbol)
}
