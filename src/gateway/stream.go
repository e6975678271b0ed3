package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

// TickerSink receives live price updates. The marketdata cache implements it;
// the stream is advisory only and never authoritative for order status.
type TickerSink interface {
	Put(symbol string, last float64)
}

// TickerStream consumes the Binance bookTicker websocket for a set of symbols
// and forwards mid prices into a sink. It reconnects on failure until the
// context is canceled.
type TickerStream struct {
	baseURL string
	symbols []string
	sink    TickerSink
	backoff time.Duration
}

func NewTickerStream(symbols []string, sink TickerSink) *TickerStream {
	return &TickerStream{
		baseURL: GetConfig().StreamBaseURL,
		symbols: symbols,
		sink:    sink,
		backoff: 2 * time.Second,
	}
}

// Run blocks until ctx is canceled.
func (s *TickerStream) Run(ctx context.Context) {
	for {
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Warn("ticker stream disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.backoff):
		}
	}
}

func (s *TickerStream) consume(ctx context.Context) error {
	streams := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		streams = append(streams, strings.ToLower(sym)+"@bookTicker")
	}
	endpoint := fmt.Sprintf("%s/stream?streams=%s", s.baseURL, strings.Join(streams, "/"))

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.WithField("streams", len(streams)).Info("ticker stream connected")

	// The watcher must not outlive its connection: a watcher parked on
	// ctx.Done() across reconnects would leak one goroutine per cycle.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var frame struct {
			Data struct {
				Symbol string `json:"s"`
				Bid    string `json:"b"`
				Ask    string `json:"a"`
			} `json:"data"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}

		bid, errB := strconv.ParseFloat(frame.Data.Bid, 64)
		ask, errA := strconv.ParseFloat(frame.Data.Ask, 64)
		if errB != nil || errA != nil || frame.Data.Symbol == "" {
			continue
		}

		s.sink.Put(frame.Data.Symbol, (bid+ask)/2)
	}
}
