package gateway

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	SpotBaseURL    string `envconfig:"BINANCE_SPOT_BASE_URL" default:"https://testnet.binance.vision"`
	FuturesBaseURL string `envconfig:"BINANCE_FUTURES_BASE_URL" default:"https://testnet.binancefuture.com"`
	StreamBaseURL  string `envconfig:"BINANCE_STREAM_BASE_URL" default:"wss://stream.binance.com:9443"`
	FuturesEnabled bool   `envconfig:"BINANCE_FUTURES_ENABLED" default:"true"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
