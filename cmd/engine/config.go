package engine

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AgentInstructions string        `envconfig:"AGENT_INSTRUCTIONS" default:"You are a portfolio review agent. Respond with a JSON decision containing short_report and either orders or actions."`
	CleanupWorkers    int           `envconfig:"CLEANUP_WORKERS" default:"3"`
	ReconcileWorkers  int           `envconfig:"RECONCILE_WORKERS" default:"4"`
	PriceCacheTTL     time.Duration `envconfig:"PRICE_CACHE_TTL" default:"10s"`
	StreamEnabled     bool          `envconfig:"TICKER_STREAM_ENABLED" default:"true"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
