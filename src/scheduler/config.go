package scheduler

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ReviewTick    time.Duration `envconfig:"REVIEW_TICK" default:"30s"`
	ReconcileTick time.Duration `envconfig:"RECONCILE_TICK" default:"1m"`
}

func GetConfig() Config {
	var config Config
	err := envconfig.Process("", &config)
	if err != nil {
		panic(err.Error())
	}
	return config
}
