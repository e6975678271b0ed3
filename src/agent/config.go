package agent

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AgentBaseURL string        `envconfig:"AGENT_BASE_URL" default:"https://api.openai.com"`
	AgentAPIKey  string        `envconfig:"AGENT_API_KEY"`
	AgentTimeout time.Duration `envconfig:"AGENT_TIMEOUT" default:"90s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
