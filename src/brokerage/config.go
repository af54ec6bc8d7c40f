package brokerage

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BaseURL   string        `envconfig:"BROKER_BASE_URL" default:"https://paper-api.broker.local"`
	StreamURL string        `envconfig:"BROKER_STREAM_URL" default:""`
	APIKey    string        `envconfig:"BROKER_API_KEY"`
	APISecret string        `envconfig:"BROKER_API_SECRET"`
	Timeout   time.Duration `envconfig:"BROKER_TIMEOUT" default:"15s"`

	// Paper mode swaps in the deterministic in-memory brokerage.
	Paper bool `envconfig:"PAPER_TRADING" default:"true"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
