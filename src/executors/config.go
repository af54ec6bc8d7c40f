package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Watchlist []string `envconfig:"WATCHLIST" default:"AAPL,MSFT,NVDA,AMZN,TSLA"`

	ScanInterval  time.Duration `envconfig:"SCAN_INTERVAL" default:"15m"`
	RiskInterval  time.Duration `envconfig:"RISK_INTERVAL" default:"5m"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"30s"`

	MarketHoursOnly bool   `envconfig:"MARKET_HOURS_ONLY" default:"true"`
	MarketOpen      string `envconfig:"MARKET_OPEN" default:"09:30"`
	MarketClose     string `envconfig:"MARKET_CLOSE" default:"16:00"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
