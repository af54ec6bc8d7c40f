package risk

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	MaxDrawdownPct float64 `envconfig:"MAX_DRAWDOWN_PCT" default:"15"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

func (c Config) Params() Params {
	return Params{
		MaxDrawdownPct: decimal.NewFromFloat(c.MaxDrawdownPct),
	}
}
