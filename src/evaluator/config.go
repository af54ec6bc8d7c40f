package evaluator

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	InitialBudget  float64 `envconfig:"INITIAL_BUDGET" default:"1000"`
	MaxPositionPct float64 `envconfig:"MAX_POSITION_PCT" default:"33"`
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
		InitialBudget:  decimal.NewFromFloat(c.InitialBudget),
		MaxPositionPct: decimal.NewFromFloat(c.MaxPositionPct),
	}
}
