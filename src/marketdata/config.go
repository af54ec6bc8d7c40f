package marketdata

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Quote       string `envconfig:"KLINE_QUOTE" default:"USDT"`
	DurationStr string `envconfig:"KLINE_DURATION" default:"1h"`
	Limit       int    `envconfig:"KLINE_LIMIT" default:"100"`

	RSIPeriod     int     `envconfig:"RSI_PERIOD" default:"14"`
	RSIOverbought float64 `envconfig:"RSI_OVERBOUGHT" default:"70"`
	RSIOversold   float64 `envconfig:"RSI_OVERSOLD" default:"30"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
