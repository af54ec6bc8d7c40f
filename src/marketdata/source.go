package marketdata

import (
	"net/http"
	"time"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	Duration1m = "1m"
	Duration1h = "1h"
)

// Candle is one OHLCV bar, oldest-first in any returned series.
type Candle struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// CandleSource provides recent bars for indicator computation.
type CandleSource interface {
	RecentCandles(symbol string, limit int) ([]Candle, error)
}

// ExchangeSource pulls klines from the exchange REST API.
type ExchangeSource struct {
	config   Config
	exchange goex.API
}

func NewExchangeSource(config Config) *ExchangeSource {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return &ExchangeSource{
		config:   config,
		exchange: binance.NewWithConfig(apiConfig),
	}
}

// WithExchange overrides the exchange client. Useful for tests.
func (s *ExchangeSource) WithExchange(api goex.API) *ExchangeSource {
	return &ExchangeSource{config: s.config, exchange: api}
}

func (s *ExchangeSource) RecentCandles(symbol string, limit int) ([]Candle, error) {
	pair := goex.NewCurrencyPair(
		goex.Currency{Symbol: symbol},
		goex.Currency{Symbol: s.config.Quote})

	klines, err := s.exchange.GetKlineRecords(pair, s.klinePeriod(), limit)
	if err != nil {
		logger.WithError(err).WithField("symbol", symbol).Error("Failed to fetch klines")
		return nil, err
	}

	candles := make([]Candle, 0, len(klines))
	for i := range klines {
		k := klines[i]
		candles = append(candles, Candle{
			Timestamp: time.Unix(k.Timestamp, 0).UTC(),
			Open:      decimal.NewFromFloat(k.Open),
			High:      decimal.NewFromFloat(k.High),
			Low:       decimal.NewFromFloat(k.Low),
			Close:     decimal.NewFromFloat(k.Close),
			Volume:    decimal.NewFromFloat(k.Vol),
		})
	}
	// Exchanges differ on ordering; normalize oldest-first.
	if len(candles) > 1 && candles[0].Timestamp.After(candles[len(candles)-1].Timestamp) {
		for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
			candles[i], candles[j] = candles[j], candles[i]
		}
	}
	return candles, nil
}

func (s *ExchangeSource) klinePeriod() goex.KlinePeriod {
	switch s.config.DurationStr {
	case Duration1m:
		return goex.KLINE_PERIOD_1MIN
	case Duration1h:
		return goex.KLINE_PERIOD_1H
	default:
		panic("invalid KLINE_DURATION env var")
	}
}
