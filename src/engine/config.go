package engine

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

type Config struct {
	MaxHoldings            int     `envconfig:"MAX_HOLDINGS" default:"2"`
	ApprovalTimeoutMinutes int     `envconfig:"APPROVAL_TIMEOUT_MINUTES" default:"15"`
	MinHoldDays            int     `envconfig:"MIN_HOLD_DAYS" default:"2"`
	StopLossPct            float64 `envconfig:"STOP_LOSS_PCT" default:"-5"`
	TakeProfitPct          float64 `envconfig:"TAKE_PROFIT_PCT" default:"10"`
	MaxDailyTrades         int64   `envconfig:"MAX_DAILY_TRADES" default:"4"`
	MaxOrderAttempts       int     `envconfig:"MAX_ORDER_ATTEMPTS" default:"5"`
	MaxPollAttempts        int     `envconfig:"MAX_POLL_ATTEMPTS" default:"40"`
	RetryBaseMilliseconds  int     `envconfig:"RETRY_BASE_MS" default:"500"`
	RetryMaxMilliseconds   int     `envconfig:"RETRY_MAX_MS" default:"8000"`
	MarketTimezone         string  `envconfig:"MARKET_TIMEZONE" default:"America/New_York"`
}

func GetConfig() Config {
	var config Config
	err := envconfig.Process("", &config)
	if err != nil {
		logger.Panic(err.Error())
	}
	return config
}

// Params resolves the raw config into the runtime parameter set.
func (c Config) Params() (Params, error) {
	loc, err := time.LoadLocation(c.MarketTimezone)
	if err != nil {
		return Params{}, err
	}
	return Params{
		MaxHoldings:      c.MaxHoldings,
		ApprovalTimeout:  time.Duration(c.ApprovalTimeoutMinutes) * time.Minute,
		MinHold:          time.Duration(c.MinHoldDays) * 24 * time.Hour,
		StopLossPct:      decimal.NewFromFloat(c.StopLossPct),
		TakeProfitPct:    decimal.NewFromFloat(c.TakeProfitPct),
		MaxDailyTrades:   c.MaxDailyTrades,
		MaxOrderAttempts: c.MaxOrderAttempts,
		MaxPollAttempts:  c.MaxPollAttempts,
		RetryBase:        time.Duration(c.RetryBaseMilliseconds) * time.Millisecond,
		RetryMax:         time.Duration(c.RetryMaxMilliseconds) * time.Millisecond,
		Location:         loc,
	}, nil
}
