package executors

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/approval"
	"autotrader/src/brokerage"
	"autotrader/src/database"
	"autotrader/src/engine"
	"autotrader/src/evaluator"
	"autotrader/src/marketdata"
	"autotrader/src/portfolio"
	"autotrader/src/risk"
	"autotrader/src/security"
	"autotrader/src/server"
)

// Runner owns the wired service graph for the continuous run loop and the
// one-shot scan command.
type Runner struct {
	config Config
	db     *gorm.DB

	engine    *engine.Engine
	riskMgr   *risk.Manager
	evaluator *evaluator.Evaluator
	broker    brokerage.Client
	channel   approval.Channel
	stream    *brokerage.QuoteStream

	// Blocking poll loop of the concrete approval client, started by Run.
	poll func(ctx context.Context)

	loc *time.Location
}

func openDatabase() (*gorm.DB, error) {
	initialCash := decimal.NewFromFloat(evaluator.GetConfig().InitialBudget)
	return database.Open(database.GetConfig(), initialCash)
}

func newBroker(config brokerage.Config) brokerage.Client {
	if config.Paper {
		logger.Warn("Paper trading enabled, orders never leave the process")
		return brokerage.NewPaperClient()
	}
	return brokerage.NewRESTClient(config)
}

// Setup loads every package config and wires the service graph. Fails fast
// on anything that would make the run loop useless: bad DSN, missing
// approval credentials, unparseable thresholds.
func Setup(ctx context.Context) (*Runner, error) {
	config := GetConfig()

	db, err := openDatabase()
	if err != nil {
		return nil, err
	}

	engineParams, err := engine.GetConfig().Params()
	if err != nil {
		return nil, err
	}

	brokerCfg := brokerage.GetConfig()
	broker := newBroker(brokerCfg)
	var stream *brokerage.QuoteStream
	if !brokerCfg.Paper {
		stream = brokerage.NewQuoteStream(brokerCfg.StreamURL, config.Watchlist)
	}

	approvalCfg := approval.GetConfig()
	botToken, err := security.ResolveSecret(approvalCfg.BotTokenEnc, approvalCfg.BotToken)
	if err != nil {
		return nil, err
	}
	if botToken == "" || approvalCfg.ChatID == "" {
		return nil, errors.New("approval channel not configured: set TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID")
	}
	telegram := approval.NewTelegramChannel(approvalCfg, botToken)

	eng := engine.New(db, broker, telegram, telegram, engineParams)

	pf := portfolio.NewService(db, engineParams.Location)
	riskMgr := risk.NewManager(db, broker, eng, pf, risk.GetConfig().Params()).
		WithNotifier(telegram)
	if stream != nil {
		riskMgr = riskMgr.WithStream(stream)
	}

	marketCfg := marketdata.GetConfig()
	exitRule := evaluator.NewRSIExitRule(marketdata.NewExchangeSource(marketCfg), marketCfg)
	evalParams := evaluator.GetConfig().Params()
	evalParams.MaxHoldings = engineParams.MaxHoldings
	evalParams.MinHold = engineParams.MinHold

	return &Runner{
		config:    config,
		db:        db,
		engine:    eng,
		riskMgr:   riskMgr,
		evaluator: evaluator.New(evalParams, exitRule),
		broker:    broker,
		channel:   telegram,
		stream:    stream,
		poll:      telegram.Poll,
		loc:       engineParams.Location,
	}, nil
}

// StartLoop wires everything and runs until the context is cancelled.
func StartLoop(ctx context.Context) error {
	runner, err := Setup(ctx)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}

// Run recovers in-flight work, then drives the three periodic triggers and
// the approval response stream until cancellation.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.engine.Recover(ctx); err != nil {
		return err
	}

	srv := server.New(server.GetConfig().Port, func(ctx context.Context) (interface{}, error) {
		return r.StatusReport(ctx)
	})
	srv.Start()

	if r.stream != nil {
		go r.stream.Run(ctx)
	}
	go r.poll(ctx)

	scanTicker := time.NewTicker(r.config.ScanInterval)
	defer scanTicker.Stop()
	riskTicker := time.NewTicker(r.config.RiskInterval)
	defer riskTicker.Stop()
	sweepTicker := time.NewTicker(r.config.SweepInterval)
	defer sweepTicker.Stop()

	logger.WithFields(map[string]interface{}{
		"scan_interval": r.config.ScanInterval,
		"risk_interval": r.config.RiskInterval,
		"watchlist":     r.config.Watchlist,
	}).Info("Run loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down gracefully...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Shutdown error")
			}
			r.engine.Wait()
			return nil

		case resp, ok := <-r.channel.Responses():
			if !ok {
				continue
			}
			if err := r.engine.HandleResponse(ctx, resp); err != nil {
				logger.WithError(err).Error("Approval response handling failed")
			}

		case <-scanTicker.C:
			if !r.marketIsOpen() {
				logger.Debug("Market closed, skipping scan cycle")
				continue
			}
			if _, err := r.ScanOnce(ctx); err != nil {
				logger.WithError(err).Error("Scan cycle failed")
			}

		case <-riskTicker.C:
			if !r.marketIsOpen() {
				logger.Debug("Market closed, skipping risk cycle")
				continue
			}
			if err := r.riskMgr.RunCycle(ctx); err != nil {
				logger.WithError(err).Error("Risk cycle failed")
			}

		case <-sweepTicker.C:
			// Approval deadlines fire regardless of market hours.
			if err := r.engine.SweepExpired(ctx); err != nil {
				logger.WithError(err).Error("Expiry sweep failed")
			}
		}
	}
}

func (r *Runner) marketIsOpen() bool {
	if !r.config.MarketHoursOnly {
		return true
	}
	open, err := withinMarketHours(time.Now(), r.loc, r.config.MarketOpen, r.config.MarketClose)
	if err != nil {
		logger.WithError(err).Error("Market hours misconfigured, assuming open")
		return true
	}
	return open
}
