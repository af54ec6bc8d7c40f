package brokerage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// QuoteStream maintains a websocket subscription to the brokerage market
// data feed and caches the last traded price per symbol. The risk monitor
// reads from the cache and only falls back to a REST quote when a symbol has
// not ticked yet.
type QuoteStream struct {
	url     string
	symbols []string

	mu     sync.RWMutex
	prices map[string]decimal.Decimal

	readTimeout time.Duration
	dialBackoff time.Duration
}

type streamTick struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func NewQuoteStream(url string, symbols []string) *QuoteStream {
	return &QuoteStream{
		url:         url,
		symbols:     symbols,
		prices:      make(map[string]decimal.Decimal),
		readTimeout: 60 * time.Second,
		dialBackoff: 5 * time.Second,
	}
}

// Run connects and consumes ticks until ctx is cancelled, redialling with a
// fixed backoff on any connection failure.
func (s *QuoteStream) Run(ctx context.Context) {
	if s.url == "" {
		logger.Info("quote stream disabled, no stream URL configured")
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.consume(ctx); err != nil {
			logger.WithError(err).Warn("quote stream disconnected, retrying")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.dialBackoff):
		}
	}
}

func (s *QuoteStream) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.WithField("url", s.url).Info("quote stream connected")

	sub := map[string]interface{}{"action": "subscribe", "trades": s.symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			return err
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var tick streamTick
		if err := json.Unmarshal(raw, &tick); err != nil {
			logger.WithError(err).Debug("ignoring malformed stream message")
			continue
		}
		if tick.Type != "trade" || tick.Symbol == "" {
			continue
		}

		price, err := decimal.NewFromString(tick.Price)
		if err != nil {
			continue
		}

		s.mu.Lock()
		s.prices[tick.Symbol] = price
		s.mu.Unlock()
	}
}

// LastPrice returns the cached price for a symbol, if any tick arrived.
func (s *QuoteStream) LastPrice(symbol string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[symbol]
	return price, ok
}
