package approval

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"autotrader/src/model"
)

// TelegramChannel sends approval prompts over the Telegram bot API and polls
// getUpdates for Y/N answers. Replies are matched back to requests either by
// the signal number quoted in the reply ("Y 12") or, for a bare "Y"/"N", to
// the oldest outstanding request.
type TelegramChannel struct {
	chatID      string
	poll        time.Duration
	pollTimeout int
	http        *resty.Client

	mu           sync.Mutex
	outstanding  []pendingRequest
	lastUpdateID int64

	responses chan Response
}

type pendingRequest struct {
	requestID string
	signalID  uint
	sentAt    time.Time
}

type tgSendResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

type tgUpdatesResponse struct {
	OK     bool `json:"ok"`
	Result []struct {
		UpdateID int64 `json:"update_id"`
		Message  struct {
			Text string `json:"text"`
			Chat struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
	} `json:"result"`
}

func NewTelegramChannel(config Config, botToken string) *TelegramChannel {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(config.BaseURL, "/") + "/bot" + botToken).
		SetTimeout(time.Duration(config.PollTimeout+10) * time.Second).
		SetRetryCount(2)

	return &TelegramChannel{
		chatID:      config.ChatID,
		poll:        config.PollInterval,
		pollTimeout: config.PollTimeout,
		http:        httpClient,
		responses:   make(chan Response, 16),
	}
}

func (c *TelegramChannel) Responses() <-chan Response {
	return c.responses
}

// SendRequest posts the approval prompt and registers the correlation id.
func (c *TelegramChannel) SendRequest(ctx context.Context, signal *model.Signal) (string, error) {
	requestID := uuid.NewString()

	total := signal.Price.Mul(decimalFromInt(signal.Quantity))
	remaining := time.Until(signal.ExpiresAt).Round(time.Minute)
	text := fmt.Sprintf(
		"*TRADE APPROVAL #%d*\n\nAction: *%s*\nStock: *%s*\nPrice: $%s\nShares: %d\nTotal: $%s\n\nReason: %s\n\nReply:\n  *Y %d* - Approve\n  *N %d* - Reject\n\n_Expires in %s_",
		signal.ID, signal.Side, signal.Symbol, signal.Price.StringFixed(2),
		signal.Quantity, total.StringFixed(2), signal.Reason,
		signal.ID, signal.ID, remaining,
	)

	if err := c.sendMessage(ctx, text); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.outstanding = append(c.outstanding, pendingRequest{
		requestID: requestID,
		signalID:  signal.ID,
		sentAt:    time.Now().UTC(),
	})
	c.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"signal_id":  signal.ID,
		"request_id": requestID,
	}).Info("approval request sent")
	return requestID, nil
}

func (c *TelegramChannel) sendMessage(ctx context.Context, text string) error {
	var out tgSendResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id":    c.chatID,
			"text":       text,
			"parse_mode": "Markdown",
		}).
		SetResult(&out).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	if resp.IsError() || !out.OK {
		return fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// NotifyExecution sends a fill confirmation.
func (c *TelegramChannel) NotifyExecution(ctx context.Context, trade *model.Trade) error {
	total := trade.FillPrice.Mul(decimalFromInt(trade.Quantity))
	text := fmt.Sprintf(
		"*ORDER EXECUTED*\n\n%s %dx %s\n@ $%s\nTotal: $%s",
		trade.Side, trade.Quantity, trade.Symbol,
		trade.FillPrice.StringFixed(2), total.StringFixed(2),
	)
	return c.sendMessage(ctx, text)
}

// NotifyAlert sends an operator alert (stop-loss breach, pause, failed
// execution).
func (c *TelegramChannel) NotifyAlert(ctx context.Context, text string) error {
	return c.sendMessage(ctx, text)
}

// Poll runs the getUpdates loop until ctx is cancelled, emitting normalized
// decisions on Responses.
func (c *TelegramChannel) Poll(ctx context.Context) {
	defer close(c.responses)

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.fetchUpdates(ctx); err != nil {
				logger.WithError(err).Warn("failed to poll telegram updates")
			}
		}
	}
}

func (c *TelegramChannel) fetchUpdates(ctx context.Context) error {
	c.mu.Lock()
	offset := c.lastUpdateID
	c.mu.Unlock()

	var out tgUpdatesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"offset":  strconv.FormatInt(offset, 10),
			"timeout": strconv.Itoa(c.pollTimeout),
		}).
		SetResult(&out).
		Get("/getUpdates")
	if err != nil {
		return err
	}
	if resp.IsError() || !out.OK {
		return fmt.Errorf("telegram API error: status %d", resp.StatusCode())
	}

	for _, update := range out.Result {
		c.mu.Lock()
		c.lastUpdateID = update.UpdateID + 1
		c.mu.Unlock()

		if strconv.FormatInt(update.Message.Chat.ID, 10) != c.chatID {
			// Only the configured chat may approve trades.
			continue
		}
		c.handleReply(update.Message.Text)
	}
	return nil
}

// handleReply parses an approval reply. Recognized forms: "Y", "YES",
// "APPROVE", "N", "NO", "REJECT", each optionally followed by a signal
// number.
func (c *TelegramChannel) handleReply(text string) {
	fields := strings.Fields(strings.ToUpper(strings.TrimSpace(text)))
	if len(fields) == 0 {
		return
	}

	var decision Decision
	switch fields[0] {
	case "Y", "YES", "APPROVE":
		decision = DecisionApproved
	case "N", "NO", "REJECT":
		decision = DecisionRejected
	default:
		return
	}

	var signalID uint
	if len(fields) > 1 {
		n, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return
		}
		signalID = uint(n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	if signalID != 0 {
		for i := range c.outstanding {
			if c.outstanding[i].signalID == signalID {
				idx = i
				break
			}
		}
	} else if len(c.outstanding) > 0 {
		idx = 0 // bare Y/N answers the oldest outstanding request
	}
	if idx < 0 {
		logger.WithField("text", text).Info("approval reply without matching request, discarded")
		return
	}

	req := c.outstanding[idx]
	c.outstanding = append(c.outstanding[:idx], c.outstanding[idx+1:]...)

	select {
	case c.responses <- Response{RequestID: req.requestID, Decision: decision}:
	default:
		logger.Warn("approval response channel full, dropping reply")
	}
}
