package brokerage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultRetryAttempts   = 4
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

// RESTClient is the production brokerage implementation. It speaks a plain
// JSON order API authenticated with an HMAC-SHA256 signature header.
type RESTClient struct {
	apiKey    string
	apiSecret string
	http      *resty.Client
}

func NewRESTClient(config Config) *RESTClient {
	baseURL := strings.TrimRight(config.BaseURL, "/")

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(config.Timeout).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &RESTClient{
		apiKey:    config.APIKey,
		apiSecret: config.APISecret,
		http:      httpClient,
	}
}

// isRetryableResp retries network errors, 429 and 5xx. Auth failures are
// never retried.
func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

type orderResponse struct {
	ClientOrderID string `json:"client_order_id"`
	Status        string `json:"status"`
	FilledQty     string `json:"filled_qty"`
	FillPrice     string `json:"filled_avg_price"`
}

type quoteResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type positionResponse struct {
	Symbol string `json:"symbol"`
	Qty    string `json:"qty"`
}

// sign produces the request signature: HMAC-SHA256(secret, timestamp+method+path+body).
func (c *RESTClient) sign(method, path, body, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *RESTClient) authHeaders(method, path, body string) map[string]string {
	timestamp := strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)
	return map[string]string{
		"X-API-Key":   c.apiKey,
		"X-Timestamp": timestamp,
		"X-Signature": c.sign(method, path, body, timestamp),
	}
}

func (c *RESTClient) SubmitOrder(ctx context.Context, clientOrderID, symbol, side string, qty int64) error {
	path := "/v1/orders"
	body := fmt.Sprintf(`{"client_order_id":%q,"symbol":%q,"side":%q,"qty":%d,"type":"market","time_in_force":"day"}`,
		clientOrderID, symbol, strings.ToLower(side), qty)

	logger.WithFields(map[string]interface{}{
		"client_order_id": clientOrderID,
		"symbol":          symbol,
		"side":            side,
		"qty":             qty,
	}).Info("submitting order to brokerage")

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.authHeaders(http.MethodPost, path, body)).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		return &TransientError{Op: "SubmitOrder", Err: err}
	}
	if resp.IsError() {
		return classifyStatus("SubmitOrder", resp.StatusCode(),
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	return nil
}

func (c *RESTClient) GetOrderStatus(ctx context.Context, clientOrderID string) (*OrderState, error) {
	path := "/v1/orders/by-client-id/" + clientOrderID

	var out orderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.authHeaders(http.MethodGet, path, "")).
		SetResult(&out).
		Get(path)
	if err != nil {
		return nil, &TransientError{Op: "GetOrderStatus", Err: err}
	}
	if resp.IsError() {
		return nil, classifyStatus("GetOrderStatus", resp.StatusCode(),
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	state := &OrderState{Status: normalizeStatus(out.Status)}
	if out.FilledQty != "" {
		qty, err := strconv.ParseInt(out.FilledQty, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad filled_qty %q: %w", out.FilledQty, err)
		}
		state.FilledQty = qty
	}
	if out.FillPrice != "" {
		price, err := decimal.NewFromString(out.FillPrice)
		if err != nil {
			return nil, fmt.Errorf("bad filled_avg_price %q: %w", out.FillPrice, err)
		}
		state.FillPrice = price
	}
	return state, nil
}

func (c *RESTClient) GetQuote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	path := "/v1/quotes/" + symbol

	var out quoteResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.authHeaders(http.MethodGet, path, "")).
		SetResult(&out).
		Get(path)
	if err != nil {
		return decimal.Zero, &TransientError{Op: "GetQuote", Err: err}
	}
	if resp.IsError() {
		return decimal.Zero, classifyStatus("GetQuote", resp.StatusCode(),
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	return decimal.NewFromString(out.Price)
}

func (c *RESTClient) GetPosition(ctx context.Context, symbol string) (int64, error) {
	path := "/v1/positions/" + symbol

	var out positionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.authHeaders(http.MethodGet, path, "")).
		SetResult(&out).
		Get(path)
	if err != nil {
		return 0, &TransientError{Op: "GetPosition", Err: err}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return 0, nil
	}
	if resp.IsError() {
		return 0, classifyStatus("GetPosition", resp.StatusCode(),
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	return strconv.ParseInt(out.Qty, 10, 64)
}

func normalizeStatus(raw string) string {
	switch strings.ToLower(raw) {
	case "filled":
		return OrderStatusFilled
	case "partially_filled", "partial":
		return OrderStatusPartial
	case "rejected":
		return OrderStatusRejected
	case "cancelled", "canceled", "expired":
		return OrderStatusCancelled
	default:
		return OrderStatusPending
	}
}
