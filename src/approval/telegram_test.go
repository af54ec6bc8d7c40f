package approval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"autotrader/src/model"
)

func newTestChannel(baseURL string) *TelegramChannel {
	return NewTelegramChannel(Config{
		ChatID:       "42",
		BaseURL:      baseURL,
		PollInterval: time.Second,
		PollTimeout:  1,
	}, "test-token")
}

func pending(c *TelegramChannel, requestID string, signalID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outstanding = append(c.outstanding, pendingRequest{
		requestID: requestID,
		signalID:  signalID,
		sentAt:    time.Now().UTC(),
	})
}

func drain(t *testing.T, c *TelegramChannel) Response {
	t.Helper()
	select {
	case resp := <-c.responses:
		return resp
	default:
		t.Fatal("expected a response on the channel")
		return Response{}
	}
}

func TestHandleReply(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantID   string
		decision Decision
	}{
		{"numbered approve", "Y 7", "req-7", DecisionApproved},
		{"numbered reject", "n 7", "req-7", DecisionRejected},
		{"spelled out", "approve 7", "req-7", DecisionApproved},
		{"reject spelled out", "REJECT 7", "req-7", DecisionRejected},
		{"bare answer hits the oldest", "Y", "req-3", DecisionApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestChannel("http://localhost")
			pending(c, "req-3", 3)
			pending(c, "req-7", 7)

			c.handleReply(tt.text)

			resp := drain(t, c)
			require.Equal(t, tt.wantID, resp.RequestID)
			require.Equal(t, tt.decision, resp.Decision)
		})
	}
}

func TestHandleReplyDiscards(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"unknown verb", "maybe 3"},
		{"non-numeric id", "Y abc"},
		{"no matching signal", "Y 99"},
		{"empty text", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestChannel("http://localhost")
			pending(c, "req-3", 3)

			c.handleReply(tt.text)

			select {
			case resp := <-c.responses:
				t.Fatalf("unexpected response %+v", resp)
			default:
			}
			require.Len(t, c.outstanding, 1, "request must stay outstanding")
		})
	}
}

func TestHandleReplyBareAnswerWithNothingOutstanding(t *testing.T) {
	c := newTestChannel("http://localhost")
	c.handleReply("Y")
	select {
	case resp := <-c.responses:
		t.Fatalf("unexpected response %+v", resp)
	default:
	}
}

func TestSendRequestRegistersCorrelationID(t *testing.T) {
	var sent map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer srv.Close()

	c := newTestChannel(srv.URL)
	signal := &model.Signal{
		Symbol:    "AAPL",
		Side:      model.SideBuy,
		Quantity:  10,
		Price:     decimal.NewFromInt(10),
		Reason:    "RSI 25.0 oversold",
		ExpiresAt: time.Now().UTC().Add(15 * time.Minute),
	}
	signal.ID = 12

	requestID, err := c.SendRequest(context.Background(), signal)
	require.NoError(t, err)
	require.NotEmpty(t, requestID)

	require.Equal(t, "42", sent["chat_id"])
	require.Contains(t, sent["text"], "TRADE APPROVAL #12")
	require.Contains(t, sent["text"], "Y 12")

	c.handleReply("Y 12")
	resp := drain(t, c)
	require.Equal(t, requestID, resp.RequestID)
	require.Equal(t, DecisionApproved, resp.Decision)
}

func TestSendRequestSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false}`))
	}))
	defer srv.Close()

	c := newTestChannel(srv.URL)
	signal := &model.Signal{Symbol: "AAPL", Side: model.SideBuy, Quantity: 1,
		Price: decimal.NewFromInt(10), ExpiresAt: time.Now().UTC()}

	_, err := c.SendRequest(context.Background(), signal)
	require.Error(t, err)
	require.Empty(t, c.outstanding, "failed sends must not register a request")
}

func TestFetchUpdatesFiltersForeignChats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottest-token/getUpdates", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":[
			{"update_id":100,"message":{"text":"Y 3","chat":{"id":999}}},
			{"update_id":101,"message":{"text":"Y 3","chat":{"id":42}}}
		]}`))
	}))
	defer srv.Close()

	c := newTestChannel(srv.URL)
	pending(c, "req-3", 3)

	require.NoError(t, c.fetchUpdates(context.Background()))

	resp := drain(t, c)
	require.Equal(t, "req-3", resp.RequestID)
	require.EqualValues(t, 102, c.lastUpdateID, "offset must advance past consumed updates")
}
