package approval

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"autotrader/src/model"
)

// MockChannel is the deterministic approval double used in tests and dry
// runs. Decisions can be scripted per signal side or delivered manually via
// Respond; unscripted requests stay outstanding until they expire.
type MockChannel struct {
	mu        sync.Mutex
	sent      []uint
	requests  map[uint]string // signal id -> request id
	script    map[uint]Decision
	responses chan Response

	alerts []string
}

func NewMockChannel() *MockChannel {
	return &MockChannel{
		requests:  make(map[uint]string),
		script:    make(map[uint]Decision),
		responses: make(chan Response, 16),
	}
}

// Script stages a decision delivered as soon as the request for signalID is
// sent.
func (c *MockChannel) Script(signalID uint, decision Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script[signalID] = decision
}

func (c *MockChannel) SendRequest(_ context.Context, signal *model.Signal) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	requestID := uuid.NewString()
	c.sent = append(c.sent, signal.ID)
	c.requests[signal.ID] = requestID

	if decision, ok := c.script[signal.ID]; ok {
		c.responses <- Response{RequestID: requestID, Decision: decision}
	}
	return requestID, nil
}

func (c *MockChannel) Responses() <-chan Response {
	return c.responses
}

// Respond delivers a decision for a previously sent request.
func (c *MockChannel) Respond(signalID uint, decision Decision) bool {
	c.mu.Lock()
	requestID, ok := c.requests[signalID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	c.responses <- Response{RequestID: requestID, Decision: decision}
	return true
}

// SentSignalIDs reports which signals had approval requests sent.
func (c *MockChannel) SentSignalIDs() []uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *MockChannel) NotifyExecution(context.Context, *model.Trade) error { return nil }

func (c *MockChannel) NotifyAlert(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, text)
	return nil
}

// Alerts returns the alert texts recorded so far.
func (c *MockChannel) Alerts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.alerts))
	copy(out, c.alerts)
	return out
}
