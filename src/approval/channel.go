package approval

import (
	"context"

	"autotrader/src/model"
)

// Decision is a normalized approval outcome. TimedOut is synthesized locally
// by the expiry sweep, never delivered by the channel.
type Decision string

const (
	DecisionApproved Decision = "Approved"
	DecisionRejected Decision = "Rejected"
)

// Response is an asynchronous approval event correlated by request id.
type Response struct {
	RequestID string
	Decision  Decision
}

// Channel delivers approval requests to a human and surfaces their answers
// as events. SendRequest must not block on the human; responses arrive on
// Responses at the responder's own pace.
type Channel interface {
	// SendRequest delivers the approval prompt for a signal and returns
	// the correlation id for its eventual response.
	SendRequest(ctx context.Context, signal *model.Signal) (string, error)

	// Responses streams normalized decisions. The channel closes it when
	// its polling loop stops.
	Responses() <-chan Response
}

// Notifier carries the operator-facing messages that are not approvals.
type Notifier interface {
	NotifyExecution(ctx context.Context, trade *model.Trade) error
	NotifyAlert(ctx context.Context, text string) error
}
