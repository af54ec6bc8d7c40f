package brokerage

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrOrderNotFound means the brokerage has no order for the given client
// order id — for recovery this proves the submission never arrived.
var ErrOrderNotFound = errors.New("order not found at brokerage")

// TransientError marks a brokerage failure worth retrying with backoff:
// timeouts, rate limits, 5xx responses.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient brokerage error in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks an authentication or permission failure. Not retried;
// new executions halt until an operator intervenes.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal brokerage error in %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// classifyStatus wraps an HTTP failure into the retry taxonomy.
func classifyStatus(op string, code int, err error) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &FatalError{Op: op, Err: err}
	case http.StatusNotFound:
		return ErrOrderNotFound
	}
	return &TransientError{Op: op, Err: err}
}

// IsFatal reports whether err is a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
