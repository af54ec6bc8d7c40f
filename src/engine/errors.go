package engine

import (
	"errors"
	"fmt"
)

// ErrExecutionsHalted is returned while the engine refuses new work after a
// fatal brokerage error.
var ErrExecutionsHalted = errors.New("new executions halted after fatal brokerage error")

// InvariantViolationError rejects a candidate that would break a portfolio
// rule. The signal is never created; nothing reaches the brokerage.
type InvariantViolationError struct {
	Rule   string
	Reason string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation (%s): %s", e.Rule, e.Reason)
}

func violation(rule, format string, args ...interface{}) error {
	return &InvariantViolationError{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

// IsInvariantViolation reports whether err is an InvariantViolationError
// anywhere in its chain.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolationError
	return errors.As(err, &iv)
}
