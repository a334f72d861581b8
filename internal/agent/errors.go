package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/haasonsaas/steward/pkg/models"
)

// Sentinel errors for turn execution.
var (
	// ErrNoProvider indicates no inference provider is configured.
	ErrNoProvider = errors.New("no provider configured")

	// ErrMaxToolRounds indicates a turn exceeded its tool round cap.
	ErrMaxToolRounds = errors.New("max tool rounds exceeded")
)

// State is a phase of the per-turn state machine.
type State string

const (
	// StateReceived is the initial state: message accepted, history loading.
	StateReceived State = "received"

	// StateReasoning is active while the provider streams a response.
	StateReasoning State = "reasoning"

	// StateToolCall is active while a requested tool executes.
	StateToolCall State = "tool_call"

	// StateToolResult is active while a tool outcome is folded back into the
	// transcript.
	StateToolResult State = "tool_result"

	// StateResponding is active while the final response is persisted.
	StateResponding State = "responding"

	// StateComplete is the success terminal state.
	StateComplete State = "complete"

	// StateError is the failure terminal state, reachable from any state.
	StateError State = "error"
)

// TurnError wraps a failure with the state and tool round it occurred in.
type TurnError struct {
	State   State
	Round   int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *TurnError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("turn failed in %s (round %d): %s", e.State, e.Round, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("turn failed in %s (round %d): %v", e.State, e.Round, e.Cause)
	}
	return fmt.Sprintf("turn failed in %s (round %d)", e.State, e.Round)
}

// Unwrap returns the underlying error.
func (e *TurnError) Unwrap() error {
	return e.Cause
}

// retryableError is implemented by provider errors that know whether a retry
// can help. Checked through an interface so this package does not depend on
// any concrete provider.
type retryableError interface {
	IsRetryable() bool
}

// completionRetryable reports whether a failed provider call is worth
// retrying. Cancellation and deadline expiry are never retried; errors that
// classify themselves decide; anything else is assumed to be a transient
// transport failure.
func completionRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if dom, ok := models.AsDomainError(err); ok {
		return dom.Kind.Retryable()
	}
	var re retryableError
	if errors.As(err, &re) {
		return re.IsRetryable()
	}
	return true
}
