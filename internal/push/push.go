// Package push delivers device notifications to donors through a multicast
// push provider. The provider is a narrow interface so matching can run
// against the HTTP implementation, the no-op implementation used when no
// credentials are configured, or a fake in tests.
package push

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable means the provider could not accept the batch
	// (not configured, unreachable, or rejected the call as a whole).
	ErrUnavailable = errors.New("push provider unavailable")
	// ErrTimeout means the provider did not answer within the deadline.
	ErrTimeout = errors.New("push provider timeout")
)

// Message is the payload sent to every token of a batch.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Failure describes one token the provider refused.
type Failure struct {
	Token  string
	Reason string
}

// BatchResult is the per-token outcome of a multicast send.
type BatchResult struct {
	SuccessCount int
	FailureCount int
	Failures     []Failure
}

// Provider sends one message to many device tokens in a single call.
type Provider interface {
	SendMulticast(ctx context.Context, tokens []string, msg Message) (BatchResult, error)
}

// Noop is the provider used when push credentials are absent. Every send
// reports ErrUnavailable so callers count the batch as skipped.
type Noop struct{}

func (Noop) SendMulticast(context.Context, []string, Message) (BatchResult, error) {
	return BatchResult{}, ErrUnavailable
}
