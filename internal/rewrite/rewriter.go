// Package rewrite wraps the external LLM rewriting capability behind a
// small interface. It owns the structured-response contract, the failure
// taxonomy consumed by the retry layer, and the OpenAI-backed client.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies a rewrite failure for the retry policy.
type FailureKind string

const (
	// FailureTransient covers rate limits, timeouts, server faults and
	// connection errors. Only these are retryable.
	FailureTransient FailureKind = "transient"
	// FailurePermanent covers auth, invalid requests, content policy
	// rejections and malformed structured responses.
	FailurePermanent FailureKind = "permanent"
)

// Error is a classified rewrite failure.
type Error struct {
	Kind       FailureKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s rewrite failure (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s rewrite failure: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewTransient wraps err as a retryable failure.
func NewTransient(message string, err error) *Error {
	return &Error{Kind: FailureTransient, Message: message, Err: err}
}

// NewPermanent wraps err as a non-retryable failure.
func NewPermanent(message string, err error) *Error {
	return &Error{Kind: FailurePermanent, Message: message, Err: err}
}

// IsTransient reports whether err is a classified transient failure.
// Unclassified errors are treated as permanent so that unknown faults
// never loop in the retry policy.
func IsTransient(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind == FailureTransient
	}
	return false
}

// Request is one rewrite of one row's target column value.
type Request struct {
	// Model identifier, e.g. "gpt-5-chat-latest".
	Model string
	// Text is the original HTML content to rewrite.
	Text string
	// RequestID is set by the caller for tracing; generated when empty.
	RequestID string
}

// Response is the successful result of a rewrite call.
type Response struct {
	RewrittenHTML string
	ModelUsed     string
	RequestID     string

	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	Duration         time.Duration
}

// Rewriter is the boundary to the external rewriting capability.
// Implementations must be safe for concurrent use.
type Rewriter interface {
	// Rewrite sends one row's text and returns the rewritten value or a
	// classified *Error.
	Rewrite(ctx context.Context, req *Request) (*Response, error)

	// Name returns the client identifier (e.g. "openai").
	Name() string
}
