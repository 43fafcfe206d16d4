package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Conversation roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Client is a handle to one region's inference endpoint. Implementations
// must be safe for concurrent use.
type Client interface {
	// Region returns the region this client is bound to
	Region() string

	// Converse performs exactly one chat call, with no retries of its own
	Converse(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// ClientFactory builds the client for a region.
type ClientFactory func(ctx context.Context, region string) (Client, error)

// ChatRequest is a single upstream call
type ChatRequest struct {
	// ModelID is the upstream model identifier
	ModelID string `json:"model_id"`

	// Messages in the conversation, oldest first
	Messages []Message `json:"messages"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens"`

	// Temperature controls randomness
	Temperature float64 `json:"temperature"`
}

// Message is one conversation turn
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a piece of message content. Only text is produced.
type ContentBlock struct {
	Text string `json:"text"`
}

// TextMessage builds a single-block message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Text: text}}}
}

// ChatResponse is a successful upstream reply
type ChatResponse struct {
	// Message is the assistant reply as returned upstream
	Message Message `json:"message"`

	// StopReason reports why generation ended
	StopReason string `json:"stop_reason,omitempty"`

	// Usage statistics
	Usage Usage `json:"usage"`

	// Latency of the upstream call
	Latency time.Duration `json:"-"`
}

// Usage represents token usage statistics
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Region the call was sent to
	Region string

	// Code is the upstream error code, e.g. ThrottlingException
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Throttled marks throttling and quota conditions
	Throttled bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, region, code, message string, statusCode int, throttled bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Region:     region,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Throttled:  throttled,
		Cause:      cause,
	}
}

// IsThrottling reports whether err is a throttling or quota condition
func IsThrottling(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Throttled
	}
	return false
}

// ConnectionError reports that a region's client could not be built
type ConnectionError struct {
	Region string
	Err    error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to create client for region %q: %v", e.Region, e.Err)
}

// Unwrap implements error unwrapping
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError checks if an error is a ConnectionError
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
