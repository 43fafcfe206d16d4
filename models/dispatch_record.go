package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DispatchStatus is the terminal state of a handled request
type DispatchStatus string

const (
	DispatchStatusSucceeded DispatchStatus = "succeeded"
	DispatchStatusExhausted DispatchStatus = "exhausted"
	DispatchStatusFailed    DispatchStatus = "failed"
)

// AttemptEntry is one element of the persisted attempt trail
type AttemptEntry struct {
	ModelID string `json:"model_id"`
	Region  string `json:"region"`
	Number  int    `json:"number"`
	Outcome string `json:"outcome"`
}

// DispatchRecord is the audit row written for every dispatch
type DispatchRecord struct {
	ID                  uuid.UUID       `json:"id" db:"id"`
	RequestID           string          `json:"request_id" db:"request_id"`
	Status              DispatchStatus  `json:"status" db:"status"`
	ModelID             *string         `json:"model_id,omitempty" db:"model_id"`
	Region              *string         `json:"region,omitempty" db:"region"`
	Attempts            int             `json:"attempts" db:"attempts"`
	RateLimitedAttempts int             `json:"rate_limited_attempts" db:"rate_limited_attempts"`
	LatencyMs           int             `json:"latency_ms" db:"latency_ms"`
	InputTokens         *int            `json:"input_tokens,omitempty" db:"input_tokens"`
	OutputTokens        *int            `json:"output_tokens,omitempty" db:"output_tokens"`
	ErrorMessage        *string         `json:"error_message,omitempty" db:"error_message"`
	Trail               json.RawMessage `json:"trail,omitempty" db:"trail"` // JSONB attempt list
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the DispatchRecord model
func (DispatchRecord) TableName() string {
	return "dispatch_records"
}

// NewDispatchRecord creates a new DispatchRecord instance
func NewDispatchRecord(requestID string, status DispatchStatus) *DispatchRecord {
	return &DispatchRecord{
		ID:        uuid.New(),
		RequestID: requestID,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}

// WithTarget sets the model and region that produced the terminal outcome
func (r *DispatchRecord) WithTarget(modelID, region string) *DispatchRecord {
	if modelID != "" {
		r.ModelID = &modelID
	}
	if region != "" {
		r.Region = &region
	}
	return r
}

// WithAttempts stores the attempt trail and its counters
func (r *DispatchRecord) WithAttempts(trail []AttemptEntry, rateLimited int) *DispatchRecord {
	r.Attempts = len(trail)
	r.RateLimitedAttempts = rateLimited
	if data, err := json.Marshal(trail); err == nil {
		r.Trail = data
	}
	return r
}

// WithLatency sets the total dispatch latency
func (r *DispatchRecord) WithLatency(d time.Duration) *DispatchRecord {
	r.LatencyMs = int(d.Milliseconds())
	return r
}

// WithUsage sets token usage reported by the winning target
func (r *DispatchRecord) WithUsage(inputTokens, outputTokens int) *DispatchRecord {
	r.InputTokens = &inputTokens
	r.OutputTokens = &outputTokens
	return r
}

// WithError sets the error message
func (r *DispatchRecord) WithError(message string) *DispatchRecord {
	r.ErrorMessage = &message
	return r
}

// IsSuccess reports whether the dispatch produced a response
func (r *DispatchRecord) IsSuccess() bool {
	return r.Status == DispatchStatusSucceeded
}
