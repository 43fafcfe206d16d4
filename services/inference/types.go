package inference

import (
	"github.com/upb/bedrock-failover-router/services/failover"
	"github.com/upb/bedrock-failover-router/services/providers"
)

// InvokeRequest is the inbound request body
type InvokeRequest struct {
	// Turn texts; roles alternate from "user" at index 0
	Contents []string `json:"contents" validate:"required,min=1"`

	// Optional generation parameters. MaxTokens is sent upstream as int32;
	// the valid temperature range is model specific and left to the provider.
	MaxTokens   *int     `json:"max_tokens,omitempty" validate:"omitempty,gt=0,lte=2147483647"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0"`
}

// Params resolves the request's generation parameters against the defaults
func (r *InvokeRequest) Params() failover.GenerationParams {
	params := failover.DefaultGenerationParams()
	if r.MaxTokens != nil {
		params.MaxTokens = *r.MaxTokens
	}
	if r.Temperature != nil {
		params.Temperature = *r.Temperature
	}
	return params
}

// InvokeResponse is the success body
type InvokeResponse struct {
	Message providers.Message `json:"message"`
}
