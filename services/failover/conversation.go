package failover

import (
	"github.com/upb/bedrock-failover-router/services/providers"
)

// Generation defaults applied when a request omits them
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
)

// Conversation is an ordered list of turn texts. Roles are never stored:
// even positions are the user, odd positions the assistant.
type Conversation []string

// RoleAt returns the role of the turn at index i
func RoleAt(i int) string {
	if i%2 == 0 {
		return providers.RoleUser
	}
	return providers.RoleAssistant
}

// BuildMessages converts a conversation to upstream messages
func BuildMessages(conv Conversation) []providers.Message {
	messages := make([]providers.Message, len(conv))
	for i, text := range conv {
		messages[i] = providers.TextMessage(RoleAt(i), text)
	}
	return messages
}

// GenerationParams are the per-request sampling settings
type GenerationParams struct {
	Temperature float64
	MaxTokens   int
}

// DefaultGenerationParams returns temperature 0.7 and 1024 max tokens
func DefaultGenerationParams() GenerationParams {
	return GenerationParams{
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}
