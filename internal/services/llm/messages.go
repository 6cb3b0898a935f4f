// Package llm provides the chat backends used by the AI email classifier.
package llm

import (
	"fmt"

	"github.com/ternarybob/optout/internal/interfaces"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// splitSystem validates a conversation and separates the first system prompt
// from the user/assistant turns. Unknown roles are treated as user turns.
func splitSystem(messages []interfaces.Message) ([]interfaces.Message, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	var (
		system  string
		turns   = make([]interfaces.Message, 0, len(messages))
		hasUser bool
	)
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if system == "" {
				system = msg.Content
			}
			continue
		case RoleAssistant:
		default:
			msg.Role = RoleUser
			hasUser = true
		}
		turns = append(turns, msg)
	}

	if !hasUser {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}
	return turns, system, nil
}
