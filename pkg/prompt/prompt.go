// Package prompt assembles the message sequence sent to the completion service.
package prompt

import (
	"github.com/papercomputeco/callflow/pkg/llm"
)

// DefaultPersona is the instruction entry placed ahead of every conversation.
const DefaultPersona = `You are Instant Alfred, a helpful insurance agent working for insurancemarket.ae.
You are given a conversation history and a new message.
You need to respond to the new message based on the conversation history.
You are given the following information:
- The conversation history
- The new message

Try to keep the response short and concise and human like with a touch of humor.
Don't indulge in any other conversation except the one related to insurance.`

// Build returns the persona, then each historical turn as a user/assistant
// pair oldest first, then the current message. An empty persona falls back to
// DefaultPersona.
func Build(persona string, history []llm.Turn, current string) []llm.Message {
	if persona == "" {
		persona = DefaultPersona
	}

	messages := make([]llm.Message, 0, 2+2*len(history))
	messages = append(messages, llm.SystemMessage(persona))
	for _, t := range history {
		messages = append(messages,
			llm.UserMessage(t.Request),
			llm.AssistantMessage(t.Response),
		)
	}
	messages = append(messages, llm.UserMessage(current))

	return messages
}
