package llm

import "context"

// Completer generates reply text from an ordered sequence of role-tagged
// messages. Implementations call out to an external service synchronously.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// CompleterFunc adapts a plain function to the Completer interface.
type CompleterFunc func(ctx context.Context, messages []Message) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}
