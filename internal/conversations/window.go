package conversations

import "github.com/haasonsaas/steward/pkg/models"

// DefaultWindowSize is how many recent messages a reasoning turn sees.
const DefaultWindowSize = 20

// Snippet is one history entry shaped for the inference request: just the
// author and text, none of the storage fields.
type Snippet struct {
	Role    models.Role
	Content string
}

// Window returns the last n messages as snippets, oldest first. Messages
// are taken whole; there is no partial truncation. Conversations shorter
// than n yield everything.
func Window(msgs []*models.Message, n int) []Snippet {
	if n <= 0 {
		n = DefaultWindowSize
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}

	window := make([]Snippet, 0, len(msgs))
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		window = append(window, Snippet{Role: msg.Role, Content: msg.Content})
	}
	return window
}
