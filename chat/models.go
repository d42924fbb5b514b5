package chat

import (
	"errors"
)

const (
	// CompareMode searches every party and asks for a comparison.
	CompareMode = "compare"

	RoleUser      = "user"
	RoleAssistant = "assistant"

	// HistoryTurns is how many trailing messages are forwarded to the model.
	HistoryTurns = 5
)

var ErrInvalidRequest = errors.New("invalid request")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Messages []Message `json:"messages"`
	PartyID  string    `json:"partyId"`
}

// Fragment is one piece of streamed answer text. A fragment with Err set is
// the last one sent on its channel.
type Fragment struct {
	Text string
	Err  error
}

func lastTurns(messages []Message, n int) []Message {
	if len(messages) <= n {
		return messages
	}

	return messages[len(messages)-n:]
}
