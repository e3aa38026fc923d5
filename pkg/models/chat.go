package models

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageKind tags where a chat message came from.
type MessageKind string

const (
	// KindConfirmed messages come from the server's chat history.
	KindConfirmed MessageKind = "confirmed"
	// KindOptimistic messages are local echoes of a send awaiting confirmation.
	KindOptimistic MessageKind = "optimistic"
	// KindGreeting is the local seed shown when the history is empty.
	// It is never sent to the server.
	KindGreeting MessageKind = "greeting"
)

// ChatMessage is one entry of the assistant conversation.
type ChatMessage struct {
	ID        int64       `json:"id"`
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	Timestamp Timestamp   `json:"timestamp"`
	Kind      MessageKind `json:"kind,omitempty"`
}

// ChatQuery is the request body of POST /api/chatbot.
type ChatQuery struct {
	Query string `json:"query"`
}

// ChatReply is the response body of POST /api/chatbot.
type ChatReply struct {
	Response string `json:"response"`
}
