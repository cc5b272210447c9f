package realtime

import "encoding/json"

// Event names pushed to live connections. These are a stable contract
// for any client; payload shapes live in the emitting services.
const (
	EventNewMessage          = "new-message"
	EventConversationUpdated = "conversation-updated"
	EventNewNotification     = "new-notification"
	EventUserTyping          = "user-typing"
	EventUserStopTyping      = "user-stop-typing"
	EventError               = "error"
)

// Event names accepted from clients.
const (
	ActionJoinConversation  = "join-conversation"
	ActionLeaveConversation = "leave-conversation"
	ActionSendMessage       = "send-message"
	ActionMarkRead          = "mark-read"
	ActionStartTyping       = "start-typing"
	ActionStopTyping        = "stop-typing"
)

// ServerEvent is the envelope written to a connection.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ClientEvent is the envelope read from a connection. Data is decoded
// lazily per event name.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ConversationRef is the payload of every conversation-scoped client
// action.
type ConversationRef struct {
	ConversationId string `json:"conversation_id"`
}

type SendMessagePayload struct {
	ConversationId string `json:"conversation_id"`
	Body           string `json:"body"`
}

type TypingPayload struct {
	ConversationId string `json:"conversation_id"`
	SubjectId      string `json:"subject_id"`
	DisplayName    string `json:"display_name,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func errorEvent(msg string) *ServerEvent {
	return &ServerEvent{
		Event: EventError,
		Data:  ErrorPayload{Message: msg},
	}
}
