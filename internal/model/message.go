// ABOUTME: Core message types shared by the client core and the gateway
// ABOUTME: Messages are flat and causally linked; threads are derived, never stored

package model

import "time"

// MessageType distinguishes who authored a message.
type MessageType string

const (
	MessageTypeUser  MessageType = "user"
	MessageTypeAgent MessageType = "agent"
)

// MessageStatus tracks a message through its delivery lifecycle.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusFailed    MessageStatus = "failed"
	StatusStreaming MessageStatus = "streaming"
)

// Message is the unit of conversation. IDs are minted client-side and echoed
// verbatim by the gateway, so the same id identifies a message everywhere it
// travels. ThreadDepth is 0 exactly when the message starts a thread.
type Message struct {
	ID              string            `json:"id"`
	ConversationID  string            `json:"conversationId"`
	SenderID        string            `json:"senderId"`
	SenderName      string            `json:"senderName,omitempty"`
	Type            MessageType       `json:"messageType"`
	Content         string            `json:"content"`
	Timestamp       time.Time         `json:"timestamp"`
	Status          MessageStatus     `json:"status,omitempty"`
	ParentMessageID string            `json:"parentMessageId,omitempty"`
	ThreadRootID    string            `json:"threadRootId,omitempty"`
	ThreadDepth     int               `json:"threadDepth,omitempty"`
	Streaming       bool              `json:"isStreaming,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// IsRoot reports whether the message starts a thread.
func (m Message) IsRoot() bool {
	return m.ThreadDepth == 0
}

// RootID returns the thread root this message belongs to: itself for roots,
// the declared root (or the parent, for legacy messages that never set one)
// for replies.
func (m Message) RootID() string {
	if m.IsRoot() {
		return m.ID
	}
	if m.ThreadRootID != "" {
		return m.ThreadRootID
	}
	return m.ParentMessageID
}
