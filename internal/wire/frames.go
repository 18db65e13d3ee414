// ABOUTME: Closed set of realtime channel frames and their JSON envelope codec
// ABOUTME: Adding a frame type means extending the dispatcher, checked at compile time

package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cohortlabs/cohort/internal/model"
)

// ErrUnknownFrame is returned by Decode for frame types outside the closed
// set. Callers log and ignore; an unknown frame must never corrupt state.
var ErrUnknownFrame = errors.New("unknown frame type")

// Frame type discriminators as they appear on the wire.
const (
	TypeJoinConversation     = "join_conversation"
	TypeSendMessageStreaming = "send_message_streaming"
	TypeCancelStreaming      = "cancel_streaming"
	TypeNewMessage           = "new_message"
	TypeMessageDelivered     = "message_delivered"
	TypeStreamingStarted     = "streaming_started"
	TypeStreamingChunk       = "streaming_chunk"
	TypeStreamingCompleted   = "streaming_completed"
	TypeStreamingCancelled   = "streaming_cancelled"
	TypeTypingIndicator      = "typing_indicator"
)

// Frame is the sealed union of everything that travels over the channel.
// Only types in this package implement it.
type Frame interface {
	FrameType() string
	sealed()
}

// JoinConversation subscribes the sending client to a conversation.
type JoinConversation struct {
	ConversationID string `json:"conversationId"`
}

// SendMessageStreaming submits a user message and requests a streamed reply.
// The embedded message id doubles as the idempotency key: the gateway echoes
// it verbatim, so redelivery is suppressed by ordinary dedup-by-id.
type SendMessageStreaming struct {
	ConversationID string        `json:"conversationId"`
	Message        model.Message `json:"message"`
}

// CancelStreaming asks the gateway to stop an in-flight streamed reply.
type CancelStreaming struct {
	MessageID string `json:"messageId"`
}

// NewMessage announces a message appended to a conversation.
type NewMessage struct {
	Message model.Message `json:"message"`
}

// MessageDelivered is the gateway's acknowledgment that a submitted message
// was accepted and persisted.
type MessageDelivered struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// StreamingStarted opens a streamed agent reply. The message id names the
// stream; every subsequent chunk must carry the same id to be applied.
type StreamingStarted struct {
	ConversationID  string `json:"conversationId"`
	MessageID       string `json:"messageId"`
	AgentID         string `json:"agentId"`
	AgentName       string `json:"agentName,omitempty"`
	ParentMessageID string `json:"parentMessageId,omitempty"`
	ThreadRootID    string `json:"threadRootId,omitempty"`
	ThreadDepth     int    `json:"threadDepth,omitempty"`
}

// StreamingChunk carries an incremental update. AccumulatedContent is the
// full content so far, not a delta; receivers replace, never concatenate.
type StreamingChunk struct {
	MessageID          string `json:"messageId"`
	Chunk              string `json:"chunk,omitempty"`
	AccumulatedContent string `json:"accumulatedContent"`
}

// StreamingCompleted closes a stream normally.
type StreamingCompleted struct {
	MessageID string `json:"messageId"`
}

// StreamingCancelled closes a stream after a user-initiated cancel.
type StreamingCancelled struct {
	MessageID string `json:"messageId"`
}

// TypingIndicator is ephemeral presence state; it is never persisted.
type TypingIndicator struct {
	ConversationID string `json:"conversationId"`
	AgentID        string `json:"agentId"`
	IsTyping       bool   `json:"isTyping"`
}

func (JoinConversation) FrameType() string     { return TypeJoinConversation }
func (SendMessageStreaming) FrameType() string { return TypeSendMessageStreaming }
func (CancelStreaming) FrameType() string      { return TypeCancelStreaming }
func (NewMessage) FrameType() string           { return TypeNewMessage }
func (MessageDelivered) FrameType() string     { return TypeMessageDelivered }
func (StreamingStarted) FrameType() string     { return TypeStreamingStarted }
func (StreamingChunk) FrameType() string       { return TypeStreamingChunk }
func (StreamingCompleted) FrameType() string   { return TypeStreamingCompleted }
func (StreamingCancelled) FrameType() string   { return TypeStreamingCancelled }
func (TypingIndicator) FrameType() string      { return TypeTypingIndicator }

func (JoinConversation) sealed()     {}
func (SendMessageStreaming) sealed() {}
func (CancelStreaming) sealed()      {}
func (NewMessage) sealed()           {}
func (MessageDelivered) sealed()     {}
func (StreamingStarted) sealed()     {}
func (StreamingChunk) sealed()       {}
func (StreamingCompleted) sealed()   {}
func (StreamingCancelled) sealed()   {}
func (TypingIndicator) sealed()      {}

// envelope is the outer JSON shape: {"type": "...", "payload": {...}}.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode serializes a frame into its wire envelope.
func Encode(f Frame) ([]byte, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", f.FrameType(), err)
	}
	return json.Marshal(envelope{Type: f.FrameType(), Payload: payload})
}

// Decode parses a wire envelope back into a typed frame. Unknown types
// return ErrUnknownFrame; malformed payloads return a wrapped JSON error.
func Decode(data []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	switch env.Type {
	case TypeJoinConversation:
		return decodePayload[JoinConversation](env)
	case TypeSendMessageStreaming:
		return decodePayload[SendMessageStreaming](env)
	case TypeCancelStreaming:
		return decodePayload[CancelStreaming](env)
	case TypeNewMessage:
		return decodePayload[NewMessage](env)
	case TypeMessageDelivered:
		return decodePayload[MessageDelivered](env)
	case TypeStreamingStarted:
		return decodePayload[StreamingStarted](env)
	case TypeStreamingChunk:
		return decodePayload[StreamingChunk](env)
	case TypeStreamingCompleted:
		return decodePayload[StreamingCompleted](env)
	case TypeStreamingCancelled:
		return decodePayload[StreamingCancelled](env)
	case TypeTypingIndicator:
		return decodePayload[TypingIndicator](env)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, env.Type)
}

func decodePayload[T Frame](env envelope) (Frame, error) {
	var f T
	if len(env.Payload) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(env.Payload, &f); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", env.Type, err)
	}
	return f, nil
}
