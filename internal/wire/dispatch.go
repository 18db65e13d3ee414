// ABOUTME: Exhaustive dispatchers for inbound and outbound frame handling
// ABOUTME: A new frame type forces a new interface method, not a silent default

package wire

import "fmt"

// InboundHandler receives frames a client can see. Implementations get a
// method per frame type so the compiler flags any frame left unhandled.
type InboundHandler interface {
	HandleNewMessage(NewMessage)
	HandleMessageDelivered(MessageDelivered)
	HandleStreamingStarted(StreamingStarted)
	HandleStreamingChunk(StreamingChunk)
	HandleStreamingCompleted(StreamingCompleted)
	HandleStreamingCancelled(StreamingCancelled)
	HandleTypingIndicator(TypingIndicator)
}

// OutboundHandler receives frames a gateway can see.
type OutboundHandler interface {
	HandleJoinConversation(JoinConversation)
	HandleSendMessageStreaming(SendMessageStreaming)
	HandleCancelStreaming(CancelStreaming)
}

// DispatchInbound routes a frame to the matching handler method. Outbound
// frame types arriving at a client are a protocol violation.
func DispatchInbound(f Frame, h InboundHandler) error {
	switch fr := f.(type) {
	case NewMessage:
		h.HandleNewMessage(fr)
	case MessageDelivered:
		h.HandleMessageDelivered(fr)
	case StreamingStarted:
		h.HandleStreamingStarted(fr)
	case StreamingChunk:
		h.HandleStreamingChunk(fr)
	case StreamingCompleted:
		h.HandleStreamingCompleted(fr)
	case StreamingCancelled:
		h.HandleStreamingCancelled(fr)
	case TypingIndicator:
		h.HandleTypingIndicator(fr)
	default:
		return fmt.Errorf("%w: %s is not an inbound frame", ErrUnknownFrame, f.FrameType())
	}
	return nil
}

// DispatchOutbound routes a frame to the matching gateway handler method.
func DispatchOutbound(f Frame, h OutboundHandler) error {
	switch fr := f.(type) {
	case JoinConversation:
		h.HandleJoinConversation(fr)
	case SendMessageStreaming:
		h.HandleSendMessageStreaming(fr)
	case CancelStreaming:
		h.HandleCancelStreaming(fr)
	default:
		return fmt.Errorf("%w: %s is not an outbound frame", ErrUnknownFrame, f.FrameType())
	}
	return nil
}
