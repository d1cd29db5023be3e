// Package chatstream implements the chat stream reconciliation and
// message-transcoding pipeline: it consumes server-sent chat events, assigns
// stable ordering and slot identity to turns, translates message content
// between the wire schema and the internal UI schema, and stitches paginated
// history fetches back together so a question and its answer never split
// across a page boundary.
package chatstream

import "fmt"

// RawEvent is an opaque server-sent event as delivered by the transport.
// Data is JSON-encoded and may fail to parse.
type RawEvent struct {
	Event string
	Data  string
}

// Inbound event kinds consumed by the decoder. Anything else is ignored and
// counted (see Decoder.IgnoredEvents).
const (
	EventError            = "error"
	EventDone             = "done"
	EventMessageDelta     = "conversation.message.delta"
	EventMessageCompleted = "conversation.message.completed"
	EventChatCompleted    = "conversation.chat.completed"
	EventChatCreated      = "conversation.chat.created"
	EventChatFailed       = "conversation.chat.failed"
)

// StreamError is a transport-terminal failure reported by the server. It
// aborts the stream and is surfaced to the user; retry is a caller concern.
type StreamError struct {
	Code int
	Msg  string
}

func (e *StreamError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("chat stream failed: %s (code %d)", e.Msg, e.Code)
	}
	return "chat stream failed: " + e.Msg
}
