package chatstream

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/burpheart/chatwire/pkg/types"
)

// DecoderState tracks the stream lifecycle.
type DecoderState int

const (
	StateStreaming DecoderState = iota
	StateTerminated
)

// defaultFailureMsg is reported when a terminal event carries no usable
// error payload.
const defaultFailureMsg = "send failed"

// RequestEcho is the outbound request data a decoder echoes back into the
// synthesized ack frame.
type RequestEcho struct {
	ConversationID string
	LocalMessageID string
	Query          types.Content
	BotID          string
	BotVersion     string
	SectionID      string
	UserID         string
}

// Decoder is a single-use state machine that turns raw server-sent events
// into normalized frames. One decoder serves exactly one chat request;
// simultaneous requests get independent instances with independent
// sequence and slot counters.
type Decoder struct {
	echo    RequestEcho
	state   DecoderState
	seq     *SequenceTracker
	ignored map[string]int
	log     zerolog.Logger
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithDecoderLogger sets the logger.
func WithDecoderLogger(log zerolog.Logger) DecoderOption {
	return func(d *Decoder) { d.log = log }
}

// NewDecoder creates a decoder for one outbound chat request.
func NewDecoder(echo RequestEcho, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		echo:    echo,
		seq:     NewSequenceTracker(),
		ignored: make(map[string]int),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current lifecycle state.
func (d *Decoder) State() DecoderState {
	return d.state
}

// Terminate ends the stream early, for example when the caller's transport
// loop is cancelled. Every subsequent Handle call is a no-op.
func (d *Decoder) Terminate() {
	d.state = StateTerminated
}

// IgnoredEvents returns per-kind counts of events skipped because their kind
// is not handled. The skip is deliberate (servers emit intermediate events
// the widget does not render); the counter keeps it observable.
func (d *Decoder) IgnoredEvents() map[string]int {
	out := make(map[string]int, len(d.ignored))
	for k, v := range d.ignored {
		out[k] = v
	}
	return out
}

// Handle consumes one raw event. It returns a frame when the event produces
// one, nil for lifecycle and unparseable events, and a *StreamError when the
// server reports a terminal failure. After termination every call is a
// no-op returning (nil, nil).
func (d *Decoder) Handle(ev RawEvent) (*types.Frame, error) {
	if d.state == StateTerminated {
		return nil, nil
	}

	switch ev.Event {
	case EventChatCreated:
		return d.ackFrame(ev.Data), nil

	case EventMessageDelta:
		return d.messageFrame(ev.Data, false), nil

	case EventMessageCompleted:
		return d.messageFrame(ev.Data, true), nil

	case EventChatCompleted, EventDone:
		d.state = StateTerminated
		return nil, nil

	case EventChatFailed:
		d.state = StateTerminated
		code, msg := 0, defaultFailureMsg
		var ws wireChatState
		if err := json.Unmarshal([]byte(ev.Data), &ws); err == nil && ws.LastError != nil && ws.LastError.Msg != "" {
			code, msg = ws.LastError.Code, ws.LastError.Msg
		}
		return nil, &StreamError{Code: code, Msg: msg}

	case EventError:
		d.state = StateTerminated
		code, msg := 0, defaultFailureMsg
		var we WireError
		if err := json.Unmarshal([]byte(ev.Data), &we); err == nil && we.Msg != "" {
			code, msg = we.Code, we.Msg
		}
		return nil, &StreamError{Code: code, Msg: msg}

	default:
		d.ignored[ev.Event]++
		d.log.Debug().Str("event", ev.Event).Msg("ignoring unhandled stream event")
		return nil, nil
	}
}

// messageFrame decodes a delta/completed payload into a frame. Unparseable
// payloads and messages without a usable identity are dropped: one bad frame
// must not kill an otherwise healthy stream.
func (d *Decoder) messageFrame(data string, final bool) *types.Frame {
	var wm WireMessage
	if err := json.Unmarshal([]byte(data), &wm); err != nil {
		d.log.Debug().Err(err).Msg("dropping unparseable message event")
		return nil
	}

	msg, err := DecodeMessage(wm, d.echo.BotID)
	if err != nil {
		d.log.Debug().Err(err).Str("message_id", wm.ID).Msg("dropping untranscodable message")
		return nil
	}

	// Delta frames already delivered the full text incrementally; the
	// completed frame is a finalization marker only.
	if final && msg.ContentType == types.ContentText && msg.Type == types.TurnAnswer {
		msg.Content.Text = ""
	}
	if msg.SectionID == "" {
		msg.SectionID = d.echo.SectionID
	}

	return &types.Frame{
		Event: "message",
		Data: types.FrameData{
			ConversationID: d.echo.ConversationID,
			Index:          d.seq.Slot(types.TurnType(wm.Type)),
			IsFinish:       final,
			SeqID:          d.seq.NextSeq(),
			Message:        msg,
		},
	}
}

// ackFrame synthesizes the echo of the just-sent user message so the UI can
// render it before any server answer content arrives.
func (d *Decoder) ackFrame(data string) *types.Frame {
	var ws wireChatState
	if err := json.Unmarshal([]byte(data), &ws); err != nil {
		d.log.Debug().Err(err).Msg("dropping unparseable chat.created event")
		return nil
	}

	chatID := NormalizeID(ws.ID)
	replyID := chatID
	if replyID == "" {
		replyID = syntheticReplyPrefix + uuid.NewString()
	}

	var apiMessageID string
	if n := len(ws.InsertedAdditionalMessages); n > 0 {
		apiMessageID = ws.InsertedAdditionalMessages[n-1].ID
	}

	sectionID := ws.SectionID
	if sectionID == "" {
		sectionID = d.echo.SectionID
	}

	msg := types.Message{
		MessageID:   replyID,
		ReplyID:     replyID,
		SectionID:   sectionID,
		Role:        types.RoleUser,
		Type:        types.TurnAck,
		ContentType: d.echo.Query.Type,
		Content:     d.echo.Query,
		ContentTime: ws.CreatedAt * 1000,
		SenderID:    d.echo.UserID,
		ExtraInfo: types.ExtraInfo{
			LocalMessageID: d.echo.LocalMessageID,
			ExecuteID:      ws.ExecuteID,
			APIMessageID:   apiMessageID,
			APIChatID:      chatID,
		},
	}

	return &types.Frame{
		Event: "message",
		Data: types.FrameData{
			ConversationID: d.echo.ConversationID,
			Index:          d.seq.Slot(types.TurnAck),
			IsFinish:       true,
			SeqID:          d.seq.NextSeq(),
			Message:        msg,
		},
	}
}
