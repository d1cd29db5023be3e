package chatstream

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// EventStream parses a text/event-stream body into raw events.
// Lenient by default: tolerates non-standard field separators seen in the
// wild ("field value" without a colon).
type EventStream struct {
	reader *bufio.Reader
	lastID string
	strict bool
}

// StreamOption configures an EventStream.
type StreamOption func(*EventStream)

// WithStrict enables strict SSE parsing mode.
func WithStrict(strict bool) StreamOption {
	return func(s *EventStream) { s.strict = strict }
}

// NewEventStream creates a streaming SSE parser over r.
func NewEventStream(r io.Reader, opts ...StreamOption) *EventStream {
	s := &EventStream{
		reader: bufio.NewReader(r),
		strict: false, // Default: lenient mode for non-standard SSE
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next reads and returns the next raw event. At end of input a partially
// accumulated event is returned before io.EOF.
func (s *EventStream) Next() (*RawEvent, error) {
	var event RawEvent
	hasData := false

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			// EOF: return accumulated event if any
			if hasData {
				event.Data = strings.TrimSuffix(event.Data, "\n")
				return &event, nil
			}
			return nil, err
		}

		// Trim line endings (\r\n or \n)
		line = bytes.TrimSuffix(line, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))

		// Empty line = event separator
		if len(line) == 0 {
			if hasData {
				event.Data = strings.TrimSuffix(event.Data, "\n")
				return &event, nil
			}
			continue
		}

		// Comment line (starts with :)
		if line[0] == ':' {
			continue
		}

		field, value := parseEventField(line)

		switch field {
		case "data":
			event.Data += value + "\n"
			hasData = true
		case "event":
			event.Event = value
		case "id":
			// Spec: id must not contain NULL
			if !bytes.ContainsRune([]byte(value), 0) {
				s.lastID = value
			}
		case "retry":
			// Reconnect hints are a transport concern, not ours.
		default:
			// Non-standard field: ignored in lenient mode
			_ = s.strict
		}
	}
}

// parseEventField parses an SSE field line.
// Standard: "field: value" or "field:value"
// Non-standard: "field value" (some implementations)
func parseEventField(line []byte) (field, value string) {
	idx := bytes.IndexByte(line, ':')
	if idx == -1 {
		parts := bytes.SplitN(line, []byte(" "), 2)
		if len(parts) == 2 {
			return string(parts[0]), string(bytes.TrimSpace(parts[1]))
		}
		return string(line), ""
	}

	field = string(line[:idx])
	value = string(line[idx+1:])

	// Spec: if : is followed by a space, skip it
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}

	return field, value
}

// ReadAll reads all events (non-streaming wrapper).
func (s *EventStream) ReadAll() ([]RawEvent, error) {
	var events []RawEvent
	for {
		event, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return events, err
		}
		events = append(events, *event)
	}
	return events, nil
}

// Chan returns a channel that receives events (async streaming).
func (s *EventStream) Chan() <-chan RawEvent {
	ch := make(chan RawEvent)
	go func() {
		defer close(ch)
		for {
			event, err := s.Next()
			if err != nil {
				break
			}
			ch <- *event
		}
	}()
	return ch
}

// LastEventID returns the last event ID seen.
func (s *EventStream) LastEventID() string {
	return s.lastID
}
