package types

// Role identifies the author side of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TurnType classifies a message within one chat turn.
type TurnType string

const (
	TurnAck          TurnType = "ack"
	TurnQuestion     TurnType = "question"
	TurnAnswer       TurnType = "answer"
	TurnFunctionCall TurnType = "function_call"
	TurnToolResponse TurnType = "tool_response"
	TurnFollowUp     TurnType = "follow_up"
	TurnVerbose      TurnType = "verbose"
)

// ContentType discriminates the content union carried by a Message.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentCard  ContentType = "card"
	ContentImage ContentType = "image"
	ContentFile  ContentType = "file"
	ContentMix   ContentType = "mix"
)

// ItemKind discriminates the members of a mix content payload.
type ItemKind string

const (
	ItemText  ItemKind = "text"
	ItemImage ItemKind = "image"
	ItemFile  ItemKind = "file"
)

// ContentItem is one ordered member of a mix content payload. Ordering is
// significant and preserved end to end. Reference-only items are carried for
// context or citation and sort after displayed items.
type ContentItem struct {
	Kind          ItemKind `json:"type"`
	Text          string   `json:"text,omitempty"`
	FileID        string   `json:"file_id,omitempty"`
	FileURL       string   `json:"file_url,omitempty"`
	FileName      string   `json:"file_name,omitempty"`
	ReferenceOnly bool     `json:"is_refer,omitempty"`
}

// Content is the internal content union. Type selects the populated branch:
// Text holds text and card payloads (cards are opaque JSON strings), Items
// holds mix payloads with displayed items first.
type Content struct {
	Type  ContentType   `json:"type"`
	Text  string        `json:"text,omitempty"`
	Items []ContentItem `json:"items,omitempty"`
}

// TextContent builds a plain text Content.
func TextContent(text string) Content {
	return Content{Type: ContentText, Text: text}
}

// MixContent builds a mix Content from ordered items.
func MixContent(items ...ContentItem) Content {
	return Content{Type: ContentMix, Items: items}
}

// ExtraInfo carries correlation metadata attached to a message.
type ExtraInfo struct {
	LocalMessageID string `json:"local_message_id,omitempty"`
	Plugin         string `json:"plugin,omitempty"`
	ExecuteID      string `json:"execute_id,omitempty"`
	APIMessageID   string `json:"api_message_id,omitempty"`
	APIChatID      string `json:"api_chat_id,omitempty"`
}

// Message is one chat message in the internal UI schema. MessageID and
// ReplyID are never empty once a message leaves the pipeline: ambiguous
// server ids are replaced with generated identifiers.
type Message struct {
	MessageID      string      `json:"message_id"`
	ReplyID        string      `json:"reply_id"`
	ConversationID string      `json:"conversation_id,omitempty"`
	SectionID      string      `json:"section_id,omitempty"`
	Role           Role        `json:"role"`
	Type           TurnType    `json:"type"`
	ContentType    ContentType `json:"content_type"`
	Content        Content     `json:"content"`
	ContentTime    int64       `json:"content_time,omitempty"` // milliseconds
	SenderID       string      `json:"sender_id,omitempty"`
	Reasoning      string      `json:"reasoning_content,omitempty"`
	ExtraInfo      ExtraInfo   `json:"extra_info"`
}

// Frame is one normalized unit of chat output delivered to the UI layer.
type Frame struct {
	Event string    `json:"event"`
	Data  FrameData `json:"data"`
}

// FrameData is the frame payload. SeqID strictly increases by one for every
// frame emitted by a single decoder instance, starting at zero. Index is a
// stable per-turn-kind slot used to anchor rendering position across deltas.
type FrameData struct {
	ConversationID string  `json:"conversation_id"`
	Index          int     `json:"index"`
	IsFinish       bool    `json:"is_finish"`
	SeqID          int     `json:"seq_id"`
	Message        Message `json:"message"`
}
