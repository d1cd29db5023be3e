package chatstream

// Wire-level payload shapes as delivered in SSE event data fields and in
// history list responses.

// Wire content type labels.
const (
	wireContentText         = "text"
	wireContentCard         = "card"
	wireContentObjectString = "object_string"
)

// WireMessage is the payload of conversation.message.delta/completed events
// and one item of a history list response.
type WireMessage struct {
	ID             string `json:"id"`
	ChatID         string `json:"chat_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	BotID          string `json:"bot_id,omitempty"`
	Role           string `json:"role"`
	Type           string `json:"type"`
	Content        string `json:"content"`
	ContentType    string `json:"content_type"`
	SectionID      string `json:"section_id,omitempty"`
	CreatedAt      int64  `json:"created_at,omitempty"` // seconds
	Reasoning      string `json:"reasoning_content,omitempty"`
}

// WireError is the {code, msg} payload carried by error events.
type WireError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// wireChatState is the payload of conversation.chat.created/failed events.
type wireChatState struct {
	ID                         string     `json:"id"`
	CreatedAt                  int64      `json:"created_at"`
	ExecuteID                  string     `json:"execute_id"`
	SectionID                  string     `json:"section_id"`
	LastError                  *WireError `json:"last_error"`
	InsertedAdditionalMessages []struct {
		ID string `json:"id"`
	} `json:"inserted_additional_messages"`
}

// wireObjectItem is one entry of an object_string content array.
type wireObjectItem struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	FileID  string `json:"file_id,omitempty"`
	FileURL string `json:"file_url,omitempty"`
	Name    string `json:"name,omitempty"`
	IsRefer bool   `json:"is_refer,omitempty"`
}

// WireEnterMessage is one resend message in an outbound chat request body.
type WireEnterMessage struct {
	Role        string `json:"role"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}
