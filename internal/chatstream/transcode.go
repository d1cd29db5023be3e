package chatstream

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/burpheart/chatwire/pkg/types"
)

// Transcoding errors. Malformed payloads are expected in practice: callers
// skip the affected message instead of aborting the stream.
var (
	ErrMalformedPayload   = errors.New("malformed content payload")
	ErrUnknownContentType = errors.New("unknown content type")
)

// Synthesized ids carry a prefix so downstream consumers can tell a
// client-generated correlation id from a server-assigned one.
const (
	syntheticReplyPrefix   = "--custom-replyId--"
	syntheticMessagePrefix = "--custom-messageId-"
)

// NormalizeID maps the server's sentinel ids ("0" and empty) to empty.
func NormalizeID(id string) string {
	if id == "" || id == "0" {
		return ""
	}
	return id
}

// DecodeContent converts a wire content payload into the internal union.
func DecodeContent(wireType, payload string) (types.Content, error) {
	switch wireType {
	case wireContentText:
		return types.Content{Type: types.ContentText, Text: payload}, nil
	case wireContentCard:
		return types.Content{Type: types.ContentCard, Text: payload}, nil
	case wireContentObjectString:
		return decodeMixContent(payload)
	default:
		return types.Content{}, errors.Wrapf(ErrUnknownContentType, "wire type %q", wireType)
	}
}

// decodeMixContent parses an object_string array into an ordered mix:
// displayed items first, reference-only items after, relative order kept.
func decodeMixContent(payload string) (types.Content, error) {
	var wireItems []wireObjectItem
	if err := json.Unmarshal([]byte(payload), &wireItems); err != nil {
		return types.Content{}, errors.Wrap(ErrMalformedPayload, err.Error())
	}

	var displayed, refer []types.ContentItem
	for _, wi := range wireItems {
		item, ok := decodeObjectItem(wi)
		if !ok {
			// Unknown item kinds are dropped, not errors.
			continue
		}
		if item.ReferenceOnly {
			refer = append(refer, item)
		} else {
			displayed = append(displayed, item)
		}
	}
	return types.Content{Type: types.ContentMix, Items: append(displayed, refer...)}, nil
}

func decodeObjectItem(wi wireObjectItem) (types.ContentItem, bool) {
	switch wi.Type {
	case "text":
		return types.ContentItem{Kind: types.ItemText, Text: wi.Text, ReferenceOnly: wi.IsRefer}, true
	case "image":
		return types.ContentItem{Kind: types.ItemImage, FileID: wi.FileID, FileURL: wi.FileURL, ReferenceOnly: wi.IsRefer}, true
	case "file":
		return types.ContentItem{Kind: types.ItemFile, FileID: wi.FileID, FileURL: wi.FileURL, FileName: wi.Name, ReferenceOnly: wi.IsRefer}, true
	default:
		return types.ContentItem{}, false
	}
}

// EncodeOptions controls outbound content encoding.
type EncodeOptions struct {
	// IncludeFileURLs forces file_url emission even when a durable file_id
	// exists. History resends need it because ids may have expired; normal
	// outbound requests prefer durable ids. Items without a file_id always
	// get their url, it is the only way to reference them.
	IncludeFileURLs bool
}

// EncodeContent converts internal content to its wire form. The returned
// payload is the content string for the returned wire content type.
func EncodeContent(c types.Content, opts EncodeOptions) (wireType, payload string, err error) {
	switch c.Type {
	case types.ContentText:
		return wireContentText, c.Text, nil
	case types.ContentCard:
		return wireContentCard, c.Text, nil
	case types.ContentImage, types.ContentFile, types.ContentMix:
		payload, err := encodeMixContent(c.Items, opts)
		if err != nil {
			return "", "", err
		}
		return wireContentObjectString, payload, nil
	default:
		return "", "", errors.Wrapf(ErrUnknownContentType, "content type %q", c.Type)
	}
}

// encodeMixContent serializes mix items back to an object_string array,
// displayed items first, reference items after.
func encodeMixContent(items []types.ContentItem, opts EncodeOptions) (string, error) {
	ordered := make([]types.ContentItem, 0, len(items))
	for _, it := range items {
		if !it.ReferenceOnly {
			ordered = append(ordered, it)
		}
	}
	for _, it := range items {
		if it.ReferenceOnly {
			ordered = append(ordered, it)
		}
	}

	wireItems := make([]wireObjectItem, 0, len(ordered))
	for _, it := range ordered {
		switch it.Kind {
		case types.ItemText:
			wireItems = append(wireItems, wireObjectItem{Type: "text", Text: it.Text, IsRefer: it.ReferenceOnly})
		case types.ItemImage, types.ItemFile:
			wi := wireObjectItem{Type: string(it.Kind), FileID: it.FileID, Name: it.FileName, IsRefer: it.ReferenceOnly}
			if opts.IncludeFileURLs || it.FileID == "" {
				wi.FileURL = it.FileURL
			}
			wireItems = append(wireItems, wi)
		default:
			return "", errors.Wrapf(ErrUnknownContentType, "mix item kind %q", it.Kind)
		}
	}

	data, err := json.Marshal(wireItems)
	if err != nil {
		return "", errors.Wrap(err, "encode mix content")
	}
	return string(data), nil
}

// DecodeMessage normalizes one wire message into the internal UI schema.
// Sentinel server ids are cleared and replaced with generated identifiers,
// so the result always carries non-empty MessageID and ReplyID. A question
// takes its reply correlation id as its own message id.
func DecodeMessage(wm WireMessage, botID string) (types.Message, error) {
	content, err := DecodeContent(wm.ContentType, wm.Content)
	if err != nil {
		return types.Message{}, err
	}

	chatID := NormalizeID(wm.ChatID)
	id := NormalizeID(wm.ID)

	replyID := chatID
	if replyID == "" {
		replyID = syntheticReplyPrefix + uuid.NewString()
	}

	isQuestion := types.TurnType(wm.Type) == types.TurnQuestion
	messageID := id
	if isQuestion {
		messageID = replyID
	} else if messageID == "" {
		messageID = syntheticMessagePrefix + uuid.NewString()
	}

	senderID := ""
	if !isQuestion {
		senderID = wm.BotID
		if senderID == "" {
			senderID = botID
		}
	}

	msg := types.Message{
		MessageID:      messageID,
		ReplyID:        replyID,
		ConversationID: wm.ConversationID,
		SectionID:      wm.SectionID,
		Role:           types.Role(wm.Role),
		Type:           types.TurnType(wm.Type),
		ContentType:    content.Type,
		Content:        content,
		ContentTime:    wm.CreatedAt * 1000,
		SenderID:       senderID,
		Reasoning:      wm.Reasoning,
		ExtraInfo: types.ExtraInfo{
			APIMessageID: id,
			APIChatID:    chatID,
		},
	}

	// A function_call body names the plugin being invoked; surface it for
	// the UI without interpreting the rest of the payload.
	if msg.Type == types.TurnFunctionCall {
		var fc struct {
			Plugin string `json:"plugin"`
		}
		if err := json.Unmarshal([]byte(wm.Content), &fc); err == nil {
			msg.ExtraInfo.Plugin = fc.Plugin
		}
	}

	return msg, nil
}

// EncodeHistory converts already-rendered history messages back into wire
// enter-messages for request resend. File and image items are flattened to
// text carrying the url: stored ids may have expired, so the url is the only
// stable reference. Messages that cannot be represented are dropped.
func EncodeHistory(msgs []types.Message) []WireEnterMessage {
	out := make([]WireEnterMessage, 0, len(msgs))
	for _, m := range msgs {
		if em, ok := encodeHistoryMessage(m); ok {
			out = append(out, em)
		}
	}
	return out
}

func encodeHistoryMessage(m types.Message) (WireEnterMessage, bool) {
	if !isResendableTurn(m.Type) || (m.Role != types.RoleUser && m.Role != types.RoleAssistant) {
		return WireEnterMessage{}, false
	}

	wireType, payload, err := EncodeContent(m.Content, EncodeOptions{IncludeFileURLs: true})
	if err != nil || payload == "" {
		return WireEnterMessage{}, false
	}
	if wireType != wireContentObjectString {
		return WireEnterMessage{Role: string(m.Role), ContentType: wireType, Content: payload}, true
	}

	var items []wireObjectItem
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		return WireEnterMessage{}, false
	}
	flat := make([]wireObjectItem, 0, len(items))
	for _, it := range items {
		if it.Type == "image" || it.Type == "file" {
			flat = append(flat, wireObjectItem{Type: "text", Text: it.FileURL})
			continue
		}
		flat = append(flat, it)
	}
	if len(flat) == 0 {
		return WireEnterMessage{}, false
	}
	if len(flat) == 1 && flat[0].Type == "text" {
		return WireEnterMessage{Role: string(m.Role), ContentType: wireContentText, Content: flat[0].Text}, true
	}

	data, err := json.Marshal(flat)
	if err != nil {
		return WireEnterMessage{}, false
	}
	return WireEnterMessage{Role: string(m.Role), ContentType: wireContentObjectString, Content: string(data)}, true
}

func isResendableTurn(t types.TurnType) bool {
	switch t {
	case types.TurnAck, types.TurnQuestion, types.TurnAnswer:
		return true
	default:
		return false
	}
}
