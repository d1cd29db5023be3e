// Package client implements the upstream open-API collaborator: it issues
// chat requests, feeds the SSE response through a per-request decoder, and
// loads paginated history through the transcoder and reconciler.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/burpheart/chatwire/internal/chatstream"
	"github.com/burpheart/chatwire/pkg/types"
)

const (
	chatPath    = "/v3/chat"
	messagePath = "/v1/conversation/message/list"
)

// ChatRequest describes one outbound chat turn.
type ChatRequest struct {
	ConversationID string
	LocalMessageID string
	SectionID      string
	UserID         string
	Query          types.Content
	History        []types.Message // optional resend context
	Parameters     map[string]interface{}
}

// Client talks to the upstream chat API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	botID       string
	botVersion  string
	connectorID string
	tokens      *TokenProvider
	reconciler  *chatstream.Reconciler
	rec         *chatstream.Recorder
	pageSize    int
	log         zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithRecorder sets a recorder that captures raw events and emitted frames.
func WithRecorder(rec *chatstream.Recorder) Option {
	return func(c *Client) { c.rec = rec }
}

// WithBotVersion pins the bot version sent with chat requests.
func WithBotVersion(v string) Option {
	return func(c *Client) { c.botVersion = v }
}

// WithConnectorID sets the connector identity sent with chat requests.
func WithConnectorID(id string) Option {
	return func(c *Client) { c.connectorID = id }
}

// WithPageSize sets the default history page size.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// New creates a Client for the given API base URL and bot.
func New(baseURL, botID string, tokens *TokenProvider, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		botID:      botID,
		tokens:     tokens,
		reconciler: chatstream.NewReconciler(),
		pageSize:   30,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// chatRequestBody is the outbound chat request wire shape.
type chatRequestBody struct {
	BotID              string                        `json:"bot_id"`
	BotVersion         string                        `json:"bot_version,omitempty"`
	UserID             string                        `json:"user_id,omitempty"`
	Stream             bool                          `json:"stream"`
	ConnectorID        string                        `json:"connector_id,omitempty"`
	AdditionalMessages []chatstream.WireEnterMessage `json:"additional_messages"`
	Parameters         map[string]interface{}        `json:"parameters,omitempty"`
	EnableCard         bool                          `json:"enable_card"`
}

// buildChatBody encodes the query (and any resend history, history first)
// into the wire request body.
func (c *Client) buildChatBody(req ChatRequest) ([]byte, error) {
	wireType, payload, err := chatstream.EncodeContent(req.Query, chatstream.EncodeOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "encode query content")
	}

	msgs := chatstream.EncodeHistory(req.History)
	msgs = append(msgs, chatstream.WireEnterMessage{
		Role:        string(types.RoleUser),
		ContentType: wireType,
		Content:     payload,
	})

	return json.Marshal(chatRequestBody{
		BotID:              c.botID,
		BotVersion:         c.botVersion,
		UserID:             req.UserID,
		Stream:             true,
		ConnectorID:        c.connectorID,
		AdditionalMessages: msgs,
		Parameters:         req.Parameters,
		EnableCard:         true,
	})
}

// StreamChat sends one chat turn and delivers every decoded frame to
// onFrame in emission order. It returns when the stream terminates: nil on
// normal completion, a *chatstream.StreamError on a server-reported
// failure, and the transport or context error otherwise.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest, onFrame func(*types.Frame)) error {
	body, err := c.buildChatBody(req)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPost, chatPath+"?conversation_id="+url.QueryEscape(req.ConversationID), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	br := chatstream.NewBodyReader(resp.Body, resp.Header)
	if resp.StatusCode != http.StatusOK {
		data, _ := br.ReadAllWithLimit(4096)
		return errors.Errorf("chat request failed: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	if !br.IsSSE() {
		return errors.Errorf("unexpected chat response content type %q", br.ContentType())
	}

	dec := chatstream.NewDecoder(chatstream.RequestEcho{
		ConversationID: req.ConversationID,
		LocalMessageID: req.LocalMessageID,
		Query:          req.Query,
		BotID:          c.botID,
		BotVersion:     c.botVersion,
		SectionID:      req.SectionID,
		UserID:         req.UserID,
	}, chatstream.WithDecoderLogger(c.log))

	streamID := uuid.NewString()
	stream := br.Events()
	for dec.State() == chatstream.StateStreaming {
		if err := ctx.Err(); err != nil {
			dec.Terminate()
			return err
		}
		ev, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "read chat stream")
		}
		if c.rec != nil {
			c.rec.RecordEvent(streamID, *ev)
		}
		frame, err := dec.Handle(*ev)
		if err != nil {
			if c.rec != nil {
				c.rec.RecordError(streamID, err)
			}
			return err
		}
		if frame != nil {
			if c.rec != nil {
				c.rec.RecordFrame(streamID, frame)
			}
			onFrame(frame)
		}
	}
	return nil
}

// messageListResponse is the history endpoint envelope. Data is ordered
// oldest-first within the page.
type messageListResponse struct {
	Code    int                      `json:"code"`
	Msg     string                   `json:"msg"`
	Data    []chatstream.WireMessage `json:"data"`
	FirstID string                   `json:"first_id"`
	LastID  string                   `json:"last_id"`
	HasMore bool                     `json:"has_more"`
}

// Messages fetches one page of conversation history, runs it through the
// transcoder and the pagination reconciler, and returns the renderable
// messages plus the cursor for the next page. Callers must serialize calls
// for the same conversation.
func (c *Client) Messages(ctx context.Context, conversationID, cursor string, count int) ([]types.Message, string, error) {
	if count <= 0 {
		count = c.pageSize
	}
	reqBody, err := json.Marshal(map[string]interface{}{
		"after_id": cursor,
		"limit":    count,
	})
	if err != nil {
		return nil, "", errors.Wrap(err, "encode history request")
	}

	resp, err := c.do(ctx, http.MethodPost, messagePath+"?conversation_id="+url.QueryEscape(conversationID), reqBody)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	br := chatstream.NewBodyReader(resp.Body, resp.Header)
	if resp.StatusCode != http.StatusOK {
		data, _ := br.ReadAllWithLimit(4096)
		return nil, "", errors.Errorf("history fetch failed: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var list messageListResponse
	if err := json.NewDecoder(br).Decode(&list); err != nil {
		return nil, "", errors.Wrap(err, "decode history response")
	}
	if list.Code != 0 {
		return nil, "", errors.Errorf("history fetch rejected: %s (code %d)", list.Msg, list.Code)
	}

	page := list.Data

	// A question whose answers arrived on the previous page comes back with
	// no chat id; inherit the correlation id from the buffered fragment.
	if len(page) > 0 && types.TurnType(page[0].Type) == types.TurnQuestion && chatstream.NormalizeID(page[0].ChatID) == "" {
		if last := c.reconciler.LastReplyID(conversationID); last != "" {
			page[0].ChatID = last
		}
	}

	msgs := make([]types.Message, 0, len(page))
	for _, wm := range page {
		m, err := chatstream.DecodeMessage(wm, c.botID)
		if err != nil {
			c.log.Debug().Err(err).Str("message_id", wm.ID).Msg("skipping untranscodable history message")
			continue
		}
		m.ConversationID = conversationID
		msgs = append(msgs, m)
	}

	return c.reconciler.Reconcile(conversationID, msgs), list.LastID, nil
}

// DropLeftovers clears the pagination buffer for a conversation.
func (c *Client) DropLeftovers(conversationID string) {
	c.reconciler.Drop(conversationID)
}

// do issues a request with bearer auth, refreshing the token once via the
// single-flight provider when the first attempt is rejected.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquire token")
	}

	resp, err := c.send(ctx, method, path, body, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	token, err = c.tokens.Refresh(ctx, token)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, method, path, body, token)
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream, application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return c.httpClient.Do(req)
}
