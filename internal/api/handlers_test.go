package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/burpheart/chatwire/internal/chatstream"
	"github.com/burpheart/chatwire/internal/client"
	"github.com/burpheart/chatwire/pkg/types"
)

type stubStore struct {
	records []chatstream.Record
}

func (s *stubStore) RecentRecords(limit int) []chatstream.Record {
	if limit > len(s.records) {
		limit = len(s.records)
	}
	return s.records[len(s.records)-limit:]
}

type stubStreamer struct {
	got    client.ChatRequest
	frames []*types.Frame
	err    error
	done   chan struct{}
}

func (s *stubStreamer) StreamChat(ctx context.Context, req client.ChatRequest, onFrame func(*types.Frame)) error {
	defer close(s.done)
	s.got = req
	for _, f := range s.frames {
		onFrame(f)
	}
	return s.err
}

type stubHistory struct {
	msgs   []types.Message
	cursor string
	err    error
}

func (s *stubHistory) Messages(ctx context.Context, conversationID, cursor string, count int) ([]types.Message, string, error) {
	return s.msgs, s.cursor, s.err
}

func newTestHandler(chat ChatStreamer, history HistoryLoader, store FrameStore) (*Handler, *httptest.Server) {
	hub := NewHub()
	go hub.Run()
	h := NewHandler(hub, store, chat, history, zerolog.Nop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h, httptest.NewServer(mux)
}

func TestHandleChat_Accepted(t *testing.T) {
	streamer := &stubStreamer{done: make(chan struct{})}
	_, srv := newTestHandler(streamer, &stubHistory{}, &stubStore{})
	t.Cleanup(srv.Close)

	body := `{"conversation_id":"conv-1","local_message_id":"loc-1","query":{"type":"text","text":"hi"}}`
	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case <-streamer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never ran")
	}
	require.Equal(t, "conv-1", streamer.got.ConversationID)
	require.Equal(t, "loc-1", streamer.got.LocalMessageID)
	require.Equal(t, "hi", streamer.got.Query.Text)
}

func TestHandleChat_RejectsEmptyQuery(t *testing.T) {
	streamer := &stubStreamer{done: make(chan struct{})}
	_, srv := newTestHandler(streamer, &stubHistory{}, &stubStore{})
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{"conversation_id":"c"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleChat_RejectsBadJSON(t *testing.T) {
	streamer := &stubStreamer{done: make(chan struct{})}
	_, srv := newTestHandler(streamer, &stubHistory{}, &stubStore{})
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader("{oops"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleHistory(t *testing.T) {
	history := &stubHistory{
		msgs: []types.Message{
			{MessageID: "c-1", ReplyID: "c-1", Type: types.TurnQuestion},
			{MessageID: "a-1", ReplyID: "c-1", Type: types.TurnAnswer},
		},
		cursor: "a-1",
	}
	_, srv := newTestHandler(&stubStreamer{done: make(chan struct{})}, history, &stubStore{})
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/history?conversation_id=conv-1&count=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Messages []types.Message `json:"messages"`
		Cursor   string          `json:"cursor"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Messages, 2)
	require.Equal(t, "a-1", out.Cursor)
}

func TestHandleHistory_RequiresConversationID(t *testing.T) {
	_, srv := newTestHandler(&stubStreamer{done: make(chan struct{})}, &stubHistory{}, &stubStore{})
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleGetFrames(t *testing.T) {
	store := &stubStore{records: []chatstream.Record{
		{Type: "event", EventType: "done"},
		{Type: "frame"},
	}}
	_, srv := newTestHandler(&stubStreamer{done: make(chan struct{})}, &stubHistory{}, store)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/frames?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	var records []chatstream.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 1)
	require.Equal(t, "frame", records[0].Type)
}
