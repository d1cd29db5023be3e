package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/burpheart/chatwire/internal/chatstream"
	"github.com/burpheart/chatwire/internal/client"
	"github.com/burpheart/chatwire/pkg/types"
)

// FrameStore provides access to recently recorded frames and events.
type FrameStore interface {
	RecentRecords(limit int) []chatstream.Record
}

// ChatStreamer runs a chat turn and delivers decoded frames.
type ChatStreamer interface {
	StreamChat(ctx context.Context, req client.ChatRequest, onFrame func(*types.Frame)) error
}

// HistoryLoader fetches one reconciled history page.
type HistoryLoader interface {
	Messages(ctx context.Context, conversationID, cursor string, count int) ([]types.Message, string, error)
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	hub     *Hub
	store   FrameStore
	chat    ChatStreamer
	history HistoryLoader
	log     zerolog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(hub *Hub, store FrameStore, chat ChatStreamer, history HistoryLoader, log zerolog.Logger) *Handler {
	return &Handler{
		hub:     hub,
		store:   store,
		chat:    chat,
		history: history,
		log:     log,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// HandleWebSocket handles WebSocket connections for real-time frame streaming.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "Failed to upgrade connection", http.StatusInternalServerError)
		return
	}

	c := NewClient(h.hub, conn)
	h.hub.Register(c)

	// Start pumps
	go c.WritePump()
	c.ReadPump()
}

// HandleGetFrames handles GET /api/frames - returns recent records for initial load
func (h *Handler) HandleGetFrames(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	records := h.store.RecentRecords(limit)
	writeJSON(w, records)
}

// chatRequestPayload is the POST /api/chat body.
type chatRequestPayload struct {
	ConversationID string                 `json:"conversation_id"`
	LocalMessageID string                 `json:"local_message_id"`
	SectionID      string                 `json:"section_id"`
	UserID         string                 `json:"user_id"`
	Query          types.Content          `json:"query"`
	History        []types.Message        `json:"history,omitempty"`
	Parameters     map[string]interface{} `json:"parameters,omitempty"`
}

// HandleChat handles POST /api/chat - starts a chat turn and broadcasts
// every decoded frame over the WebSocket hub. Returns 202 immediately;
// the stream runs in the background.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload chatRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if payload.Query.Type == "" {
		http.Error(w, "query content is required", http.StatusBadRequest)
		return
	}

	go func() {
		req := client.ChatRequest{
			ConversationID: payload.ConversationID,
			LocalMessageID: payload.LocalMessageID,
			SectionID:      payload.SectionID,
			UserID:         payload.UserID,
			Query:          payload.Query,
			History:        payload.History,
			Parameters:     payload.Parameters,
		}
		err := h.chat.StreamChat(context.Background(), req, h.hub.BroadcastFrame)
		if err == nil {
			return
		}
		var serr *chatstream.StreamError
		if errors.As(err, &serr) {
			h.hub.BroadcastError(serr)
			return
		}
		h.log.Error().Err(err).
			Str("conversation_id", payload.ConversationID).
			Msg("chat stream aborted")
	}()

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusAccepted)
}

// HandleHistory handles GET /api/history - returns one reconciled page.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}
	cursor := r.URL.Query().Get("cursor")
	count := 0
	if countStr := r.URL.Query().Get("count"); countStr != "" {
		if n, err := strconv.Atoi(countStr); err == nil && n > 0 {
			count = n
		}
	}

	msgs, next, err := h.history.Messages(r.Context(), conversationID, cursor, count)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", conversationID).Msg("history fetch failed")
		http.Error(w, "history fetch failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, map[string]interface{}{
		"messages": msgs,
		"cursor":   next,
	})
}

// HandleCORS handles CORS preflight requests.
func (h *Handler) HandleCORS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(v)
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// WebSocket endpoint for real-time streaming
	mux.HandleFunc("/ws/frames", h.HandleWebSocket)

	mux.HandleFunc("/api/frames", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			h.HandleCORS(w, r)
			return
		}
		h.HandleGetFrames(w, r)
	})

	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			h.HandleCORS(w, r)
			return
		}
		h.HandleChat(w, r)
	})

	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			h.HandleCORS(w, r)
			return
		}
		h.HandleHistory(w, r)
	})
}
