package chatstream

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/burpheart/chatwire/pkg/types"
)

// Reconciler merges freshly fetched history pages with the trailing
// fragments left over from the previous fetch for the same conversation, so
// a rendered transcript never shows a dangling answer fragment with no
// visible question and never doubles content across adjacent fetches.
//
// The leftover buffer is owned by the reconciler and keyed per conversation.
// The mutex only protects the map across conversations; callers must still
// serialize fetches for the same conversation.
type Reconciler struct {
	mu        sync.Mutex
	leftovers map[string][]types.Message
	log       zerolog.Logger
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcilerLogger sets the logger.
func WithReconcilerLogger(log zerolog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.log = log }
}

// NewReconciler creates a reconciler with an empty leftover buffer.
func NewReconciler(opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		leftovers: make(map[string][]types.Message),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile merges one page of already-transcoded messages, ordered
// oldest-first, with the conversation's leftover buffer. Non-question
// messages trailing the last question are withheld and stored as the new
// leftover. The previous leftover is spliced in front of the page's first
// answer segment when the reply correlation ids match, and discarded
// otherwise: a mismatch means the conversation switched or a gap occurred,
// and unrelated fragments must never be attached.
func (r *Reconciler) Reconcile(conversationID string, page []types.Message) []types.Message {
	var out, pending []types.Message
	for _, m := range page {
		if m.Type != types.TurnQuestion {
			pending = append(pending, m)
			continue
		}
		out = append(out, pending...)
		pending = nil
		out = append(out, m)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.leftovers[conversationID]
	r.leftovers[conversationID] = pending

	if len(prev) == 0 {
		return out
	}
	at, ok := firstAnswerSegment(out)
	if !ok || prev[0].ReplyID != out[at].ReplyID {
		r.log.Debug().
			Str("conversation_id", conversationID).
			Int("dropped", len(prev)).
			Msg("discarding stale leftover fragments")
		return out
	}

	merged := make([]types.Message, 0, len(out)+len(prev))
	merged = append(merged, out[:at]...)
	merged = append(merged, prev...)
	merged = append(merged, out[at:]...)
	return merged
}

// firstAnswerSegment returns the index of the first non-question message.
func firstAnswerSegment(msgs []types.Message) (int, bool) {
	for i, m := range msgs {
		if m.Type != types.TurnQuestion {
			return i, true
		}
	}
	return 0, false
}

// LastReplyID returns the reply correlation id of the conversation's newest
// leftover fragment, or empty when none is buffered. History fetches use it
// to backfill the chat id of a question whose answers were delivered on the
// previous page.
func (r *Reconciler) LastReplyID(conversationID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	left := r.leftovers[conversationID]
	if len(left) == 0 {
		return ""
	}
	return left[len(left)-1].ReplyID
}

// Drop clears the leftover buffer for a conversation, for example after the
// conversation's history is cleared.
func (r *Reconciler) Drop(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.leftovers, conversationID)
}
