package chatstream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/burpheart/chatwire/pkg/types"
)

func question(replyID string) types.Message {
	return types.Message{
		MessageID: replyID, ReplyID: replyID,
		Role: types.RoleUser, Type: types.TurnQuestion,
		Content: types.TextContent("q " + replyID),
	}
}

func answer(id, replyID string) types.Message {
	return types.Message{
		MessageID: id, ReplyID: replyID,
		Role: types.RoleAssistant, Type: types.TurnAnswer,
		Content: types.TextContent("a " + id),
	}
}

func ids(msgs []types.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.MessageID
	}
	return out
}

func TestReconcile_WithholdsTrailingAnswers(t *testing.T) {
	r := NewReconciler()

	// Oldest-first page: a complete turn, then a question whose answers are
	// still on the next (newer) page boundary side.
	page := []types.Message{
		question("c-1"),
		answer("a-1", "c-1"),
		answer("a-2", "c-1"),
	}
	out := r.Reconcile("conv", page)
	require.Equal(t, []string{"c-1"}, ids(out))
	require.Equal(t, "c-1", r.LastReplyID("conv"))
}

func TestReconcile_SplicesMatchingLeftover(t *testing.T) {
	r := NewReconciler()

	first := r.Reconcile("conv", []types.Message{
		question("c-2"),
		answer("a-3", "c-2"),
	})
	require.Equal(t, []string{"c-2"}, ids(first))

	// Next fetch starts with the rest of that turn.
	second := r.Reconcile("conv", []types.Message{
		answer("a-4", "c-2"),
		question("c-3"),
		answer("a-5", "c-3"),
	})
	require.Equal(t, []string{"a-3", "a-4", "c-3"}, ids(second))
	require.Equal(t, "c-3", r.LastReplyID("conv"))
}

func TestReconcile_SplicesAfterLeadingQuestions(t *testing.T) {
	r := NewReconciler()

	r.Reconcile("conv", []types.Message{
		question("c-1"),
		answer("a-1", "c-1"),
	})

	// The leftover belongs in front of the first answer segment, after any
	// leading questions of the new page.
	out := r.Reconcile("conv", []types.Message{
		question("c-0"),
		answer("a-2", "c-1"),
		question("c-2"),
	})
	require.Equal(t, []string{"c-0", "a-1", "a-2", "c-2"}, ids(out))
}

func TestReconcile_DiscardsMismatchedLeftover(t *testing.T) {
	r := NewReconciler()

	r.Reconcile("conv", []types.Message{
		question("c-1"),
		answer("a-1", "c-1"),
	})

	out := r.Reconcile("conv", []types.Message{
		answer("a-9", "c-other"),
		question("c-9"),
	})
	require.Equal(t, []string{"a-9", "c-9"}, ids(out))
}

func TestReconcile_NoQuestionPageWithholdsEverything(t *testing.T) {
	r := NewReconciler()

	out := r.Reconcile("conv", []types.Message{
		answer("a-1", "c-1"),
		answer("a-2", "c-1"),
	})
	require.Empty(t, out)
	require.Equal(t, "c-1", r.LastReplyID("conv"))
}

func TestReconcile_EmptyPage(t *testing.T) {
	r := NewReconciler()
	require.Empty(t, r.Reconcile("conv", nil))
	require.Empty(t, r.LastReplyID("conv"))
}

func TestReconcile_PerConversationIsolation(t *testing.T) {
	r := NewReconciler()

	r.Reconcile("conv-a", []types.Message{
		question("c-1"),
		answer("a-1", "c-1"),
	})

	out := r.Reconcile("conv-b", []types.Message{
		question("c-1"),
		answer("a-2", "c-1"),
	})
	// conv-a's leftover never leaks into conv-b.
	require.Equal(t, []string{"c-1"}, ids(out))
	require.Equal(t, "c-1", r.LastReplyID("conv-a"))
}

func TestReconcile_LeftoverConsumedOnce(t *testing.T) {
	r := NewReconciler()

	r.Reconcile("conv", []types.Message{
		question("c-1"),
		answer("a-1", "c-1"),
	})
	r.Reconcile("conv", []types.Message{
		answer("a-2", "c-1"),
		question("c-2"),
	})

	// The spliced fragment was replaced by the new leftover (none here, the
	// page ended on a question).
	out := r.Reconcile("conv", []types.Message{
		question("c-3"),
	})
	require.Equal(t, []string{"c-3"}, ids(out))
}

func TestReconciler_Drop(t *testing.T) {
	r := NewReconciler()

	r.Reconcile("conv", []types.Message{
		question("c-1"),
		answer("a-1", "c-1"),
	})
	require.Equal(t, "c-1", r.LastReplyID("conv"))

	r.Drop("conv")
	require.Empty(t, r.LastReplyID("conv"))
}
