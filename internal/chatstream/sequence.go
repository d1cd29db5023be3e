package chatstream

import "github.com/burpheart/chatwire/pkg/types"

// SequenceTracker assigns delivery order within one streaming session: a
// strictly increasing sequence id per emitted frame and a stable slot index
// per message kind. Not safe for concurrent use; a tracker belongs to
// exactly one decoder.
type SequenceTracker struct {
	seq      int
	nextSlot int
	slots    map[types.TurnType]int
}

// NewSequenceTracker creates a tracker with both counters at zero.
func NewSequenceTracker() *SequenceTracker {
	return &SequenceTracker{slots: make(map[types.TurnType]int)}
}

// NextSeq returns the next sequence id, starting at 0. Every emitted frame
// counts: ack, delta and completed alike.
func (t *SequenceTracker) NextSeq() int {
	n := t.seq
	t.seq++
	return n
}

// Slot returns the slot index for a message kind. The first time a kind is
// seen it is assigned the next free index, and that assignment is retained
// for the tracker's lifetime, so every delta of the same logical turn lands
// in the same rendering slot.
func (t *SequenceTracker) Slot(kind types.TurnType) int {
	if idx, ok := t.slots[kind]; ok {
		return idx
	}
	idx := t.nextSlot
	t.nextSlot++
	t.slots[kind] = idx
	return idx
}
