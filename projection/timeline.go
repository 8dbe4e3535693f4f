// Package projection builds the local views of a room session from observed events.
// Handles ordering, deduplication, and full roster replacement.
// Does not emit events or interact with the transport directly.
package projection

import (
	"chat-session/domain"
)

// Masker rewrites chat text before it is shown, see moderation.Moderator.
type Masker interface {
	Censor(text string) string
}

// Timeline merges a one-shot history snapshot with live entries.
//
// Live entries consumed while the history is loading are buffered and appended
// after the history prefix in arrival order. No re-sort is performed: arrival
// order is the transport order of the room.
//
// Chat messages carrying a server id are never shown twice. Messages without
// one are only dropped when they repeat a history entry, each history entry
// absorbing a single live delivery.
type Timeline struct {
	entries []domain.TimelineEntry
	pending []domain.TimelineEntry
	ids     map[string]struct{}
	history map[string]int // content keys of history messages
	anon    map[string]int // content keys of history messages without id
	loading bool
	masker  Masker
}

func NewTimeline() *Timeline {
	t := &Timeline{}
	t.reset()
	return t
}

// WithMasker installs a content filter applied to chat messages.
func (t *Timeline) WithMasker(m Masker) *Timeline {
	t.masker = m
	return t
}

// Begin resets the timeline for a new room entry and marks the history as loading.
func (t *Timeline) Begin() {
	t.entries = nil
	t.pending = nil
	t.reset()
	t.loading = true
}

// Clear empties the timeline without waiting for any history, after an aborted entry.
func (t *Timeline) Clear() {
	t.entries = nil
	t.pending = nil
	t.reset()
	t.loading = false
}

// Consume appends a live entry, or buffers it while the history is loading.
// A chat message already present in the timeline is ignored.
func (t *Timeline) Consume(entry domain.TimelineEntry) bool {
	entry = t.mask(entry)
	if t.loading {
		t.pending = append(t.pending, entry)
		return false
	}
	return t.addLive(entry)
}

// ApplyHistory installs the history prefix, oldest first, then flushes the buffered entries.
func (t *Timeline) ApplyHistory(history []domain.TimelineEntry) {
	t.entries = make([]domain.TimelineEntry, 0, len(history)+len(t.pending))
	t.reset()
	for _, entry := range history {
		t.addHistory(t.mask(entry))
	}
	t.flush()
}

// FailHistory starts the timeline from an empty prefix.
func (t *Timeline) FailHistory() {
	t.entries = nil
	t.reset()
	t.flush()
}

func (t *Timeline) Loading() bool {
	return t.loading
}

// Entries returns a copy of the visible sequence. It is empty while loading.
func (t *Timeline) Entries() []domain.TimelineEntry {
	out := make([]domain.TimelineEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Timeline) Len() int {
	return len(t.entries)
}

func (t *Timeline) flush() {
	for _, entry := range t.pending {
		t.addLive(entry)
	}
	t.pending = nil
	t.loading = false
}

func (t *Timeline) reset() {
	t.ids = make(map[string]struct{})
	t.history = make(map[string]int)
	t.anon = make(map[string]int)
}

func (t *Timeline) addHistory(entry domain.TimelineEntry) {
	if msg, ok := entry.(domain.ChatMessage); ok {
		if msg.ID != "" {
			if _, dup := t.ids[msg.ID]; dup {
				return
			}
			t.ids[msg.ID] = struct{}{}
		} else {
			t.anon[msg.ContentKey()]++
		}
		t.history[msg.ContentKey()]++
	}
	t.entries = append(t.entries, entry)
}

func (t *Timeline) addLive(entry domain.TimelineEntry) bool {
	if msg, ok := entry.(domain.ChatMessage); ok {
		key := msg.ContentKey()
		switch {
		case msg.ID != "":
			if _, dup := t.ids[msg.ID]; dup {
				return false
			}
			t.ids[msg.ID] = struct{}{}
			if t.anon[key] > 0 {
				t.history[key]--
				t.anon[key]--
				return false
			}
		case t.history[key] > 0:
			// Delivered live while the history query already included it
			t.history[key]--
			if t.anon[key] > 0 {
				t.anon[key]--
			}
			return false
		}
	}
	t.entries = append(t.entries, entry)
	return true
}

func (t *Timeline) mask(entry domain.TimelineEntry) domain.TimelineEntry {
	if t.masker == nil {
		return entry
	}
	if msg, ok := entry.(domain.ChatMessage); ok {
		msg.Message = t.masker.Censor(msg.Message)
		return msg
	}
	return entry
}
