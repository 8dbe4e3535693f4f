package sink

import (
	"chat-session/domain"
	"chat-session/domain/event"
	"chat-session/repositories"
	"context"
	"sync"

	"github.com/samber/lo"
)

// CacheSink keeps the local history cache warm with what the user actually saw,
// so a later history outage still shows the recent conversation.
type CacheSink struct {
	repository repositories.IHistoryRepository
	mu         sync.Mutex
	stored     map[domain.RoomID]int
}

func NewCacheSink(repository repositories.IHistoryRepository) *CacheSink {
	return &CacheSink{repository: repository, stored: make(map[domain.RoomID]int)}
}

// Consume stores the chat messages appended since the previous timeline of the room.
// Entries are only stored once the history resolved, the prefix is final by then.
func (c *CacheSink) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.TimelineChanged)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if evt.Loading {
		delete(c.stored, evt.Room)
		return nil
	}
	from := c.stored[evt.Room]
	if from > len(evt.Entries) {
		from = 0
	}
	fresh := lo.FilterMap(evt.Entries[from:], func(entry domain.TimelineEntry, _ int) (domain.ChatMessage, bool) {
		msg, ok := entry.(domain.ChatMessage)
		return msg, ok
	})
	if len(fresh) > 0 {
		if err := c.repository.StoreMessages(evt.Room, fresh); err != nil {
			return err
		}
	}
	c.stored[evt.Room] = len(evt.Entries)
	return nil
}
