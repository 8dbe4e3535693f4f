package history

import (
	"chat-session/contract"
	"chat-session/domain"
	"chat-session/repositories"
	"context"
	"log/slog"

	"github.com/samber/lo"
)

// Cached decorates a fetcher with the local repository. Successful fetches are
// stored, failures fall back to what was stored before.
type Cached struct {
	log        *slog.Logger
	next       contract.HistoryFetcher
	repository repositories.IHistoryRepository
}

func NewCached(log *slog.Logger, next contract.HistoryFetcher, repository repositories.IHistoryRepository) *Cached {
	return &Cached{log: log, next: next, repository: repository}
}

func (c *Cached) FetchHistory(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.TimelineEntry, error) {
	entries, err := c.next.FetchHistory(ctx, roomID, limit)
	if err == nil {
		if err := c.repository.StoreMessages(roomID, chatMessages(entries)); err != nil {
			c.log.Warn("Unable to cache history", "room", roomID, "error", err)
		}
		return entries, nil
	}

	cached, cacheErr := c.repository.GetMessages(roomID, limit)
	if cacheErr != nil || len(cached) == 0 {
		// The fetch error is the one worth reporting
		return nil, err
	}
	c.log.Info("History served from cache", "room", roomID, "count", len(cached), "error", err)
	return lo.Map(cached, func(m domain.ChatMessage, _ int) domain.TimelineEntry { return m }), nil
}

func chatMessages(entries []domain.TimelineEntry) []domain.ChatMessage {
	return lo.FilterMap(entries, func(e domain.TimelineEntry, _ int) (domain.ChatMessage, bool) {
		msg, ok := e.(domain.ChatMessage)
		return msg, ok
	})
}

var _ contract.HistoryFetcher = (*Cached)(nil)

// Local serves history from the repository alone, for offline use.
type Local struct {
	repository repositories.IHistoryRepository
}

func NewLocal(repository repositories.IHistoryRepository) *Local {
	return &Local{repository: repository}
}

func (l *Local) FetchHistory(_ context.Context, roomID domain.RoomID, limit int) ([]domain.TimelineEntry, error) {
	messages, err := l.repository.GetMessages(roomID, limit)
	if err != nil {
		return nil, err
	}
	return lo.Map(messages, func(m domain.ChatMessage, _ int) domain.TimelineEntry { return m }), nil
}

var _ contract.HistoryFetcher = (*Local)(nil)
