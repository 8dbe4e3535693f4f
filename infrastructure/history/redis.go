package history

import (
	"chat-session/contract"
	"chat-session/domain"
	"chat-session/protocol"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each room history in a sorted set scored by timestamp in milliseconds.
type RedisStore struct {
	log    *slog.Logger
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore does not own the client. A zero ttl never expires the room keys.
func NewRedisStore(log *slog.Logger, client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{log: log, client: client, ttl: ttl}
}

func roomKey(roomID domain.RoomID) string {
	return fmt.Sprintf("room:%d:messages", roomID)
}

// Append records messages, typically from a room service relay or a test fixture.
func (s *RedisStore) Append(ctx context.Context, roomID domain.RoomID, messages ...domain.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	members := make([]redis.Z, 0, len(messages))
	for _, msg := range messages {
		data, err := json.Marshal(protocol.FromMessage(msg))
		if err != nil {
			return err
		}
		members = append(members, redis.Z{Score: float64(msg.Timestamp.UnixMilli()), Member: string(data)})
	}
	key := roomKey(roomID)
	if err := s.client.ZAdd(ctx, key, members...).Err(); err != nil {
		return fmt.Errorf("append history of room %d: %w", roomID, err)
	}
	if s.ttl > 0 {
		s.client.Expire(ctx, key, s.ttl)
	}
	return nil
}

func (s *RedisStore) FetchHistory(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.TimelineEntry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	results, err := s.client.ZRevRangeByScore(ctx, roomKey(roomID), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("history of room %d: %w", roomID, err)
	}

	entries := make([]domain.TimelineEntry, 0, len(results))
	for _, data := range results {
		msg, err := protocol.DecodeMessage([]byte(data), roomID)
		if err != nil {
			s.log.Warn("Skipped invalid history item", "room", roomID, "error", err)
			continue
		}
		entries = append(entries, msg)
	}
	// Newest first out of redis
	slices.Reverse(entries)
	return entries, nil
}

var _ contract.HistoryFetcher = (*RedisStore)(nil)
