//go:generate go run go.uber.org/mock/mockgen -source=history.go -destination=../mocks/mock_history_repository.go -package=mocks
package repositories

import (
	"chat-session/domain"
	"chat-session/protocol"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// IHistoryRepository is the local copy of room histories, used when the
// history service cannot be reached.
type IHistoryRepository interface {
	StoreMessages(room domain.RoomID, messages []domain.ChatMessage) error
	GetMessages(room domain.RoomID, limit int) ([]domain.ChatMessage, error)
}

// CachedMessage is one stored message with its badger key.
type CachedMessage struct {
	Key     string
	Message domain.ChatMessage
}

type HistoryRepository struct {
	db  *badger.DB
	log *slog.Logger
	ttl time.Duration
}

// NewHistoryRepository stores messages in db. A zero ttl keeps them forever.
func NewHistoryRepository(db *badger.DB, log *slog.Logger, ttl time.Duration) HistoryRepository {
	return HistoryRepository{db: db, log: log, ttl: ttl}
}

// StoreMessages persists messages under "msg:{room}:{timestamp_padded}:{id}".
//  1. The 19 digit zero padded timestamp keeps keys in chronological order.
//  2. The id is derived from the message identity so storing it twice overwrites it.
//  3. A message without a usable timestamp is keyed by the time it was first stored,
//     remembered under "stamp:{room}:{id}" so storing it again hits the same key.
func (r HistoryRepository) StoreMessages(room domain.RoomID, messages []domain.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	storedAt := time.Now().UTC()
	wb := r.db.NewWriteBatch()
	defer wb.Cancel()
	stamped := make(map[uuid.UUID]time.Time)
	for _, msg := range messages {
		msg.RoomID = room
		id := messageID(msg)
		if !sortable(msg.Timestamp) {
			at, known := stamped[id]
			if !known {
				var err error
				if at, known, err = r.firstStored(room, id); err != nil {
					return err
				}
			}
			if !known {
				// one nanosecond apart keeps the batch order
				at = storedAt.Add(time.Duration(len(stamped)))
				if err := wb.SetEntry(r.entry(stampKey(room, id), []byte(strconv.FormatInt(at.UnixNano(), 10)))); err != nil {
					return fmt.Errorf("store message of room %d: %w", room, err)
				}
			}
			stamped[id] = at
			msg.Timestamp = at
		}
		value, err := json.Marshal(protocol.FromMessage(msg))
		if err != nil {
			return err
		}
		if err := wb.SetEntry(r.entry(messageKey(room, msg.Timestamp, id), value)); err != nil {
			return fmt.Errorf("store message of room %d: %w", room, err)
		}
	}
	return wb.Flush()
}

func (r HistoryRepository) entry(key, value []byte) *badger.Entry {
	entry := badger.NewEntry(key, value)
	if r.ttl > 0 {
		entry = entry.WithTTL(r.ttl)
	}
	return entry
}

// firstStored returns the time a message without timestamp was stored before, if ever.
func (r HistoryRepository) firstStored(room domain.RoomID, id uuid.UUID) (time.Time, bool, error) {
	var at time.Time
	var found bool
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stampKey(room, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			nanos, err := strconv.ParseInt(string(value), 10, 64)
			if err != nil {
				return fmt.Errorf("decode stamp of %s: %w", id, err)
			}
			at, found = time.Unix(0, nanos).UTC(), true
			return nil
		})
	})
	return at, found, err
}

// GetMessages returns the limit most recent messages of a room, oldest first.
// The keys are scanned backwards from the end of the room prefix.
func (r HistoryRepository) GetMessages(room domain.RoomID, limit int) ([]domain.ChatMessage, error) {
	var messages []domain.ChatMessage
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%d:", room))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible key, then walk back
		seekKey := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				r.log.Debug("History cache limit reached", "room", room, "limit", limit)
				break
			}
			msg, err := decodeItem(it.Item(), room)
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

// Dump lists every cached message in key order, at most limit of them.
func (r HistoryRepository) Dump(limit int) ([]CachedMessage, error) {
	var out []CachedMessage
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = []byte("msg:")
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if limit > 0 && len(out) == limit {
				break
			}
			item := it.Item()
			msg, err := decodeItem(item, 0)
			if err != nil {
				return err
			}
			out = append(out, CachedMessage{Key: string(item.KeyCopy(nil)), Message: msg})
		}
		return nil
	})
	return out, err
}

func decodeItem(item *badger.Item, room domain.RoomID) (domain.ChatMessage, error) {
	var msg domain.ChatMessage
	err := item.Value(func(value []byte) error {
		var p protocol.MessagePayload
		if err := json.Unmarshal(value, &p); err != nil {
			return fmt.Errorf("decode cached message %s: %w", item.Key(), err)
		}
		msg = p.ToDomain(room)
		return nil
	})
	return msg, err
}

func messageID(msg domain.ChatMessage) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(msg.Key()))
}

func messageKey(room domain.RoomID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%d:%019d:%s", room, at.UnixNano(), id))
}

func stampKey(room domain.RoomID, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("stamp:%d:%s", room, id))
}

// sortable reports whether UnixNano of t is defined and not negative.
func sortable(t time.Time) bool {
	return !t.Before(time.Unix(0, 0)) && t.Before(maxKeyTime)
}

var maxKeyTime = time.Unix(0, math.MaxInt64)
