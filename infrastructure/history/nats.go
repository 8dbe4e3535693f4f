package history

import (
	"chat-session/contract"
	"chat-session/domain"
	"chat-session/protocol"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/samber/lo"
)

const defaultSubjectPrefix = "rooms.history"

type historyRequest struct {
	RoomID int64 `json:"roomId"`
	Limit  int   `json:"limit"`
}

// NATSFetcher asks "{prefix}.{roomId}" with request/reply. The reply body is the same
// JSON array the REST endpoint returns.
type NATSFetcher struct {
	log    *slog.Logger
	nc     *nats.Conn
	prefix string
}

func NewNATSFetcher(log *slog.Logger, nc *nats.Conn, prefix string) *NATSFetcher {
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	return &NATSFetcher{log: log, nc: nc, prefix: strings.TrimSuffix(prefix, ".")}
}

func (f *NATSFetcher) FetchHistory(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.TimelineEntry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	data, err := json.Marshal(historyRequest{RoomID: int64(roomID), Limit: limit})
	if err != nil {
		return nil, err
	}
	reply, err := f.nc.RequestWithContext(ctx, subjectOf(f.prefix, roomID), data)
	if err != nil {
		return nil, fmt.Errorf("history of room %d: %w", roomID, err)
	}
	entries, skipped, err := protocol.DecodeHistory(reply.Data, roomID)
	if err != nil {
		return nil, fmt.Errorf("history of room %d: %w", roomID, err)
	}
	if skipped > 0 {
		f.log.Warn("Skipped invalid history items", "room", roomID, "skipped", skipped)
	}
	return newest(entries, limit), nil
}

// ServeNATS answers history requests from source on "{prefix}.*" within a queue group,
// so a relay can expose a Redis or cached history to NATS clients.
func ServeNATS(log *slog.Logger, nc *nats.Conn, prefix string, source contract.HistoryFetcher) (*nats.Subscription, error) {
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	prefix = strings.TrimSuffix(prefix, ".")
	return nc.QueueSubscribe(prefix+".*", "history-workers", func(msg *nats.Msg) {
		var req historyRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Warn("Invalid history request", "subject", msg.Subject, "error", err)
			_ = msg.Respond([]byte("[]"))
			return
		}
		entries, err := source.FetchHistory(context.Background(), domain.RoomID(req.RoomID), req.Limit)
		if err != nil {
			log.Error("History source failed", "room", req.RoomID, "error", err)
			_ = msg.Respond([]byte("[]"))
			return
		}
		payload := lo.Map(chatMessages(entries), func(m domain.ChatMessage, _ int) protocol.MessagePayload {
			return protocol.FromMessage(m)
		})
		data, err := json.Marshal(payload)
		if err != nil {
			log.Error("Encode history reply", "error", err)
			return
		}
		_ = msg.Respond(data)
	})
}

func subjectOf(prefix string, roomID domain.RoomID) string {
	return prefix + "." + roomID.String()
}

var _ contract.HistoryFetcher = (*NATSFetcher)(nil)
