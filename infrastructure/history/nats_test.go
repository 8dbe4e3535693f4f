package history

import (
	"chat-session/domain"
	"chat-session/mocks"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func natsConn(t *testing.T) *nats.Conn {
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Timeout(time.Second))
	if err != nil {
		t.Skipf("NATS not available: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

func TestNATSFetcher_Request_Reply(t *testing.T) {
	req := require.New(t)
	nc := natsConn(t)
	ctrl := gomock.NewController(t)
	source := mocks.NewMockHistoryFetcher(ctrl)
	prefix := fmt.Sprintf("test.history.%d", time.Now().UnixNano())
	at := time.Now().UTC().Truncate(time.Millisecond)

	// Given a responder serving a two message history
	source.EXPECT().FetchHistory(gomock.Any(), domain.RoomID(9), 20).Return([]domain.TimelineEntry{
		domain.ChatMessage{ID: "1", RoomID: 9, Sender: "alice", Message: "first", UserID: 1, Timestamp: at},
		domain.ChatMessage{ID: "2", RoomID: 9, Sender: "bob", Message: "second", UserID: 2, Timestamp: at.Add(time.Second)},
	}, nil)
	sub, err := ServeNATS(discard(), nc, prefix, source)
	req.NoError(err)
	defer sub.Unsubscribe()
	req.NoError(nc.Flush())

	// When a client asks for room 9
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	entries, err := NewNATSFetcher(discard(), nc, prefix).FetchHistory(ctx, 9, 20)

	// Then the reply decodes into the same messages
	req.NoError(err)
	req.Len(entries, 2)
	req.Equal("first", entries[0].(domain.ChatMessage).Message)
	req.True(at.Equal(entries[0].At()))
	req.Equal(domain.UserID(2), entries[1].(domain.ChatMessage).UserID)
}

func TestNATSFetcher_No_Responder(t *testing.T) {
	req := require.New(t)
	nc := natsConn(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewNATSFetcher(discard(), nc, fmt.Sprintf("nobody.%d", time.Now().UnixNano())).FetchHistory(ctx, 1, 10)

	req.Error(err)
}
