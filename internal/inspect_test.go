package internal

import (
	"chat-session/domain"
	"chat-session/repositories"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func TestInspectHandler_Lists_Cached_Messages(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	// Given two rooms in the cache
	repository := repositories.NewHistoryRepository(db, slog.Default(), 0)
	at := time.Now()
	req.NoError(repository.StoreMessages(1, []domain.ChatMessage{{Sender: "alice", Message: "in general", UserID: 1, Timestamp: at}}))
	req.NoError(repository.StoreMessages(2, []domain.ChatMessage{{Sender: "bob", Message: "in random", UserID: 2, Timestamp: at}}))
	handler := NewInspectHandler(db, nil, func() map[string]any { return map[string]any{"Mode": "test"} })

	// When room 2 is inspected
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inspect?prefix=msg:2:", nil))

	// Then only its message is listed
	req.Equal(http.StatusOK, rec.Code)
	req.Contains(rec.Body.String(), "in random")
	req.Contains(rec.Body.String(), "bob")
	req.NotContains(rec.Body.String(), "in general")
	req.Contains(rec.Body.String(), "Mode: test")
}

func TestMessageMapper(t *testing.T) {
	req := require.New(t)
	key := "msg:4:" + "0001714550400000000" + ":5f1c3b7e-aaaa-bbbb-cccc-000000000000"

	row := MessageMapper(key, []byte(`{"sender":"alice","message":"hello","userId":1}`))

	req.Equal("4", row.Room)
	req.Equal("5f1c3b7e", row.EntityID)
	req.Equal("alice", row.Sender)
	req.Equal("hello", row.Detail)
	req.NotEqual("--:--:--", row.Timestamp)

	raw := MessageMapper("other", []byte("xyz"))
	req.Equal("Size: 3 bytes", raw.Detail)
}
