package main

import (
	"bytes"
	"chat-session/domain"
	"chat-session/repositories"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)

	render(&out, []repositories.CachedMessage{{
		Key:     "msg:3:0001714550400000000:0b0c",
		Message: domain.ChatMessage{ID: "12", RoomID: 3, Sender: "alice", Message: "hello", Timestamp: at},
	}})

	req.Contains(out.String(), "alice")
	req.Contains(out.String(), "hello")
	req.Contains(out.String(), "2024-05-01 10:00:00")
	req.Contains(out.String(), "msg:3:")
}
