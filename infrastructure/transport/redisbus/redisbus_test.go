package redisbus

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func redisAddr(t *testing.T) string {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return addr
}

func TestConn_Subscribe_Publish(t *testing.T) {
	req := require.New(t)
	addr := redisAddr(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	dialer, err := NewDialer(log, addr, time.Second)
	req.NoError(err)
	conn, err := dialer.Dial(ctx)
	req.NoError(err)
	defer conn.Close()

	// Given a subscription on a room topic
	sub, err := conn.Subscribe(ctx, "/topic/rooms/42/participants")
	req.NoError(err)

	// When a roster is published
	req.NoError(conn.Publish(ctx, "/topic/rooms/42/participants", []byte(`[{"userId":1,"nickname":"alice"}]`)))

	// Then it is delivered
	select {
	case frame := <-sub.Frames():
		req.JSONEq(`[{"userId":1,"nickname":"alice"}]`, string(frame))
	case <-ctx.Done():
		req.Fail("no frame received")
	}

	// When the connection is closed
	req.NoError(conn.Close())

	// Then the subscription ends with it
	<-sub.Done()
	<-conn.Done()
}

func TestDialer_Unreachable(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	dialer, err := NewDialer(log, "localhost:1", time.Second)
	req.NoError(err)

	_, err = dialer.Dial(ctx)
	req.Error(err)
}
