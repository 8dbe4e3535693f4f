package stompws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeBroker is a single connection STOMP broker echoing SEND frames to the
// subscriptions of the same destination.
type fakeBroker struct {
	mu       sync.Mutex
	frames   []*frame.Frame
	refuse   bool
	conn     *websocket.Conn
	upgrader websocket.Upgrader
}

func (b *fakeBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()
	b.mu.Lock()
	b.conn = ws
	b.mu.Unlock()

	subs := make(map[string]string) // destination -> subscription id
	for {
		f, err := readFrame(ws)
		if err != nil {
			return
		}
		if f == nil {
			continue
		}
		b.mu.Lock()
		b.frames = append(b.frames, f)
		b.mu.Unlock()

		switch f.Command {
		case frame.CONNECT:
			b.mu.Lock()
			refuse := b.refuse
			b.mu.Unlock()
			if refuse {
				_ = writeFrame(ws, frame.New(frame.ERROR, frame.Message, "bad credentials"))
				return
			}
			_ = writeFrame(ws, frame.New(frame.CONNECTED, frame.Version, "1.2", frame.HeartBeat, "0,0"))
		case frame.SUBSCRIBE:
			subs[f.Header.Get(frame.Destination)] = f.Header.Get(frame.Id)
		case frame.UNSUBSCRIBE:
			for destination, id := range subs {
				if id == f.Header.Get(frame.Id) {
					delete(subs, destination)
				}
			}
		case frame.SEND:
			destination := f.Header.Get(frame.Destination)
			id, ok := subs[destination]
			if !ok {
				continue
			}
			msg := frame.New(frame.MESSAGE, frame.Subscription, id, frame.Destination, destination, frame.MessageId, "1",
				frame.ContentLength, f.Header.Get(frame.ContentLength))
			msg.Body = f.Body
			_ = writeFrame(ws, msg)
		case frame.DISCONNECT:
			return
		}
	}
}

func (b *fakeBroker) commands() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.frames))
	for _, f := range b.frames {
		out = append(out, f.Command)
	}
	return out
}

func (b *fakeBroker) kill() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		_ = b.conn.Close()
	}
}

func newFakeBroker(t *testing.T) (*fakeBroker, string) {
	broker := &fakeBroker{}
	server := httptest.NewServer(broker)
	t.Cleanup(server.Close)
	return broker, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConn_Subscribe_Publish_Receive(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	broker, url := newFakeBroker(t)

	// Given a STOMP session subscribed to the messages topic
	conn, err := NewDialer(discardLogger(), url).Dial(ctx)
	req.NoError(err)
	defer conn.Close()
	sub, err := conn.Subscribe(ctx, "/topic/rooms/1/messages")
	req.NoError(err)

	// When a payload is published there
	req.NoError(conn.Publish(ctx, "/topic/rooms/1/messages", []byte(`{"sender":"bob","message":"hi"}`)))

	// Then it comes back on the subscription
	select {
	case frame := <-sub.Frames():
		req.JSONEq(`{"sender":"bob","message":"hi"}`, string(frame))
	case <-ctx.Done():
		req.Fail("no frame received")
	}

	// When unsubscribing twice
	req.NoError(sub.Unsubscribe())
	req.NoError(sub.Unsubscribe())

	// Then a single UNSUBSCRIBE reached the broker
	req.Eventually(func() bool {
		return strings.Count(strings.Join(broker.commands(), " "), frame.UNSUBSCRIBE) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestDialer_Refused(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	broker, url := newFakeBroker(t)
	broker.mu.Lock()
	broker.refuse = true
	broker.mu.Unlock()

	// When the broker answers CONNECT with an ERROR frame
	_, err := NewDialer(discardLogger(), url).Dial(ctx)

	// Then dialing fails with its message
	req.ErrorContains(err, "bad credentials")
}

func TestConn_Done_When_Broker_Goes_Away(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	broker, url := newFakeBroker(t)

	conn, err := NewDialer(discardLogger(), url).Dial(ctx)
	req.NoError(err)
	sub, err := conn.Subscribe(ctx, "/topic/rooms/1/system")
	req.NoError(err)

	// When the broker drops the socket
	req.Eventually(func() bool { return len(broker.commands()) == 2 }, time.Second, 10*time.Millisecond)
	broker.kill()

	// Then the session and its subscriptions are done
	select {
	case <-conn.Done():
	case <-ctx.Done():
		req.Fail("connection not reported lost")
	}
	<-sub.Done()

	// And publishing fails
	req.Error(conn.Publish(ctx, "/app/chat.sendMessage", []byte(`{}`)))
}

func TestConn_Close_Sends_Disconnect(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	broker, url := newFakeBroker(t)

	conn, err := NewDialer(discardLogger(), url, WithHeartBeat(0)).Dial(ctx)
	req.NoError(err)

	req.NoError(conn.Close())
	req.NoError(conn.Close())

	<-conn.Done()
	req.Eventually(func() bool {
		cmds := broker.commands()
		return len(cmds) > 0 && cmds[len(cmds)-1] == frame.DISCONNECT
	}, time.Second, 10*time.Millisecond)
}
