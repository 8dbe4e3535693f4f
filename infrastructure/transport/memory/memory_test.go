package memory

import (
	"chat-session/errors"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroker_PublishSubscribe_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	broker := NewBroker()

	publisher, err := broker.Dial(ctx)
	req.NoError(err)
	consumer, err := broker.Dial(ctx)
	req.NoError(err)

	sub, err := consumer.Subscribe(ctx, "/topic/rooms/1/messages")
	req.NoError(err)

	// When three frames are published on the destination
	for _, body := range []string{"a", "b", "c"} {
		req.NoError(publisher.Publish(ctx, "/topic/rooms/1/messages", []byte(body)))
	}
	// And one on another destination
	req.NoError(publisher.Publish(ctx, "/topic/rooms/2/messages", []byte("other")))

	// Then the subscriber receives its frames in publication order
	for _, want := range []string{"a", "b", "c"} {
		select {
		case got := <-sub.Frames():
			req.Equal(want, string(got))
		case <-time.After(time.Second):
			req.FailNow("frame not delivered")
		}
	}
	select {
	case got := <-sub.Frames():
		req.FailNow("unexpected frame", string(got))
	default:
	}
}

func TestBroker_Unsubscribe_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	broker := NewBroker()
	conn, err := broker.Dial(ctx)
	req.NoError(err)

	sub, err := conn.Subscribe(ctx, "/topic/x")
	req.NoError(err)
	req.Equal(1, broker.Subscribers("/topic/x"))

	req.NoError(sub.Unsubscribe())
	req.NoError(sub.Unsubscribe())
	req.Equal(0, broker.Subscribers("/topic/x"))

	// Publishing after unsubscribe is harmless
	req.NoError(conn.Publish(ctx, "/topic/x", []byte("late")))
	<-sub.Done()
}

func TestBroker_DropAll(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	broker := NewBroker()
	conn, err := broker.Dial(ctx)
	req.NoError(err)
	sub, err := conn.Subscribe(ctx, "/topic/x")
	req.NoError(err)

	// When the network drops
	broker.DropAll()

	// Then the connection and its subscriptions are gone
	<-conn.Done()
	<-sub.Done()
	req.Equal(0, broker.Subscribers("/topic/x"))
	req.ErrorIs(conn.Publish(ctx, "/topic/x", []byte("x")), errors.ErrNotConnected)
	_, err = conn.Subscribe(ctx, "/topic/x")
	req.ErrorIs(err, errors.ErrNotConnected)

	// And an offline broker refuses new connections
	broker.SetOffline(true)
	_, err = broker.Dial(ctx)
	req.Error(err)
	broker.SetOffline(false)
	_, err = broker.Dial(ctx)
	req.NoError(err)
}
