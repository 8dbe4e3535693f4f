// Package natsbus carries room destinations over NATS subjects.
// "/topic/rooms/1/messages" is published on "topic.rooms.1.messages".
package natsbus

import (
	"chat-session/contract"
	"chat-session/errors"
	"chat-session/infrastructure/transport"
	"chat-session/protocol"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const defaultBufferSize = 256

// Dialer connects to a NATS server. Reconnection is left to the
// ConnectionManager, a lost connection is reported through Done.
type Dialer struct {
	log  *slog.Logger
	url  string
	name string
	opts []nats.Option
}

func NewDialer(log *slog.Logger, url, clientName string, opts ...nats.Option) *Dialer {
	return &Dialer{log: log, url: url, name: clientName, opts: opts}
}

func (d *Dialer) Dial(ctx context.Context) (contract.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &Conn{log: d.log, pipes: make(map[*transport.Pipe]struct{}), done: make(chan struct{})}
	opts := append([]nats.Option{
		nats.Name(d.name),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				d.log.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.shutdown()
		}),
	}, d.opts...)
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(d.url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", d.url, err)
	}
	c.nc = nc
	d.log.Debug("NATS connection established", "url", nc.ConnectedUrl())
	return c, nil
}

type Conn struct {
	log       *slog.Logger
	nc        *nats.Conn
	mu        sync.Mutex
	pipes     map[*transport.Pipe]struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Conn) Subscribe(ctx context.Context, destination string) (contract.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.nc.IsClosed() {
		return nil, errors.ErrNotConnected
	}
	var (
		sub  *nats.Subscription
		pipe *transport.Pipe
	)
	pipe = transport.NewPipe(defaultBufferSize, func() error {
		c.mu.Lock()
		delete(c.pipes, pipe)
		c.mu.Unlock()
		if c.nc.IsClosed() {
			return nil
		}
		return sub.Unsubscribe()
	})

	// The handler runs on the subscription's own goroutine, one message at a time.
	sub, err := c.nc.Subscribe(protocol.Subject(destination), func(msg *nats.Msg) {
		pipe.Deliver(msg.Data)
	})
	if err != nil {
		pipe.Close()
		return nil, fmt.Errorf("nats subscribe %s: %w", destination, err)
	}
	c.mu.Lock()
	c.pipes[pipe] = struct{}{}
	c.mu.Unlock()
	return pipe, nil
}

func (c *Conn) Publish(ctx context.Context, destination string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.nc.Publish(protocol.Subject(destination), payload); err != nil {
		if err == nats.ErrConnectionClosed {
			return errors.ErrNotConnected
		}
		return fmt.Errorf("nats publish %s: %w", destination, err)
	}
	return nil
}

func (c *Conn) Done() <-chan struct{} { return c.done }

// Close drains pending messages then closes the connection.
func (c *Conn) Close() error {
	if c.nc.IsClosed() {
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
	}
	return nil
}

// NATS exposes the underlying connection, e.g. to issue history requests.
func (c *Conn) NATS() *nats.Conn { return c.nc }

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		pipes := make([]*transport.Pipe, 0, len(c.pipes))
		for p := range c.pipes {
			pipes = append(pipes, p)
		}
		clear(c.pipes)
		c.mu.Unlock()
		for _, p := range pipes {
			p.Close()
		}
		close(c.done)
	})
}

var (
	_ contract.Dialer    = (*Dialer)(nil)
	_ contract.Transport = (*Conn)(nil)
)
