// Package redisbus carries room destinations over Redis pub/sub channels.
package redisbus

import (
	"chat-session/contract"
	"chat-session/errors"
	"chat-session/infrastructure/transport"
	"chat-session/protocol"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultBufferSize   = 256
	defaultPingInterval = 5 * time.Second
)

// Dialer opens a Redis client per connection. Redis pub/sub has no session,
// so the connection is considered lost as soon as a health ping fails.
type Dialer struct {
	log          *slog.Logger
	options      *redis.Options
	pingInterval time.Duration
}

// NewDialer accepts a redis:// URL or a bare host:port.
func NewDialer(log *slog.Logger, addr string, pingInterval time.Duration) (*Dialer, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		opts = parsed
	}
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	return &Dialer{log: log, options: opts, pingInterval: pingInterval}, nil
}

func (d *Dialer) Dial(ctx context.Context) (contract.Transport, error) {
	client := redis.NewClient(d.options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", d.options.Addr, err)
	}
	c := &Conn{
		log:    d.log,
		client: client,
		pipes:  make(map[*transport.Pipe]*redis.PubSub),
		done:   make(chan struct{}),
	}
	go c.health(d.pingInterval)
	return c, nil
}

type Conn struct {
	log       *slog.Logger
	client    *redis.Client
	mu        sync.Mutex
	pipes     map[*transport.Pipe]*redis.PubSub
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Conn) Subscribe(ctx context.Context, destination string) (contract.Subscription, error) {
	if c.closed() {
		return nil, errors.ErrNotConnected
	}
	channel := protocol.Subject(destination)
	ps := c.client.Subscribe(ctx, channel)
	// Wait for the confirmation so nothing published afterwards is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	var pipe *transport.Pipe
	pipe = transport.NewPipe(defaultBufferSize, func() error {
		c.mu.Lock()
		delete(c.pipes, pipe)
		c.mu.Unlock()
		return ps.Close()
	})
	c.mu.Lock()
	c.pipes[pipe] = ps
	c.mu.Unlock()

	go func() {
		messages := ps.Channel()
		for {
			select {
			case <-pipe.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				pipe.Deliver([]byte(msg.Payload))
			}
		}
	}()
	return pipe, nil
}

func (c *Conn) Publish(ctx context.Context, destination string, payload []byte) error {
	if c.closed() {
		return errors.ErrNotConnected
	}
	if err := c.client.Publish(ctx, protocol.Subject(destination), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", destination, err)
	}
	return nil
}

func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Close() error {
	c.shutdown()
	return nil
}

func (c *Conn) health(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			err := c.client.Ping(ctx).Err()
			cancel()
			if err != nil {
				c.log.Warn("Redis unreachable", "error", err)
				c.shutdown()
				return
			}
		}
	}
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		subs := make(map[*transport.Pipe]*redis.PubSub, len(c.pipes))
		for p, ps := range c.pipes {
			subs[p] = ps
		}
		clear(c.pipes)
		c.mu.Unlock()
		for p, ps := range subs {
			p.Close()
			_ = ps.Close()
		}
		_ = c.client.Close()
		close(c.done)
	})
}

var (
	_ contract.Dialer    = (*Dialer)(nil)
	_ contract.Transport = (*Conn)(nil)
)
