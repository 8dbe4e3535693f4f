// Package memory provides an in-process implementation of contract.Transport.
// Every connection dialed from the same Broker shares its destinations, which makes
// it suitable for tests, demos and single process deployments.
package memory

import (
	"chat-session/contract"
	"chat-session/errors"
	"chat-session/infrastructure/transport"
	"context"
	"fmt"
	"sync"
)

const defaultBufferSize = 256

// Broker routes published payloads to the subscribers of the same destination.
type Broker struct {
	mu          sync.Mutex
	subscribers map[string]map[*subscription]struct{}
	conns       map[*Conn]struct{}
	offline     bool
	bufferSize  int
}

type subscription struct {
	conn *Conn
	pipe *transport.Pipe
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[string]map[*subscription]struct{}),
		conns:       make(map[*Conn]struct{}),
		bufferSize:  defaultBufferSize,
	}
}

// SetOffline makes every further Dial fail until it is set back to false.
func (b *Broker) SetOffline(offline bool) {
	b.mu.Lock()
	b.offline = offline
	b.mu.Unlock()
}

// Dial implements contract.Dialer.
func (b *Broker) Dial(ctx context.Context) (contract.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offline {
		return nil, fmt.Errorf("memory broker offline")
	}
	c := &Conn{broker: b, done: make(chan struct{})}
	b.conns[c] = struct{}{}
	return c, nil
}

// DropAll simulates a network outage: every live connection is lost.
func (b *Broker) DropAll() {
	b.mu.Lock()
	conns := make([]*Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()
	for _, c := range conns {
		c.drop()
	}
}

// Subscribers returns how many live subscriptions a destination has.
func (b *Broker) Subscribers(destination string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[destination])
}

func (b *Broker) remove(destination string, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subscribers[destination]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.subscribers, destination)
	}
}

// Conn is one client connection to the Broker.
type Conn struct {
	broker    *Broker
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Conn) Subscribe(ctx context.Context, destination string) (contract.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.closed() {
		return nil, errors.ErrNotConnected
	}
	sub := &subscription{conn: c}
	sub.pipe = transport.NewPipe(b.bufferSize, func() error {
		b.remove(destination, sub)
		return nil
	})
	subs, ok := b.subscribers[destination]
	if !ok {
		subs = make(map[*subscription]struct{})
		b.subscribers[destination] = subs
	}
	subs[sub] = struct{}{}
	return sub.pipe, nil
}

// Publish delivers payload to every current subscriber of destination, in order.
func (c *Conn) Publish(ctx context.Context, destination string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed() {
		return errors.ErrNotConnected
	}
	b := c.broker
	b.mu.Lock()
	targets := make([]*subscription, 0, len(b.subscribers[destination]))
	for sub := range b.subscribers[destination] {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		frame := append([]byte(nil), payload...)
		sub.pipe.Deliver(frame)
	}
	return nil
}

func (c *Conn) Done() <-chan struct{} { return c.done }

// Close ends the connection and all its subscriptions.
func (c *Conn) Close() error {
	c.drop()
	return nil
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) drop() {
	c.closeOnce.Do(func() {
		b := c.broker
		b.mu.Lock()
		delete(b.conns, c)
		var owned []*subscription
		for destination, subs := range b.subscribers {
			for sub := range subs {
				if sub.conn == c {
					owned = append(owned, sub)
					delete(subs, sub)
				}
			}
			if len(subs) == 0 {
				delete(b.subscribers, destination)
			}
		}
		close(c.done)
		b.mu.Unlock()
		for _, sub := range owned {
			sub.pipe.Close()
		}
	})
}

var (
	_ contract.Dialer    = (*Broker)(nil)
	_ contract.Transport = (*Conn)(nil)
)
