// Package stompws speaks STOMP 1.2 over a WebSocket, the protocol exposed by
// the room service's message broker endpoint.
package stompws

import (
	"chat-session/contract"
	"chat-session/errors"
	"chat-session/infrastructure/transport"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

const (
	defaultBufferSize = 256
	maxFrameSize      = 1 << 20
	writeWait         = 10 * time.Second
)

// Dialer opens STOMP sessions. It implements contract.Dialer.
type Dialer struct {
	log       *slog.Logger
	url       string
	host      string
	header    http.Header
	heartBeat time.Duration
	ws        *websocket.Dialer
}

type Option func(*Dialer)

// WithHeartBeat asks the broker for heart-beats in both directions.
func WithHeartBeat(d time.Duration) Option {
	return func(dialer *Dialer) { dialer.heartBeat = d }
}

// WithHeader adds HTTP headers to the WebSocket handshake, e.g. a session cookie.
func WithHeader(h http.Header) Option {
	return func(dialer *Dialer) { dialer.header = h }
}

func NewDialer(log *slog.Logger, url string, opts ...Option) *Dialer {
	d := &Dialer{
		log:  log,
		url:  url,
		host: hostOf(url),
		ws: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			Subprotocols:     []string{"v12.stomp"},
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial opens the WebSocket and completes the STOMP handshake before returning.
func (d *Dialer) Dial(ctx context.Context) (contract.Transport, error) {
	ws, _, err := d.ws.DialContext(ctx, d.url, d.header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", d.url, err)
	}
	ws.SetReadLimit(maxFrameSize)

	hb := strconv.FormatInt(d.heartBeat.Milliseconds(), 10)
	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2",
		frame.Host, d.host,
		frame.HeartBeat, hb+","+hb,
	)
	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetWriteDeadline(deadline)
		_ = ws.SetReadDeadline(deadline)
	}
	if err := writeFrame(ws, connect); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("stomp connect: %w", err)
	}
	connected, err := readFrame(ws)
	if err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("stomp connect: %w", err)
	}
	if connected == nil || connected.Command != frame.CONNECTED {
		_ = ws.Close()
		if connected == nil {
			return nil, fmt.Errorf("stomp connect: heart-beat before CONNECTED")
		}
		return nil, fmt.Errorf("stomp connect refused: %s %s", connected.Header.Get(frame.Message), strings.TrimSpace(string(connected.Body)))
	}
	_ = ws.SetWriteDeadline(time.Time{})
	_ = ws.SetReadDeadline(time.Time{})

	outgoing, incoming := negotiate(d.heartBeat, connected.Header.Get(frame.HeartBeat))
	c := &Conn{
		log:      d.log,
		ws:       ws,
		subs:     make(map[string]*transport.Pipe),
		done:     make(chan struct{}),
		incoming: incoming,
	}
	d.log.Debug("STOMP session established", "url", d.url, "server", connected.Header.Get(frame.Server), "heart_beat_out", outgoing, "heart_beat_in", incoming)
	go c.readLoop()
	if outgoing > 0 {
		go c.heartBeatLoop(outgoing)
	}
	return c, nil
}

// Conn is one STOMP session.
type Conn struct {
	log       *slog.Logger
	ws        *websocket.Conn
	writeMu   sync.Mutex
	mu        sync.Mutex
	subs      map[string]*transport.Pipe
	nextID    atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once
	incoming  time.Duration
}

func (c *Conn) Subscribe(ctx context.Context, destination string) (contract.Subscription, error) {
	if c.closed() {
		return nil, errors.ErrNotConnected
	}
	id := "sub-" + strconv.FormatUint(c.nextID.Add(1), 10)
	pipe := transport.NewPipe(defaultBufferSize, func() error {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		if c.closed() {
			return nil
		}
		return c.write(context.Background(), frame.New(frame.UNSUBSCRIBE, frame.Id, id))
	})

	c.mu.Lock()
	c.subs[id] = pipe
	c.mu.Unlock()

	if err := c.write(ctx, frame.New(frame.SUBSCRIBE, frame.Id, id, frame.Destination, destination, frame.Ack, "auto")); err != nil {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		pipe.Close()
		return nil, fmt.Errorf("stomp subscribe %s: %w", destination, err)
	}
	return pipe, nil
}

func (c *Conn) Publish(ctx context.Context, destination string, payload []byte) error {
	if c.closed() {
		return errors.ErrNotConnected
	}
	f := frame.New(frame.SEND,
		frame.Destination, destination,
		frame.ContentType, "application/json",
		frame.ContentLength, strconv.Itoa(len(payload)),
	)
	f.Body = payload
	return c.write(ctx, f)
}

func (c *Conn) Done() <-chan struct{} { return c.done }

// Close sends DISCONNECT and closes the socket. The session ends either way.
func (c *Conn) Close() error {
	if c.closed() {
		return nil
	}
	if err := c.write(context.Background(), frame.New(frame.DISCONNECT)); err != nil {
		c.log.Debug("DISCONNECT not sent", "error", err)
	}
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.shutdown()
	return nil
}

func (c *Conn) write(ctx context.Context, f *frame.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetWriteDeadline(deadline)
	if err := writeFrame(c.ws, f); err != nil {
		c.shutdown()
		return err
	}
	return nil
}

func (c *Conn) readLoop() {
	defer c.shutdown()
	for {
		if c.incoming > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(3 * c.incoming))
		}
		f, err := readFrame(c.ws)
		if err != nil {
			if !c.closed() {
				c.log.Warn("STOMP session lost", "error", err)
			}
			return
		}
		if f == nil {
			continue
		}
		switch f.Command {
		case frame.MESSAGE:
			c.mu.Lock()
			pipe, ok := c.subs[f.Header.Get(frame.Subscription)]
			c.mu.Unlock()
			if !ok {
				continue
			}
			pipe.Deliver(f.Body)
		case frame.ERROR:
			c.log.Error("STOMP error from broker", "message", f.Header.Get(frame.Message), "body", string(f.Body))
			return
		case frame.RECEIPT:
		default:
			c.log.Debug("Ignoring STOMP frame", "command", f.Command)
		}
	}
}

func (c *Conn) heartBeatLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := writeFrame(c.ws, nil)
			c.writeMu.Unlock()
			if err != nil {
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

// shutdown closes the socket and every pipe, then Done.
func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		_ = c.ws.Close()
		c.mu.Lock()
		pipes := make([]*transport.Pipe, 0, len(c.subs))
		for id, p := range c.subs {
			pipes = append(pipes, p)
			delete(c.subs, id)
		}
		c.mu.Unlock()
		for _, p := range pipes {
			p.Close()
		}
		close(c.done)
	})
}

func hostOf(rawURL string) string {
	rest := rawURL
	if _, after, ok := strings.Cut(rawURL, "://"); ok {
		rest = after
	}
	host, _, _ := strings.Cut(rest, "/")
	if h, _, ok := strings.Cut(host, ":"); ok {
		return h
	}
	return host
}

var (
	_ contract.Dialer    = (*Dialer)(nil)
	_ contract.Transport = (*Conn)(nil)
)
