package e2e

import (
	"chat-session/contract"
	"chat-session/domain"
	"chat-session/domain/event"
	"chat-session/projection"
	"chat-session/protocol"
	"chat-session/runtime"
	"chat-session/runtime/workers"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

type BaseSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
}

// Step prints a header then runs fn as a subtest.
func (s *BaseSuite) Step(name string, fn func()) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
	s.Run(name, fn)
}

func (s *BaseSuite) logger() *slog.Logger {
	if s.Config.Debug {
		return logs.GetLoggerFromLevel(slog.LevelDebug)
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Client is one logged-in user with its own engine, connection and sinks.
type Client struct {
	User     domain.User
	Engine   *runtime.Engine
	Events   *Recorder
	stop     context.CancelFunc
	finished chan struct{}
}

// StartClient runs a complete session stack under a supervisor and connects it.
func (s *BaseSuite) StartClient(user domain.User, dialer contract.Dialer, history contract.HistoryFetcher,
	confirmer contract.Confirmer, extra ...contract.EventSink) *Client {
	log := s.logger().With("user", user.Nickname)
	events := &Recorder{}
	fanout := workers.NewEventFanout(log, 256, time.Second).Add(events).Add(extra...)

	conn := runtime.NewConnectionManager(log, dialer, 100*time.Millisecond)
	registry := runtime.NewRegistry(log, conn, protocol.DefaultDestinations())
	engine := runtime.NewEngine(log, user, conn, registry, history, confirmer, fanout, projection.NewTimeline(),
		runtime.SessionConfig{HistoryLimit: 100, HistoryTimeout: s.Config.Timeout}, 256)

	ctx, cancel := context.WithCancel(context.Background())
	supervisor := workers.NewSupervisor(log, 50*time.Millisecond)
	supervisor.Add(conn, engine, fanout)
	client := &Client{User: user, Engine: engine, Events: events, stop: cancel, finished: make(chan struct{})}
	go func() {
		supervisor.Run(ctx)
		close(client.finished)
	}()
	s.Require().NoError(engine.Connect(ctx))
	s.T().Cleanup(client.Close)
	return client
}

// Close disconnects then stops the workers.
func (c *Client) Close() {
	select {
	case <-c.finished:
		return
	default:
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = c.Engine.Disconnect(ctx)
	c.stop()
	<-c.finished
}

// View reads the engine snapshot, failing on a stopped engine.
func (c *Client) View() runtime.View {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	view, err := c.Engine.View(ctx)
	if err != nil {
		panic(err)
	}
	return view
}

// Messages returns the chat texts of the visible timeline.
func (c *Client) Messages() []string {
	var out []string
	for _, e := range c.View().Timeline {
		if m, ok := e.(domain.ChatMessage); ok {
			out = append(out, m.Message)
		}
	}
	return out
}

// Recorder keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (r *Recorder) Consume(_ context.Context, e event.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Count(t event.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type() == t {
			n++
		}
	}
	return n
}

// Confirm answers every prompt the same way.
type Confirm struct {
	Exit   bool
	Reason string
}

func (c Confirm) ConfirmExit(context.Context, domain.Room) bool { return c.Exit }

func (c Confirm) ConfirmKick(context.Context, domain.Participant) (string, bool) {
	return c.Reason, c.Reason != ""
}
