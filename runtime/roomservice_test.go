package runtime

import (
	"chat-session/contract"
	"chat-session/domain"
	"chat-session/domain/event"
	"chat-session/infrastructure/transport/memory"
	"chat-session/projection"
	"chat-session/protocol"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeRoomService plays the server side: it records commands and broadcasts
// rosters, messages and kick notices like the room service does.
type fakeRoomService struct {
	t        *testing.T
	conn     contract.Transport
	dest     protocol.Destinations
	mu       sync.Mutex
	commands map[string][]protocol.CommandPayload
	members  map[int64][]protocol.ParticipantPayload
	seq      int
}

func newFakeRoomService(t *testing.T, broker *memory.Broker) *fakeRoomService {
	conn, err := broker.Dial(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	s := &fakeRoomService{
		t:        t,
		conn:     conn,
		dest:     protocol.DefaultDestinations(),
		commands: make(map[string][]protocol.CommandPayload),
		members:  make(map[int64][]protocol.ParticipantPayload),
	}
	for _, destination := range []string{s.dest.Join, s.dest.Leave, s.dest.Exit, s.dest.Kick, s.dest.Send} {
		sub, err := conn.Subscribe(context.Background(), destination)
		require.NoError(t, err)
		go s.serve(destination, sub)
	}
	return s
}

func (s *fakeRoomService) serve(destination string, sub contract.Subscription) {
	for {
		select {
		case <-sub.Done():
			return
		case frame := <-sub.Frames():
			var cmd protocol.CommandPayload
			if err := json.Unmarshal(frame, &cmd); err != nil {
				continue
			}
			s.handle(destination, cmd)
		}
	}
}

func (s *fakeRoomService) handle(destination string, cmd protocol.CommandPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[destination] = append(s.commands[destination], cmd)
	room := domain.RoomID(cmd.RoomID)

	switch destination {
	case s.dest.Join:
		s.members[cmd.RoomID] = append(s.members[cmd.RoomID], protocol.ParticipantPayload{UserID: protocol.ID(cmd.UserID), Nickname: cmd.Sender})
		s.broadcastRoster(room)
	case s.dest.Leave, s.dest.Exit:
		s.removeMember(cmd.RoomID, cmd.UserID)
		s.broadcastRoster(room)
	case s.dest.Send:
		s.seq++
		s.publish(s.dest.MessagesTopic(room), protocol.MessagePayload{
			ID:        fmt.Sprint(s.seq),
			RoomID:    protocol.ID(cmd.RoomID),
			Sender:    cmd.Sender,
			Message:   cmd.Message,
			UserID:    protocol.ID(cmd.UserID),
			Timestamp: protocol.Timestamp{Time: time.Now()},
		})
	case s.dest.Kick:
		target := protocol.ID(*cmd.TargetUserID)
		s.removeMember(cmd.RoomID, int64(target))
		s.publish(s.dest.SystemTopic(room), protocol.SystemPayload{
			Type:         string(domain.NoticeKick),
			Message:      cmd.TargetNickname + " was kicked",
			TargetUserID: &target,
			Reason:       cmd.Reason,
		})
		s.broadcastRoster(room)
	}
}

func (s *fakeRoomService) removeMember(room, user int64) {
	s.members[room] = lo.Reject(s.members[room], func(p protocol.ParticipantPayload, _ int) bool {
		return int64(p.UserID) == user
	})
}

func (s *fakeRoomService) broadcastRoster(room domain.RoomID) {
	s.publish(s.dest.ParticipantsTopic(room), append([]protocol.ParticipantPayload{}, s.members[int64(room)]...))
}

func (s *fakeRoomService) publish(destination string, payload any) {
	data, err := json.Marshal(payload)
	require.NoError(s.t, err)
	require.NoError(s.t, s.conn.Publish(context.Background(), destination, data))
}

// raw publishes a frame as is, from outside the command flow.
func (s *fakeRoomService) raw(destination string, frame string) {
	require.NoError(s.t, s.conn.Publish(context.Background(), destination, []byte(frame)))
}

func (s *fakeRoomService) count(destination string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commands[destination])
}

func (s *fakeRoomService) last(destination string) protocol.CommandPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmds := s.commands[destination]
	require.NotEmpty(s.t, cmds)
	return cmds[len(cmds)-1]
}

// recordingSink keeps every event the engine emitted.
type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (r *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) ofType(t event.Type) []event.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Filter(r.events, func(e event.DomainEvent, _ int) bool { return e.Type() == t })
}

type testClient struct {
	engine *Engine
	conn   *ConnectionManager
	sink   *recordingSink
	user   domain.User
}

func newTestClient(t *testing.T, broker *memory.Broker, user domain.User, history contract.HistoryFetcher, confirmer contract.Confirmer) *testClient {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	conn := NewConnectionManager(log, broker, 20*time.Millisecond)
	registry := NewRegistry(log, conn, protocol.DefaultDestinations())
	sink := &recordingSink{}
	config := SessionConfig{HistoryLimit: 50, HistoryTimeout: time.Second}
	engine := NewEngine(log, user, conn, registry, history, confirmer, sink, projection.NewTimeline(), config, 64)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = conn.Run(ctx) }()
	go func() { _ = engine.Run(ctx) }()

	require.NoError(t, engine.Connect(ctx))
	return &testClient{engine: engine, conn: conn, sink: sink, user: user}
}

func (c *testClient) view(t *testing.T) View {
	view, err := c.engine.View(context.Background())
	require.NoError(t, err)
	return view
}

func (c *testClient) messages(t *testing.T) []string {
	return lo.FilterMap(c.view(t).Timeline, func(e domain.TimelineEntry, _ int) (string, bool) {
		msg, ok := e.(domain.ChatMessage)
		return msg.Message, ok
	})
}
