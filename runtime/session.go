package runtime

import (
	"chat-session/contract"
	"chat-session/domain"
	"chat-session/domain/event"
	"chat-session/errors"
	"chat-session/projection"
	"chat-session/protocol"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Connection is what the session needs from the ConnectionManager.
type Connection interface {
	Subscriber
	Publish(ctx context.Context, destination string, payload []byte) error
	Status() ConnectionStatus
}

// Delivery is an asynchronous completion addressed to one RoomSession.
type Delivery interface {
	SessionID() uuid.UUID
}

// Inbound is a raw frame read from one of the room topics.
type Inbound struct {
	Session    uuid.UUID
	Topic      Topic
	Payload    []byte
	ReceivedAt time.Time
}

func (i Inbound) SessionID() uuid.UUID { return i.Session }

// HistoryResult is the outcome of the history fetch of one entry.
type HistoryResult struct {
	Session uuid.UUID
	Entries []domain.TimelineEntry
	Err     error
}

func (h HistoryResult) SessionID() uuid.UUID { return h.Session }

// RoomSession is the live participation in one room. It only exists between
// a successful enter and the matching teardown.
type RoomSession struct {
	ID            uuid.UUID
	Room          domain.Room
	HasSentJoin   bool
	Epoch         uint64
	Subscriptions *RoomSubscriptions
	cancel        context.CancelFunc
}

type SessionConfig struct {
	HistoryLimit   int
	HistoryTimeout time.Duration
}

// Session is the room session state machine:
//
//	Idle -> Joining -> Active -> Leaving -> Exited
//	Active -> Exited on a kick addressed to the local user
//	any -> Idle on connection loss
//
// It is not safe for concurrent use: the Engine owns it from a single goroutine.
// Asynchronous work (topic pumps, history fetch) reports back through the inbox
// and is discarded when its session is no longer current.
type Session struct {
	log          *slog.Logger
	user         domain.User
	conn         Connection
	registry     *Registry
	history      contract.HistoryFetcher
	sink         contract.EventSink
	timeline     *projection.Timeline
	roster       *projection.Roster
	destinations protocol.Destinations
	config       SessionConfig
	inbox        chan<- Delivery
	state        domain.SessionState
	current      *RoomSession
	now          func() time.Time
}

func NewSession(
	log *slog.Logger,
	user domain.User,
	conn Connection,
	registry *Registry,
	history contract.HistoryFetcher,
	sink contract.EventSink,
	timeline *projection.Timeline,
	destinations protocol.Destinations,
	config SessionConfig,
	inbox chan<- Delivery,
) *Session {
	return &Session{
		log:          log,
		user:         user,
		conn:         conn,
		registry:     registry,
		history:      history,
		sink:         sink,
		timeline:     timeline,
		roster:       projection.NewRoster(),
		destinations: destinations,
		config:       config,
		inbox:        inbox,
		state:        domain.StateIdle,
		now:          time.Now,
	}
}

func (s *Session) State() domain.SessionState { return s.state }
func (s *Session) User() domain.User          { return s.user }

// Current returns the active room session, nil when there is none.
func (s *Session) Current() *RoomSession { return s.current }

func (s *Session) Timeline() *projection.Timeline { return s.timeline }
func (s *Session) Roster() *projection.Roster     { return s.roster }

// Enter joins a room. Entering the room that is already active is a no-op;
// entering another room first leaves the active one.
func (s *Session) Enter(ctx context.Context, room domain.Room) error {
	if rs := s.current; rs != nil {
		if rs.Room.ID == room.ID {
			s.log.Debug("Room already active, ignoring enter", "room", room.ID)
			return nil
		}
		if err := s.Leave(ctx); err != nil {
			return fmt.Errorf("leave room %d before entering %d: %w", rs.Room.ID, room.ID, err)
		}
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	rs := &RoomSession{
		ID:     uuid.New(),
		Room:   room,
		Epoch:  s.conn.Status().Epoch,
		cancel: cancel,
	}
	s.current = rs
	s.setState(ctx, room.ID, domain.StateJoining)
	s.timeline.Begin()
	s.roster.Clear()

	// History is requested in parallel with the subscriptions
	s.fetchHistory(sessionCtx, rs)

	subs, created, err := s.registry.EnterRoom(ctx, room.ID)
	if err != nil {
		cancel()
		s.current = nil
		s.timeline.Clear()
		s.setState(ctx, room.ID, domain.StateIdle)
		return err
	}
	if !created {
		s.log.Debug("Reusing room subscriptions", "room", room.ID)
	}
	rs.Subscriptions = subs
	s.pump(sessionCtx, rs)

	if !rs.HasSentJoin {
		s.publish(ctx, domain.JoinCommand{Room: room.ID, Sender: s.user.Nickname, UserID: s.user.ID})
		rs.HasSentJoin = true
	}
	s.setState(ctx, room.ID, domain.StateActive)
	s.emitTimeline(ctx)
	return nil
}

// Leave is a temporary departure: the room stays joinable. Without an active
// session it is a no-op.
func (s *Session) Leave(ctx context.Context) error {
	rs := s.current
	if rs == nil {
		return nil
	}
	s.depart(ctx, rs, domain.LeaveCommand{Room: rs.Room.ID, Sender: s.user.Nickname, UserID: s.user.ID})
	return nil
}

// Exit is a permanent withdrawal from the given room. Confirmation is asked upstream.
func (s *Session) Exit(ctx context.Context, roomID domain.RoomID) error {
	rs := s.current
	if rs == nil || rs.Room.ID != roomID {
		return errors.ErrNoActiveSession
	}
	s.depart(ctx, rs, domain.ExitCommand{Room: rs.Room.ID, Sender: s.user.Nickname, UserID: s.user.ID})
	return nil
}

// Kick asks the room service to remove a participant. Only the creator is
// expected to kick; that is checked by the room service, here it is only logged.
func (s *Session) Kick(ctx context.Context, target domain.Participant, reason string) error {
	rs := s.current
	if rs == nil {
		return errors.ErrNoActiveSession
	}
	if !domain.CanKick(target, s.user, rs.Room) {
		s.log.Warn("Kick issued without creator rights", "room", rs.Room.ID, "target", target.UserID)
	}
	s.publish(ctx, domain.KickCommand{
		Room:           rs.Room.ID,
		Sender:         s.user.Nickname,
		UserID:         s.user.ID,
		TargetUserID:   target.UserID,
		TargetNickname: target.Nickname,
		KickedBy:       s.user.ID,
		Reason:         reason,
	})
	return nil
}

// SendMessage posts a chat message to the active room.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	rs := s.current
	if rs == nil {
		return errors.ErrNoActiveSession
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.ErrEmptyMessage
	}
	s.publish(ctx, domain.SendMessageCommand{Room: rs.Room.ID, Sender: s.user.Nickname, UserID: s.user.ID, Message: text})
	return nil
}

// ConnectionLost tears the session down without any command, the transport is gone.
// The next enter sends a fresh join.
func (s *Session) ConnectionLost(ctx context.Context) {
	rs := s.current
	if rs == nil {
		s.registry.Reset()
		return
	}
	s.log.Warn("Connection lost during room session", "room", rs.Room.ID)
	rs.HasSentJoin = false
	rs.cancel()
	s.registry.Reset()
	s.current = nil
	s.roster.Clear()
	s.setState(ctx, rs.Room.ID, domain.StateIdle)
}

// CheckConnection reacts to a connectivity change. A session opened on an older
// connection epoch is considered lost even if the transport is already back.
func (s *Session) CheckConnection(ctx context.Context, status ConnectionStatus) {
	rs := s.current
	if rs == nil {
		if status.State != domain.Connected {
			s.registry.Reset()
		}
		return
	}
	if status.State != domain.Connected || status.Epoch != rs.Epoch {
		s.ConnectionLost(ctx)
	}
}

// Handle applies an asynchronous completion. Anything addressed to a session
// other than the current one is dropped.
func (s *Session) Handle(ctx context.Context, d Delivery) {
	rs := s.current
	if rs == nil || d.SessionID() != rs.ID {
		s.log.Debug("Discarding stale delivery", "session", d.SessionID())
		return
	}
	switch v := d.(type) {
	case Inbound:
		s.handleFrame(ctx, rs, v)
	case HistoryResult:
		s.handleHistory(ctx, rs, v)
	}
}

func (s *Session) handleFrame(ctx context.Context, rs *RoomSession, in Inbound) {
	switch in.Topic {
	case TopicMessages:
		msg, err := protocol.DecodeMessage(in.Payload, rs.Room.ID)
		if err != nil {
			s.log.Warn("Discarding malformed chat message", "room", rs.Room.ID, "error", err)
			return
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = in.ReceivedAt
		}
		if s.timeline.Consume(msg) {
			s.emitTimeline(ctx)
		}
	case TopicParticipants:
		participants, err := protocol.DecodeRoster(in.Payload)
		if err != nil {
			s.log.Warn("Discarding malformed roster", "room", rs.Room.ID, "error", err)
			return
		}
		s.roster.Replace(participants)
		s.emit(ctx, event.RosterChanged{Room: rs.Room.ID, Participants: s.roster.Participants()})
	case TopicSystem:
		notice, err := protocol.DecodeSystemNotice(in.Payload, in.ReceivedAt)
		if err != nil {
			s.log.Warn("Discarding malformed system notice", "room", rs.Room.ID, "error", err)
			return
		}
		if notice.Targets(s.user.ID) {
			s.kicked(ctx, rs, notice)
			return
		}
		if s.timeline.Consume(notice) {
			s.emitTimeline(ctx)
		}
	}
}

func (s *Session) handleHistory(ctx context.Context, rs *RoomSession, res HistoryResult) {
	if res.Err != nil {
		s.log.Warn("History fetch failed, starting from an empty timeline", "room", rs.Room.ID, "error", res.Err)
		s.timeline.FailHistory()
		s.emit(ctx, event.HistoryFailed{Room: rs.Room.ID, Err: res.Err})
	} else {
		s.timeline.ApplyHistory(res.Entries)
	}
	s.emitTimeline(ctx)
}

func (s *Session) kicked(ctx context.Context, rs *RoomSession, notice domain.SystemNotice) {
	s.log.Info("Kicked from room", "room", rs.Room.ID, "reason", notice.Reason)
	s.emit(ctx, event.Kicked{Room: rs.Room.ID, RoomName: rs.Room.Name, Reason: notice.Reason, Message: notice.Message})
	rs.HasSentJoin = false
	s.teardown(rs)
	s.setState(ctx, rs.Room.ID, domain.StateExited)
}

func (s *Session) depart(ctx context.Context, rs *RoomSession, cmd domain.Command) {
	s.setState(ctx, rs.Room.ID, domain.StateLeaving)
	if rs.HasSentJoin && s.conn.Status().State == domain.Connected {
		s.publish(ctx, cmd)
	}
	rs.HasSentJoin = false
	s.teardown(rs)
	s.setState(ctx, rs.Room.ID, domain.StateExited)
}

func (s *Session) teardown(rs *RoomSession) {
	rs.cancel()
	s.registry.LeaveRoom(rs.Room.ID)
	s.current = nil
	s.roster.Clear()
}

// publish never fails the state machine: a command that cannot be sent is logged and dropped.
func (s *Session) publish(ctx context.Context, cmd domain.Command) {
	payload, err := protocol.EncodeCommand(cmd)
	if err != nil {
		s.log.Error("Cannot encode command", "command", fmt.Sprintf("%T", cmd), "error", err)
		return
	}
	destination := s.destinations.CommandDestination(cmd)
	if err := s.conn.Publish(ctx, destination, payload); err != nil {
		s.log.Warn("Command not sent", "destination", destination, "error", err)
	}
}

func (s *Session) fetchHistory(ctx context.Context, rs *RoomSession) {
	if s.history == nil {
		s.timeline.ApplyHistory(nil)
		return
	}
	go func() {
		fetchCtx := ctx
		if s.config.HistoryTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, s.config.HistoryTimeout)
			defer cancel()
		}
		entries, err := s.history.FetchHistory(fetchCtx, rs.Room.ID, s.config.HistoryLimit)
		select {
		case s.inbox <- HistoryResult{Session: rs.ID, Entries: entries, Err: err}:
		case <-ctx.Done():
		}
	}()
}

// pump forwards each topic into the inbox, one goroutine per topic to keep its FIFO order.
func (s *Session) pump(ctx context.Context, rs *RoomSession) {
	for topic, sub := range rs.Subscriptions.ByTopic() {
		go func(topic Topic, sub contract.Subscription) {
			for {
				select {
				case <-ctx.Done():
					return
				case <-sub.Done():
					return
				case frame := <-sub.Frames():
					in := Inbound{Session: rs.ID, Topic: topic, Payload: frame, ReceivedAt: s.now()}
					select {
					case s.inbox <- in:
					case <-ctx.Done():
						return
					}
				}
			}
		}(topic, sub)
	}
}

// setState takes the room explicitly: teardown has already cleared the current session.
func (s *Session) setState(ctx context.Context, room domain.RoomID, state domain.SessionState) {
	if s.state == state {
		return
	}
	s.log.Debug("Session state changed", "room", room, "from", s.state.String(), "to", state.String())
	s.state = state
	s.emit(ctx, event.SessionChanged{Room: room, State: state})
}

func (s *Session) emitTimeline(ctx context.Context) {
	rs := s.current
	if rs == nil {
		return
	}
	s.emit(ctx, event.TimelineChanged{Room: rs.Room.ID, Entries: s.timeline.Entries(), Loading: s.timeline.Loading()})
}

func (s *Session) emit(ctx context.Context, e event.DomainEvent) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Consume(ctx, e); err != nil {
		s.log.Warn("Event sink failed", "type", string(e.Type()), "error", err)
	}
}
