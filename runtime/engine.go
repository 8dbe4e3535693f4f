// Package runtime drives the room session: connection, subscriptions and the
// single goroutine that owns the session state.
package runtime

import (
	"chat-session/contract"
	"chat-session/domain"
	"chat-session/domain/event"
	"chat-session/errors"
	"chat-session/projection"
	"context"
	"log/slog"
	"sync"
)

// View is a copy of what the UI renders.
type View struct {
	User         domain.User
	State        domain.SessionState
	Connectivity domain.ConnectivityState
	Room         *domain.Room
	HasSentJoin  bool
	Timeline     []domain.TimelineEntry
	Loading      bool
	Participants []domain.Participant
}

type action struct {
	fn    func() error
	reply chan error
}

// Engine serializes everything that touches the Session: UI actions, frames
// forwarded by the topic pumps, history results and connectivity changes all
// go through Run.
type Engine struct {
	log          *slog.Logger
	session      *Session
	conn         *ConnectionManager
	confirmer    contract.Confirmer
	sink         contract.EventSink
	actions      chan action
	inbox        chan Delivery
	connectivity domain.ConnectivityState
	stopped      chan struct{}
	stopOnce     sync.Once
}

// NewEngine wires a session on top of conn. inboxSize bounds how many frames
// can wait while the engine is busy before the pumps block.
func NewEngine(
	log *slog.Logger,
	user domain.User,
	conn *ConnectionManager,
	registry *Registry,
	history contract.HistoryFetcher,
	confirmer contract.Confirmer,
	sink contract.EventSink,
	timeline *projection.Timeline,
	config SessionConfig,
	inboxSize int,
) *Engine {
	inbox := make(chan Delivery, inboxSize)
	e := &Engine{
		log:          log,
		conn:         conn,
		confirmer:    confirmer,
		sink:         sink,
		actions:      make(chan action),
		inbox:        inbox,
		connectivity: conn.Status().State,
		stopped:      make(chan struct{}),
	}
	e.session = NewSession(log, user, conn, registry, history, sink, timeline, registry.destinations, config, inbox)
	return e
}

// Run is the only goroutine allowed to touch the session.
// It can be restarted by the supervisor after a panic, the session state survives.
func (e *Engine) Run(ctx context.Context) error {
	defer func() {
		if ctx.Err() != nil {
			e.stopOnce.Do(func() { close(e.stopped) })
		}
	}()
	for {
		select {
		case <-ctx.Done():
			e.log.Debug("Stopping session engine")
			return ctx.Err()
		case a := <-e.actions:
			a.reply <- a.fn()
		case d := <-e.inbox:
			e.session.Handle(ctx, d)
		case <-e.conn.Changed():
			e.onConnectivity(ctx)
		}
	}
}

// Inbox exposes the pending deliveries for capacity sampling.
func (e *Engine) Inbox() <-chan Delivery { return e.inbox }

// Connect opens the transport. It is safe to call from any goroutine.
func (e *Engine) Connect(ctx context.Context) error {
	return e.conn.Connect(ctx)
}

// Disconnect is the logout: the active room is left and the transport closed.
func (e *Engine) Disconnect(ctx context.Context) error {
	if err := e.do(ctx, func() error { return e.session.Leave(ctx) }); err != nil {
		return err
	}
	return e.conn.Disconnect(ctx)
}

// Enter joins room, leaving the active one first if it differs.
func (e *Engine) Enter(ctx context.Context, room domain.Room) error {
	return e.do(ctx, func() error { return e.session.Enter(ctx, room) })
}

// Leave departs temporarily from the active room.
func (e *Engine) Leave(ctx context.Context) error {
	return e.do(ctx, func() error { return e.session.Leave(ctx) })
}

// Exit withdraws from the active room after the user confirmed it.
func (e *Engine) Exit(ctx context.Context) error {
	view, err := e.View(ctx)
	if err != nil {
		return err
	}
	if view.Room == nil {
		return errors.ErrNoActiveSession
	}
	if !e.confirmer.ConfirmExit(ctx, *view.Room) {
		return errors.ErrConfirmationDeclined
	}
	roomID := view.Room.ID
	return e.do(ctx, func() error { return e.session.Exit(ctx, roomID) })
}

// Kick asks the user for a reason, then requests the removal of target.
func (e *Engine) Kick(ctx context.Context, target domain.Participant) error {
	view, err := e.View(ctx)
	if err != nil {
		return err
	}
	if view.Room == nil {
		return errors.ErrNoActiveSession
	}
	reason, ok := e.confirmer.ConfirmKick(ctx, target)
	if !ok {
		return errors.ErrConfirmationDeclined
	}
	return e.do(ctx, func() error { return e.session.Kick(ctx, target, reason) })
}

func (e *Engine) SendMessage(ctx context.Context, text string) error {
	return e.do(ctx, func() error { return e.session.SendMessage(ctx, text) })
}

// View returns a snapshot of the session, taken on the engine goroutine.
func (e *Engine) View(ctx context.Context) (View, error) {
	var view View
	err := e.do(ctx, func() error {
		view = View{
			User:         e.session.User(),
			State:        e.session.State(),
			Connectivity: e.connectivity,
			Timeline:     e.session.Timeline().Entries(),
			Loading:      e.session.Timeline().Loading(),
			Participants: e.session.Roster().Participants(),
		}
		if rs := e.session.Current(); rs != nil {
			room := rs.Room
			view.Room = &room
			view.HasSentJoin = rs.HasSentJoin
		}
		return nil
	})
	return view, err
}

func (e *Engine) onConnectivity(ctx context.Context) {
	status := e.conn.Status()
	if status.State != e.connectivity {
		e.connectivity = status.State
		var room domain.RoomID
		if rs := e.session.Current(); rs != nil {
			room = rs.Room.ID
		}
		if e.sink != nil {
			if err := e.sink.Consume(ctx, event.ConnectivityChanged{Room: room, State: status.State}); err != nil {
				e.log.Warn("Event sink failed", "type", string(event.ConnectivityChangedType), "error", err)
			}
		}
	}
	e.session.CheckConnection(ctx, status)
}

func (e *Engine) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case e.actions <- action{fn: fn, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return errors.ErrEngineStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return errors.ErrEngineStopped
	}
}
