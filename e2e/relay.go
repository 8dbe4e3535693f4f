package e2e

import (
	"chat-session/contract"
	"chat-session/domain"
	"chat-session/errors"
	"chat-session/protocol"
	"chat-session/repositories"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Relay is a minimal room service: it consumes the commands published by the
// clients and answers on the room topics. Chat messages are kept in a history
// repository so late joiners can load them.
type Relay struct {
	log        *slog.Logger
	dialer     contract.Dialer
	dest       protocol.Destinations
	repository repositories.IHistoryRepository
	mu         sync.Mutex
	members    map[int64][]protocol.ParticipantPayload
	serving    atomic.Bool
}

func NewRelay(log *slog.Logger, dialer contract.Dialer, repository repositories.IHistoryRepository) *Relay {
	return &Relay{
		log:        log,
		dialer:     dialer,
		dest:       protocol.DefaultDestinations(),
		repository: repository,
		members:    make(map[int64][]protocol.ParticipantPayload),
	}
}

// Serving reports whether every command destination is currently subscribed.
func (r *Relay) Serving() bool { return r.serving.Load() }

// Run implements contract.Worker. It fails when its connection drops so the
// supervisor dials again. Room membership survives the restart.
func (r *Relay) Run(ctx context.Context) error {
	conn, err := r.dialer.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	var wg sync.WaitGroup
	for _, destination := range []string{r.dest.Join, r.dest.Leave, r.dest.Exit, r.dest.Kick, r.dest.Send} {
		sub, err := conn.Subscribe(ctx, destination)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.serve(ctx, conn, destination, sub)
		}()
	}
	r.serving.Store(true)
	wg.Wait()
	r.serving.Store(false)
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.ErrNotConnected
}

func (r *Relay) serve(ctx context.Context, conn contract.Transport, destination string, sub contract.Subscription) {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case frame := <-sub.Frames():
			var cmd protocol.CommandPayload
			if err := json.Unmarshal(frame, &cmd); err != nil {
				r.log.Warn("Invalid command", "destination", destination, "error", err)
				continue
			}
			r.handle(ctx, conn, destination, cmd)
		}
	}
}

func (r *Relay) handle(ctx context.Context, conn contract.Transport, destination string, cmd protocol.CommandPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := domain.RoomID(cmd.RoomID)
	r.log.Debug("Command received", "destination", destination, "room", room, "user", cmd.UserID)

	switch destination {
	case r.dest.Join:
		r.removeMember(cmd.RoomID, cmd.UserID)
		r.members[cmd.RoomID] = append(r.members[cmd.RoomID], protocol.ParticipantPayload{UserID: protocol.ID(cmd.UserID), Nickname: cmd.Sender})
		r.notice(ctx, conn, room, domain.NoticeJoin, cmd.Sender+" joined")
		r.roster(ctx, conn, room)
	case r.dest.Leave:
		r.removeMember(cmd.RoomID, cmd.UserID)
		r.notice(ctx, conn, room, domain.NoticeLeave, cmd.Sender+" left")
		r.roster(ctx, conn, room)
	case r.dest.Exit:
		r.removeMember(cmd.RoomID, cmd.UserID)
		r.notice(ctx, conn, room, domain.NoticeExit, cmd.Sender+" exited")
		r.roster(ctx, conn, room)
	case r.dest.Send:
		msg := domain.ChatMessage{
			ID:        uuid.NewString(),
			RoomID:    room,
			Sender:    cmd.Sender,
			Message:   cmd.Message,
			UserID:    domain.UserID(cmd.UserID),
			Timestamp: time.Now(),
		}
		if err := r.repository.StoreMessages(room, []domain.ChatMessage{msg}); err != nil {
			r.log.Error("Unable to store message", "room", room, "error", err)
		}
		r.publish(ctx, conn, r.dest.MessagesTopic(room), protocol.FromMessage(msg))
	case r.dest.Kick:
		if cmd.TargetUserID == nil {
			return
		}
		target := protocol.ID(*cmd.TargetUserID)
		r.removeMember(cmd.RoomID, int64(target))
		r.publish(ctx, conn, r.dest.SystemTopic(room), protocol.SystemPayload{
			Type:         string(domain.NoticeKick),
			Message:      cmd.TargetNickname + " was kicked",
			Timestamp:    protocol.Timestamp{Time: time.Now()},
			TargetUserID: &target,
			Reason:       cmd.Reason,
		})
		r.roster(ctx, conn, room)
	}
}

// Members returns the nicknames currently in a room.
func (r *Relay) Members(room domain.RoomID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Map(r.members[int64(room)], func(p protocol.ParticipantPayload, _ int) string { return p.Nickname })
}

func (r *Relay) removeMember(room, user int64) {
	r.members[room] = lo.Reject(r.members[room], func(p protocol.ParticipantPayload, _ int) bool {
		return int64(p.UserID) == user
	})
}

func (r *Relay) roster(ctx context.Context, conn contract.Transport, room domain.RoomID) {
	r.publish(ctx, conn, r.dest.ParticipantsTopic(room), append([]protocol.ParticipantPayload{}, r.members[int64(room)]...))
}

func (r *Relay) notice(ctx context.Context, conn contract.Transport, room domain.RoomID, kind domain.NoticeType, text string) {
	r.publish(ctx, conn, r.dest.SystemTopic(room), protocol.SystemPayload{
		Type:      string(kind),
		Message:   text,
		Timestamp: protocol.Timestamp{Time: time.Now()},
	})
}

func (r *Relay) publish(ctx context.Context, conn contract.Transport, destination string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("Unable to encode frame", "destination", destination, "error", err)
		return
	}
	if err := conn.Publish(ctx, destination, data); err != nil {
		r.log.Warn("Unable to publish frame", "destination", destination, "error", err)
	}
}
