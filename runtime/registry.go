package runtime

import (
	"chat-session/contract"
	"chat-session/domain"
	"chat-session/protocol"
	"context"
	"fmt"
	"log/slog"
)

// Topic names one of the three per-room subscriptions.
type Topic int

const (
	TopicMessages Topic = iota
	TopicParticipants
	TopicSystem
)

func (t Topic) String() string {
	switch t {
	case TopicMessages:
		return "messages"
	case TopicParticipants:
		return "participants"
	case TopicSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Subscriber opens subscriptions on the current connection.
type Subscriber interface {
	Subscribe(ctx context.Context, destination string) (contract.Subscription, error)
}

// RoomSubscriptions are the live topics of one entered room.
type RoomSubscriptions struct {
	Room         domain.RoomID
	Messages     contract.Subscription
	Participants contract.Subscription
	System       contract.Subscription
}

// ByTopic indexes the subscriptions by topic.
func (s *RoomSubscriptions) ByTopic() map[Topic]contract.Subscription {
	return map[Topic]contract.Subscription{
		TopicMessages:     s.Messages,
		TopicParticipants: s.Participants,
		TopicSystem:       s.System,
	}
}

// Registry maps a room to its three subscriptions and opens them at most once per entry.
// It is owned by the session state machine and is not safe for concurrent use.
type Registry struct {
	log          *slog.Logger
	subscriber   Subscriber
	destinations protocol.Destinations
	rooms        map[domain.RoomID]*RoomSubscriptions
}

func NewRegistry(log *slog.Logger, subscriber Subscriber, destinations protocol.Destinations) *Registry {
	return &Registry{
		log:          log,
		subscriber:   subscriber,
		destinations: destinations,
		rooms:        make(map[domain.RoomID]*RoomSubscriptions),
	}
}

// EnterRoom opens the messages, participants and system topics of a room.
// If the room is already entered the existing subscriptions are returned with created=false.
// Without a connection it fails with errors.ErrNotConnected and the caller retries later.
func (r *Registry) EnterRoom(ctx context.Context, roomID domain.RoomID) (*RoomSubscriptions, bool, error) {
	if subs, ok := r.rooms[roomID]; ok {
		return subs, false, nil
	}

	destinations := []string{
		r.destinations.MessagesTopic(roomID),
		r.destinations.ParticipantsTopic(roomID),
		r.destinations.SystemTopic(roomID),
	}
	opened := make([]contract.Subscription, 0, len(destinations))
	for _, destination := range destinations {
		sub, err := r.subscriber.Subscribe(ctx, destination)
		if err != nil {
			for _, s := range opened {
				_ = s.Unsubscribe()
			}
			return nil, false, fmt.Errorf("enter room %d: %w", roomID, err)
		}
		opened = append(opened, sub)
	}

	subs := &RoomSubscriptions{
		Room:         roomID,
		Messages:     opened[0],
		Participants: opened[1],
		System:       opened[2],
	}
	r.rooms[roomID] = subs
	r.log.Debug("Room topics subscribed", "room", roomID)
	return subs, true, nil
}

// LeaveRoom unsubscribes the three topics of a room. Calling it again is a no-op.
func (r *Registry) LeaveRoom(roomID domain.RoomID) {
	subs, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(r.rooms, roomID)
	for topic, sub := range subs.ByTopic() {
		if err := sub.Unsubscribe(); err != nil {
			r.log.Warn("Unsubscribe failed", "room", roomID, "topic", topic.String(), "error", err)
		}
	}
	r.log.Debug("Room topics unsubscribed", "room", roomID)
}

// Reset forgets every room after the connection was lost. The handles are dead,
// unsubscribing them is best effort.
func (r *Registry) Reset() {
	for roomID, subs := range r.rooms {
		for _, sub := range subs.ByTopic() {
			_ = sub.Unsubscribe()
		}
		delete(r.rooms, roomID)
	}
}

// Entered reports whether the room currently holds subscriptions.
func (r *Registry) Entered(roomID domain.RoomID) bool {
	_, ok := r.rooms[roomID]
	return ok
}
