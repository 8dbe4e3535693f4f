// Package event defines what the session engine tells its UI collaborator.
package event

import (
	"chat-session/domain"
)

type Type string

const (
	TimelineChangedType     Type = "TIMELINE_CHANGED"
	RosterChangedType       Type = "ROSTER_CHANGED"
	ConnectivityChangedType Type = "CONNECTIVITY_CHANGED"
	SessionChangedType      Type = "SESSION_CHANGED"
	HistoryFailedType       Type = "HISTORY_FAILED"
	KickedType              Type = "KICKED"
)

type DomainEvent interface {
	RoomID() domain.RoomID
	Type() Type
}

// TimelineChanged carries a full copy of the timeline after a change.
// Loading stays true until the history fetch resolved or failed.
type TimelineChanged struct {
	Room    domain.RoomID
	Entries []domain.TimelineEntry
	Loading bool
}

func (e TimelineChanged) RoomID() domain.RoomID { return e.Room }
func (e TimelineChanged) Type() Type            { return TimelineChangedType }

type RosterChanged struct {
	Room         domain.RoomID
	Participants []domain.Participant
}

func (e RosterChanged) RoomID() domain.RoomID { return e.Room }
func (e RosterChanged) Type() Type            { return RosterChangedType }

// ConnectivityChanged is not tied to a room, RoomID returns the room active at the time if any.
type ConnectivityChanged struct {
	Room  domain.RoomID
	State domain.ConnectivityState
}

func (e ConnectivityChanged) RoomID() domain.RoomID { return e.Room }
func (e ConnectivityChanged) Type() Type            { return ConnectivityChangedType }

type SessionChanged struct {
	Room  domain.RoomID
	State domain.SessionState
}

func (e SessionChanged) RoomID() domain.RoomID { return e.Room }
func (e SessionChanged) Type() Type            { return SessionChangedType }

// HistoryFailed is a notice, it never becomes a timeline entry.
type HistoryFailed struct {
	Room domain.RoomID
	Err  error
}

func (e HistoryFailed) RoomID() domain.RoomID { return e.Room }
func (e HistoryFailed) Type() Type            { return HistoryFailedType }

// Kicked is emitted to the affected user before its session is torn down.
type Kicked struct {
	Room     domain.RoomID
	RoomName string
	Reason   string
	Message  string
}

func (e Kicked) RoomID() domain.RoomID { return e.Room }
func (e Kicked) Type() Type            { return KickedType }
