// Package protocol maps the session engine onto the room service's wire format:
// destination names, command payloads and inbound frame decoding.
package protocol

import (
	"chat-session/domain"
	"strings"
)

// Destinations holds the destination templates used by a room session.
// Room scoped templates contain a {roomId} placeholder.
type Destinations struct {
	Messages     string
	Participants string
	System       string
	Join         string
	Leave        string
	Exit         string
	Kick         string
	Send         string
}

// DefaultDestinations mirror the room service's STOMP endpoints.
func DefaultDestinations() Destinations {
	return Destinations{
		Messages:     "/topic/rooms/{roomId}/messages",
		Participants: "/topic/rooms/{roomId}/participants",
		System:       "/topic/rooms/{roomId}/system",
		Join:         "/app/chat.join",
		Leave:        "/app/chat.leave",
		Exit:         "/app/chat.exit",
		Kick:         "/app/chat.kick",
		Send:         "/app/chat.sendMessage",
	}
}

func (d Destinations) MessagesTopic(roomID domain.RoomID) string {
	return expand(d.Messages, roomID)
}

func (d Destinations) ParticipantsTopic(roomID domain.RoomID) string {
	return expand(d.Participants, roomID)
}

func (d Destinations) SystemTopic(roomID domain.RoomID) string {
	return expand(d.System, roomID)
}

// CommandDestination returns where a command is published.
func (d Destinations) CommandDestination(cmd domain.Command) string {
	var tpl string
	switch cmd.(type) {
	case domain.JoinCommand:
		tpl = d.Join
	case domain.LeaveCommand:
		tpl = d.Leave
	case domain.ExitCommand:
		tpl = d.Exit
	case domain.KickCommand:
		tpl = d.Kick
	case domain.SendMessageCommand:
		tpl = d.Send
	}
	return expand(tpl, cmd.RoomID())
}

func expand(tpl string, roomID domain.RoomID) string {
	return strings.ReplaceAll(tpl, "{roomId}", roomID.String())
}

// Subject turns a slash separated destination into a dot separated subject,
// as used by NATS and Redis channels: "/topic/rooms/1/system" -> "topic.rooms.1.system".
func Subject(destination string) string {
	trimmed := strings.Trim(destination, "/")
	return strings.ReplaceAll(trimmed, "/", ".")
}
