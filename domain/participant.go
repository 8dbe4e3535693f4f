// Package domain contains core concepts of the chat session.
// This file defines Participant entities and the flags derived from them.
// No runtime, network, or UI logic should be added here.
package domain

// Participant is one entry of a roster snapshot.
type Participant struct {
	UserID   UserID
	Nickname string
}

// IsSelf reports whether the participant is the local user.
func (p Participant) IsSelf(local User) bool {
	return p.UserID == local.ID
}

// IsCreator reports whether the participant created the room.
func (p Participant) IsCreator(room Room) bool {
	return room.IsCreatedBy(p.UserID)
}

// CanKick reports whether the local user may be offered a kick action on p.
// Only the room creator kicks, and never themselves. The room service enforces it.
func CanKick(p Participant, local User, room Room) bool {
	return room.IsCreatedBy(local.ID) && !p.IsSelf(local)
}
