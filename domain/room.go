package domain

import "fmt"

type RoomID int64

func (id RoomID) String() string {
	return fmt.Sprintf("%d", int64(id))
}

// Room is immutable once entered. Two rooms are the same room when their IDs match.
type Room struct {
	ID              RoomID
	Name            string
	CreatedByUserID UserID
}

func NewRoom(id RoomID, name string, createdBy UserID) Room {
	return Room{ID: id, Name: name, CreatedByUserID: createdBy}
}

// IsCreatedBy reports whether the given user owns the room.
func (r Room) IsCreatedBy(userID UserID) bool {
	return r.CreatedByUserID == userID
}
