package domain

type UserID int64

// User is supplied by the identity collaborator and never changes during a session.
type User struct {
	ID       UserID
	Nickname string
}

func (u User) Is(other User) bool {
	return u.ID == other.ID
}
