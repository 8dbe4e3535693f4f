package domain

// Command is an outbound instruction published to the room service.
type Command interface {
	RoomID() RoomID
}

type JoinCommand struct {
	Room   RoomID
	Sender string
	UserID UserID
}

func (c JoinCommand) RoomID() RoomID { return c.Room }

// LeaveCommand is a temporary departure, the room stays joinable.
type LeaveCommand struct {
	Room   RoomID
	Sender string
	UserID UserID
}

func (c LeaveCommand) RoomID() RoomID { return c.Room }

// ExitCommand is a permanent withdrawal from the room.
type ExitCommand struct {
	Room   RoomID
	Sender string
	UserID UserID
}

func (c ExitCommand) RoomID() RoomID { return c.Room }

type KickCommand struct {
	Room           RoomID
	Sender         string
	UserID         UserID
	TargetUserID   UserID
	TargetNickname string
	KickedBy       UserID
	Reason         string
}

func (c KickCommand) RoomID() RoomID { return c.Room }

type SendMessageCommand struct {
	Room    RoomID
	Sender  string
	UserID  UserID
	Message string
}

func (c SendMessageCommand) RoomID() RoomID { return c.Room }
