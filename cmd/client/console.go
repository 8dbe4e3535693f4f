package main

import (
	"bufio"
	"chat-session/domain"
	"chat-session/runtime"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

const help = `Commands:
  /connect                          open the connection
  /disconnect                       leave the room and close the connection
  /enter <roomId> [creatorId] [name] enter a room, leaving the current one
  /leave                            leave the room for now
  /exit                             leave the room for good
  /kick <userId|nickname>           remove a participant (room creator only)
  /who                              list participants
  /state                            show session and connection state
  /quit                             stop the client
Anything else is sent to the room.`

type sessionEngine interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Enter(ctx context.Context, room domain.Room) error
	Leave(ctx context.Context) error
	Exit(ctx context.Context) error
	Kick(ctx context.Context, target domain.Participant) error
	SendMessage(ctx context.Context, text string) error
	View(ctx context.Context) (runtime.View, error)
}

type roomDirectory interface {
	Remember(room domain.Room)
}

// Console reads commands from the terminal and answers confirmation prompts.
// Prompts are asked from the goroutine running the command, so they read the
// same input stream in order.
type Console struct {
	mu     sync.Mutex
	in     *bufio.Scanner
	out    io.Writer
	rooms  roomDirectory
	engine sessionEngine
}

func NewConsole(in io.Reader, out io.Writer, rooms roomDirectory) *Console {
	return &Console{in: bufio.NewScanner(in), out: out, rooms: rooms}
}

func (c *Console) Attach(engine sessionEngine) {
	c.engine = engine
}

// Run returns nil on /quit or end of input.
func (c *Console) Run(ctx context.Context) error {
	c.printf("Type /help for commands.\n")
	for {
		line, ok := c.readLine()
		if !ok {
			return c.in.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		if quit := c.Execute(ctx, line); quit {
			return nil
		}
	}
}

// Execute runs one input line and reports whether the console should stop.
func (c *Console) Execute(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.report(c.engine.SendMessage(ctx, line))
		return false
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case "/help":
		c.printf("%s\n", help)
	case "/quit":
		return true
	case "/connect":
		c.report(c.engine.Connect(ctx))
	case "/disconnect":
		c.report(c.engine.Disconnect(ctx))
	case "/enter":
		room, err := parseRoom(fields[1:])
		if err != nil {
			c.report(err)
			return false
		}
		c.rooms.Remember(room)
		c.report(c.engine.Enter(ctx, room))
	case "/leave":
		c.report(c.engine.Leave(ctx))
	case "/exit":
		c.report(c.engine.Exit(ctx))
	case "/kick":
		if len(fields) < 2 {
			c.report(fmt.Errorf("usage: /kick <userId|nickname>"))
			return false
		}
		c.kick(ctx, fields[1])
	case "/who":
		c.who(ctx)
	case "/state":
		c.state(ctx)
	default:
		c.report(fmt.Errorf("unknown command %s, try /help", fields[0]))
	}
	return false
}

// ConfirmExit asks before a permanent exit, anything but yes declines.
func (c *Console) ConfirmExit(_ context.Context, room domain.Room) bool {
	c.printf("Exit %s for good? [y/N] ", roomLabel(room))
	answer, ok := c.readLine()
	if !ok {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// ConfirmKick asks for a reason, an empty reason cancels the kick.
func (c *Console) ConfirmKick(_ context.Context, target domain.Participant) (string, bool) {
	c.printf("Reason for removing %s (empty to cancel): ", target.Nickname)
	reason, ok := c.readLine()
	if !ok {
		return "", false
	}
	reason = strings.TrimSpace(reason)
	return reason, reason != ""
}

func (c *Console) kick(ctx context.Context, who string) {
	view, err := c.engine.View(ctx)
	if err != nil {
		c.report(err)
		return
	}
	for _, p := range view.Participants {
		if strconv.FormatInt(int64(p.UserID), 10) == who || strings.EqualFold(p.Nickname, who) {
			if view.Room != nil && !domain.CanKick(p, view.User, *view.Room) {
				c.printf("~ only the room creator can remove %s, the room service will decide\n", p.Nickname)
			}
			c.report(c.engine.Kick(ctx, p))
			return
		}
	}
	c.report(fmt.Errorf("no participant %q in the room", who))
}

func (c *Console) who(ctx context.Context) {
	view, err := c.engine.View(ctx)
	if err != nil {
		c.report(err)
		return
	}
	if view.Room == nil {
		c.printf("~ not in a room\n")
		return
	}
	for _, p := range view.Participants {
		var flags []string
		if p.IsSelf(view.User) {
			flags = append(flags, "you")
		}
		if p.IsCreator(*view.Room) {
			flags = append(flags, "creator")
		}
		c.printf("  %d\t%s\t%s\n", p.UserID, p.Nickname, strings.Join(flags, ","))
	}
}

func (c *Console) state(ctx context.Context) {
	view, err := c.engine.View(ctx)
	if err != nil {
		c.report(err)
		return
	}
	room := "none"
	if view.Room != nil {
		room = roomLabel(*view.Room)
	}
	c.printf("~ connection %s, session %s, room %s, joined %t, %d entries, loading %t\n",
		view.Connectivity, view.State, room, view.HasSentJoin, len(view.Timeline), view.Loading)
}

func (c *Console) readLine() (string, bool) {
	if !c.in.Scan() {
		return "", false
	}
	return c.in.Text(), true
}

func (c *Console) report(err error) {
	if err != nil {
		c.printf("! %v\n", err)
	}
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// parseRoom reads "<roomId> [creatorId] [name...]".
func parseRoom(args []string) (domain.Room, error) {
	if len(args) == 0 {
		return domain.Room{}, fmt.Errorf("usage: /enter <roomId> [creatorId] [name]")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return domain.Room{}, fmt.Errorf("invalid room id %q", args[0])
	}
	args = args[1:]
	var creator int64
	if len(args) > 0 {
		if v, err := strconv.ParseInt(args[0], 10, 64); err == nil {
			creator = v
			args = args[1:]
		}
	}
	return domain.NewRoom(domain.RoomID(id), strings.Join(args, " "), domain.UserID(creator)), nil
}

func roomLabel(room domain.Room) string {
	if room.Name != "" {
		return room.Name
	}
	return "room " + room.ID.String()
}
