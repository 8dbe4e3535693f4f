package sink

import (
	"chat-session/domain"
	"chat-session/domain/event"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

var (
	selfStyle   = color.New(color.FgGreen, color.OpBold)
	otherStyle  = color.New(color.FgCyan, color.OpBold)
	noticeStyle = color.New(color.FgGray, color.OpItalic)
	alertStyle  = color.New(color.FgRed, color.OpBold)
	statusStyle = color.New(color.FgYellow)
)

// Terminal renders session events as text lines. Timelines are printed
// incrementally, rosters as a table.
type Terminal struct {
	mu      sync.Mutex
	out     io.Writer
	user    domain.User
	rooms   map[domain.RoomID]domain.Room
	printed map[domain.RoomID]int
}

func NewTerminal(out io.Writer, user domain.User) *Terminal {
	return &Terminal{
		out:     out,
		user:    user,
		rooms:   make(map[domain.RoomID]domain.Room),
		printed: make(map[domain.RoomID]int),
	}
}

// Remember registers a room so its name and creator can be shown.
func (t *Terminal) Remember(room domain.Room) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rooms[room.ID] = room
}

func (t *Terminal) Consume(_ context.Context, e event.DomainEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch evt := e.(type) {
	case event.TimelineChanged:
		t.timeline(evt)
	case event.RosterChanged:
		t.roster(evt)
	case event.ConnectivityChanged:
		t.println(statusStyle.Sprintf("~ connection %s", strings.ToLower(evt.State.String())))
	case event.SessionChanged:
		t.println(noticeStyle.Sprintf("~ %s is %s", t.roomName(evt.Room), strings.ToLower(evt.State.String())))
	case event.HistoryFailed:
		t.println(alertStyle.Sprintf("! history of %s unavailable: %v", t.roomName(evt.Room), evt.Err))
	case event.Kicked:
		name := evt.RoomName
		if name == "" {
			name = t.roomName(evt.Room)
		}
		line := fmt.Sprintf("! you were removed from %s", name)
		if evt.Reason != "" {
			line += ": " + evt.Reason
		}
		t.println(alertStyle.Render(line))
	}
	return nil
}

func (t *Terminal) timeline(evt event.TimelineChanged) {
	if evt.Loading {
		if _, known := t.printed[evt.Room]; !known || t.printed[evt.Room] > 0 {
			t.println(noticeStyle.Sprintf("~ loading history of %s", t.roomName(evt.Room)))
		}
		t.printed[evt.Room] = 0
		return
	}
	from := t.printed[evt.Room]
	if from > len(evt.Entries) {
		from = 0
	}
	for _, entry := range evt.Entries[from:] {
		t.println(t.entry(entry))
	}
	t.printed[evt.Room] = len(evt.Entries)
}

func (t *Terminal) entry(entry domain.TimelineEntry) string {
	at := entry.At().Format("15:04:05")
	switch e := entry.(type) {
	case domain.ChatMessage:
		style := otherStyle
		if e.UserID == t.user.ID {
			style = selfStyle
		}
		return fmt.Sprintf("[%s] %s %s", at, style.Render(e.Sender+":"), e.Message)
	case domain.SystemNotice:
		if e.Type == domain.NoticeKick {
			return fmt.Sprintf("[%s] %s", at, alertStyle.Render("* "+e.Message))
		}
		return fmt.Sprintf("[%s] %s", at, noticeStyle.Render("* "+e.Message))
	default:
		return fmt.Sprintf("[%s] %v", at, entry)
	}
}

func (t *Terminal) roster(evt event.RosterChanged) {
	room, known := t.rooms[evt.Room]
	t.println(noticeStyle.Sprintf("~ %d in %s", len(evt.Participants), t.roomName(evt.Room)))
	table := tablewriter.NewWriter(t.out)
	table.SetHeader([]string{"User", "Nickname", "Flags"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("\t")
	for _, p := range evt.Participants {
		var flags []string
		if p.IsSelf(t.user) {
			flags = append(flags, "you")
		}
		if known && p.IsCreator(room) {
			flags = append(flags, "creator")
		}
		if known && domain.CanKick(p, t.user, room) {
			flags = append(flags, "kickable")
		}
		table.Append([]string{strconv.FormatInt(int64(p.UserID), 10), p.Nickname, strings.Join(flags, ",")})
	}
	table.Render()
}

func (t *Terminal) roomName(id domain.RoomID) string {
	if room, ok := t.rooms[id]; ok && room.Name != "" {
		return room.Name
	}
	return "room " + id.String()
}

func (t *Terminal) println(line string) {
	_, _ = fmt.Fprintln(t.out, line)
}
