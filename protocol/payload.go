package protocol

import (
	"bytes"
	"chat-session/domain"
	"chat-session/errors"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = validator.New()

// localLayouts are the zone-less ISO forms emitted by the room service.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Timestamp accepts RFC 3339, zone-less ISO date-times (read as local time)
// and epoch milliseconds. A missing or null value stays zero.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] != '"' {
		millis, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("timestamp %s: %w", data, err)
		}
		t.Time = time.UnixMilli(millis)
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t.Time = parsed
		return nil
	}
	for _, layout := range localLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unsupported timestamp %q", raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// ID is a numeric identifier the room service may encode as a number or a string.
type ID int64

func (id *ID) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if raw == "" || raw == "null" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("id %s: %w", data, err)
	}
	*id = ID(v)
	return nil
}

// MessagePayload is a chat message as broadcast on the messages topic
// and returned by the history service.
type MessagePayload struct {
	ID        string    `json:"id,omitempty"`
	RoomID    ID        `json:"roomId,omitempty"`
	Sender    string    `json:"sender" validate:"required"`
	Message   string    `json:"message" validate:"required"`
	UserID    ID        `json:"userId"`
	Timestamp Timestamp `json:"timestamp"`
}

type ParticipantPayload struct {
	UserID   ID     `json:"userId" validate:"required"`
	Nickname string `json:"nickname" validate:"required"`
}

type SystemPayload struct {
	Type         string    `json:"type,omitempty"`
	Message      string    `json:"message" validate:"required"`
	Timestamp    Timestamp `json:"timestamp"`
	TargetUserID *ID       `json:"targetUserId,omitempty" validate:"required_if=Type KICK"`
	Reason       string    `json:"reason,omitempty"`
}

// CommandPayload is the body of every outbound command. Kick specific fields are omitted otherwise.
type CommandPayload struct {
	RoomID         int64  `json:"roomId"`
	Sender         string `json:"sender"`
	UserID         int64  `json:"userId"`
	Message        string `json:"message,omitempty"`
	TargetUserID   *int64 `json:"targetUserId,omitempty"`
	TargetNickname string `json:"targetNickname,omitempty"`
	KickedBy       *int64 `json:"kickedBy,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// EncodeCommand serializes a command for publication.
func EncodeCommand(cmd domain.Command) ([]byte, error) {
	var p CommandPayload
	switch c := cmd.(type) {
	case domain.JoinCommand:
		p = CommandPayload{RoomID: int64(c.Room), Sender: c.Sender, UserID: int64(c.UserID)}
	case domain.LeaveCommand:
		p = CommandPayload{RoomID: int64(c.Room), Sender: c.Sender, UserID: int64(c.UserID)}
	case domain.ExitCommand:
		p = CommandPayload{RoomID: int64(c.Room), Sender: c.Sender, UserID: int64(c.UserID)}
	case domain.SendMessageCommand:
		p = CommandPayload{RoomID: int64(c.Room), Sender: c.Sender, UserID: int64(c.UserID), Message: c.Message}
	case domain.KickCommand:
		p = CommandPayload{
			RoomID:         int64(c.Room),
			Sender:         c.Sender,
			UserID:         int64(c.UserID),
			TargetUserID:   lo.ToPtr(int64(c.TargetUserID)),
			TargetNickname: c.TargetNickname,
			KickedBy:       lo.ToPtr(int64(c.KickedBy)),
			Reason:         c.Reason,
		}
	default:
		return nil, fmt.Errorf("%w: unsupported command %T", errors.ErrInvalidPayload, cmd)
	}
	return json.Marshal(p)
}

// DecodeMessage parses a chat message frame. Room falls back to the subscribed room
// when the payload does not carry one.
func DecodeMessage(data []byte, room domain.RoomID) (domain.ChatMessage, error) {
	var p MessagePayload
	if err := decode(data, &p); err != nil {
		return domain.ChatMessage{}, err
	}
	return p.ToDomain(room), nil
}

func (p MessagePayload) ToDomain(room domain.RoomID) domain.ChatMessage {
	if p.RoomID != 0 {
		room = domain.RoomID(p.RoomID)
	}
	return domain.ChatMessage{
		ID:        p.ID,
		RoomID:    room,
		Sender:    p.Sender,
		Message:   p.Message,
		UserID:    domain.UserID(p.UserID),
		Timestamp: p.Timestamp.Time,
	}
}

// FromMessage is the inverse of ToDomain, used by history stores.
func FromMessage(m domain.ChatMessage) MessagePayload {
	return MessagePayload{
		ID:        m.ID,
		RoomID:    ID(m.RoomID),
		Sender:    m.Sender,
		Message:   m.Message,
		UserID:    ID(m.UserID),
		Timestamp: Timestamp{Time: m.Timestamp},
	}
}

// DecodeRoster parses a complete participant list.
func DecodeRoster(data []byte) ([]domain.Participant, error) {
	var list []ParticipantPayload
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err)
	}
	for i := range list {
		if err := validate.Struct(list[i]); err != nil {
			return nil, fmt.Errorf("%w: participant %d: %w", errors.ErrInvalidPayload, i, err)
		}
	}
	return lo.Map(list, func(p ParticipantPayload, _ int) domain.Participant {
		return domain.Participant{UserID: domain.UserID(p.UserID), Nickname: p.Nickname}
	}), nil
}

// DecodeSystemNotice parses a system frame. receivedAt is used when the frame has no timestamp.
func DecodeSystemNotice(data []byte, receivedAt time.Time) (domain.SystemNotice, error) {
	var p SystemPayload
	if err := decode(data, &p); err != nil {
		return domain.SystemNotice{}, err
	}
	notice := domain.SystemNotice{
		Type:      domain.NoticeType(strings.ToUpper(p.Type)),
		Message:   p.Message,
		Timestamp: p.Timestamp.Time,
		Reason:    p.Reason,
	}
	if notice.Type == "" {
		notice.Type = domain.NoticeInfo
	}
	if notice.Timestamp.IsZero() {
		notice.Timestamp = receivedAt
	}
	if p.TargetUserID != nil {
		notice.TargetUserID = lo.ToPtr(domain.UserID(*p.TargetUserID))
	}
	return notice, nil
}

// DecodeHistory parses a history response body: a JSON array of chat messages, oldest first.
// Invalid items are skipped, the rest of the page is kept.
func DecodeHistory(data []byte, room domain.RoomID) ([]domain.TimelineEntry, int, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err)
	}
	entries := make([]domain.TimelineEntry, 0, len(raw))
	skipped := 0
	for _, item := range raw {
		msg, err := DecodeMessage(item, room)
		if err != nil {
			skipped++
			continue
		}
		entries = append(entries, msg)
	}
	return entries, skipped, nil
}

func decode(data []byte, target any) error {
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err)
	}
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err)
	}
	return nil
}
