// Package domain contains core concepts of the chat session.
// This file defines timeline entries: chat messages and system notices.
// Entries are immutable once built.
package domain

import (
	"fmt"
	"time"
)

type EntryKind int

const (
	KindChat EntryKind = iota
	KindSystem
)

func (k EntryKind) String() string {
	switch k {
	case KindChat:
		return "Chat"
	case KindSystem:
		return "System"
	default:
		return fmt.Sprintf("EntryKind(%d)", int(k))
	}
}

// TimelineEntry is either a ChatMessage or a SystemNotice.
type TimelineEntry interface {
	Kind() EntryKind
	At() time.Time
}

// ChatMessage represents a message authored by a room participant.
type ChatMessage struct {
	ID        string // optional, assigned by the history service
	RoomID    RoomID
	Sender    string
	Message   string
	UserID    UserID
	Timestamp time.Time
}

func (m ChatMessage) Kind() EntryKind { return KindChat }
func (m ChatMessage) At() time.Time   { return m.Timestamp }

// Key identifies a message for de-duplication between history and live delivery.
func (m ChatMessage) Key() string {
	if m.ID != "" {
		return "id:" + m.ID
	}
	return m.ContentKey()
}

// ContentKey ignores the server id. Two distinct messages can share it when a
// user repeats the same text within the timestamp precision.
func (m ChatMessage) ContentKey() string {
	return fmt.Sprintf("%d:%d:%s", m.UserID, m.Timestamp.UnixNano(), m.Message)
}

type NoticeType string

const (
	NoticeInfo  NoticeType = "INFO"
	NoticeJoin  NoticeType = "JOIN"
	NoticeLeave NoticeType = "LEAVE"
	NoticeExit  NoticeType = "EXIT"
	NoticeKick  NoticeType = "KICK"
	NoticeError NoticeType = "ERROR"
)

// SystemNotice is a presence or moderation notice broadcast on the system topic.
type SystemNotice struct {
	Type         NoticeType
	Message      string
	Timestamp    time.Time
	TargetUserID *UserID
	Reason       string
}

func (n SystemNotice) Kind() EntryKind { return KindSystem }
func (n SystemNotice) At() time.Time   { return n.Timestamp }

// Targets reports whether a kick notice is addressed to the given user.
func (n SystemNotice) Targets(userID UserID) bool {
	return n.Type == NoticeKick && n.TargetUserID != nil && *n.TargetUserID == userID
}
