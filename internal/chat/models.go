package chat

import (
	"time"

	"gorm.io/datatypes"
)

// Session is one conversation, scoped to a (user, day) pair. Concurrent
// creates for the same pair converge to a single row via upsert.
type Session struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"session_id"`
	UserID    uint64    `gorm:"not null;index:uniq_chat_session_user_day,unique,priority:1" json:"-"`
	Day       string    `gorm:"type:varchar(10);not null;index:uniq_chat_session_user_day,unique,priority:2" json:"day"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single immutable turn. Content is nullable: an assistant
// turn that only issues tool calls carries none. ToolCalls is set only on
// assistant turns; ToolCallID only on tool turns.
type Message struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  string         `gorm:"type:varchar(26);not null;index:idx_chat_msg_session_created,priority:1" json:"session_id"`
	UserID     uint64         `gorm:"not null;index" json:"-"`
	Role       string         `gorm:"type:varchar(16);not null" json:"role"`
	Content    *string        `gorm:"type:text" json:"content"`
	ImageData  *string        `gorm:"type:text" json:"-"`
	ToolCalls  datatypes.JSON `json:"toolCalls,omitempty"`
	ToolCallID *string        `gorm:"type:varchar(64)" json:"toolCallId,omitempty"`
	CreatedAt  time.Time      `gorm:"index:idx_chat_msg_session_created,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }

// Event types delivered over the stream bridge.
const (
	EventStatus      = "status"
	EventMessage     = "message"
	EventDataChanged = "data_changed"
	EventError       = "error"
	EventCompleted   = "completed"
)

// Event is an append-only delivery record. Message events mirror a
// persisted Message by id; the Message row stays the source of truth.
type Event struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string         `gorm:"type:varchar(26);not null;index:idx_chat_event_session_created,priority:1" json:"session_id"`
	Type      string         `gorm:"type:varchar(16);not null" json:"type"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `gorm:"index:idx_chat_event_session_created,priority:2" json:"created_at"`
}

func (Event) TableName() string { return "chat_events" }
