package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

// EventLog appends typed events to the per-session durable log. Append
// failures are logged and swallowed: the log is a delivery layer, and a
// dropped notification must never abort the conversation making progress.
type EventLog struct {
	repo *Repo
	log  *logrus.Logger
}

func NewEventLog(repo *Repo, log *logrus.Logger) *EventLog {
	return &EventLog{repo: repo, log: log}
}

// MessageView is the wire mirror of a persisted Message carried inside a
// message event. The Message row remains authoritative.
type MessageView struct {
	ID         uint64          `json:"id"`
	Role       string          `json:"role"`
	Content    *string         `json:"content"`
	ToolCalls  json.RawMessage `json:"toolCalls,omitempty"`
	ToolCallID *string         `json:"toolCallId,omitempty"`
}

func NewMessageView(m *Message) MessageView {
	v := MessageView{
		ID:         m.ID,
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}
	if len(m.ToolCalls) > 0 {
		v.ToolCalls = json.RawMessage(m.ToolCalls)
	}
	return v
}

func (l *EventLog) Append(ctx context.Context, sessionID, eventType string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{
			"session_id": sessionID,
			"event_type": eventType,
		}).Warn("event payload marshal failed, dropping event")
		return
	}
	e := &Event{
		SessionID: sessionID,
		Type:      eventType,
		Payload:   b,
	}
	if err := l.repo.AppendEvent(ctx, e); err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{
			"session_id": sessionID,
			"event_type": eventType,
		}).Warn("event append failed, dropping event")
	}
}

func (l *EventLog) Status(ctx context.Context, sessionID, message string) {
	l.Append(ctx, sessionID, EventStatus, map[string]any{
		"type":    EventStatus,
		"message": message,
	})
}

func (l *EventLog) Message(ctx context.Context, sessionID string, m *Message) {
	l.Append(ctx, sessionID, EventMessage, map[string]any{
		"type":    EventMessage,
		"message": NewMessageView(m),
	})
}

// DataChanged carries a structured description of a catalog/log mutation
// plus the day it targets, so clients viewing another day can ignore it.
func (l *EventLog) DataChanged(ctx context.Context, sessionID string, data any, targetDate string) {
	payload := map[string]any{
		"type": EventDataChanged,
		"data": data,
	}
	if targetDate != "" {
		payload["targetDate"] = targetDate
	}
	l.Append(ctx, sessionID, EventDataChanged, payload)
}

func (l *EventLog) Error(ctx context.Context, sessionID, errMsg, providerErr string, details any) {
	payload := map[string]any{
		"type":  EventError,
		"error": errMsg,
	}
	if providerErr != "" {
		payload["providerError"] = providerErr
	}
	if details != nil {
		payload["details"] = details
	}
	l.Append(ctx, sessionID, EventError, payload)
}

func (l *EventLog) Completed(ctx context.Context, sessionID string) {
	l.Append(ctx, sessionID, EventCompleted, map[string]any{
		"type": EventCompleted,
	})
}

func (l *EventLog) ReadSince(ctx context.Context, sessionID string, after time.Time, limit int) ([]Event, error) {
	return l.repo.ListEventsSince(ctx, sessionID, after, limit)
}
