package chat

import (
	"context"
	"testing"
	"time"

	"gorm.io/datatypes"
)

func TestCreateOrGetSessionIdempotent(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()
	uid := nextTestUser()

	first, err := repo.CreateOrGetSession(ctx, uid, "2025-06-01")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := repo.CreateOrGetSession(ctx, uid, "2025-06-01")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ID != second.ID || first.SessionID != second.SessionID {
		t.Fatalf("same (user, day) must converge: %+v vs %+v", first, second)
	}

	other, err := repo.CreateOrGetSession(ctx, uid, "2025-06-02")
	if err != nil {
		t.Fatalf("other day create: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("different day must get its own session")
	}

	var n int64
	if err := db.Model(&Session{}).Where("user_id = ?", uid).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 sessions, got %d", n)
	}
}

func TestListEventsSinceStrictCursor(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	sess, err := repo.CreateOrGetSession(ctx, nextTestUser(), "2025-06-01")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	base := time.Now().Add(-time.Minute).Truncate(time.Second)
	stamps := []time.Time{base, base.Add(time.Second), base.Add(2 * time.Second)}
	for i, ts := range stamps {
		e := &Event{
			SessionID: sess.SessionID,
			Type:      EventStatus,
			Payload:   datatypes.JSON(`{"type":"status"}`),
			CreatedAt: ts,
		}
		if err := repo.AppendEvent(ctx, e); err != nil {
			t.Fatalf("append event %d: %v", i, err)
		}
	}

	// Cursor equal to the first event's timestamp: strictly-greater, so
	// the first event is excluded and nothing is redelivered.
	events, err := repo.ListEventsSince(ctx, sess.SessionID, stamps[0], 100)
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events after cursor, got %d", len(events))
	}
	if !events[0].CreatedAt.After(stamps[0]) {
		t.Fatalf("event at cursor must not be redelivered")
	}
	if events[1].CreatedAt.Before(events[0].CreatedAt) {
		t.Fatalf("events must come back oldest first")
	}

	events, err = repo.ListEventsSince(ctx, sess.SessionID, stamps[2], 100)
	if err != nil {
		t.Fatalf("list since last: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected nothing after the last event, got %d", len(events))
	}
}

func TestClearSessionRemovesMessagesAndEvents(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	sess, err := repo.CreateOrGetSession(ctx, nextTestUser(), "2025-06-01")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	content := "hello"
	if err := repo.InsertMessage(ctx, &Message{
		SessionID: sess.SessionID,
		UserID:    sess.UserID,
		Role:      RoleUser,
		Content:   &content,
	}); err != nil {
		t.Fatalf("insert message: %v", err)
	}
	if err := repo.AppendEvent(ctx, &Event{
		SessionID: sess.SessionID,
		Type:      EventCompleted,
		Payload:   datatypes.JSON(`{"type":"completed"}`),
	}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	if err := repo.ClearSession(ctx, sess.SessionID); err != nil {
		t.Fatalf("clear session: %v", err)
	}

	msgs, err := repo.ListMessagesAsc(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages after clear, got %d", len(msgs))
	}
	events, err := repo.ListEventsSince(ctx, sess.SessionID, time.Time{}, 100)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events after clear, got %d", len(events))
	}

	// The session row itself survives.
	if _, err := repo.GetSessionBySessionID(ctx, sess.SessionID); err != nil {
		t.Fatalf("session should survive clear: %v", err)
	}
}
