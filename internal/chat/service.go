package chat

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Service covers the session-facing operations the HTTP layer needs:
// session upsert, ownership checks, user-turn persistence, history reads.
// The conversation itself runs in Driver.
type Service struct {
	repo   *Repo
	events *EventLog
}

func NewService(repo *Repo, events *EventLog) *Service {
	return &Service{repo: repo, events: events}
}

func (s *Service) CreateOrGetSession(ctx context.Context, userID uint64, day string) (*Session, error) {
	return s.repo.CreateOrGetSession(ctx, userID, day)
}

// ValidateSessionOwner hides foreign sessions behind ErrRecordNotFound.
func (s *Service) ValidateSessionOwner(ctx context.Context, userID uint64, sessionID string) (*Session, error) {
	sess, err := s.repo.GetSessionBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return sess, nil
}

// InsertUserMessage persists the user's turn and emits its message event.
// The caller gets a durable row back before any background processing
// starts.
func (s *Service) InsertUserMessage(ctx context.Context, userID uint64, sessionID, content, imageData string) (*Message, error) {
	m := &Message{
		SessionID: sessionID,
		UserID:    userID,
		Role:      RoleUser,
	}
	if strings.TrimSpace(content) != "" {
		m.Content = &content
	}
	if imageData != "" {
		m.ImageData = &imageData
	}
	if m.Content == nil && m.ImageData == nil {
		return nil, errors.New("chat: empty user message")
	}

	if err := s.repo.InsertMessage(ctx, m); err != nil {
		return nil, err
	}
	s.events.Message(ctx, sessionID, m)
	return m, nil
}

func (s *Service) ListMessages(ctx context.Context, userID uint64, sessionID string) ([]Message, error) {
	if _, err := s.ValidateSessionOwner(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListMessagesAsc(ctx, sessionID)
}

func (s *Service) ClearSession(ctx context.Context, userID uint64, sessionID string) error {
	if _, err := s.ValidateSessionOwner(ctx, userID, sessionID); err != nil {
		return err
	}
	return s.repo.ClearSession(ctx, sessionID)
}

func (s *Service) CreateJob(ctx context.Context, job *Job) error {
	return s.repo.CreateJob(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJobByID(ctx, jobID)
}
