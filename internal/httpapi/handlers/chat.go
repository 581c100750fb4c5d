package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog/internal/chat"
	"github.com/nutrilog/nutrilog/internal/common"
)

const (
	streamPollInterval = 250 * time.Millisecond
	streamBatchLimit   = 100

	// Default cursor backoff: events racing connection setup are not
	// missed, at the cost of a few repeats the client dedups by id.
	streamSinceBackoff = 5 * time.Second
)

type createSessionReq struct {
	Date string `json:"date" binding:"required"`
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// CreateChatSession upserts the caller's session for a day. Racing
// creates converge to one row; every caller gets that row back.
func (h *Handler) CreateChatSession(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		unauthorized(c)
		return
	}

	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if !validDate(req.Date) {
		fail(c, http.StatusBadRequest, 10002, "date must be YYYY-MM-DD")
		return
	}

	sess, err := h.ChatSvc.CreateOrGetSession(c.Request.Context(), uid, req.Date)
	if err != nil {
		h.Log.WithError(err).Error("create session failed")
		fail(c, http.StatusInternalServerError, 50001, "failed to create session")
		return
	}

	ok(c, gin.H{"session_id": sess.SessionID, "day": sess.Day})
}

type sendChatMessageReq struct {
	Message       string `json:"message"`
	ImageData     string `json:"imageData"`
	ChatSessionID string `json:"chatSessionId"`
	Date          string `json:"date"`
}

// SendChatMessage is the chat ingress: it persists the user turn
// synchronously, acknowledges immediately, and continues the multi-round
// exchange in the background.
func (h *Handler) SendChatMessage(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		unauthorized(c)
		return
	}

	var req sendChatMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		failPlain(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ChatSessionID == "" {
		failPlain(c, http.StatusBadRequest, "chatSessionId is required")
		return
	}
	if !validDate(req.Date) {
		failPlain(c, http.StatusBadRequest, "date is required (YYYY-MM-DD)")
		return
	}
	if strings.TrimSpace(req.Message) == "" && req.ImageData == "" {
		failPlain(c, http.StatusBadRequest, "message or imageData is required")
		return
	}

	if _, err := h.ChatSvc.ValidateSessionOwner(c.Request.Context(), uid, req.ChatSessionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			failPlain(c, http.StatusNotFound, "session not found")
			return
		}
		h.Log.WithError(err).Error("session lookup failed")
		failPlain(c, http.StatusInternalServerError, "internal error")
		return
	}

	// Durable before the acknowledgement goes out.
	if _, err := h.ChatSvc.InsertUserMessage(c.Request.Context(), uid, req.ChatSessionID, req.Message, req.ImageData); err != nil {
		h.Log.WithError(err).Error("user message insert failed")
		failPlain(c, http.StatusInternalServerError, "internal error")
		return
	}

	if h.Rabbit != nil {
		if err := h.dispatchJob(c.Request.Context(), uid, req.ChatSessionID, req.Date); err != nil {
			h.Log.WithError(err).Error("chat turn enqueue failed")
			failPlain(c, http.StatusInternalServerError, "enqueue failed")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"accepted": true})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": true})

	// Fire-and-forget continuation, detached from the request lifecycle.
	// A failure here surfaces on the event stream, never to this caller.
	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.Log.WithField("panic", r).Error("background chat turn panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := h.Driver.Run(ctx, uid, req.ChatSessionID, req.Date); err != nil {
			h.Log.WithError(err).Warn("background chat turn failed")
		}
	}()
}

func (h *Handler) dispatchJob(ctx context.Context, uid uint64, sessionID, day string) error {
	jobID, err := common.NewULID()
	if err != nil {
		return err
	}
	j := &chat.Job{
		ID:        jobID,
		UserID:    uid,
		SessionID: sessionID,
		Day:       day,
		Status:    chat.JobQueued,
	}
	if err := h.ChatSvc.CreateJob(ctx, j); err != nil {
		return err
	}
	return h.Rabbit.PublishTurn(ctx, j.ID)
}

// StreamChatEvents relays the session's durable event log over SSE,
// polling from a client-supplied cursor. The loop only ends when the
// client disconnects; per-iteration failures are relayed as error frames.
func (h *Handler) StreamChatEvents(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		unauthorized(c)
		return
	}

	sessionID := c.Query("chatSessionId")
	if sessionID == "" {
		failPlain(c, http.StatusBadRequest, "chatSessionId is required")
		return
	}

	if _, err := h.ChatSvc.ValidateSessionOwner(c.Request.Context(), uid, sessionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			failPlain(c, http.StatusNotFound, "session not found")
			return
		}
		h.Log.WithError(err).Error("session lookup failed")
		failPlain(c, http.StatusInternalServerError, "internal error")
		return
	}

	cursor := time.Now().Add(-streamSinceBackoff)
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			failPlain(c, http.StatusBadRequest, "since must be an ISO-8601 timestamp")
			return
		}
		cursor = t
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	flusher, okk := c.Writer.(http.Flusher)
	if !okk {
		fmt.Fprintf(c.Writer, "event: error\ndata: {\"error\":\"streaming unsupported\"}\n\n")
		return
	}

	writeFrame := func(payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "data: {\"type\":\"error\",\"error\":\"marshal failed\"}\n\n")
			return
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", b)
	}

	ctx := c.Request.Context()
	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		events, err := h.Events.ReadSince(ctx, sessionID, cursor, streamBatchLimit)
		if err != nil {
			// Transient read failure: report and keep the connection.
			writeFrame(gin.H{"type": chat.EventError, "error": "event read failed"})
		} else {
			for _, ev := range events {
				writeFrame(decorateEvent(ev))
				cursor = ev.CreatedAt
			}
		}
		flusher.Flush()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// decorateEvent attaches delivery metadata (_ts, _eventId) to the stored
// payload; the metadata never exists at rest.
func decorateEvent(ev chat.Event) map[string]any {
	frame := map[string]any{}
	if err := json.Unmarshal(ev.Payload, &frame); err != nil {
		frame = map[string]any{"type": ev.Type}
	}
	frame["_ts"] = ev.CreatedAt.UTC().Format(time.RFC3339Nano)
	frame["_eventId"] = ev.ID
	return frame
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		unauthorized(c)
		return
	}

	sessionID := c.Param("session_id")
	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), uid, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, 40004, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	ok(c, gin.H{"messages": msgs})
}

func (h *Handler) ClearChatSession(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		unauthorized(c)
		return
	}

	sessionID := c.Param("session_id")
	if err := h.ChatSvc.ClearSession(c.Request.Context(), uid, sessionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, 40004, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50003, "failed to clear session")
		return
	}

	ok(c, gin.H{"cleared": true})
}

func (h *Handler) GetChatJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		unauthorized(c)
		return
	}

	jobID := c.Param("job_id")
	if jobID == "" {
		fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.ChatSvc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if j.UserID != uid {
		// hide existence
		fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	ok(c, gin.H{
		"job": gin.H{
			"id":         j.ID,
			"session_id": j.SessionID,
			"status":     j.Status,
			"error":      j.Error,
			"created_at": j.CreatedAt,
			"updated_at": j.UpdatedAt,
		},
	})
}
