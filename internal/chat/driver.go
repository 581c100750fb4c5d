package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nutrilog/nutrilog/internal/ai"
	"github.com/nutrilog/nutrilog/internal/tools"
)

const systemPromptFmt = `You are a nutrition assistant inside a calorie-tracking app. Today is %s.

The user tells you what they ate; you keep their daily log accurate using the available tools. Look up nutrition facts with search_nutrition before logging foods you do not know. Create catalog foods before logging entries that reference them. When you are done, reply with a short confirmation summarizing what was logged. Amounts are grams, nutrition values are per 100g.`

// Driver orchestrates the multi-round tool-calling exchange with the
// model for one user turn. All outputs are side effects: persisted
// messages and events on the session's log.
type Driver struct {
	repo         *Repo
	events       *EventLog
	provider     ai.Provider
	exec         *tools.Executor
	log          *logrus.Logger
	historyLimit int
	maxRounds    int
}

func NewDriver(repo *Repo, events *EventLog, provider ai.Provider, exec *tools.Executor, log *logrus.Logger, historyLimit, maxRounds int) *Driver {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	if maxRounds <= 0 || maxRounds > 50 {
		maxRounds = 15
	}
	return &Driver{
		repo:         repo,
		events:       events,
		provider:     provider,
		exec:         exec,
		log:          log,
		historyLimit: historyLimit,
		maxRounds:    maxRounds,
	}
}

// Run executes the round loop for the session's latest user turn, which
// the caller has already persisted. Exactly one completed event is
// emitted on every exit path.
func (d *Driver) Run(ctx context.Context, userID uint64, sessionID, day string) error {
	completed := false
	complete := func() {
		if !completed {
			completed = true
			d.events.Completed(ctx, sessionID)
		}
	}
	defer complete()

	msgs, err := d.buildContext(ctx, sessionID, day)
	if err != nil {
		d.events.Error(ctx, sessionID, "failed to load conversation history", "", nil)
		return err
	}

	decls := tools.Declarations()

	for round := 0; round < d.maxRounds; round++ {
		res, err := d.provider.Chat(ctx, msgs, decls)
		if err != nil {
			d.emitProviderError(ctx, sessionID, err)
			return err
		}

		if len(res.ToolCalls) == 0 {
			// Terminal: final assistant answer.
			if strings.TrimSpace(res.Content) != "" {
				m, err := d.persistAssistant(ctx, userID, sessionID, res.Content, nil)
				if err != nil {
					d.events.Error(ctx, sessionID, "failed to save assistant message", "", nil)
					return err
				}
				d.events.Message(ctx, sessionID, m)
			}
			return nil
		}

		// Assistant turn announcing tool calls; content may be empty.
		m, err := d.persistAssistant(ctx, userID, sessionID, res.Content, res.ToolCalls)
		if err != nil {
			d.events.Error(ctx, sessionID, "failed to save assistant message", "", nil)
			return err
		}
		d.events.Message(ctx, sessionID, m)
		msgs = append(msgs, ai.Message{
			Role:      RoleAssistant,
			Content:   res.Content,
			ToolCalls: res.ToolCalls,
		})

		for _, tc := range res.ToolCalls {
			d.events.Status(ctx, sessionID, fmt.Sprintf("Executing %s...", tc.Function.Name))

			out := d.exec.Execute(ctx, tools.Name(tc.Function.Name), tc.Function.Arguments, userID, day)

			tm, err := d.persistToolResult(ctx, userID, sessionID, out.Text, tc.ID)
			if err != nil {
				d.events.Error(ctx, sessionID, "failed to save tool result", "", nil)
				return err
			}
			d.events.Message(ctx, sessionID, tm)
			if out.Change != nil {
				d.events.DataChanged(ctx, sessionID, out.Change, day)
			}

			msgs = append(msgs, ai.Message{
				Role:       RoleTool,
				Content:    out.Text,
				ToolCallID: tc.ID,
			})
		}
	}

	// Round limit reached without a final answer: soft-fail. The
	// completed event still fires so clients stop waiting.
	d.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"max_rounds": d.maxRounds,
	}).Warn("conversation stopped at round limit")
	return nil
}

// buildContext loads the capped history and rebuilds the provider message
// list. When the cap cut the window, the retained part starts at a
// user-role boundary so an assistant/tool pair is never split from the
// user message that triggered it.
func (d *Driver) buildContext(ctx context.Context, sessionID, day string) ([]ai.Message, error) {
	recentDesc, err := d.repo.ListRecentMessagesDesc(ctx, sessionID, d.historyLimit)
	if err != nil {
		return nil, err
	}

	// reverse to ASC (oldest -> newest)
	history := make([]Message, 0, len(recentDesc))
	for i := len(recentDesc) - 1; i >= 0; i-- {
		history = append(history, recentDesc[i])
	}

	if len(history) == d.historyLimit {
		for i, m := range history {
			if m.Role == RoleUser {
				history = history[i:]
				break
			}
		}
	}

	msgs := make([]ai.Message, 0, len(history)+1)
	msgs = append(msgs, ai.Message{
		Role:    "system",
		Content: fmt.Sprintf(systemPromptFmt, day),
	})
	for _, m := range history {
		am := ai.Message{Role: m.Role}
		if m.Content != nil {
			am.Content = *m.Content
		}
		if m.ImageData != nil {
			am.ImageData = *m.ImageData
		}
		if m.ToolCallID != nil {
			am.ToolCallID = *m.ToolCallID
		}
		if len(m.ToolCalls) > 0 {
			var calls []ai.ToolCall
			if err := json.Unmarshal(m.ToolCalls, &calls); err == nil {
				am.ToolCalls = calls
			}
		}
		msgs = append(msgs, am)
	}
	return msgs, nil
}

func (d *Driver) persistAssistant(ctx context.Context, userID uint64, sessionID, content string, toolCalls []ai.ToolCall) (*Message, error) {
	m := &Message{
		SessionID: sessionID,
		UserID:    userID,
		Role:      RoleAssistant,
	}
	if strings.TrimSpace(content) != "" {
		m.Content = &content
	}
	if len(toolCalls) > 0 {
		b, err := json.Marshal(toolCalls)
		if err != nil {
			return nil, err
		}
		m.ToolCalls = b
	}
	if err := d.repo.InsertMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (d *Driver) persistToolResult(ctx context.Context, userID uint64, sessionID, text, toolCallID string) (*Message, error) {
	m := &Message{
		SessionID:  sessionID,
		UserID:     userID,
		Role:       RoleTool,
		Content:    &text,
		ToolCallID: &toolCallID,
	}
	if err := d.repo.InsertMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (d *Driver) emitProviderError(ctx context.Context, sessionID string, err error) {
	var pe *ai.ProviderError
	if errors.As(err, &pe) {
		d.events.Error(ctx, sessionID, "LLM request failed", pe.Body, map[string]any{
			"status": pe.StatusCode,
		})
		return
	}
	d.events.Error(ctx, sessionID, err.Error(), "", nil)
}
