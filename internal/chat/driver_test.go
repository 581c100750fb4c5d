package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog/internal/ai"
	"github.com/nutrilog/nutrilog/internal/food"
	"github.com/nutrilog/nutrilog/internal/tools"
)

type scriptedProvider struct {
	responses []*ai.Result
	errs      []error
	calls     [][]ai.Message
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []ai.Message, decls []ai.Tool) (*ai.Result, error) {
	_ = ctx
	_ = decls
	p.calls = append(p.calls, append([]ai.Message(nil), messages...))
	i := len(p.calls) - 1
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return p.responses[len(p.responses)-1], nil
}

type fakeSearcher struct {
	result string
}

func (s *fakeSearcher) Search(ctx context.Context, query string) (string, error) {
	_ = ctx
	_ = query
	return s.result, nil
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Session{}, &Message{}, &Event{}, &Job{}, &food.Food{}, &food.Entry{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

var testUserSeq uint64 = 100

func nextTestUser() uint64 {
	testUserSeq++
	return testUserSeq
}

type driverFixture struct {
	repo    *Repo
	events  *EventLog
	svc     *Service
	foods   *food.Repo
	session *Session
	userID  uint64
	day     string
}

func newDriverFixture(t *testing.T) *driverFixture {
	t.Helper()
	db := openTestDB(t)
	repo := NewRepo(db)
	events := NewEventLog(repo, testLogger())
	uid := nextTestUser()
	day := "2025-06-01"
	sess, err := repo.CreateOrGetSession(context.Background(), uid, day)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return &driverFixture{
		repo:    repo,
		events:  events,
		svc:     NewService(repo, events),
		foods:   food.NewRepo(db),
		session: sess,
		userID:  uid,
		day:     day,
	}
}

func (f *driverFixture) newDriver(prov ai.Provider, searcher *fakeSearcher, maxRounds int) *Driver {
	if searcher == nil {
		searcher = &fakeSearcher{result: "no results"}
	}
	exec := tools.NewExecutor(f.foods, searcher)
	return NewDriver(f.repo, f.events, prov, exec, testLogger(), 100, maxRounds)
}

func (f *driverFixture) seedFood(t *testing.T, name string, calories float64) *food.Food {
	t.Helper()
	fd := &food.Food{UserID: f.userID, Name: name, Calories: calories, Protein: 0.3, Carbs: 14, Fat: 0.2}
	if err := f.foods.CreateFood(context.Background(), fd); err != nil {
		t.Fatalf("seed food: %v", err)
	}
	return fd
}

func (f *driverFixture) sendUserMessage(t *testing.T, text string) {
	t.Helper()
	if _, err := f.svc.InsertUserMessage(context.Background(), f.userID, f.session.SessionID, text, ""); err != nil {
		t.Fatalf("insert user message: %v", err)
	}
}

func (f *driverFixture) allEvents(t *testing.T) []Event {
	t.Helper()
	events, err := f.repo.ListEventsSince(context.Background(), f.session.SessionID, time.Time{}, 100)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	return events
}

func eventTypes(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func countType(events []Event, typ string) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func toolCallResult(id, name, args string) *ai.Result {
	return &ai.Result{
		ToolCalls: []ai.ToolCall{{
			ID:   id,
			Type: "function",
			Function: ai.FunctionCall{
				Name:      name,
				Arguments: args,
			},
		}},
	}
}

func TestDriverSingleToolCall(t *testing.T) {
	f := newDriverFixture(t)
	fd := f.seedFood(t, "Apple", 52)
	f.sendUserMessage(t, "I had a 150g apple")

	prov := &scriptedProvider{responses: []*ai.Result{
		toolCallResult("call_abc", "add_food_entry", fmt.Sprintf(`{"foodId":%d,"amount":150}`, fd.ID)),
		{Content: "Logged 150g of apple, about 78 kcal."},
	}}
	d := f.newDriver(prov, nil, 15)

	if err := d.Run(context.Background(), f.userID, f.session.SessionID, f.day); err != nil {
		t.Fatalf("run: %v", err)
	}

	events := f.allEvents(t)
	want := []string{
		EventMessage,     // user turn
		EventMessage,     // assistant tool-call announcement
		EventStatus,      // Executing add_food_entry...
		EventMessage,     // tool result
		EventDataChanged, // foodAdded
		EventMessage,     // final assistant answer
		EventCompleted,
	}
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("expected %d events %v, got %d %v", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s (%v)", i, want[i], got[i], got)
		}
	}

	var status struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(events[2].Payload, &status); err != nil {
		t.Fatalf("status payload: %v", err)
	}
	if status.Message != "Executing add_food_entry..." {
		t.Fatalf("unexpected status message: %q", status.Message)
	}

	var toolMsg struct {
		Message MessageView `json:"message"`
	}
	if err := json.Unmarshal(events[3].Payload, &toolMsg); err != nil {
		t.Fatalf("tool message payload: %v", err)
	}
	if toolMsg.Message.Content == nil || !strings.Contains(*toolMsg.Message.Content, "Successfully added") {
		t.Fatalf("unexpected tool result: %+v", toolMsg.Message)
	}
	if toolMsg.Message.ToolCallID == nil || *toolMsg.Message.ToolCallID != "call_abc" {
		t.Fatalf("tool call id did not round-trip: %+v", toolMsg.Message)
	}

	var changed struct {
		Data       map[string]json.RawMessage `json:"data"`
		TargetDate string                     `json:"targetDate"`
	}
	if err := json.Unmarshal(events[4].Payload, &changed); err != nil {
		t.Fatalf("data_changed payload: %v", err)
	}
	if _, okk := changed.Data["foodAdded"]; !okk {
		t.Fatalf("expected foodAdded in data_changed, got %v", changed.Data)
	}
	if changed.TargetDate != f.day {
		t.Fatalf("expected targetDate %s, got %s", f.day, changed.TargetDate)
	}

	entries, err := f.foods.ListEntries(context.Background(), f.userID, f.day)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Amount != 150 {
		t.Fatalf("expected one 150g entry, got %+v", entries)
	}
}

func TestDriverMultiRoundLookupThenLog(t *testing.T) {
	f := newDriverFixture(t)
	fd := f.seedFood(t, "Protein Bar", 380)
	f.sendUserMessage(t, "I ate a BrandX protein bar")

	searcher := &fakeSearcher{result: `Nutrition results for "BrandX protein bar" (per 100g):` + "\n- BrandX bar: 380 kcal, 30.0g protein, 40.0g carbs, 12.0g fat"}
	prov := &scriptedProvider{responses: []*ai.Result{
		toolCallResult("call_1", "search_nutrition", `{"query":"BrandX protein bar"}`),
		toolCallResult("call_2", "add_food_entry", fmt.Sprintf(`{"foodId":%d,"amount":60}`, fd.ID)),
		{Content: "Logged your protein bar."},
	}}
	d := f.newDriver(prov, searcher, 15)

	if err := d.Run(context.Background(), f.userID, f.session.SessionID, f.day); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(prov.calls) != 3 {
		t.Fatalf("expected 3 provider rounds, got %d", len(prov.calls))
	}

	events := f.allEvents(t)
	if n := countType(events, EventDataChanged); n != 1 {
		t.Fatalf("expected exactly one data_changed (lookup is read-only), got %d", n)
	}
	if n := countType(events, EventCompleted); n != 1 {
		t.Fatalf("expected exactly one completed, got %d", n)
	}
	if events[len(events)-1].Type != EventCompleted {
		t.Fatalf("expected completed last, got %v", eventTypes(events))
	}

	// Every tool message's id must appear in the preceding assistant
	// announcement.
	msgs, err := f.repo.ListMessagesAsc(context.Background(), f.session.SessionID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	announced := map[string]bool{}
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			if len(m.ToolCalls) > 0 {
				var calls []ai.ToolCall
				if err := json.Unmarshal(m.ToolCalls, &calls); err != nil {
					t.Fatalf("tool calls unmarshal: %v", err)
				}
				for _, tc := range calls {
					announced[tc.ID] = true
				}
			}
		case RoleTool:
			if m.ToolCallID == nil || !announced[*m.ToolCallID] {
				t.Fatalf("tool message %d has unannounced tool call id %v", m.ID, m.ToolCallID)
			}
		}
	}

	// The lookup result was fed back to the model in round 2.
	round2 := prov.calls[1]
	last := round2[len(round2)-1]
	if last.Role != RoleTool || !strings.Contains(last.Content, "Nutrition results") {
		t.Fatalf("expected lookup result as last round-2 message, got %+v", last)
	}
}

func TestDriverProviderFailure(t *testing.T) {
	f := newDriverFixture(t)
	f.sendUserMessage(t, "hello")

	prov := &scriptedProvider{errs: []error{
		&ai.ProviderError{Provider: "openrouter", StatusCode: 500, Body: "upstream exploded"},
	}}
	d := f.newDriver(prov, nil, 15)

	if err := d.Run(context.Background(), f.userID, f.session.SessionID, f.day); err == nil {
		t.Fatalf("expected error from provider failure")
	}

	events := f.allEvents(t)
	got := eventTypes(events)
	want := []string{EventMessage, EventError, EventCompleted}
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	var errPayload struct {
		Error         string `json:"error"`
		ProviderError string `json:"providerError"`
		Details       struct {
			Status int `json:"status"`
		} `json:"details"`
	}
	if err := json.Unmarshal(events[1].Payload, &errPayload); err != nil {
		t.Fatalf("error payload: %v", err)
	}
	if errPayload.Error == "" || errPayload.ProviderError != "upstream exploded" || errPayload.Details.Status != 500 {
		t.Fatalf("unexpected error payload: %+v", errPayload)
	}

	msgs, err := f.repo.ListMessagesAsc(context.Background(), f.session.SessionID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	for _, m := range msgs {
		if m.Role == RoleTool {
			t.Fatalf("no tool messages should persist on transport failure, got %+v", m)
		}
	}
}

func TestDriverToolFailureContinuesLoop(t *testing.T) {
	f := newDriverFixture(t)
	f.sendUserMessage(t, "change my last entry to 200g")

	prov := &scriptedProvider{responses: []*ai.Result{
		toolCallResult("call_x", "edit_food_entry", `{"entryId":99999,"amount":200}`),
		{Content: "Sorry, I couldn't find that entry."},
	}}
	d := f.newDriver(prov, nil, 15)

	if err := d.Run(context.Background(), f.userID, f.session.SessionID, f.day); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(prov.calls) != 2 {
		t.Fatalf("expected follow-up round after tool failure, got %d rounds", len(prov.calls))
	}

	events := f.allEvents(t)
	if n := countType(events, EventDataChanged); n != 0 {
		t.Fatalf("failed tool call must not emit data_changed, got %d", n)
	}
	if n := countType(events, EventError); n != 0 {
		t.Fatalf("tool failure is not a driver error, got %d error events", n)
	}

	msgs, err := f.repo.ListMessagesAsc(context.Background(), f.session.SessionID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	var toolResult *Message
	for i := range msgs {
		if msgs[i].Role == RoleTool {
			toolResult = &msgs[i]
		}
	}
	if toolResult == nil || toolResult.Content == nil || !strings.Contains(*toolResult.Content, "Error: Food entry not found.") {
		t.Fatalf("expected error string in tool result, got %+v", toolResult)
	}
}

func TestDriverRoundLimitSoftFail(t *testing.T) {
	f := newDriverFixture(t)
	f.sendUserMessage(t, "loop forever")

	prov := &scriptedProvider{responses: []*ai.Result{
		toolCallResult("call_l", "search_nutrition", `{"query":"something"}`),
	}}
	d := f.newDriver(prov, &fakeSearcher{result: "nothing found"}, 3)

	if err := d.Run(context.Background(), f.userID, f.session.SessionID, f.day); err != nil {
		t.Fatalf("round limit is a soft fail, got %v", err)
	}

	if len(prov.calls) != 3 {
		t.Fatalf("expected exactly maxRounds provider calls, got %d", len(prov.calls))
	}

	events := f.allEvents(t)
	if n := countType(events, EventError); n != 0 {
		t.Fatalf("round limit must not emit an error event, got %d", n)
	}
	if n := countType(events, EventCompleted); n != 1 {
		t.Fatalf("expected exactly one completed, got %d", n)
	}
	if events[len(events)-1].Type != EventCompleted {
		t.Fatalf("expected completed last, got %v", eventTypes(events))
	}
}

func TestBuildContextTrimsAtUserBoundary(t *testing.T) {
	f := newDriverFixture(t)

	// Two turns: user + (assistant,tool) pair each. With a window of 4
	// the raw cut would start mid-turn at an assistant message.
	script := []struct {
		role    string
		content string
	}{
		{RoleUser, "turn one"},
		{RoleAssistant, "calling tools"},
		{RoleTool, "result one"},
		{RoleUser, "turn two"},
		{RoleAssistant, "calling more tools"},
		{RoleTool, "result two"},
	}
	base := time.Now().Add(-time.Minute)
	for i, s := range script {
		content := s.content
		m := &Message{
			SessionID: f.session.SessionID,
			UserID:    f.userID,
			Role:      s.role,
			Content:   &content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := f.repo.InsertMessage(context.Background(), m); err != nil {
			t.Fatalf("insert message %d: %v", i, err)
		}
	}

	prov := &scriptedProvider{responses: []*ai.Result{{Content: "ok"}}}
	exec := tools.NewExecutor(f.foods, &fakeSearcher{})
	d := NewDriver(f.repo, f.events, prov, exec, testLogger(), 4, 15)

	msgs, err := d.buildContext(context.Background(), f.session.SessionID, f.day)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}

	if msgs[0].Role != "system" {
		t.Fatalf("expected system prompt first, got %q", msgs[0].Role)
	}
	if len(msgs) < 2 || msgs[1].Role != RoleUser {
		t.Fatalf("retained window must start at a user turn, got %+v", msgs[1:])
	}
	if msgs[1].Content != "turn two" {
		t.Fatalf("expected window to start at second user turn, got %q", msgs[1].Content)
	}
	if len(msgs)-1 != 3 {
		t.Fatalf("expected 3 history messages after trim, got %d", len(msgs)-1)
	}
}
