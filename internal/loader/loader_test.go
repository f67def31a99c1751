package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/zulandar/product-assistant/internal/api"
	"github.com/zulandar/product-assistant/internal/conversation"
	"github.com/zulandar/product-assistant/internal/errx"
	"github.com/zulandar/product-assistant/internal/nav"
)

type fakeFetcher struct {
	exchanges map[string][]api.Exchange
	err       error
	calls     []string
	// during runs inside Conversation before the result is returned.
	during func()
}

func (f *fakeFetcher) Conversation(_ context.Context, chatID string) ([]api.Exchange, error) {
	f.calls = append(f.calls, chatID)
	if f.during != nil {
		f.during()
	}
	if f.err != nil {
		return nil, f.err
	}
	ex, ok := f.exchanges[chatID]
	if !ok {
		return nil, errx.New(nil, http.StatusNotFound, "")
	}
	return ex, nil
}

func setup(t *testing.T, f *fakeFetcher, path string) (*Loader, *conversation.Machine, *nav.Router) {
	t.Helper()
	m := conversation.NewMachine()
	r := nav.NewRouter(nil)
	if _, err := r.Navigate(path, false); err != nil {
		t.Fatal(err)
	}
	return New(f, m, r), m, r
}

func TestLoad_FlattensExchanges(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	f := &fakeFetcher{exchanges: map[string][]api.Exchange{
		"c1": {
			{UserMessage: "q1", BotResponse: "a1", Timestamp: t1},
			{UserMessage: "q2", BotResponse: "a2", Timestamp: t2},
		},
	}}
	l, m, _ := setup(t, f, "/chat/c1")

	out, err := l.Load(context.Background(), "c1")
	if err != nil || out != Loaded {
		t.Fatalf("Load = %v, %v, want loaded", out, err)
	}

	s := m.Snapshot()
	if s.ActiveConversationID != "c1" {
		t.Errorf("ActiveConversationID = %q, want c1", s.ActiveConversationID)
	}
	want := []conversation.Message{
		{Role: conversation.RoleUser, Content: "q1", Timestamp: t1},
		{Role: conversation.RoleBot, Content: "a1", Timestamp: t1},
		{Role: conversation.RoleUser, Content: "q2", Timestamp: t2},
		{Role: conversation.RoleBot, Content: "a2", Timestamp: t2},
	}
	if len(s.Messages) != len(want) {
		t.Fatalf("len(Messages) = %d, want %d", len(s.Messages), len(want))
	}
	for i := range want {
		if s.Messages[i] != want[i] {
			t.Errorf("Messages[%d] = %+v, want %+v", i, s.Messages[i], want[i])
		}
	}
}

func TestLoad_EmptyConversation(t *testing.T) {
	f := &fakeFetcher{exchanges: map[string][]api.Exchange{"c1": {}}}
	l, m, _ := setup(t, f, "/chat/c1")

	if out, _ := l.Load(context.Background(), "c1"); out != Loaded {
		t.Fatalf("outcome = %v, want loaded", out)
	}
	s := m.Snapshot()
	if len(s.Messages) != 0 || s.ActiveConversationID != "c1" {
		t.Errorf("state = %+v", s)
	}
}

func TestLoad_NotFoundRedirects(t *testing.T) {
	f := &fakeFetcher{}
	l, m, r := setup(t, f, "/chat/nonexistent")
	m.Apply(conversation.Load{Messages: []conversation.Message{{Role: conversation.RoleUser, Content: "old"}}, ConversationID: "old"})

	out, err := l.Load(context.Background(), "nonexistent")
	if err != nil || out != Redirected {
		t.Fatalf("Load = %v, %v, want redirected", out, err)
	}
	if got := r.Current(); got.Kind != nav.Chat || got.ConversationID != "" {
		t.Errorf("route = %+v, want /chat", got)
	}
	s := m.Snapshot()
	if len(s.Messages) != 0 || s.ActiveConversationID != "" || s.LastError != "" {
		t.Errorf("state = %+v, want fresh", s)
	}
}

func TestLoad_TransportErrorRedirects(t *testing.T) {
	f := &fakeFetcher{err: errx.New(errors.New("connection refused"), 0, "")}
	l, _, r := setup(t, f, "/chat/c1")

	if out, _ := l.Load(context.Background(), "c1"); out != Redirected {
		t.Fatalf("outcome = %v, want redirected", out)
	}
	if r.Target() != "" {
		t.Errorf("Target = %q, want empty", r.Target())
	}
}

func TestLoad_UnauthorizedLeavesNavigation(t *testing.T) {
	f := &fakeFetcher{err: fmt.Errorf("api: conversation c1: %w", errx.ErrUnauthorized)}
	l, m, r := setup(t, f, "/chat/c1")

	out, err := l.Load(context.Background(), "c1")
	if err != nil || out != Unauthorized {
		t.Fatalf("Load = %v, %v, want unauthorized", out, err)
	}
	if r.Target() != "c1" {
		t.Errorf("Target = %q, want c1 untouched", r.Target())
	}
	if s := m.Snapshot(); len(s.Messages) != 0 || s.ActiveConversationID != "" {
		t.Errorf("state = %+v, want untouched", s)
	}
}

func TestLoad_StaleAfterNavigation(t *testing.T) {
	f := &fakeFetcher{exchanges: map[string][]api.Exchange{
		"c1": {{UserMessage: "q", BotResponse: "a"}},
	}}
	l, m, r := setup(t, f, "/chat/c1")
	f.during = func() { r.Navigate("/chat/c2", false) }

	out, err := l.Load(context.Background(), "c1")
	if err != nil || out != Stale {
		t.Fatalf("Load = %v, %v, want stale", out, err)
	}
	if s := m.Snapshot(); len(s.Messages) != 0 {
		t.Errorf("stale result applied: %+v", s)
	}
}

func TestLoad_StaleAfterNewerLoad(t *testing.T) {
	f := &fakeFetcher{exchanges: map[string][]api.Exchange{
		"c1": {{UserMessage: "first", BotResponse: "a"}},
	}}
	l, m, _ := setup(t, f, "/chat/c1")

	var inner Outcome
	f.during = func() {
		f.during = nil
		inner, _ = l.Load(context.Background(), "c1")
	}

	if out, _ := l.Load(context.Background(), "c1"); out != Stale {
		t.Errorf("outer outcome = %v, want stale", out)
	}
	if inner != Loaded {
		t.Errorf("inner outcome = %v, want loaded", inner)
	}
	if got := len(m.Snapshot().Messages); got != 2 {
		t.Errorf("len(Messages) = %d, want 2", got)
	}
}

func TestLoad_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeFetcher{err: fmt.Errorf("api: conversation c1: %w", context.Canceled)}
	l, _, r := setup(t, f, "/chat/c1")

	_, err := l.Load(ctx, "c1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if r.Target() != "c1" {
		t.Errorf("cancelled load must not redirect, Target = %q", r.Target())
	}
}

func TestOutcome_String(t *testing.T) {
	for o, want := range map[Outcome]string{Loaded: "loaded", Redirected: "redirected", Unauthorized: "unauthorized", Stale: "stale", Outcome(7): "Outcome(7)"} {
		if o.String() != want {
			t.Errorf("String() = %q, want %q", o.String(), want)
		}
	}
}
