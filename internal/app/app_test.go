package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/zulandar/product-assistant/internal/classify"
	"github.com/zulandar/product-assistant/internal/config"
	"github.com/zulandar/product-assistant/internal/conversation"
	"github.com/zulandar/product-assistant/internal/devserver"
	"github.com/zulandar/product-assistant/internal/nav"
	"github.com/zulandar/product-assistant/internal/session"
	"gorm.io/gorm"
)

type backend struct {
	db           *gorm.DB
	url          string
	chatRequests atomic.Int64
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	db, err := devserver.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	srv, err := devserver.New(db, nil)
	if err != nil {
		t.Fatalf("devserver.New: %v", err)
	}
	b := &backend{db: db}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/chatbot/") {
			b.chatRequests.Add(1)
		}
		srv.Handler().ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	b.url = ts.URL
	return b
}

func newApp(t *testing.T, b *backend, tokenPath string, extraYAML string) *App {
	t.Helper()
	cfg, err := config.Parse([]byte("api:\n  base_url: " + b.url + "\n" + extraYAML))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	a, err := New(Options{Config: cfg, Tokens: session.NewFileTokenStore(tokenPath)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func signUp(t *testing.T, a *App) {
	t.Helper()
	if err := a.Session.Register(context.Background(), "shopper@example.com", "hunter2"); err != nil {
		t.Fatalf("Register: %v", err)
	}
}

func TestNew_RequiresConfigAndTokens(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error without config")
	}
	cfg, _ := config.Parse(nil)
	if _, err := New(Options{Config: cfg}); err == nil {
		t.Error("expected error without token store")
	}
}

func TestFirstMessageScenario(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, b, filepath.Join(t.TempDir(), "token"), "")
	ctx := context.Background()
	signUp(t, a)

	if route, _ := a.Navigate(ctx, "/"); route.Kind != nav.Chat || route.ConversationID != "" {
		t.Fatalf("route = %+v, want /chat", route)
	}

	if err := a.Send(ctx, "Which suppliers offer gaming accessories?"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	s := a.Conversation.Snapshot()
	if len(s.Messages) != 2 || s.Pending || s.LastError != "" {
		t.Fatalf("state = %+v", s)
	}
	p := a.Memo.Classify(s.Messages[1].Content)
	if p.Kind != classify.SupplierList || len(p.Suppliers) != 2 {
		t.Errorf("reply = %v with %d suppliers, want supplier list of 2", p.Kind, len(p.Suppliers))
	}
	if s.ActiveConversationID == "" {
		t.Fatal("conversation id not adopted")
	}
	if got := a.Router.Current(); got.ConversationID != s.ActiveConversationID {
		t.Errorf("route = %+v, want /chat/%s", got, s.ActiveConversationID)
	}
	if b.chatRequests.Load() != 1 {
		t.Errorf("chat requests = %d, want 1 (no re-fetch after first send)", b.chatRequests.Load())
	}
}

func TestResumeAfterRestart(t *testing.T) {
	b := newBackend(t)
	tokenPath := filepath.Join(t.TempDir(), "token")
	ctx := context.Background()

	first := newApp(t, b, tokenPath, "")
	signUp(t, first)
	first.Navigate(ctx, "/chat")
	first.Send(ctx, "Show me gaming products")
	first.Send(ctx, "and audio under $100?")
	chatID := first.Conversation.Snapshot().ActiveConversationID

	second := newApp(t, b, tokenPath, "")
	restored, err := second.Start(ctx)
	if err != nil || !restored {
		t.Fatalf("Start = %v, %v, want restored session", restored, err)
	}
	if u := second.Session.CurrentUser(); u == nil || u.Email != "shopper@example.com" {
		t.Errorf("user = %+v", u)
	}

	route, err := second.Navigate(ctx, nav.ChatPath(chatID))
	if err != nil {
		t.Fatal(err)
	}
	if route.ConversationID != chatID {
		t.Errorf("route = %+v, want %s", route, chatID)
	}
	s := second.Conversation.Snapshot()
	if len(s.Messages) != 4 || s.Messages[0].Role != conversation.RoleUser || s.Messages[3].Role != conversation.RoleBot {
		t.Errorf("messages = %+v, want 4 alternating", s.Messages)
	}
	if s.Messages[2].Content != "and audio under $100?" {
		t.Errorf("order lost: %+v", s.Messages)
	}

	hist := second.History.Mount(ctx)
	if len(hist.Items) != 1 || hist.Items[0].ChatID != chatID || hist.Items[0].DisplayTitle() != "Show me gaming products" {
		t.Errorf("history = %+v", hist)
	}
}

func TestNavigate_UnknownConversationStartsFresh(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, b, filepath.Join(t.TempDir(), "token"), "")
	ctx := context.Background()
	signUp(t, a)

	route, err := a.Navigate(ctx, "/chat/nonexistent")
	if err != nil {
		t.Fatal(err)
	}
	if route.Kind != nav.Chat || route.ConversationID != "" {
		t.Errorf("route = %+v, want /chat", route)
	}
	if s := a.Conversation.Snapshot(); len(s.Messages) != 0 || s.LastError != "" {
		t.Errorf("state = %+v", s)
	}
}

func TestUnauthenticatedNeverCallsBackend(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, b, filepath.Join(t.TempDir(), "token"), "")
	ctx := context.Background()

	restored, err := a.Start(ctx)
	if err != nil || restored {
		t.Fatalf("Start = %v, %v, want no session", restored, err)
	}
	route, _ := a.Navigate(ctx, "/chat/c1")
	if route.Kind != nav.Login {
		t.Errorf("route = %+v, want /login", route)
	}
	if b.chatRequests.Load() != 0 {
		t.Errorf("chat requests = %d, want 0", b.chatRequests.Load())
	}
}

func TestExpiredTokenRedirectsToLogin(t *testing.T) {
	b := newBackend(t)
	tokenPath := filepath.Join(t.TempDir(), "token")
	a := newApp(t, b, tokenPath, "")
	ctx := context.Background()
	signUp(t, a)
	a.Navigate(ctx, "/chat")
	a.Send(ctx, "Show me all products")

	if err := b.db.Where("1 = 1").Delete(&devserver.AccessToken{}).Error; err != nil {
		t.Fatal(err)
	}

	if err := a.Send(ctx, "and suppliers?"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if a.Session.IsAuthenticated() || a.Session.CurrentUser() != nil {
		t.Error("session still authenticated after 401")
	}
	if a.Router.Current().Kind != nav.Login {
		t.Errorf("route = %+v, want /login", a.Router.Current())
	}
	s := a.Conversation.Snapshot()
	if s.LastError != "" || s.Pending || len(s.Messages) != 0 {
		t.Errorf("state = %+v, want reset without inline error", s)
	}
	stored, err := session.NewFileTokenStore(tokenPath).Load()
	if err != nil || stored != "" {
		t.Errorf("stored token = %q, %v, want cleared", stored, err)
	}

	if h := a.History.Refresh(ctx); h.Error != "" {
		t.Errorf("history error = %q, want suppressed", h.Error)
	}
}

func TestLogout(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, b, filepath.Join(t.TempDir(), "token"), "")
	ctx := context.Background()
	signUp(t, a)
	a.Navigate(ctx, "/chat")
	a.Send(ctx, "hello")

	before := b.chatRequests.Load()
	a.Logout()

	if a.Session.IsAuthenticated() {
		t.Error("still authenticated")
	}
	if a.Router.Current().Kind != nav.Login {
		t.Errorf("route = %+v, want /login", a.Router.Current())
	}
	if len(a.Conversation.Snapshot().Messages) != 0 {
		t.Error("conversation not reset")
	}
	if b.chatRequests.Load() != before {
		t.Error("logout should not call the backend")
	}
}

func TestNewChat(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, b, filepath.Join(t.TempDir(), "token"), "")
	ctx := context.Background()
	signUp(t, a)
	a.Navigate(ctx, "/chat")
	a.Send(ctx, "hello")

	if err := a.NewChat(); err != nil {
		t.Fatal(err)
	}
	s := a.Conversation.Snapshot()
	if len(s.Messages) != 0 || s.ActiveConversationID != "" {
		t.Errorf("state = %+v, want fresh", s)
	}
	if r := a.Router.Current(); r.Kind != nav.Chat || r.ConversationID != "" {
		t.Errorf("route = %+v, want /chat", r)
	}
}

func TestStart_Revalidation(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, b, filepath.Join(t.TempDir(), "token"), "session:\n  revalidate: \"@every 1h\"\n")
	if _, err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if a.cron == nil || len(a.cron.Entries()) != 1 {
		t.Fatal("revalidation not scheduled")
	}

	signUp(t, a)
	if err := b.db.Where("1 = 1").Delete(&devserver.AccessToken{}).Error; err != nil {
		t.Fatal(err)
	}
	a.revalidateOnce(context.Background())
	if a.Session.IsAuthenticated() {
		t.Error("revalidation kept a rejected session")
	}
	if a.Router.Current().Kind != nav.Login {
		t.Errorf("route = %+v, want /login", a.Router.Current())
	}
}

func TestBack_ReturnsToPreviousConversation(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, b, filepath.Join(t.TempDir(), "token"), "")
	ctx := context.Background()
	signUp(t, a)

	a.Navigate(ctx, "/chat")
	a.Send(ctx, "Show me gaming products")
	first := a.Conversation.Snapshot().ActiveConversationID

	a.NewChat()
	a.Send(ctx, "Which suppliers offer audio equipment?")
	second := a.Conversation.Snapshot().ActiveConversationID
	if first == "" || second == "" || first == second {
		t.Fatalf("conversation ids = %q, %q", first, second)
	}

	a.Navigate(ctx, nav.ChatPath(first))
	if got := a.Conversation.Snapshot().ActiveConversationID; got != first {
		t.Fatalf("active = %q, want %q", got, first)
	}

	route, ok, err := a.Back(ctx)
	if err != nil || !ok {
		t.Fatalf("Back = %+v, %v, %v", route, ok, err)
	}
	if route.ConversationID != second {
		t.Errorf("route = %+v, want /chat/%s", route, second)
	}
	s := a.Conversation.Snapshot()
	if s.ActiveConversationID != second || len(s.Messages) != 2 {
		t.Errorf("state = %+v, want the second conversation loaded", s)
	}
	if s.Messages[0].Content != "Which suppliers offer audio equipment?" {
		t.Errorf("messages = %+v", s.Messages)
	}
}

func TestBack_NothingToReturnTo(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, b, filepath.Join(t.TempDir(), "token"), "")
	if _, ok, err := a.Back(context.Background()); ok || err != nil {
		t.Errorf("Back = %v, %v, want nothing to go back to", ok, err)
	}
}

func TestMemoClearedWithConversation(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, b, filepath.Join(t.TempDir(), "token"), "")
	ctx := context.Background()
	signUp(t, a)
	a.Navigate(ctx, "/chat")
	a.Send(ctx, "Show me gaming products")
	first := a.Conversation.Snapshot()
	a.Memo.Classify(first.Messages[1].Content)
	if a.Memo.Len() == 0 {
		t.Fatal("memo empty after classifying a reply")
	}

	a.NewChat()
	if a.Memo.Len() != 0 {
		t.Errorf("memo size after new chat = %d, want 0", a.Memo.Len())
	}

	a.Send(ctx, "Which suppliers offer audio equipment?")
	a.Memo.Classify(a.Conversation.Snapshot().Messages[1].Content)
	a.Navigate(ctx, nav.ChatPath(first.ActiveConversationID))
	if a.Memo.Len() != 0 {
		t.Errorf("memo size after loading another conversation = %d, want 0", a.Memo.Len())
	}
}
