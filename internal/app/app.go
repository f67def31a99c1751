// Package app wires the client together. Everything is constructed once in
// New and handed to the components that need it.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/product-assistant/internal/api"
	"github.com/zulandar/product-assistant/internal/classify"
	"github.com/zulandar/product-assistant/internal/config"
	"github.com/zulandar/product-assistant/internal/conversation"
	"github.com/zulandar/product-assistant/internal/dispatch"
	"github.com/zulandar/product-assistant/internal/errx"
	"github.com/zulandar/product-assistant/internal/history"
	"github.com/zulandar/product-assistant/internal/loader"
	"github.com/zulandar/product-assistant/internal/logx"
	"github.com/zulandar/product-assistant/internal/nav"
	"github.com/zulandar/product-assistant/internal/session"
)

// revalidateTimeout bounds one scheduled /auth/me check.
const revalidateTimeout = 10 * time.Second

// Options configures New.
type Options struct {
	Config *config.Config
	Tokens session.TokenStore
	// Transport overrides the HTTP transport; nil uses the default.
	Transport http.RoundTripper
}

// App is the assembled client.
type App struct {
	Session      *session.Store
	Conversation *conversation.Machine
	Router       *nav.Router
	Loader       *loader.Loader
	Dispatcher   *dispatch.Dispatcher
	History      *history.Panel
	Memo         *classify.Memo

	tokens     session.TokenStore
	revalidate string
	cron       *cron.Cron

	memoMu  sync.Mutex
	memoFor string
}

// New builds an App from opts.
func New(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("app: config is required")
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("app: token store is required")
	}

	apiOpts := api.Options{
		BaseURL:   opts.Config.API.BaseURL,
		Timeout:   opts.Config.API.Timeout,
		Transport: opts.Transport,
	}

	a := &App{
		Conversation: conversation.NewMachine(),
		Memo:         &classify.Memo{},
		tokens:       opts.Tokens,
		revalidate:   opts.Config.Session.Revalidate,
	}
	a.Session = session.NewStore(api.NewAuthClient(apiOpts), opts.Tokens)
	a.Router = nav.NewRouter(a.Session.IsAuthenticated)

	chat := api.NewChatClient(apiOpts, a.Session, a.Session.Invalidate)
	a.Loader = loader.New(chat, a.Conversation, a.Router)
	a.Dispatcher = dispatch.New(chat, a.Conversation, a.Router)
	a.History = history.NewPanel(chat)

	a.Conversation.Subscribe(a.resetMemo)
	a.Session.OnChange(func(authenticated bool) {
		if authenticated {
			return
		}
		a.Conversation.Apply(conversation.Reset{})
		if _, err := a.Router.Navigate(nav.PathLogin, true); err != nil {
			logx.Warn().Err(err).Msg("app: redirect to login failed")
		}
	})
	return a, nil
}

// Start restores the persisted session, moves to the initial route and
// schedules revalidation. It reports whether a session was restored.
func (a *App) Start(ctx context.Context) (bool, error) {
	restored := a.Session.Restore(ctx)
	if restored {
		if _, err := a.Router.Navigate(nav.PathChat, true); err != nil {
			return false, fmt.Errorf("app: start: %w", err)
		}
	}

	if a.revalidate != "" {
		a.cron = cron.New()
		if _, err := a.cron.AddFunc(a.revalidate, func() { a.revalidateOnce(ctx) }); err != nil {
			a.cron = nil
			return restored, fmt.Errorf("app: session.revalidate %q: %w", a.revalidate, err)
		}
		a.cron.Start()
	}
	return restored, nil
}

func (a *App) revalidateOnce(parent context.Context) {
	if !a.Session.IsAuthenticated() {
		return
	}
	ctx, cancel := context.WithTimeout(parent, revalidateTimeout)
	defer cancel()
	if err := a.Session.Revalidate(ctx); err != nil && !errx.IsAuth(err) {
		logx.Warn().Err(err).Msg("app: session revalidation failed")
	}
}

// Navigate routes to path. A /chat/{id} route whose id is not already the
// active conversation is loaded; /chat with no id starts a fresh one.
func (a *App) Navigate(ctx context.Context, path string) (nav.Route, error) {
	route, err := a.Router.Navigate(path, false)
	if err != nil {
		return nav.Route{}, err
	}
	return a.follow(ctx, route)
}

// Back returns to the previous route and brings the conversation in line
// with it. ok is false when there is nothing to go back to.
func (a *App) Back(ctx context.Context) (route nav.Route, ok bool, err error) {
	route, ok = a.Router.Back()
	if !ok {
		return a.Router.Current(), false, nil
	}
	route, err = a.follow(ctx, route)
	return route, true, err
}

// follow makes the conversation match route.
func (a *App) follow(ctx context.Context, route nav.Route) (nav.Route, error) {
	if route.Kind != nav.Chat {
		return route, nil
	}

	if route.ConversationID == "" {
		if a.Conversation.Snapshot().ActiveConversationID != "" {
			a.Conversation.Apply(conversation.Reset{})
		}
		return route, nil
	}
	if route.ConversationID == a.Conversation.Snapshot().ActiveConversationID {
		return route, nil
	}

	if _, err := a.Loader.Load(ctx, route.ConversationID); err != nil {
		return a.Router.Current(), err
	}
	return a.Router.Current(), nil
}

// resetMemo drops cached classifications once the conversation they belong
// to is gone: after a reset, or when another conversation is loaded.
func (a *App) resetMemo(s conversation.State) {
	a.memoMu.Lock()
	defer a.memoMu.Unlock()
	switch {
	case len(s.Messages) == 0:
		a.Memo.Reset()
	case a.memoFor != "" && s.ActiveConversationID != a.memoFor:
		a.Memo.Reset()
	}
	a.memoFor = s.ActiveConversationID
}

// Send submits one user message.
func (a *App) Send(ctx context.Context, text string) error {
	return a.Dispatcher.Submit(ctx, text)
}

// NewChat starts a fresh conversation.
func (a *App) NewChat() error {
	a.Conversation.Apply(conversation.Reset{})
	_, err := a.Router.Navigate(nav.PathChat, false)
	return err
}

// Logout ends the session. The session listener resets the conversation and
// routes to /login.
func (a *App) Logout() {
	a.Session.Logout()
}

// Close stops revalidation and releases the token store.
func (a *App) Close() error {
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	if err := a.tokens.Close(); err != nil {
		return fmt.Errorf("app: close token store: %w", err)
	}
	return nil
}
