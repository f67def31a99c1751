// Package loader resumes persisted conversations: it fetches the exchanges
// of a conversation and replaces the in-memory conversation with them.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/zulandar/product-assistant/internal/api"
	"github.com/zulandar/product-assistant/internal/conversation"
	"github.com/zulandar/product-assistant/internal/errx"
	"github.com/zulandar/product-assistant/internal/logx"
	"github.com/zulandar/product-assistant/internal/nav"
)

// Outcome reports what a Load did.
type Outcome int

const (
	// Loaded means the conversation replaced the in-memory state.
	Loaded Outcome = iota
	// Redirected means the fetch failed and navigation fell back to /chat
	// with a fresh conversation.
	Redirected
	// Unauthorized means the backend rejected the session. Navigation is
	// left to the session gate.
	Unauthorized
	// Stale means the result arrived after the navigation target moved on
	// and was discarded.
	Stale
)

func (o Outcome) String() string {
	switch o {
	case Loaded:
		return "loaded"
	case Redirected:
		return "redirected"
	case Unauthorized:
		return "unauthorized"
	case Stale:
		return "stale"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Fetcher fetches the exchanges of one conversation.
type Fetcher interface {
	Conversation(ctx context.Context, chatID string) ([]api.Exchange, error)
}

// Navigator is the part of the router the loader drives.
type Navigator interface {
	Navigate(path string, replace bool) (nav.Route, error)
	Target() string
}

// Loader loads conversations into a Machine.
type Loader struct {
	fetch   Fetcher
	machine *conversation.Machine
	nav     Navigator

	seq atomic.Uint64
}

// New creates a Loader.
func New(fetch Fetcher, machine *conversation.Machine, navigator Navigator) *Loader {
	return &Loader{fetch: fetch, machine: machine, nav: navigator}
}

// Load fetches chatID and emits a Load event. Only context cancellation is
// returned as an error; every other failure is reported through the
// Outcome and the log.
func (l *Loader) Load(ctx context.Context, chatID string) (Outcome, error) {
	seq := l.seq.Add(1)

	exchanges, err := l.fetch.Conversation(ctx, chatID)
	if err != nil && errx.IsAuth(err) {
		// The session gate may already have navigated away.
		logx.Info().Str("chat_id", chatID).Msg("loader: session rejected")
		return Unauthorized, nil
	}

	if l.stale(seq, chatID) {
		logx.Debug().Str("chat_id", chatID).Msg("loader: discarding stale result")
		return Stale, nil
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return Stale, fmt.Errorf("loader: load %s: %w", chatID, ctxErr)
		}
		logx.Warn().Err(err).Str("chat_id", chatID).Int("status", errx.StatusOf(err)).
			Msg("loader: conversation unavailable, starting fresh")
		l.machine.Apply(conversation.Reset{})
		if _, navErr := l.nav.Navigate(nav.PathChat, true); navErr != nil {
			logx.Warn().Err(navErr).Msg("loader: redirect failed")
		}
		return Redirected, nil
	}

	if err := l.machine.Apply(conversation.Load{Messages: Flatten(exchanges), ConversationID: chatID}); err != nil {
		return Stale, fmt.Errorf("loader: apply %s: %w", chatID, err)
	}
	logx.Debug().Str("chat_id", chatID).Int("exchanges", len(exchanges)).Msg("loader: conversation loaded")
	return Loaded, nil
}

// stale reports whether a load issued as seq for chatID has been superseded
// by a newer load or a navigation away from chatID.
func (l *Loader) stale(seq uint64, chatID string) bool {
	return l.seq.Load() != seq || l.nav.Target() != chatID
}

// Flatten turns each exchange into a user message followed by a bot
// message, both stamped with the exchange time.
func Flatten(exchanges []api.Exchange) []conversation.Message {
	msgs := make([]conversation.Message, 0, 2*len(exchanges))
	for _, ex := range exchanges {
		msgs = append(msgs,
			conversation.Message{Role: conversation.RoleUser, Content: ex.UserMessage, Timestamp: ex.Timestamp},
			conversation.Message{Role: conversation.RoleBot, Content: ex.BotResponse, Timestamp: ex.Timestamp},
		)
	}
	return msgs
}
