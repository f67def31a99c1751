// Package dispatch sends user messages: optimistic append, the send request,
// and reconciliation of the reply into the conversation.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/zulandar/product-assistant/internal/api"
	"github.com/zulandar/product-assistant/internal/conversation"
	"github.com/zulandar/product-assistant/internal/errx"
	"github.com/zulandar/product-assistant/internal/logx"
	"github.com/zulandar/product-assistant/internal/nav"
)

// ErrBusy is returned by Submit while a request is pending.
var ErrBusy = errors.New("dispatch: a message is already pending")

// Sender posts one chat message.
type Sender interface {
	Send(ctx context.Context, in api.ChatRequest) (*api.ChatResponse, error)
}

// Navigator moves to the conversation-scoped path once the backend has
// assigned an id.
type Navigator interface {
	Navigate(path string, replace bool) (nav.Route, error)
}

// Dispatcher is the only caller that emits Send into the machine.
type Dispatcher struct {
	sender  Sender
	machine *conversation.Machine
	nav     Navigator

	seq atomic.Uint64
}

// New creates a Dispatcher.
func New(sender Sender, machine *conversation.Machine, navigator Navigator) *Dispatcher {
	return &Dispatcher{sender: sender, machine: machine, nav: navigator}
}

// Submit sends text. Blank input returns errx.ErrEmptyMessage and input while
// pending returns ErrBusy; neither issues a request. Backend failures are
// recorded in the conversation, not returned.
func (d *Dispatcher) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errx.ErrEmptyMessage
	}

	before := d.machine.Snapshot()
	if before.Pending {
		return ErrBusy
	}
	seq := d.seq.Add(1)
	if err := d.machine.Apply(conversation.Send{Text: text, Seq: seq}); err != nil {
		if errors.Is(err, conversation.ErrInvalidTransition) {
			return ErrBusy
		}
		return err
	}

	req := api.ChatRequest{Message: text}
	if id := before.ActiveConversationID; id != "" {
		req.ChatID = &id
	}

	resp, err := d.sender.Send(ctx, req)
	if err != nil {
		d.fail(err, seq, before.ActiveConversationID)
		return nil
	}

	if err := d.machine.Apply(conversation.Receive{Content: resp.Response, ConversationID: resp.ChatID, Seq: seq}); err != nil {
		// The conversation was reset, replaced or sent to again while the
		// request was in flight; the reply no longer belongs anywhere.
		logx.Debug().Str("chat_id", resp.ChatID).Msg("dispatch: dropping reply for replaced conversation")
		return nil
	}

	if before.ActiveConversationID == "" && resp.ChatID != "" {
		if _, err := d.nav.Navigate(nav.ChatPath(resp.ChatID), true); err != nil {
			logx.Warn().Err(err).Str("chat_id", resp.ChatID).Msg("dispatch: navigate to new conversation failed")
		}
	}
	return nil
}

func (d *Dispatcher) fail(err error, seq uint64, chatID string) {
	msg := errx.SendFailedMessage
	if errx.IsAuth(err) {
		msg = ""
		logx.Info().Str("chat_id", chatID).Msg("dispatch: session rejected")
	} else {
		logx.Warn().Err(err).Str("chat_id", chatID).Int("status", errx.StatusOf(err)).Msg("dispatch: send failed")
	}
	if applyErr := d.machine.Apply(conversation.Fail{Message: msg, Seq: seq}); applyErr != nil {
		logx.Debug().Err(applyErr).Msg("dispatch: conversation no longer pending")
	}
}
