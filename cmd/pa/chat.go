package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/zulandar/product-assistant/internal/app"
	"github.com/zulandar/product-assistant/internal/conversation"
	"github.com/zulandar/product-assistant/internal/nav"
	"github.com/zulandar/product-assistant/internal/render"
)

const chatHelp = `Type a question and press enter. Commands:
  /new        start a new conversation
  /history    list previous conversations
  /open ID    resume a conversation
  /back       return to the previous conversation
  /logout     log out and exit
  /quit       exit
  /help       show this help`

var errSessionEnded = errors.New("session expired; run 'pa login' to continue")

func newChatCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "chat [conversation-id]",
		Short: "Chat with the product assistant",
		Long:  "Starts an interactive chat. Pass a conversation id to resume it.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			return runChat(cmd, configPath, id)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to pa config file")
	return cmd
}

func runChat(cmd *cobra.Command, configPath, id string) error {
	ctx := context.Background()
	a, restored, err := startApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	if !restored {
		return errNotLoggedIn
	}

	out := cmd.OutOrStdout()
	a.Conversation.Subscribe(func(s conversation.State) {
		if s.Pending {
			render.Status(out, s)
		}
	})

	r := &repl{app: a, out: out, in: newPrompter(cmd)}
	a.Router.OnNavigate(r.routed)
	if id != "" {
		if err := r.open(ctx, id); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Logged in as %s. /help for commands.\n", a.Session.CurrentUser().Email)
	}
	return r.run(ctx)
}

// repl drives one interactive chat session.
type repl struct {
	app *app.App
	out io.Writer
	in  *prompter

	mu sync.Mutex
	// assigned is the id the backend gave the conversation in progress,
	// until it has been shown.
	assigned string
}

// routed notes the conversation id when a fresh conversation is replaced by
// its persisted route after the first reply.
func (r *repl) routed(route nav.Route) {
	if route.Kind != nav.Chat || route.ConversationID == "" {
		return
	}
	r.mu.Lock()
	r.assigned = route.ConversationID
	r.mu.Unlock()
}

func (r *repl) takeAssigned() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.assigned
	r.assigned = ""
	return id
}

func (r *repl) run(ctx context.Context) error {
	for {
		line, err := r.in.line("> ")
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(r.out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if line == "" {
			continue
		}

		done, err := r.handle(ctx, line)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// handle runs one input line and reports whether the session is over.
func (r *repl) handle(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, r.send(ctx, line)
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/new":
		if err := r.app.NewChat(); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, "Started a new conversation.")
	case "/history":
		s := r.app.History.Refresh(ctx)
		if err := r.checkSession(); err != nil {
			return false, err
		}
		if s.Error != "" {
			fmt.Fprintf(r.out, "! %s\n", s.Error)
			break
		}
		render.Summaries(r.out, s.Items)
	case "/open":
		if arg == "" {
			fmt.Fprintln(r.out, "usage: /open ID")
			break
		}
		return false, r.open(ctx, arg)
	case "/back":
		return false, r.back(ctx)
	case "/logout":
		r.app.Logout()
		fmt.Fprintln(r.out, "Logged out.")
		return true, nil
	default:
		fmt.Fprintf(r.out, "unknown command %s; /help lists commands\n", name)
	}
	return false, nil
}

func (r *repl) send(ctx context.Context, text string) error {
	before := len(r.app.Conversation.Snapshot().Messages)
	if err := r.app.Send(ctx, text); err != nil {
		fmt.Fprintf(r.out, "! %s\n", err)
		return nil
	}
	if err := r.checkSession(); err != nil {
		return err
	}

	s := r.app.Conversation.Snapshot()
	// The user's own line was already echoed by the terminal.
	for _, m := range s.Messages[min(before+1, len(s.Messages)):] {
		render.Message(r.out, m, r.app.Memo)
	}
	render.Status(r.out, s)
	if id := r.takeAssigned(); id != "" {
		fmt.Fprintf(r.out, "(conversation %s; resume with 'pa chat %s')\n", id, id)
	}
	return nil
}

func (r *repl) back(ctx context.Context) error {
	route, ok, err := r.app.Back(ctx)
	if err != nil {
		return fmt.Errorf("go back: %w", err)
	}
	if err := r.checkSession(); err != nil {
		return err
	}
	r.takeAssigned()
	switch {
	case !ok:
		fmt.Fprintln(r.out, "Nothing to go back to.")
	case route.ConversationID == "":
		fmt.Fprintln(r.out, "Started a new conversation.")
	default:
		render.Conversation(r.out, r.app.Conversation.Snapshot(), r.app.Memo)
	}
	return nil
}

func (r *repl) open(ctx context.Context, id string) error {
	route, err := r.app.Navigate(ctx, nav.ChatPath(id))
	if err != nil {
		return fmt.Errorf("open conversation %s: %w", id, err)
	}
	if err := r.checkSession(); err != nil {
		return err
	}
	r.takeAssigned()
	if route.ConversationID == "" {
		fmt.Fprintf(r.out, "Conversation %s not found. Started a new one.\n", id)
		return nil
	}
	render.Conversation(r.out, r.app.Conversation.Snapshot(), r.app.Memo)
	return nil
}

// checkSession ends the chat once the backend has rejected the token.
func (r *repl) checkSession() error {
	if r.app.Session.IsAuthenticated() {
		return nil
	}
	return errSessionEnded
}
