// Package history lists prior conversations. It never touches the
// conversation state.
package history

import (
	"context"
	"sync"

	"github.com/zulandar/product-assistant/internal/api"
	"github.com/zulandar/product-assistant/internal/errx"
	"github.com/zulandar/product-assistant/internal/logx"
)

// Lister fetches conversation summaries.
type Lister interface {
	History(ctx context.Context) ([]api.Summary, error)
}

// State is what the panel displays.
type State struct {
	Items   []api.Summary
	Loading bool
	// Loaded is set once any fetch has succeeded.
	Loaded bool
	// Error is the retryable failure text, or empty.
	Error string
}

// Panel holds the history list.
type Panel struct {
	lister Lister

	mu      sync.Mutex
	state   State
	mounted bool
}

// NewPanel creates a Panel.
func NewPanel(lister Lister) *Panel {
	return &Panel{lister: lister}
}

// Mount fetches the list the first time it is called.
func (p *Panel) Mount(ctx context.Context) State {
	p.mu.Lock()
	if p.mounted {
		s := p.snapshot()
		p.mu.Unlock()
		return s
	}
	p.mounted = true
	p.mu.Unlock()
	return p.Refresh(ctx)
}

// Refresh re-fetches the list. An auth failure leaves Error empty; the
// session gate handles it.
func (p *Panel) Refresh(ctx context.Context) State {
	p.mu.Lock()
	p.state.Loading = true
	p.mu.Unlock()

	items, err := p.lister.History(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Loading = false
	switch {
	case err == nil:
		p.state.Items = items
		p.state.Loaded = true
		p.state.Error = ""
	case errx.IsAuth(err):
		p.state.Error = ""
	default:
		logx.Warn().Err(err).Int("status", errx.StatusOf(err)).Msg("history: list failed")
		p.state.Error = errx.HistoryFailedMessage
	}
	return p.snapshot()
}

// State returns the current panel state.
func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

func (p *Panel) snapshot() State {
	s := p.state
	s.Items = append([]api.Summary(nil), p.state.Items...)
	return s
}
