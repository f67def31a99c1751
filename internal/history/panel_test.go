package history

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/zulandar/product-assistant/internal/api"
	"github.com/zulandar/product-assistant/internal/errx"
)

type fakeLister struct {
	items []api.Summary
	err   error
	calls int
}

func (f *fakeLister) History(context.Context) ([]api.Summary, error) {
	f.calls++
	return f.items, f.err
}

func TestMount_FetchesOnce(t *testing.T) {
	f := &fakeLister{items: []api.Summary{{ChatID: "c2"}, {ChatID: "c1"}}}
	p := NewPanel(f)

	s := p.Mount(context.Background())
	p.Mount(context.Background())

	if f.calls != 1 {
		t.Errorf("calls = %d, want 1", f.calls)
	}
	if !s.Loaded || s.Loading || s.Error != "" || len(s.Items) != 2 {
		t.Errorf("state = %+v", s)
	}
	if s.Items[0].ChatID != "c2" {
		t.Errorf("order changed: %+v", s.Items)
	}
}

func TestRefresh_Errors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantError string
	}{
		{name: "server error", err: errx.New(nil, http.StatusInternalServerError, ""), wantError: errx.HistoryFailedMessage},
		{name: "network", err: errx.New(errors.New("refused"), 0, ""), wantError: errx.HistoryFailedMessage},
		{name: "unauthorized", err: fmt.Errorf("api: history: %w", errx.ErrUnauthorized), wantError: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPanel(&fakeLister{err: tt.err})
			s := p.Refresh(context.Background())
			if s.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", s.Error, tt.wantError)
			}
			if s.Loading || s.Loaded {
				t.Errorf("state = %+v", s)
			}
		})
	}
}

func TestRefresh_RetryClearsError(t *testing.T) {
	f := &fakeLister{err: errx.New(nil, http.StatusServiceUnavailable, "")}
	p := NewPanel(f)
	p.Mount(context.Background())
	if p.State().Error == "" {
		t.Fatal("expected error after failed mount")
	}

	f.err = nil
	f.items = []api.Summary{{ChatID: "c1"}}
	s := p.Refresh(context.Background())
	if s.Error != "" || !s.Loaded || len(s.Items) != 1 {
		t.Errorf("state after retry = %+v", s)
	}
}

func TestRefresh_FailureKeepsPreviousItems(t *testing.T) {
	f := &fakeLister{items: []api.Summary{{ChatID: "c1"}}}
	p := NewPanel(f)
	p.Refresh(context.Background())

	f.err = errx.New(nil, http.StatusBadGateway, "")
	s := p.Refresh(context.Background())
	if len(s.Items) != 1 || s.Error != errx.HistoryFailedMessage {
		t.Errorf("state = %+v", s)
	}
}
