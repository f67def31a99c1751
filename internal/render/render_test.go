package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/product-assistant/internal/api"
	"github.com/zulandar/product-assistant/internal/classify"
	"github.com/zulandar/product-assistant/internal/conversation"
)

func TestConversation(t *testing.T) {
	var memo classify.Memo
	s := conversation.State{
		Messages: []conversation.Message{
			{Role: conversation.RoleUser, Content: "Which suppliers offer gaming accessories?"},
			{Role: conversation.RoleBot, Content: `{"suppliers":[{"name":"Acme","email":"sales@acme.test","categories_offered":["Gaming","Audio"]}]}`},
			{Role: conversation.RoleUser, Content: "thanks"},
		},
		Pending: true,
	}

	var buf bytes.Buffer
	Conversation(&buf, s, &memo)
	out := buf.String()

	for _, want := range []string{
		"you> Which suppliers offer gaming accessories?\n",
		"assistant> Suppliers (1)\n",
		"  - Acme\n",
		"email: sales@acme.test",
		"categories: Gaming, Audio",
		"you> thanks\n",
		"assistant is typing...\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name  string
		state conversation.State
		want  string
	}{
		{name: "idle", state: conversation.State{}, want: ""},
		{name: "pending", state: conversation.State{Pending: true}, want: "assistant is typing...\n"},
		{name: "failed", state: conversation.State{LastError: "Sorry"}, want: "! Sorry\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Status(&buf, tt.state)
			if buf.String() != tt.want {
				t.Errorf("Status = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestPayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "plain", raw: "Hello there", want: []string{"Hello there\n"}},
		{name: "products", raw: `{"products":[{"name":"Gaming Mouse","brand":"TechMaster","price":49.99,"category":"Accessories","description":"RGB"}]}`,
			want: []string{"Products (1)", "NAME", "Gaming Mouse", "TechMaster", "$49.99", "Gaming Mouse: RGB"}},
		{name: "empty products", raw: `{"products":[]}`, want: []string{"Products (0)\n"}},
		{name: "error", raw: `{"error":"not found"}`, want: []string{"error: not found\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Payload(&buf, classify.Classify(tt.raw))
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output missing %q:\n%s", w, buf.String())
				}
			}
		})
	}
}

func TestSummaries(t *testing.T) {
	title := "Gaming gear"
	items := []api.Summary{
		{ChatID: "c2", Title: &title, Timestamp: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)},
		{ChatID: "c1", UserMessage: strings.Repeat("x", 80)},
	}

	var buf bytes.Buffer
	Summaries(&buf, items)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[1], "Gaming gear") {
		t.Errorf("unexpected table:\n%s", buf.String())
	}
	if !strings.Contains(lines[2], strings.Repeat("x", 47)+"...") || !strings.HasSuffix(strings.TrimSpace(lines[2]), "-") {
		t.Errorf("row 2 = %q", lines[2])
	}

	buf.Reset()
	Summaries(&buf, nil)
	if buf.String() != "No conversations yet.\n" {
		t.Errorf("empty = %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"héllo wörld", 8, "héllo..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
