// Package render writes conversations, classified replies and history
// summaries for a terminal.
package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/zulandar/product-assistant/internal/api"
	"github.com/zulandar/product-assistant/internal/classify"
	"github.com/zulandar/product-assistant/internal/conversation"
)

const (
	userPrefix   = "you> "
	botPrefix    = "assistant> "
	typingLine   = "assistant is typing..."
	timeLayout   = "2006-01-02 15:04"
	maxTitleCols = 50
)

// Conversation writes every message of s, then the pending indicator or the
// inline error.
func Conversation(w io.Writer, s conversation.State, memo *classify.Memo) {
	for _, m := range s.Messages {
		Message(w, m, memo)
	}
	Status(w, s)
}

// Status writes the pending indicator or the inline error, if any.
func Status(w io.Writer, s conversation.State) {
	switch s.Phase() {
	case conversation.Pending:
		fmt.Fprintln(w, typingLine)
	case conversation.Failed:
		fmt.Fprintf(w, "! %s\n", s.LastError)
	}
}

// Message writes one message. Bot replies are rendered by classification.
func Message(w io.Writer, m conversation.Message, memo *classify.Memo) {
	if m.Role == conversation.RoleUser {
		fmt.Fprintf(w, "%s%s\n", userPrefix, m.Content)
		return
	}
	var p classify.Payload
	if memo != nil {
		p = memo.Classify(m.Content)
	} else {
		p = classify.Classify(m.Content)
	}
	fmt.Fprint(w, botPrefix)
	Payload(w, p)
}

// Payload writes a classified reply.
func Payload(w io.Writer, p classify.Payload) {
	switch p.Kind {
	case classify.ProductList:
		products(w, p.Products)
	case classify.SupplierList:
		suppliers(w, p.Suppliers)
	case classify.StructuredError:
		fmt.Fprintf(w, "error: %s\n", p.Error)
	default:
		fmt.Fprintln(w, p.Text)
	}
}

func products(w io.Writer, ps []classify.Product) {
	fmt.Fprintf(w, "Products (%d)\n", len(ps))
	if len(ps) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  NAME\tBRAND\tPRICE\tCATEGORY")
	for _, p := range ps {
		fmt.Fprintf(tw, "  %s\t%s\t$%.2f\t%s\n", dash(p.Name), dash(p.Brand), p.Price, dash(p.Category))
	}
	tw.Flush()
	for _, p := range ps {
		if p.Description != "" {
			fmt.Fprintf(w, "  %s: %s\n", p.Name, p.Description)
		}
	}
}

func suppliers(w io.Writer, ss []classify.Supplier) {
	fmt.Fprintf(w, "Suppliers (%d)\n", len(ss))
	for _, s := range ss {
		fmt.Fprintf(w, "  - %s\n", dash(s.Name))
		for _, f := range []struct{ label, value string }{
			{"contact", s.Contact},
			{"email", s.Email},
			{"phone", s.Phone},
			{"address", s.Address},
		} {
			if f.value != "" {
				fmt.Fprintf(w, "      %s: %s\n", f.label, f.value)
			}
		}
		if len(s.CategoriesOffered) > 0 {
			fmt.Fprintf(w, "      categories: %s\n", strings.Join(s.CategoriesOffered, ", "))
		}
	}
}

// Summaries writes the history list as a table.
func Summaries(w io.Writer, items []api.Summary) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No conversations yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tWHEN")
	for _, s := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ChatID, Truncate(s.DisplayTitle(), maxTitleCols), when(s.Timestamp))
	}
	tw.Flush()
}

// Truncate shortens s to at most maxLen runes, ending in "..." when cut.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

func when(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
