package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// User is the identity returned by /auth/login and /auth/me. Numeric and
// string ids are both accepted; fields the client does not model are kept
// in Extra.
type User struct {
	ID    string                     `json:"id"`
	Email string                     `json:"email"`
	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON accepts {"id": 7} as well as {"id": "u-7"}.
func (u *User) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var out User
	if v, ok := raw["id"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			var n json.Number
			if err := json.Unmarshal(v, &n); err != nil {
				return fmt.Errorf("user id: %w", err)
			}
			s = n.String()
		}
		out.ID = s
		delete(raw, "id")
	}
	if v, ok := raw["email"]; ok {
		if err := json.Unmarshal(v, &out.Email); err != nil {
			return fmt.Errorf("user email: %w", err)
		}
		delete(raw, "email")
	}
	if len(raw) > 0 {
		out.Extra = raw
	}
	*u = out
	return nil
}

// LoginResponse is the body of a successful /auth/login.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// ChatRequest is the body of POST /chatbot/chat. A nil ChatID starts a new
// conversation.
type ChatRequest struct {
	Message string  `json:"message"`
	ChatID  *string `json:"chat_id"`
}

// ChatResponse is the body of a successful POST /chatbot/chat.
type ChatResponse struct {
	Response string `json:"response"`
	ChatID   string `json:"chat_id"`
}

// Exchange is one persisted user/bot exchange of a conversation.
type Exchange struct {
	ChatID      string    `json:"chat_id,omitempty"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
	Timestamp   time.Time `json:"timestamp"`
}

// Summary is one entry of GET /chatbot/history.
type Summary struct {
	ChatID      string    `json:"chat_id"`
	Title       *string   `json:"title"`
	UserMessage string    `json:"user_message"`
	Timestamp   time.Time `json:"timestamp"`
}

// DisplayTitle returns the title, falling back to the first user message.
func (s Summary) DisplayTitle() string {
	if s.Title != nil && *s.Title != "" {
		return *s.Title
	}
	return s.UserMessage
}
