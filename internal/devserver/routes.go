package devserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/zulandar/product-assistant/internal/logx"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	userIDKey     = "user_id"
	maxTitleRunes = 50
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userJSON struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
}

type chatRequest struct {
	Message string  `json:"message"`
	ChatID  *string `json:"chat_id"`
}

type exchangeJSON struct {
	ChatID      string    `json:"chat_id"`
	Title       *string   `json:"title"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
	Timestamp   time.Time `json:"timestamp"`
}

// registerRoutes sets up every backend route on the Gin router.
func (s *Server) registerRoutes() {
	auth := s.router.Group("/auth")
	auth.POST("/register", s.handleRegister)
	auth.POST("/login", s.handleLogin)
	auth.GET("/me", s.requireAuth(), s.handleMe)

	chat := s.router.Group("/chatbot", s.requireAuth())
	chat.POST("/chat", s.handleChat)
	chat.GET("/chat/:id", s.handleConversation)
	chat.GET("/history", s.handleHistory)
}

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

// requireAuth resolves the bearer token to a user id.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			detail(c, http.StatusUnauthorized, "Not authenticated")
			return
		}

		var tok AccessToken
		if err := s.db.Where("value = ?", parts[1]).Limit(1).Find(&tok).Error; err != nil {
			detail(c, http.StatusInternalServerError, err.Error())
			return
		}
		if tok.UserID == 0 {
			detail(c, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		c.Set(userIDKey, tok.UserID)
		c.Next()
	}
}

func (s *Server) handleRegister(c *gin.Context) {
	var in credentials
	if err := c.ShouldBindJSON(&in); err != nil {
		detail(c, http.StatusBadRequest, "invalid body")
		return
	}
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" || in.Password == "" {
		detail(c, http.StatusBadRequest, "email and password are required")
		return
	}

	var existing int64
	if err := s.db.Model(&User{}).Where("email = ?", in.Email).Count(&existing).Error; err != nil {
		detail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if existing > 0 {
		detail(c, http.StatusBadRequest, "Email already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.db.Create(&User{Email: in.Email, PasswordHash: hash}).Error; err != nil {
		// Unique index on email.
		detail(c, http.StatusBadRequest, "Email already registered")
		return
	}
	logx.Info().Str("email", in.Email).Msg("devserver: user registered")
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) handleLogin(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("username"))
	password := c.PostForm("password")

	var u User
	if err := s.db.Where("email = ?", email).Limit(1).Find(&u).Error; err != nil {
		detail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if u.ID == 0 || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		detail(c, http.StatusUnauthorized, "Incorrect email or password")
		return
	}

	tok := AccessToken{Value: uuid.NewString(), UserID: u.ID}
	if err := s.db.Create(&tok).Error; err != nil {
		detail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": tok.Value,
		"user":  userJSON{ID: u.ID, Email: u.Email},
	})
}

func (s *Server) handleMe(c *gin.Context) {
	var u User
	if err := s.db.First(&u, c.GetUint(userIDKey)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			detail(c, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		detail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, userJSON{ID: u.ID, Email: u.Email})
}

func (s *Server) handleChat(c *gin.Context) {
	var in chatRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		detail(c, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(in.Message) == "" {
		detail(c, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := s.responder.Respond(c.Request.Context(), in.Message)
	if err != nil {
		logx.Error().Err(err).Msg("devserver: responder failed")
		detail(c, http.StatusInternalServerError, err.Error())
		return
	}

	ex := ChatExchange{
		UserID:      c.GetUint(userIDKey),
		UserMessage: in.Message,
		BotResponse: reply,
		Timestamp:   s.now().UTC(),
	}
	if in.ChatID != nil && *in.ChatID != "" {
		ex.ChatID = *in.ChatID
	} else {
		ex.ChatID = uuid.NewString()
		title := titleFor(in.Message)
		ex.Title = &title
	}
	if err := s.db.Create(&ex).Error; err != nil {
		detail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": reply, "chat_id": ex.ChatID})
}

func (s *Server) handleConversation(c *gin.Context) {
	var rows []ChatExchange
	err := s.db.Where("user_id = ? AND chat_id = ?", c.GetUint(userIDKey), c.Param("id")).
		Order("timestamp, id").
		Find(&rows).Error
	if err != nil {
		detail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if len(rows) == 0 {
		detail(c, http.StatusNotFound, "Chat not found")
		return
	}
	out := make([]exchangeJSON, 0, len(rows))
	for _, r := range rows {
		out = append(out, toExchangeJSON(r))
	}
	c.JSON(http.StatusOK, out)
}

// handleHistory returns one entry per conversation, newest activity first,
// carrying the conversation's first message and title.
func (s *Server) handleHistory(c *gin.Context) {
	var rows []ChatExchange
	err := s.db.Where("user_id = ?", c.GetUint(userIDKey)).
		Order("timestamp, id").
		Find(&rows).Error
	if err != nil {
		detail(c, http.StatusInternalServerError, err.Error())
		return
	}

	first := make(map[string]ChatExchange)
	latest := make(map[string]time.Time)
	var order []string
	for _, r := range rows {
		if _, ok := first[r.ChatID]; !ok {
			first[r.ChatID] = r
		}
		latest[r.ChatID] = r.Timestamp
		// Move to the end so order ends up sorted by latest activity.
		order = appendMoved(order, r.ChatID)
	}

	out := make([]exchangeJSON, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		e := toExchangeJSON(first[order[i]])
		e.Timestamp = latest[order[i]].UTC()
		out = append(out, e)
	}
	c.JSON(http.StatusOK, out)
}

func appendMoved(order []string, id string) []string {
	for i, v := range order {
		if v == id {
			order = append(order[:i], order[i+1:]...)
			break
		}
	}
	return append(order, id)
}

func toExchangeJSON(r ChatExchange) exchangeJSON {
	return exchangeJSON{
		ChatID:      r.ChatID,
		Title:       r.Title,
		UserMessage: r.UserMessage,
		BotResponse: r.BotResponse,
		Timestamp:   r.Timestamp.UTC(),
	}
}

// titleFor is the history title of a conversation started with msg.
func titleFor(msg string) string {
	r := []rune(msg)
	if len(r) > maxTitleRunes {
		return string(r[:maxTitleRunes]) + "..."
	}
	return msg
}
