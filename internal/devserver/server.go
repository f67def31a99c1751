// Package devserver is a local stand-in for the product-assistant backend.
// It serves the six endpoints the client uses, keeps accounts and
// conversations in sqlite, and answers chat messages from a Responder.
package devserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the dev server.
type StartOpts struct {
	DB        *gorm.DB
	Port      int
	Out       io.Writer
	Responder Responder
}

// Server is the stand-in backend.
type Server struct {
	db        *gorm.DB
	responder Responder
	now       func() time.Time
	router    *gin.Engine
}

// New builds a Server over db. A nil responder answers from the seeded
// catalog.
func New(db *gorm.DB, responder Responder) (*Server, error) {
	if db == nil {
		return nil, fmt.Errorf("devserver: db is required")
	}
	if responder == nil {
		responder = NewCatalogResponder(db)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{db: db, responder: responder, now: time.Now, router: router}
	s.registerRoutes()
	return s, nil
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start launches the dev server. It blocks until ctx is cancelled, then shuts
// down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8000
	}
	s, err := New(opts.DB, opts.Responder)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dev backend running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("devserver: %w", err)
	}
	return nil
}
