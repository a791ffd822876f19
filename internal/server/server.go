package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"roomchat/internal/auth"
	"roomchat/internal/room"
)

// Server defines fields used in HTTP processing
type Server struct {
	logger        *zap.SugaredLogger
	httpServer    *http.Server
	afterShutdown []func()
	h             handler
}

// NewServer returns new Server struct exposing the room over HTTP and websocket
func NewServer(logger *zap.SugaredLogger, creds *auth.Service, rm *room.Room, opts ...Option) (*Server, error) {
	srv := &Server{
		logger: logger,
		h:      newHandler(logger, creds, rm),
	}

	mux := http.NewServeMux()
	mux.Handle("/users/register", enforcePOSTJSON(http.HandlerFunc(srv.h.register)))
	mux.Handle("/users/login", enforcePOSTJSON(http.HandlerFunc(srv.h.login)))
	mux.Handle("/messages/send", enforcePOSTJSON(http.HandlerFunc(srv.h.sendMessage)))
	mux.Handle("/messages/get", enforcePOSTJSON(http.HandlerFunc(srv.h.getMessages)))
	mux.Handle("/messages/clear", enforcePOSTJSON(http.HandlerFunc(srv.h.clearMessages)))
	mux.Handle("/room/ws", http.HandlerFunc(srv.h.serveWS))

	cfg := &config{
		httpServer: &http.Server{
			Addr:    "0.0.0.0:9000",
			Handler: log(mux, logger.Desugar()),
		},
	}

	for _, opt := range opts {
		opt.apply(cfg)
	}

	srv.httpServer = cfg.httpServer
	srv.afterShutdown = cfg.afterShutdown

	return srv, nil
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and implements graceful shutdown via goroutine waiting for signals
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		s.logger.Info("Shutting down HTTP server")

		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	for _, f := range s.afterShutdown {
		f()
	}

	return nil
}
