package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/austindbirch/harbor_mail/internal/logging"
)

// Server wraps the HTTP listen/serve/drain lifecycle. The bind outcome is
// reported exactly once, from Start's return value: the listener is opened
// synchronously, so by the time Start returns nil the port is held. Errors
// after that point are logged, never resurfaced, and never retried.
type Server struct {
	addr    string
	httpSrv *http.Server
	logger  *logging.Logger
}

// NewServer builds a Server for the given address and handler.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{
		addr: addr,
		httpSrv: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		logger: logging.New("harbormail-http"),
	}
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.logger.Plain().WithField("addr", s.addr).Info("api server listening")
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Plain().WithError(err).Error("api server stopped serving")
		}
	}()
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight
// requests to finish, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
