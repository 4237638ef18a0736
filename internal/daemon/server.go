package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/andrelcx/wamon/internal/api"
	"github.com/andrelcx/wamon/internal/session"
)

// Server manages the HTTP server lifecycle for a session daemon. It serves
// over the session's Unix domain socket, so filesystem permissions are the
// whole access-control story.
type Server struct {
	echo       *echo.Echo
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates an HTTP server bound to the session's Unix domain socket.
func NewServer(p Params, logger *zap.Logger, svc *api.Service) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = session.SocketPath(p.SessionName)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	svc.Register(e)

	return &Server{
		echo:       e,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start begins serving HTTP requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("socket", s.socketPath))
	s.echo.Listener = s.listener
	err := s.echo.Start("")
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	if err := s.echo.Shutdown(ctx); err != nil {
		s.logger.Warn("shutdown error", zap.Error(err))
	}
	_ = os.Remove(s.socketPath)
}
