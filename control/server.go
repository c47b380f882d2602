package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
)

// Server accepts local-socket connections and delivers decoded commands to a
// sink. Multiple concurrent senders are allowed; each connection is a stream
// of length-prefixed commands.
type Server struct {
	log  *slog.Logger
	path string
	sink func(Command)
}

// NewServer creates a control server listening on the unix socket at path,
// delivering each valid command to sink. If log is nil, slog.Default() is
// used.
func NewServer(path string, sink func(Command), log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:  log.With("component", "control-server"),
		path: path,
		sink: sink,
	}
}

// Start begins accepting connections. It blocks until the context is
// cancelled, then removes the socket file.
func (s *Server) Start(ctx context.Context) error {
	// A previous unclean shutdown may have left the socket file behind.
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("control: remove stale socket %s: %w", s.path, err)
	}

	l, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("control: listen on %s: %w", s.path, err)
	}
	s.log.Info("listening", "socket", s.path)

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		cmd, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.log.Warn("connection error", "error", err)
			}
			return
		}
		s.log.Debug("command received", "type", cmd.Type)
		s.sink(cmd)
	}
}
