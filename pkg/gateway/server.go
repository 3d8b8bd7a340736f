package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/haivivi/voicegate/pkg/wyoming"
)

// Server accepts inbound protocol connections and runs one Session per
// connection. Session failures, protocol errors included, never take
// down the listener.
type Server struct {
	verifier Verifier
	relay    Transcriber
	logger   *slog.Logger
	monitor  *Monitor
	info     wyoming.Info
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMonitor attaches a verdict monitor.
func WithMonitor(m *Monitor) ServerOption {
	return func(s *Server) { s.monitor = m }
}

// WithServerLogger sets the logger. Default: slog.Default().
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithInfo sets the service description returned to describe events.
func WithInfo(info wyoming.Info) ServerOption {
	return func(s *Server) { s.info = info }
}

// NewServer creates a Server around the verification stack and the
// upstream relay.
func NewServer(verifier Verifier, relay Transcriber, opts ...ServerOption) *Server {
	s := &Server{
		verifier: verifier,
		relay:    relay,
		logger:   slog.Default(),
		info: wyoming.Info{
			ASR: []wyoming.ASRProgram{{
				Name:        "voicegate",
				Description: "speaker-verifying recognition gateway",
				Installed:   true,
			}},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve accepts connections on ln until ctx is done or the listener
// fails. It closes the listener on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	id := uuid.NewString()[:8]
	logger := s.logger.With("session", id, "remote", conn.RemoteAddr().String())
	logger.Debug("connection accepted")

	defer func() {
		if r := recover(); r != nil {
			logger.Error("session panicked", "panic", r)
		}
	}()

	sess := newSession(id, s.verifier, s.relay, wyoming.NewWriter(conn), s.info, s.monitor, s.logger)
	if err := sess.run(ctx, wyoming.NewReader(conn)); err != nil {
		if errors.Is(err, wyoming.ErrProtocol) {
			logger.Warn("protocol error, dropping connection", "err", err)
		} else if ctx.Err() == nil {
			logger.Warn("session failed", "err", err)
		}
		return
	}
	logger.Debug("connection closed")
}
