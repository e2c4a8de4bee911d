// Package tcp is the control-plane transport: a framed stream per client
// feeding the app-level state machine in strict arrival order.
package tcp

import (
	"bufio"
	"context"
	"errors"
	"net"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/app"
	"github.com/dkeye/parley/internal/protocol"
)

type Server struct {
	Handler *app.Handler

	ln net.Listener
}

func NewServer(h *app.Handler) *Server {
	return &Server{Handler: h}
}

func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	log.Info().Str("module", "adapters.tcp").Str("addr", addr).Msg("control transport listening")
	return nil
}

// Run accepts connections until ctx is done.
func (s *Server) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("module", "adapters.tcp").Msg("accept failed")
			continue
		}
		go s.handleConn(conn)
	}
}

// handleConn is the per-connection worker: it owns the read side and is the
// session's only packet producer, which gives the state machine its
// in-order, non-reentrant processing.
func (s *Server) handleConn(conn net.Conn) {
	cc := newControlConn(conn)
	sess := s.Handler.OnConnect(cc)
	log.Info().Str("module", "adapters.tcp").Str("sid", string(sess.ID)).Str("remote", conn.RemoteAddr().String()).Msg("connection accepted")

	r := bufio.NewReader(conn)
	for {
		pkt, err := protocol.ReadFrame(r)
		if err != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				// The stream is still aligned; the frame is just garbage
				// for its declared kind. Log and keep reading.
				log.Warn().Err(decodeErr).Str("module", "adapters.tcp").Str("sid", string(sess.ID)).Uint32("kind", uint32(decodeErr.Packet)).Msg("malformed frame")
				continue
			}
			log.Info().Err(err).Str("module", "adapters.tcp").Str("sid", string(sess.ID)).Msg("connection closed")
			s.Handler.Teardown(sess)
			return
		}
		s.Handler.HandlePacket(sess, pkt)
	}
}
