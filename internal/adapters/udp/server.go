// Package udp is the media-plane transport: one datagram socket shared by
// every endpoint, dispatching into the media session table and voice relay.
package udp

import (
	"context"
	"net"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/app"
	"github.com/dkeye/parley/internal/protocol"
)

// maxDatagramSize comfortably covers a voice frame plus header.
const maxDatagramSize = 64 * 1024

type Server struct {
	Media *app.MediaHandler

	conn *net.UDPConn
}

func NewServer() *Server {
	return &Server{}
}

func (s *Server) Listen(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	s.conn = conn
	log.Info().Str("module", "adapters.udp").Str("addr", addr).Msg("media transport listening")
	return nil
}

// SendTo implements core.MediaSender.
func (s *Server) SendTo(addr *net.UDPAddr, p protocol.Packet) error {
	buf, err := protocol.Encode(p)
	if err != nil {
		return err
	}
	_, err = s.conn.WriteToUDP(buf, addr)
	return err
}

// Run reads datagrams until ctx is done. Decode failures are logged with
// the raw kind id and dropped; one bad peer cannot affect the loop.
func (s *Server) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()
	buf := make([]byte, maxDatagramSize)
	for {
		n, raddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("module", "adapters.udp").Msg("read failed")
			continue
		}
		pkt, err := protocol.DecodeDatagram(buf[:n])
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.udp").Str("remote", raddr.String()).Msg("malformed datagram")
			continue
		}
		s.Media.HandlePacket(raddr, pkt)
	}
}
