package app

import (
	"net"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/protocol"
)

// MediaHandler dispatches inbound datagrams: binding, heartbeats, voice
// fan-out and explicit disconnects.
type MediaHandler struct {
	Sessions *SessionTable
	Channels *ChannelRegistry
	Table    *MediaTable
	Sender   core.MediaSender

	// Loopback disables self-exclusion in the voice fan-out (echo testing).
	Loopback bool
}

func NewMediaHandler(sessions *SessionTable, channels *ChannelRegistry, table *MediaTable, sender core.MediaSender) *MediaHandler {
	return &MediaHandler{
		Sessions: sessions,
		Channels: channels,
		Table:    table,
		Sender:   sender,
	}
}

// HandlePacket processes one decoded datagram from addr.
func (m *MediaHandler) HandlePacket(addr *net.UDPAddr, p protocol.Packet) {
	known, bound := m.Table.Lookup(addr)
	if !bound {
		// An unknown endpoint may only authenticate.
		if auth, ok := p.(*protocol.MediaAuthentication); ok {
			m.bind(addr, auth)
		}
		return
	}
	switch pkt := p.(type) {
	case *protocol.MediaAuthentication:
		// Re-authentication from a known endpoint is a rebind: drop the
		// stale entry, then validate as if new. Channel membership is
		// keyed by username, so it survives untouched.
		m.Table.Remove(addr)
		log.Info().Str("module", "app.mediahandler").Str("addr", addr.String()).Str("user", pkt.Username).Msg("media rebind")
		m.bind(addr, pkt)
	case *protocol.MediaHeartbeat:
		if known.Username == pkt.Username {
			known.Touch()
		}
	case *protocol.VoiceData:
		if known.Username == pkt.Username {
			m.relayVoice(known, pkt.Data)
		}
	case *protocol.MediaDisconnect:
		if known.Username == pkt.Username {
			m.disconnect(known)
		}
	default:
		log.Debug().Str("module", "app.mediahandler").Str("addr", addr.String()).Uint32("kind", uint32(p.Kind())).Msg("unhandled media packet kind")
	}
}

// bind validates the claimed control session and installs the endpoint.
func (m *MediaHandler) bind(addr *net.UDPAddr, auth *protocol.MediaAuthentication) {
	sess, ok := m.Sessions.Get(auth.SessionID)
	if !ok || sess.Username() != auth.Username {
		log.Warn().Str("module", "app.mediahandler").Str("addr", addr.String()).Str("user", auth.Username).Msg("media auth rejected")
		return
	}
	m.Table.Bind(addr, auth.Username, auth.SessionID)
	if err := m.Sender.SendTo(addr, &protocol.MediaConnected{Username: auth.Username}); err != nil {
		log.Debug().Err(err).Str("module", "app.mediahandler").Str("addr", addr.String()).Msg("connected notice send failed")
	}
}

// disconnect handles an explicit media-disconnect notice: leave the channel
// with a departure broadcast and drop the table entry.
func (m *MediaHandler) disconnect(s *MediaSession) {
	if chID, ok := m.Channels.Leave(s.Username); ok {
		m.Sessions.Broadcast(&protocol.ChannelUserDisconnected{ChannelID: chID, Username: s.Username})
	}
	if sess, ok := m.Sessions.Get(s.SessionID); ok {
		sess.SetCurrentChannel("")
	}
	m.Table.Remove(s.Addr)
}
