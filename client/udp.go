package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/protocol"
)

const (
	mediaConnectTimeout     = 5 * time.Second
	mediaHeartbeatInterval  = 5 * time.Second
	maxInboundDatagramBytes = 64 * 1024
)

// mediaLink is the datagram leg of a connected client. It is replaced
// wholesale on ReconnectMedia; the server rebinds by session id.
type mediaLink struct {
	conn      *net.UDPConn
	connected chan struct{}

	once    sync.Once
	closeMu sync.Once
	done    chan struct{}
}

func (l *mediaLink) send(p protocol.Packet) error {
	buf, err := protocol.Encode(p)
	if err != nil {
		return err
	}
	_, err = l.conn.Write(buf)
	return err
}

func (l *mediaLink) close() {
	l.closeMu.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
}

// connectMedia dials the datagram socket, authenticates it against the
// control session and waits for the server's connected notice.
func (c *Client) connectMedia(ctx context.Context) error {
	raddr, err := net.ResolveUDPAddr("udp", c.addr)
	if err != nil {
		return fmt.Errorf("resolve media transport: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("dial media transport: %w", err)
	}
	link := &mediaLink{
		conn:      conn,
		connected: make(chan struct{}),
		done:      make(chan struct{}),
	}
	c.media = link
	go c.mediaReadLoop(link)

	if err := link.send(&protocol.MediaAuthentication{Username: c.username, SessionID: c.SessionID()}); err != nil {
		link.close()
		return err
	}
	t := time.NewTimer(mediaConnectTimeout)
	defer t.Stop()
	select {
	case <-link.connected:
	case <-t.C:
		link.close()
		return fmt.Errorf("media transport connect timed out")
	case <-ctx.Done():
		link.close()
		return ctx.Err()
	}
	go c.mediaHeartbeatLoop(link)
	log.Info().Str("module", "client").Str("local", conn.LocalAddr().String()).Msg("media transport bound")
	return nil
}

// ReconnectMedia re-establishes the datagram leg after the local network
// stack cycled ports. Channel membership survives on the server side.
func (c *Client) ReconnectMedia(ctx context.Context) error {
	if old := c.media; old != nil {
		old.close()
	}
	return c.connectMedia(ctx)
}

// SendVoice ships one encoded audio frame to the server for fan-out.
func (c *Client) SendVoice(data []byte) error {
	link := c.media
	if link == nil {
		return ErrNotConnected
	}
	return link.send(&protocol.VoiceData{Username: c.username, Data: data})
}

func (c *Client) mediaReadLoop(link *mediaLink) {
	buf := make([]byte, maxInboundDatagramBytes)
	for {
		n, err := link.conn.Read(buf)
		if err != nil {
			return
		}
		pkt, err := protocol.DecodeDatagram(buf[:n])
		if err != nil {
			log.Debug().Err(err).Str("module", "client").Msg("malformed media datagram")
			continue
		}
		switch p := pkt.(type) {
		case *protocol.MediaConnected:
			link.once.Do(func() { close(link.connected) })
		case *protocol.MediaHeartbeat:
			// Server keep-alive; nothing to do.
		case *protocol.VoiceDataMulticast:
			select {
			case c.voice <- p:
			default:
				// Voice is lossy by nature; drop instead of backing up.
			}
		}
	}
}

func (c *Client) mediaHeartbeatLoop(link *mediaLink) {
	t := time.NewTicker(mediaHeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-link.done:
			return
		case <-t.C:
			if err := link.send(&protocol.MediaHeartbeat{Username: c.username}); err != nil {
				return
			}
		}
	}
}
