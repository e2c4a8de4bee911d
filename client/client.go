// Package client is the library side of the protocol: a reliable control
// connection with a request correlator, plus the datagram voice link bound
// to it.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/domain"
	"github.com/dkeye/parley/internal/protocol"
)

// Version must match the server's or the connection is refused.
const Version = "1.0.0"

const (
	connectTimeout    = 5 * time.Second
	joinTimeout       = 5 * time.Second
	messagesTimeout   = 15 * time.Second
	establishTimeout  = 5 * time.Second
	heartbeatInterval = 5 * time.Second
	eventBuffer       = 64
	voiceBuffer       = 256
)

var (
	ErrNotConnected = errors.New("client is not connected")
	ErrDisconnected = errors.New("server closed the session")
)

type Options struct {
	// PrivilegeKey, when non-empty, requests elevated permissions.
	PrivilegeKey string
}

type Client struct {
	addr     string
	username string
	opts     Options

	conn net.Conn
	wmu  sync.Mutex

	media   *mediaLink
	pending *pending

	events chan protocol.Packet
	voice  chan *protocol.VoiceDataMulticast

	mu         sync.Mutex
	sessionID  domain.SessionID
	serverName string
	maxClients int
	elevated   bool
	channels   map[domain.ChannelID]*protocol.ChannelAdded
	lastReason string

	negotiated  chan struct{}
	negotiateMu sync.Once
	done        chan struct{}
	closeMu     sync.Once
}

func New(addr, username string, opts Options) *Client {
	return &Client{
		addr:       addr,
		username:   username,
		opts:       opts,
		pending:    newPending(),
		events:     make(chan protocol.Packet, eventBuffer),
		voice:      make(chan *protocol.VoiceDataMulticast, voiceBuffer),
		channels:   make(map[domain.ChannelID]*protocol.ChannelAdded),
		negotiated: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Connect dials the control transport, runs the handshake through
// negotiation-finished, then binds the media transport to the session.
func (c *Client) Connect(ctx context.Context) error {
	d := net.Dialer{Timeout: connectTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dial control transport: %w", err)
	}
	c.conn = conn
	go c.readLoop()

	if err := c.send(&protocol.VersionExchange{Version: Version}); err != nil {
		c.Close()
		return err
	}
	select {
	case <-c.negotiated:
	case <-c.done:
		c.Close()
		return fmt.Errorf("%w: %s", ErrDisconnected, c.LastDisconnectReason())
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	}

	if err := c.connectMedia(ctx); err != nil {
		c.Close()
		return err
	}
	go c.heartbeatLoop()
	log.Info().Str("module", "client").Str("addr", c.addr).Str("user", c.username).Msg("connected")
	return nil
}

// Close tears both transports down. A connected client first sends the
// media disconnect notice so the server releases the binding immediately.
func (c *Client) Close() {
	c.closeMu.Do(func() {
		close(c.done)
		if c.media != nil {
			_ = c.media.send(&protocol.MediaDisconnect{Username: c.username})
			c.media.close()
		}
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// Done is closed once the client is torn down, locally or by the server.
func (c *Client) Done() <-chan struct{} { return c.done }

// Events delivers server packets that are not responses to an outstanding
// request. Slow consumers lose events rather than stalling the read loop.
func (c *Client) Events() <-chan protocol.Packet { return c.events }

// Voice delivers the media fan-out packets for the current channel.
func (c *Client) Voice() <-chan *protocol.VoiceDataMulticast { return c.voice }

func (c *Client) SessionID() domain.SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) ServerInfo() (name string, maxClients int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverName, c.maxClients
}

func (c *Client) Elevated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elevated
}

func (c *Client) LastDisconnectReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReason
}

// Channels returns the client's view of the channel list, ordered by rank.
func (c *Client) Channels() []*protocol.ChannelAdded {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*protocol.ChannelAdded, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// JoinChannel asks to join and waits for the verdict. A nil response means
// the server gave no answer within the wait, not that it said no.
func (c *Client) JoinChannel(channelID domain.ChannelID) (*protocol.ChannelJoinResponse, error) {
	id := uuid.NewString()
	ch := c.pending.register(id)
	if err := c.send(&protocol.RequestChannelJoin{RequestID: id, ChannelID: channelID}); err != nil {
		c.pending.drop(id)
		return nil, err
	}
	pkt := c.pending.await(id, ch, joinTimeout)
	if pkt == nil {
		return nil, nil
	}
	resp, _ := pkt.(*protocol.ChannelJoinResponse)
	return resp, nil
}

// RequestMessages fetches one fixed-size page of a text channel's history,
// newest first. Nil means no answer within the wait.
func (c *Client) RequestMessages(channelID domain.ChannelID, page int) (*protocol.ChannelMessagesResponse, error) {
	id := uuid.NewString()
	ch := c.pending.register(id)
	if err := c.send(&protocol.RequestChannelMessages{RequestID: id, ChannelID: channelID, Page: page}); err != nil {
		c.pending.drop(id)
		return nil, err
	}
	pkt := c.pending.await(id, ch, messagesTimeout)
	if pkt == nil {
		return nil, nil
	}
	resp, _ := pkt.(*protocol.ChannelMessagesResponse)
	return resp, nil
}

// VoiceEstablish probes whether the server will relay voice for us right
// now (it will not before a channel join). Nil means no answer within the wait.
func (c *Client) VoiceEstablish() (*protocol.VoiceEstablishResponse, error) {
	id := uuid.NewString()
	ch := c.pending.register(id)
	if err := c.send(&protocol.VoiceEstablish{RequestID: id}); err != nil {
		c.pending.drop(id)
		return nil, err
	}
	pkt := c.pending.await(id, ch, establishTimeout)
	if pkt == nil {
		return nil, nil
	}
	resp, _ := pkt.(*protocol.VoiceEstablishResponse)
	return resp, nil
}

func (c *Client) PostMessage(channelID domain.ChannelID, text string) error {
	return c.send(&protocol.PostChannelMessage{ChannelID: channelID, Text: text})
}

func (c *Client) LeaveChannel() error {
	return c.send(&protocol.LeaveChannel{})
}

func (c *Client) CreateChannel(name string, typ domain.ChannelType, bitrate, order, maxClients int) error {
	return c.send(&protocol.CreateChannel{Name: name, Type: typ, Bitrate: bitrate, Order: order, MaxClients: maxClients})
}

func (c *Client) DeleteChannel(id domain.ChannelID) error {
	return c.send(&protocol.DeleteChannel{ChannelID: id})
}

func (c *Client) UpdateServerInfo(name string, maxClients int) error {
	return c.send(&protocol.UpdateServerInfo{Name: name, MaxClients: maxClients})
}

func (c *Client) send(p protocol.Packet) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return protocol.WriteFrame(c.conn, p)
}

func (c *Client) readLoop() {
	r := bufio.NewReader(c.conn)
	for {
		pkt, err := protocol.ReadFrame(r)
		if err != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				log.Warn().Err(decodeErr).Str("module", "client").Msg("malformed frame")
				continue
			}
			c.Close()
			return
		}
		c.handle(pkt)
	}
}

func (c *Client) handle(pkt protocol.Packet) {
	if cp, ok := pkt.(protocol.Correlated); ok && cp.CorrelationID() != "" {
		// Late or duplicate responses for an already-consumed id are
		// dropped, not surfaced as events.
		if !c.pending.resolve(cp.CorrelationID(), pkt) {
			log.Debug().Str("module", "client").Str("request", cp.CorrelationID()).Msg("response without a pending request, dropping")
		}
		return
	}
	switch p := pkt.(type) {
	case *protocol.StateChanged:
		c.onStateChanged(p)
	case *protocol.ServerInfoUpdated:
		c.mu.Lock()
		c.serverName, c.maxClients = p.Name, p.MaxClients
		c.mu.Unlock()
	case *protocol.ChannelAdded:
		c.mu.Lock()
		c.channels[p.ChannelID] = p
		c.mu.Unlock()
	case *protocol.ChannelDeleted:
		c.mu.Lock()
		delete(c.channels, p.ChannelID)
		c.mu.Unlock()
	case *protocol.PermissionsUpdated:
		c.mu.Lock()
		c.elevated = p.HasAllPermissions
		c.mu.Unlock()
	case *protocol.NegotiationFinished:
		c.negotiateMu.Do(func() { close(c.negotiated) })
		return
	case *protocol.Heartbeat:
		return
	case *protocol.Disconnect:
		c.mu.Lock()
		c.lastReason = p.Reason
		c.mu.Unlock()
		log.Info().Str("module", "client").Str("reason", p.Reason).Msg("server disconnected us")
		c.Close()
		return
	}
	select {
	case c.events <- pkt:
	default:
		log.Debug().Str("module", "client").Uint32("kind", uint32(pkt.Kind())).Msg("event buffer full, dropping")
	}
}

func (c *Client) onStateChanged(p *protocol.StateChanged) {
	switch p.NewState {
	case domain.StateAuthenticating:
		_ = c.send(&protocol.AuthenticationData{Username: c.username, PrivilegeKey: c.opts.PrivilegeKey})
	case domain.StateConnected:
		c.mu.Lock()
		c.sessionID = p.SessionID
		c.mu.Unlock()
	}
}

func (c *Client) heartbeatLoop() {
	t := time.NewTicker(heartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			if err := c.send(&protocol.Heartbeat{}); err != nil {
				return
			}
		}
	}
}
