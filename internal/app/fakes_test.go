package app

import (
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/parley/internal/domain"
	"github.com/dkeye/parley/internal/protocol"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   []protocol.Packet
	closed bool
}

func (f *fakeConn) TrySend(p protocol.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("connection closed")
	}
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) packets() []protocol.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Packet, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeConn) kinds() []protocol.Kind {
	out := []protocol.Kind{}
	for _, p := range f.packets() {
		out = append(out, p.Kind())
	}
	return out
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

// lastDisconnect returns the reason of the last disconnect notice, if any.
func (f *fakeConn) lastDisconnect() (string, bool) {
	pkts := f.packets()
	for i := len(pkts) - 1; i >= 0; i-- {
		if d, ok := pkts[i].(*protocol.Disconnect); ok {
			return d.Reason, true
		}
	}
	return "", false
}

type fakePersister struct {
	mu       sync.Mutex
	messages []*domain.ChannelMessage
	channels []*domain.Channel
	deleted  []domain.ChannelID
}

func (f *fakePersister) SaveMessage(m *domain.ChannelMessage) {
	f.mu.Lock()
	f.messages = append(f.messages, m)
	f.mu.Unlock()
}

func (f *fakePersister) SaveChannel(ch *domain.Channel) {
	f.mu.Lock()
	f.channels = append(f.channels, ch)
	f.mu.Unlock()
}

func (f *fakePersister) DeleteChannel(id domain.ChannelID) {
	f.mu.Lock()
	f.deleted = append(f.deleted, id)
	f.mu.Unlock()
}

type fakeSender struct {
	mu   sync.Mutex
	sent map[string][]protocol.Packet
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[string][]protocol.Packet)}
}

func (f *fakeSender) SendTo(addr *net.UDPAddr, p protocol.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[addr.String()] = append(f.sent[addr.String()], p)
	return nil
}

func (f *fakeSender) packetsFor(addr *net.UDPAddr) []protocol.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Packet, len(f.sent[addr.String()]))
	copy(out, f.sent[addr.String()])
	return out
}

const testPrivilegeKey = "super-secret"

func newTestHandler(maxClients int) (*Handler, *fakePersister) {
	h := NewHandler(NewSessionTable(), NewChannelRegistry(), NewMediaTable(), NewServerInfo("Test Server", maxClients), &fakePersister{})
	h.PrivilegeKey = testPrivilegeKey
	return h, h.Store.(*fakePersister)
}

// connectClient walks a fresh session through the full handshake and clears
// the negotiation packets so assertions see only what the test triggers.
func connectClient(t *testing.T, h *Handler, username, key string) (*ControlSession, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	s := h.OnConnect(conn)
	h.HandlePacket(s, &protocol.VersionExchange{Version: Version})
	h.HandlePacket(s, &protocol.AuthenticationData{Username: username, PrivilegeKey: key})
	require.Equal(t, domain.StateConnected, s.State())
	require.True(t, s.Negotiated())
	conn.reset()
	return s, conn
}

var nextPort = 40000

func testAddr() *net.UDPAddr {
	nextPort++
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: nextPort}
}

func addVoiceChannel(t *testing.T, h *Handler, name string, maxClients int) *domain.Channel {
	t.Helper()
	ch, err := domain.NewChannel(name, domain.ChannelVoice, domain.MinBitrate, 0, maxClients)
	require.NoError(t, err)
	h.Channels.Add(ch)
	return ch
}

func addTextChannel(t *testing.T, h *Handler, name string) *domain.Channel {
	t.Helper()
	ch, err := domain.NewChannel(name, domain.ChannelText, 0, 0, 16)
	require.NoError(t, err)
	h.Channels.Add(ch)
	return ch
}

func bindMedia(h *Handler, s *ControlSession) *MediaSession {
	return h.Media.Bind(testAddr(), s.Username(), s.ID)
}

func joinChannel(t *testing.T, h *Handler, s *ControlSession, conn *fakeConn, id domain.ChannelID) {
	t.Helper()
	h.HandlePacket(s, &protocol.RequestChannelJoin{RequestID: "join-req", ChannelID: id})
	var resp *protocol.ChannelJoinResponse
	for _, p := range conn.packets() {
		if r, ok := p.(*protocol.ChannelJoinResponse); ok {
			resp = r
		}
	}
	require.NotNil(t, resp)
	require.True(t, resp.Allowed, "join denied: %s", resp.Reason)
	conn.reset()
}
