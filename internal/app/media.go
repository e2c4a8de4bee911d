package app

import (
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/domain"
)

// MediaSession is one bound datagram endpoint. Identity is the endpoint;
// the link back to the control session is by id and username, never by
// object reference, so a rebind from a new port stays transparent.
type MediaSession struct {
	Addr      *net.UDPAddr
	Username  string
	SessionID domain.SessionID

	mu            sync.Mutex
	lastHeartbeat time.Time
}

func (m *MediaSession) Touch() {
	m.mu.Lock()
	m.lastHeartbeat = time.Now()
	m.mu.Unlock()
}

func (m *MediaSession) LastHeartbeat() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeartbeat
}

// MediaTable owns every media session, keyed by endpoint with a username
// index for the relay.
type MediaTable struct {
	mu     sync.RWMutex
	byAddr map[string]*MediaSession
	byUser map[string]*MediaSession
}

func NewMediaTable() *MediaTable {
	return &MediaTable{
		byAddr: make(map[string]*MediaSession),
		byUser: make(map[string]*MediaSession),
	}
}

// Bind installs a validated session for the endpoint. Any previous entry for
// the same username (an old port after a client network cycle) is dropped so
// the username index always points at the latest endpoint.
func (t *MediaTable) Bind(addr *net.UDPAddr, username string, sid domain.SessionID) *MediaSession {
	s := &MediaSession{
		Addr:          addr,
		Username:      username,
		SessionID:     sid,
		lastHeartbeat: time.Now(),
	}
	t.mu.Lock()
	if old, ok := t.byUser[username]; ok {
		delete(t.byAddr, old.Addr.String())
	}
	t.byAddr[addr.String()] = s
	t.byUser[username] = s
	t.mu.Unlock()
	log.Info().Str("module", "app.media").Str("addr", addr.String()).Str("user", username).Msg("media session bound")
	return s
}

func (t *MediaTable) Lookup(addr *net.UDPAddr) (*MediaSession, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byAddr[addr.String()]
	return s, ok
}

func (t *MediaTable) ByUsername(username string) (*MediaSession, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byUser[username]
	return s, ok
}

func (t *MediaTable) Remove(addr *net.UDPAddr) (*MediaSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byAddr[addr.String()]
	if !ok {
		return nil, false
	}
	delete(t.byAddr, addr.String())
	if cur, ok := t.byUser[s.Username]; ok && cur == s {
		delete(t.byUser, s.Username)
	}
	log.Info().Str("module", "app.media").Str("addr", addr.String()).Str("user", s.Username).Msg("media session removed")
	return s, true
}

func (t *MediaTable) RemoveByUsername(username string) (*MediaSession, bool) {
	t.mu.RLock()
	s, ok := t.byUser[username]
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return t.Remove(s.Addr)
}

func (t *MediaTable) Snapshot() []*MediaSession {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*MediaSession, 0, len(t.byAddr))
	for _, s := range t.byAddr {
		out = append(out, s)
	}
	return out
}
