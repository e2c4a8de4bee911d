package app

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
	"github.com/dkeye/parley/internal/protocol"
)

// ControlSession is the server-side record of one reliable connection. The
// connection's read loop is the only packet producer, but the liveness sweep
// reads these fields concurrently, so they sit behind a mutex.
type ControlSession struct {
	ID   domain.SessionID
	Conn core.ControlConn

	mu             sync.Mutex
	state          domain.SessionState
	username       string
	elevated       bool
	currentChannel domain.ChannelID
	lastHeartbeat  time.Time
	negotiated     bool
}

func NewControlSession(conn core.ControlConn) *ControlSession {
	return &ControlSession{
		ID:            domain.SessionID(uuid.NewString()),
		Conn:          conn,
		state:         domain.StateVersionExchange,
		lastHeartbeat: time.Now(),
	}
}

func (s *ControlSession) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ControlSession) SetState(st domain.SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// markDisconnected flips the session to Disconnected exactly once.
func (s *ControlSession) markDisconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.StateDisconnected {
		return false
	}
	s.state = domain.StateDisconnected
	return true
}

func (s *ControlSession) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

func (s *ControlSession) Elevated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elevated
}

func (s *ControlSession) SetElevated(v bool) {
	s.mu.Lock()
	s.elevated = v
	s.mu.Unlock()
}

func (s *ControlSession) CurrentChannel() domain.ChannelID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentChannel
}

func (s *ControlSession) SetCurrentChannel(id domain.ChannelID) {
	s.mu.Lock()
	s.currentChannel = id
	s.mu.Unlock()
}

func (s *ControlSession) TouchHeartbeat() {
	s.mu.Lock()
	s.lastHeartbeat = time.Now()
	s.mu.Unlock()
}

func (s *ControlSession) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat
}

func (s *ControlSession) Negotiated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.negotiated
}

func (s *ControlSession) SetNegotiated() {
	s.mu.Lock()
	s.negotiated = true
	s.mu.Unlock()
}

// SessionTable tracks every live control session.
type SessionTable struct {
	mu   sync.RWMutex
	byID map[domain.SessionID]*ControlSession
}

func NewSessionTable() *SessionTable {
	return &SessionTable{byID: make(map[domain.SessionID]*ControlSession)}
}

func (t *SessionTable) Add(s *ControlSession) {
	t.mu.Lock()
	t.byID[s.ID] = s
	t.mu.Unlock()
	log.Info().Str("module", "app.sessions").Str("sid", string(s.ID)).Msg("session added")
}

func (t *SessionTable) Remove(id domain.SessionID) {
	t.mu.Lock()
	delete(t.byID, id)
	t.mu.Unlock()
	log.Info().Str("module", "app.sessions").Str("sid", string(id)).Msg("session removed")
}

func (t *SessionTable) Get(id domain.SessionID) (*ControlSession, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byID[id]
	return s, ok
}

func (t *SessionTable) ByUsername(name string) (*ControlSession, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.byID {
		if s.Username() == name {
			return s, true
		}
	}
	return nil, false
}

// ClaimUsername atomically checks for duplicates and assigns the name, so
// two sessions racing on authentication cannot both win it.
func (t *SessionTable) ClaimUsername(s *ControlSession, name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, other := range t.byID {
		if other != s && other.Username() == name {
			return false
		}
	}
	s.mu.Lock()
	s.username = name
	s.mu.Unlock()
	return true
}

func (t *SessionTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

func (t *SessionTable) Snapshot() []*ControlSession {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*ControlSession, 0, len(t.byID))
	for _, s := range t.byID {
		out = append(out, s)
	}
	return out
}

// Broadcast sends p to every session except the listed ones. Sends happen
// on a snapshot, outside the table lock.
func (t *SessionTable) Broadcast(p protocol.Packet, except ...domain.SessionID) {
	skip := make(map[domain.SessionID]struct{}, len(except))
	for _, id := range except {
		skip[id] = struct{}{}
	}
	for _, s := range t.Snapshot() {
		if _, ok := skip[s.ID]; ok {
			continue
		}
		if err := s.Conn.TrySend(p); err != nil {
			log.Debug().Err(err).Str("module", "app.sessions").Str("sid", string(s.ID)).Msg("broadcast send failed")
		}
	}
}
