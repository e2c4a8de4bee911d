package app

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
	"github.com/dkeye/parley/internal/protocol"
)

// Version is sent in the version exchange; a client with a different value
// is refused.
const Version = "1.0.0"

// ServerInfo is the mutable, broadcastable part of the server identity.
type ServerInfo struct {
	mu         sync.RWMutex
	name       string
	maxClients int
}

func NewServerInfo(name string, maxClients int) *ServerInfo {
	return &ServerInfo{name: name, maxClients: maxClients}
}

func (i *ServerInfo) Get() (name string, maxClients int) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.name, i.maxClients
}

func (i *ServerInfo) Set(name string, maxClients int) {
	i.mu.Lock()
	i.name = name
	i.maxClients = maxClients
	i.mu.Unlock()
}

// Handler drives the control-session state machine. One instance serves all
// sessions; per-session ordering comes from each connection's read loop
// being the only caller for its session.
type Handler struct {
	Sessions *SessionTable
	Channels *ChannelRegistry
	Media    *MediaTable
	Info     *ServerInfo
	Store    core.Persister

	// PrivilegeKey grants elevated permissions on exact, non-empty match.
	PrivilegeKey string
	// SaveInfo persists a server info update; invoked off the packet path.
	SaveInfo func(name string, maxClients int)
}

func NewHandler(sessions *SessionTable, channels *ChannelRegistry, media *MediaTable, info *ServerInfo, store core.Persister) *Handler {
	return &Handler{
		Sessions: sessions,
		Channels: channels,
		Media:    media,
		Info:     info,
		Store:    store,
	}
}

// OnConnect registers a fresh session for a newly accepted connection.
func (h *Handler) OnConnect(conn core.ControlConn) *ControlSession {
	s := NewControlSession(conn)
	h.Sessions.Add(s)
	return s
}

// HandlePacket advances the session's state machine with one inbound packet.
func (h *Handler) HandlePacket(s *ControlSession, p protocol.Packet) {
	switch s.State() {
	case domain.StateVersionExchange:
		h.handleVersionExchange(s, p)
	case domain.StateAuthenticating:
		h.handleAuthenticating(s, p)
	case domain.StateConnected:
		h.handleConnected(s, p)
	case domain.StateDisconnected:
		// Packets racing a teardown are dropped.
	}
}

// reject sends a disconnect notice with a user-visible reason, then tears
// the session down.
func (h *Handler) reject(s *ControlSession, reason string) {
	if err := s.Conn.TrySend(&protocol.Disconnect{Reason: reason}); err != nil {
		log.Debug().Err(err).Str("module", "app.handler").Str("sid", string(s.ID)).Msg("disconnect notice send failed")
	}
	log.Info().Str("module", "app.handler").Str("sid", string(s.ID)).Str("reason", reason).Msg("session rejected")
	s.Conn.Close()
	h.Teardown(s)
}

// Teardown releases everything the session holds: channel membership (with
// a departure broadcast), its media binding and its table entry. Safe to
// call twice; only the first call acts.
func (h *Handler) Teardown(s *ControlSession) {
	if !s.markDisconnected() {
		return
	}
	username := s.Username()
	if username != "" {
		if chID, ok := h.Channels.Leave(username); ok {
			s.SetCurrentChannel("")
			h.Sessions.Broadcast(&protocol.ChannelUserDisconnected{ChannelID: chID, Username: username}, s.ID)
		}
		h.Media.RemoveByUsername(username)
	}
	h.Sessions.Remove(s.ID)
	s.Conn.Close()
}

func (h *Handler) handleVersionExchange(s *ControlSession, p protocol.Packet) {
	if _, ok := p.(*protocol.ServerQuery); ok {
		// Query clients are answered and dropped without authenticating.
		name, maxClients := h.Info.Get()
		h.Sessions.Remove(s.ID)
		if err := s.Conn.TrySend(&protocol.ServerQueryResponse{
			ServerName:       name,
			ServerVersion:    Version,
			ClientsConnected: h.Sessions.Count(),
			MaxClients:       maxClients,
		}); err != nil {
			log.Debug().Err(err).Str("module", "app.handler").Msg("query response send failed")
		}
		s.markDisconnected()
		s.Conn.Close()
		log.Info().Str("module", "app.handler").Str("sid", string(s.ID)).Msg("query client served")
		return
	}
	ve, ok := p.(*protocol.VersionExchange)
	if !ok {
		h.reject(s, fmt.Sprintf("Invalid packet received at state %s", s.State()))
		return
	}
	if ve.Version != Version {
		h.reject(s, fmt.Sprintf("Client version %s doesn't match server version %s", ve.Version, Version))
		return
	}
	s.SetState(domain.StateAuthenticating)
	_ = s.Conn.TrySend(&protocol.StateChanged{NewState: domain.StateAuthenticating})
}

func (h *Handler) handleAuthenticating(s *ControlSession, p protocol.Packet) {
	auth, ok := p.(*protocol.AuthenticationData)
	if !ok {
		h.reject(s, fmt.Sprintf("Invalid packet received at state %s", s.State()))
		return
	}
	if !domain.ValidUsername(auth.Username) {
		h.reject(s, "Invalid username")
		return
	}
	if !h.Sessions.ClaimUsername(s, auth.Username) {
		h.reject(s, "Nickname unavailable")
		return
	}
	if auth.PrivilegeKey != "" && auth.PrivilegeKey != h.PrivilegeKey {
		h.reject(s, "Invalid privilege key")
		return
	}
	elevated := auth.PrivilegeKey != "" && auth.PrivilegeKey == h.PrivilegeKey
	s.SetElevated(elevated)

	// The session is admitted first and only then checked against capacity.
	// Other clients may briefly observe it before the eviction.
	s.SetState(domain.StateConnected)
	_ = s.Conn.TrySend(&protocol.StateChanged{NewState: domain.StateConnected, SessionID: s.ID})
	name, maxClients := h.Info.Get()
	if h.Sessions.Count() >= maxClients {
		h.reject(s, "Maximum amount of connected clients reached")
		return
	}
	log.Info().Str("module", "app.handler").Str("sid", string(s.ID)).Str("user", auth.Username).Bool("elevated", elevated).Msg("client authenticated")

	h.Sessions.Broadcast(&protocol.ClientConnected{Username: auth.Username}, s.ID)
	_ = s.Conn.TrySend(&protocol.ServerInfoUpdated{Name: name, MaxClients: maxClients})
	for _, view := range h.Channels.List() {
		ch := view.Channel
		_ = s.Conn.TrySend(&protocol.ChannelAdded{
			ChannelID:  ch.ID,
			Name:       ch.Name,
			Type:       ch.Type,
			Order:      ch.Order,
			MaxClients: ch.MaxClients,
			Bitrate:    ch.Bitrate,
			Clients:    view.Members,
		})
	}
	if elevated {
		_ = s.Conn.TrySend(&protocol.PermissionsUpdated{HasAllPermissions: true})
	}
	_ = s.Conn.TrySend(&protocol.NegotiationFinished{})
	s.TouchHeartbeat()
	s.SetNegotiated()
}

func (h *Handler) handleConnected(s *ControlSession, p protocol.Packet) {
	switch pkt := p.(type) {
	case *protocol.VersionExchange, *protocol.AuthenticationData:
		h.reject(s, fmt.Sprintf("Invalid packet received at state %s", s.State()))
	case *protocol.Heartbeat:
		s.TouchHeartbeat()
	case *protocol.PostChannelMessage:
		h.handlePostMessage(s, pkt)
	case *protocol.RequestChannelMessages:
		h.handleRequestMessages(s, pkt)
	case *protocol.LeaveChannel:
		h.leaveCurrent(s)
	case *protocol.VoiceEstablish:
		_ = s.Conn.TrySend(&protocol.VoiceEstablishResponse{
			RequestID: pkt.RequestID,
			Allowed:   s.CurrentChannel() != "",
		})
	case *protocol.RequestChannelJoin:
		h.handleChannelJoin(s, pkt)
	case *protocol.UpdateServerInfo:
		h.handleUpdateServerInfo(s, pkt)
	case *protocol.CreateChannel:
		h.handleCreateChannel(s, pkt)
	case *protocol.DeleteChannel:
		h.handleDeleteChannel(s, pkt)
	default:
		log.Debug().Str("module", "app.handler").Str("sid", string(s.ID)).Uint32("kind", uint32(p.Kind())).Msg("unhandled packet kind")
	}
}

// handlePostMessage appends a text message. Every failure mode here is a
// silent drop: no response, no disconnect.
func (h *Handler) handlePostMessage(s *ControlSession, p *protocol.PostChannelMessage) {
	if !domain.ValidMessageText(p.Text) {
		return
	}
	msg := domain.NewChannelMessage(p.ChannelID, s.Username(), p.Text)
	if !h.Channels.AppendMessage(msg) {
		return
	}
	h.Sessions.Broadcast(&protocol.ChannelMessageAdded{
		ChannelID:  msg.ChannelID,
		MessageID:  msg.ID,
		SenderName: msg.Username,
		Text:       msg.Text,
	})
	h.Store.SaveMessage(msg)
}

func (h *Handler) handleRequestMessages(s *ControlSession, p *protocol.RequestChannelMessages) {
	msgs, ok := h.Channels.Page(p.ChannelID, p.Page)
	if !ok {
		return
	}
	_ = s.Conn.TrySend(&protocol.ChannelMessagesResponse{
		RequestID: p.RequestID,
		ChannelID: p.ChannelID,
		Messages:  msgs,
	})
}

func (h *Handler) leaveCurrent(s *ControlSession) {
	username := s.Username()
	chID, ok := h.Channels.Leave(username)
	if !ok {
		return
	}
	s.SetCurrentChannel("")
	h.Sessions.Broadcast(&protocol.ChannelUserDisconnected{ChannelID: chID, Username: username})
}

func (h *Handler) handleChannelJoin(s *ControlSession, p *protocol.RequestChannelJoin) {
	deny := func(reason string) {
		_ = s.Conn.TrySend(&protocol.ChannelJoinResponse{RequestID: p.RequestID, Allowed: false, Reason: reason})
	}
	ch, ok := h.Channels.Get(p.ChannelID)
	if !ok {
		deny("Channel not found")
		return
	}
	if s.CurrentChannel() == p.ChannelID {
		deny("Already joined")
		return
	}
	if ch.Type != domain.ChannelVoice {
		deny("This is text channel")
		return
	}
	if h.Channels.MemberCount(p.ChannelID) >= ch.MaxClients {
		deny("Maximum limit of connected clients reached")
		return
	}
	username := s.Username()
	if _, ok := h.Media.ByUsername(username); !ok {
		deny("Your client isn't connected to media transport")
		return
	}
	outcome, prev, hadPrev := h.Channels.Join(p.ChannelID, username)
	switch outcome {
	case JoinNotFound:
		deny("Channel not found")
		return
	case JoinWrongType:
		deny("This is text channel")
		return
	case JoinFull:
		deny("Maximum limit of connected clients reached")
		return
	}
	if hadPrev {
		h.Sessions.Broadcast(&protocol.ChannelUserDisconnected{ChannelID: prev, Username: username})
	}
	s.SetCurrentChannel(p.ChannelID)
	_ = s.Conn.TrySend(&protocol.ChannelJoinResponse{RequestID: p.RequestID, Allowed: true})
	h.Sessions.Broadcast(&protocol.ChannelUserConnected{ChannelID: p.ChannelID, Username: username})
}

func (h *Handler) handleUpdateServerInfo(s *ControlSession, p *protocol.UpdateServerInfo) {
	if !s.Elevated() {
		h.reject(s, "No access.")
		return
	}
	if len(p.Name) == 0 || len(p.Name) > domain.MaxChannelNameLen {
		h.reject(s, "Server received invalid packet")
		return
	}
	if p.MaxClients <= 0 || p.MaxClients > domain.MaxServerClients {
		h.reject(s, "Server received invalid packet")
		return
	}
	h.Info.Set(p.Name, p.MaxClients)
	h.Sessions.Broadcast(&protocol.ServerInfoUpdated{Name: p.Name, MaxClients: p.MaxClients})
	if h.SaveInfo != nil {
		go h.SaveInfo(p.Name, p.MaxClients)
	}
}

func (h *Handler) handleCreateChannel(s *ControlSession, p *protocol.CreateChannel) {
	if !s.Elevated() {
		h.reject(s, "No access.")
		return
	}
	ch, err := domain.NewChannel(p.Name, p.Type, p.Bitrate, p.Order, p.MaxClients)
	if err != nil {
		h.reject(s, "Server received invalid packet")
		return
	}
	h.Channels.Add(ch)
	h.Sessions.Broadcast(&protocol.ChannelAdded{
		ChannelID:  ch.ID,
		Name:       ch.Name,
		Type:       ch.Type,
		Order:      ch.Order,
		MaxClients: ch.MaxClients,
		Bitrate:    ch.Bitrate,
		Clients:    []string{},
	})
	h.Store.SaveChannel(ch)
}

func (h *Handler) handleDeleteChannel(s *ControlSession, p *protocol.DeleteChannel) {
	if !s.Elevated() {
		h.reject(s, "No access.")
		return
	}
	members, ok := h.Channels.Remove(p.ChannelID)
	if !ok {
		h.reject(s, "Server received invalid packet")
		return
	}
	for _, username := range members {
		if member, ok := h.Sessions.ByUsername(username); ok {
			member.SetCurrentChannel("")
		}
		h.Sessions.Broadcast(&protocol.ChannelUserDisconnected{ChannelID: p.ChannelID, Username: username})
	}
	h.Sessions.Broadcast(&protocol.ChannelDeleted{ChannelID: p.ChannelID})
	h.Store.DeleteChannel(p.ChannelID)
}
