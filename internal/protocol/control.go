package protocol

import "github.com/dkeye/parley/internal/domain"

// VersionExchange is the first packet a client must send.
type VersionExchange struct {
	Version string `json:"version"`
}

func (*VersionExchange) Kind() Kind { return KindVersionExchange }

// ServerQuery asks for server info without authenticating. The server
// answers and closes the connection.
type ServerQuery struct{}

func (*ServerQuery) Kind() Kind { return KindServerQuery }

type ServerQueryResponse struct {
	ServerName       string `json:"server_name"`
	ServerVersion    string `json:"server_version"`
	ClientsConnected int    `json:"clients_connected"`
	MaxClients       int    `json:"max_clients"`
}

func (*ServerQueryResponse) Kind() Kind { return KindServerQueryResponse }

type AuthenticationData struct {
	Username     string `json:"username"`
	PrivilegeKey string `json:"privilege_key,omitempty"`
}

func (*AuthenticationData) Kind() Kind { return KindAuthenticationData }

// StateChanged notifies the client that its session advanced. SessionID is
// set once, on the transition to Connected.
type StateChanged struct {
	NewState  domain.SessionState `json:"new_state"`
	SessionID domain.SessionID    `json:"session_id,omitempty"`
}

func (*StateChanged) Kind() Kind { return KindStateChanged }

type Disconnect struct {
	Reason string `json:"reason"`
}

func (*Disconnect) Kind() Kind { return KindDisconnect }

type Heartbeat struct{}

func (*Heartbeat) Kind() Kind { return KindHeartbeat }

type ClientConnected struct {
	Username string `json:"username"`
}

func (*ClientConnected) Kind() Kind { return KindClientConnected }

type ServerInfoUpdated struct {
	Name       string `json:"name"`
	MaxClients int    `json:"max_clients"`
}

func (*ServerInfoUpdated) Kind() Kind { return KindServerInfoUpdated }

type ChannelAdded struct {
	ChannelID  domain.ChannelID   `json:"channel_id"`
	Name       string             `json:"name"`
	Type       domain.ChannelType `json:"type"`
	Order      int                `json:"order"`
	MaxClients int                `json:"max_clients"`
	Bitrate    int                `json:"bitrate"`
	Clients    []string           `json:"clients"`
}

func (*ChannelAdded) Kind() Kind { return KindChannelAdded }

type ChannelDeleted struct {
	ChannelID domain.ChannelID `json:"channel_id"`
}

func (*ChannelDeleted) Kind() Kind { return KindChannelDeleted }

type ChannelUserConnected struct {
	ChannelID domain.ChannelID `json:"channel_id"`
	Username  string           `json:"username"`
}

func (*ChannelUserConnected) Kind() Kind { return KindChannelUserConnected }

type ChannelUserDisconnected struct {
	ChannelID domain.ChannelID `json:"channel_id"`
	Username  string           `json:"username"`
}

func (*ChannelUserDisconnected) Kind() Kind { return KindChannelUserDisconnected }

type ChannelMessageAdded struct {
	ChannelID  domain.ChannelID `json:"channel_id"`
	MessageID  string           `json:"message_id"`
	SenderName string           `json:"sender_name"`
	Text       string           `json:"text"`
}

func (*ChannelMessageAdded) Kind() Kind { return KindChannelMessageAdded }

// PostChannelMessage appends a text message to a text channel. Invalid
// posts are dropped silently, with no response and no disconnect.
type PostChannelMessage struct {
	ChannelID domain.ChannelID `json:"channel_id"`
	Text      string           `json:"text"`
}

func (*PostChannelMessage) Kind() Kind { return KindPostChannelMessage }

type RequestChannelMessages struct {
	RequestID string           `json:"request_id"`
	ChannelID domain.ChannelID `json:"channel_id"`
	Page      int              `json:"page"`
}

func (*RequestChannelMessages) Kind() Kind { return KindRequestChannelMessages }
func (p *RequestChannelMessages) CorrelationID() string { return p.RequestID }

type ChannelMessagesResponse struct {
	RequestID string                   `json:"request_id"`
	ChannelID domain.ChannelID         `json:"channel_id"`
	Messages  []*domain.ChannelMessage `json:"messages"`
}

func (*ChannelMessagesResponse) Kind() Kind { return KindChannelMessagesResponse }
func (p *ChannelMessagesResponse) CorrelationID() string { return p.RequestID }

type RequestChannelJoin struct {
	RequestID string           `json:"request_id"`
	ChannelID domain.ChannelID `json:"channel_id"`
}

func (*RequestChannelJoin) Kind() Kind { return KindRequestChannelJoin }
func (p *RequestChannelJoin) CorrelationID() string { return p.RequestID }

type ChannelJoinResponse struct {
	RequestID string `json:"request_id"`
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
}

func (*ChannelJoinResponse) Kind() Kind { return KindChannelJoinResponse }
func (p *ChannelJoinResponse) CorrelationID() string { return p.RequestID }

type LeaveChannel struct{}

func (*LeaveChannel) Kind() Kind { return KindLeaveChannel }

type CreateChannel struct {
	Name       string             `json:"name"`
	Type       domain.ChannelType `json:"type"`
	Order      int                `json:"order"`
	MaxClients int                `json:"max_clients"`
	Bitrate    int                `json:"bitrate"`
}

func (*CreateChannel) Kind() Kind { return KindCreateChannel }

type DeleteChannel struct {
	ChannelID domain.ChannelID `json:"channel_id"`
}

func (*DeleteChannel) Kind() Kind { return KindDeleteChannel }

type UpdateServerInfo struct {
	Name       string `json:"name"`
	MaxClients int    `json:"max_clients"`
}

func (*UpdateServerInfo) Kind() Kind { return KindUpdateServerInfo }

// NegotiationFinished closes the post-auth handshake sequence; the client
// may treat its view of the server as complete.
type NegotiationFinished struct{}

func (*NegotiationFinished) Kind() Kind { return KindNegotiationFinished }

type PermissionsUpdated struct {
	HasAllPermissions bool `json:"has_all_permissions"`
}

func (*PermissionsUpdated) Kind() Kind { return KindPermissionsUpdated }

type VoiceEstablish struct {
	RequestID string `json:"request_id"`
}

func (*VoiceEstablish) Kind() Kind { return KindVoiceEstablish }
func (p *VoiceEstablish) CorrelationID() string { return p.RequestID }

type VoiceEstablishResponse struct {
	RequestID string `json:"request_id"`
	Allowed   bool   `json:"allowed"`
}

func (*VoiceEstablishResponse) Kind() Kind { return KindVoiceEstablishResponse }
func (p *VoiceEstablishResponse) CorrelationID() string { return p.RequestID }
