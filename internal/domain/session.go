// Package domain contains entities without logic, just meta-data.
package domain

// SessionID identifies a control-plane session for its whole lifetime.
type SessionID string

// SessionState is the position of a control session in its handshake.
// Progression is strictly forward: VersionExchange -> Authenticating ->
// Connected -> Disconnected.
type SessionState uint8

const (
	StateVersionExchange SessionState = iota
	StateAuthenticating
	StateConnected
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateVersionExchange:
		return "version-exchange"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

const (
	MinUsernameLen = 3
	MaxUsernameLen = 16
)

// ValidUsername reports whether name fits the length bounds enforced at
// authentication time.
func ValidUsername(name string) bool {
	return len(name) >= MinUsernameLen && len(name) <= MaxUsernameLen
}
