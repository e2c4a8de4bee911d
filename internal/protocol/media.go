package protocol

import "github.com/dkeye/parley/internal/domain"

// MediaAuthentication binds a datagram endpoint to a live control session.
// It is the only packet accepted from an unknown endpoint.
type MediaAuthentication struct {
	Username  string           `json:"username"`
	SessionID domain.SessionID `json:"session_id"`
}

func (*MediaAuthentication) Kind() Kind { return KindMediaAuthentication }

type MediaHeartbeat struct {
	Username string `json:"username"`
}

func (*MediaHeartbeat) Kind() Kind { return KindMediaHeartbeat }

type VoiceData struct {
	Username string `json:"username"`
	Data     []byte `json:"data"`
}

func (*VoiceData) Kind() Kind { return KindVoiceData }

// VoiceDataMulticast is the server-to-client fan-out copy of a VoiceData
// packet, tagged with the speaking user.
type VoiceDataMulticast struct {
	Username string `json:"username"`
	Data     []byte `json:"data"`
}

func (*VoiceDataMulticast) Kind() Kind { return KindVoiceDataMulticast }

type MediaDisconnect struct {
	Username string `json:"username"`
}

func (*MediaDisconnect) Kind() Kind { return KindMediaDisconnect }

type MediaConnected struct {
	Username string `json:"username"`
}

func (*MediaConnected) Kind() Kind { return KindMediaConnected }
