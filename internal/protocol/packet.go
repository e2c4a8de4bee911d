// Package protocol defines the wire format shared by the control (TCP) and
// media (UDP) planes: a fixed 8-byte little-endian header followed by the
// JSON body of the packet kind.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

type Kind uint32

const (
	KindVersionExchange Kind = iota + 1
	KindServerQuery
	KindServerQueryResponse
	KindAuthenticationData
	KindStateChanged
	KindDisconnect
	KindHeartbeat
	KindClientConnected
	KindServerInfoUpdated
	KindChannelAdded
	KindChannelDeleted
	KindChannelUserConnected
	KindChannelUserDisconnected
	KindChannelMessageAdded
	KindPostChannelMessage
	KindRequestChannelMessages
	KindChannelMessagesResponse
	KindRequestChannelJoin
	KindChannelJoinResponse
	KindLeaveChannel
	KindCreateChannel
	KindDeleteChannel
	KindUpdateServerInfo
	KindNegotiationFinished
	KindPermissionsUpdated
	KindVoiceEstablish
	KindVoiceEstablishResponse

	// Media plane.
	KindMediaAuthentication
	KindMediaHeartbeat
	KindVoiceData
	KindVoiceDataMulticast
	KindMediaDisconnect
	KindMediaConnected
)

const (
	// HeaderSize is payload length (4 bytes) + kind id (4 bytes).
	HeaderSize = 8
	// MaxPayloadSize bounds a single frame; anything larger is treated as a
	// corrupt stream.
	MaxPayloadSize = 1 << 20
)

var (
	ErrPayloadTooLarge = errors.New("payload exceeds maximum frame size")
	ErrShortFrame      = errors.New("datagram shorter than frame header")
)

// Packet is any typed payload carried inside a frame.
type Packet interface {
	Kind() Kind
}

// Correlated is implemented by request/response packets that carry a
// correlation id for the client-side pending table.
type Correlated interface {
	Packet
	CorrelationID() string
}

// DecodeError reports a frame whose header was readable but whose payload
// did not decode for the declared kind. On the control plane this alone does
// not force a disconnect.
type DecodeError struct {
	Packet Kind
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode packet kind %d: %v", e.Packet, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var decoders = map[Kind]func() Packet{
	KindVersionExchange:         func() Packet { return &VersionExchange{} },
	KindServerQuery:             func() Packet { return &ServerQuery{} },
	KindServerQueryResponse:     func() Packet { return &ServerQueryResponse{} },
	KindAuthenticationData:      func() Packet { return &AuthenticationData{} },
	KindStateChanged:            func() Packet { return &StateChanged{} },
	KindDisconnect:              func() Packet { return &Disconnect{} },
	KindHeartbeat:               func() Packet { return &Heartbeat{} },
	KindClientConnected:         func() Packet { return &ClientConnected{} },
	KindServerInfoUpdated:       func() Packet { return &ServerInfoUpdated{} },
	KindChannelAdded:            func() Packet { return &ChannelAdded{} },
	KindChannelDeleted:          func() Packet { return &ChannelDeleted{} },
	KindChannelUserConnected:    func() Packet { return &ChannelUserConnected{} },
	KindChannelUserDisconnected: func() Packet { return &ChannelUserDisconnected{} },
	KindChannelMessageAdded:     func() Packet { return &ChannelMessageAdded{} },
	KindPostChannelMessage:      func() Packet { return &PostChannelMessage{} },
	KindRequestChannelMessages:  func() Packet { return &RequestChannelMessages{} },
	KindChannelMessagesResponse: func() Packet { return &ChannelMessagesResponse{} },
	KindRequestChannelJoin:      func() Packet { return &RequestChannelJoin{} },
	KindChannelJoinResponse:     func() Packet { return &ChannelJoinResponse{} },
	KindLeaveChannel:            func() Packet { return &LeaveChannel{} },
	KindCreateChannel:           func() Packet { return &CreateChannel{} },
	KindDeleteChannel:           func() Packet { return &DeleteChannel{} },
	KindUpdateServerInfo:        func() Packet { return &UpdateServerInfo{} },
	KindNegotiationFinished:     func() Packet { return &NegotiationFinished{} },
	KindPermissionsUpdated:      func() Packet { return &PermissionsUpdated{} },
	KindVoiceEstablish:          func() Packet { return &VoiceEstablish{} },
	KindVoiceEstablishResponse:  func() Packet { return &VoiceEstablishResponse{} },
	KindMediaAuthentication:     func() Packet { return &MediaAuthentication{} },
	KindMediaHeartbeat:          func() Packet { return &MediaHeartbeat{} },
	KindVoiceData:               func() Packet { return &VoiceData{} },
	KindVoiceDataMulticast:      func() Packet { return &VoiceDataMulticast{} },
	KindMediaDisconnect:         func() Packet { return &MediaDisconnect{} },
	KindMediaConnected:          func() Packet { return &MediaConnected{} },
}

// Encode renders a full frame (header + payload) for p.
func Encode(p Packet) ([]byte, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode packet kind %d: %w", p.Kind(), err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(p.Kind()))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// Decode interprets payload as the body of the given kind.
func Decode(kind Kind, payload []byte) (Packet, error) {
	mk, ok := decoders[kind]
	if !ok {
		return nil, &DecodeError{Packet: kind, Err: errors.New("unknown packet kind")}
	}
	p := mk()
	if err := json.Unmarshal(payload, p); err != nil {
		return nil, &DecodeError{Packet: kind, Err: err}
	}
	return p, nil
}

// WriteFrame encodes p and writes the frame to w in one call.
func WriteFrame(w io.Writer, p Packet) error {
	buf, err := Encode(p)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads one frame from a stream. An io error means the stream is
// unusable; a *DecodeError means the frame was read but its payload did not
// decode, and the stream stays aligned for the next frame.
func ReadFrame(r io.Reader) (Packet, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(header[0:4])
	kind := Kind(binary.LittleEndian.Uint32(header[4:8]))
	if length > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return Decode(kind, payload)
}

// DecodeDatagram interprets one datagram as a single frame.
func DecodeDatagram(buf []byte) (Packet, error) {
	if len(buf) < HeaderSize {
		return nil, ErrShortFrame
	}
	length := binary.LittleEndian.Uint32(buf[0:4])
	kind := Kind(binary.LittleEndian.Uint32(buf[4:8]))
	if int(length) != len(buf)-HeaderSize {
		return nil, ErrShortFrame
	}
	return Decode(kind, buf[HeaderSize:])
}
