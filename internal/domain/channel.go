package domain

import (
	"errors"

	"github.com/google/uuid"
)

type (
	ChannelID   string
	ChannelType uint8
)

const (
	ChannelText ChannelType = iota
	ChannelVoice
)

func (t ChannelType) String() string {
	switch t {
	case ChannelText:
		return "text"
	case ChannelVoice:
		return "voice"
	}
	return "unknown"
}

const (
	MaxChannelNameLen = 64
	MinBitrate        = 8000
	MaxBitrate        = 500000
	MaxServerClients  = 32000
)

var (
	ErrChannelNameEmpty   = errors.New("channel name empty")
	ErrChannelNameTooLong = errors.New("channel name too long")
	ErrBitrateOutOfRange  = errors.New("bitrate out of range")
	ErrBadCapacity        = errors.New("max clients must be positive")
)

type Channel struct {
	ID         ChannelID   `json:"id"`
	Name       string      `json:"name"`
	Type       ChannelType `json:"type"`
	Order      int         `json:"order"`
	MaxClients int         `json:"max_clients"`
	// Bitrate is meaningful for voice channels only.
	Bitrate int `json:"bitrate"`
}

// NewChannel validates attributes and assigns a fresh id. It keeps ad-hoc
// struct literals out of the packet handlers.
func NewChannel(name string, typ ChannelType, bitrate, order, maxClients int) (*Channel, error) {
	if len(name) == 0 {
		return nil, ErrChannelNameEmpty
	}
	if len(name) > MaxChannelNameLen {
		return nil, ErrChannelNameTooLong
	}
	if maxClients <= 0 {
		return nil, ErrBadCapacity
	}
	if typ == ChannelVoice && (bitrate < MinBitrate || bitrate > MaxBitrate) {
		return nil, ErrBitrateOutOfRange
	}
	return &Channel{
		ID:         ChannelID(uuid.NewString()),
		Name:       name,
		Type:       typ,
		Order:      order,
		MaxClients: maxClients,
		Bitrate:    bitrate,
	}, nil
}
