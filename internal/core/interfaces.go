// Package core holds the interfaces that stitch transports, session tables
// and persistence together without import cycles.
package core

import (
	"net"

	"github.com/dkeye/parley/internal/domain"
	"github.com/dkeye/parley/internal/protocol"
)

// ControlConn is a session's endpoint on the reliable plane.
// Owned by the adapter; the adapter must Close() it.
type ControlConn interface {
	// TrySend encodes and writes one frame. It must not block indefinitely;
	// a hung peer surfaces as a write error.
	TrySend(protocol.Packet) error
	Close()
}

// MediaSender pushes one frame to a datagram endpoint.
type MediaSender interface {
	SendTo(addr *net.UDPAddr, p protocol.Packet) error
}

// Persister is the fire-and-forget side of durable storage. Calls never
// block the packet path; failures are logged by the implementation.
type Persister interface {
	SaveMessage(*domain.ChannelMessage)
	SaveChannel(*domain.Channel)
	DeleteChannel(domain.ChannelID)
}
