// Package storage is the durable side of the server: channel definitions
// and text history. The packet path never waits on it; writes go through
// the async writer.
package storage

import "github.com/dkeye/parley/internal/domain"

type Store interface {
	LoadChannels() ([]*domain.Channel, error)
	// LoadRecentMessages returns up to limit messages, newest first.
	LoadRecentMessages(id domain.ChannelID, limit int) ([]*domain.ChannelMessage, error)
	SaveMessage(*domain.ChannelMessage) error
	SaveChannel(*domain.Channel) error
	// DeleteChannel removes the channel and all of its messages.
	DeleteChannel(domain.ChannelID) error
	Close() error
}
