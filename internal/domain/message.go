package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MaxMessageLen   = 2000
	MessagesPerPage = 20
)

type ChannelMessage struct {
	ID        string    `json:"id"`
	ChannelID ChannelID `json:"channel_id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func NewChannelMessage(channelID ChannelID, username, text string) *ChannelMessage {
	return &ChannelMessage{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		Username:  username,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// ValidMessageText reports whether text may be posted to a text channel.
func ValidMessageText(text string) bool {
	return len(text) > 0 && len(text) <= MaxMessageLen
}
