package app

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/parley/internal/domain"
)

func mustChannel(t *testing.T, name string, typ domain.ChannelType, maxClients int) *domain.Channel {
	t.Helper()
	bitrate := 0
	if typ == domain.ChannelVoice {
		bitrate = domain.MinBitrate
	}
	ch, err := domain.NewChannel(name, typ, bitrate, 0, maxClients)
	require.NoError(t, err)
	return ch
}

func TestRegistryJoinMovesAtomically(t *testing.T) {
	r := NewChannelRegistry()
	first := mustChannel(t, "First", domain.ChannelVoice, 4)
	second := mustChannel(t, "Second", domain.ChannelVoice, 4)
	r.Add(first)
	r.Add(second)

	outcome, _, hadPrev := r.Join(first.ID, "alice")
	assert.Equal(t, JoinOK, outcome)
	assert.False(t, hadPrev)

	outcome, prev, hadPrev := r.Join(second.ID, "alice")
	assert.Equal(t, JoinOK, outcome)
	require.True(t, hadPrev)
	assert.Equal(t, first.ID, prev)

	assert.Empty(t, r.Members(first.ID))
	assert.Equal(t, []string{"alice"}, r.Members(second.ID))
}

func TestRegistryJoinOutcomes(t *testing.T) {
	r := NewChannelRegistry()
	voice := mustChannel(t, "Voice", domain.ChannelVoice, 1)
	text := mustChannel(t, "Text", domain.ChannelText, 4)
	r.Add(voice)
	r.Add(text)
	outcome, _, _ := r.Join(voice.ID, "occupant")
	require.Equal(t, JoinOK, outcome)

	outcome, _, _ = r.Join("missing", "alice")
	assert.Equal(t, JoinNotFound, outcome)
	outcome, _, _ = r.Join(text.ID, "alice")
	assert.Equal(t, JoinWrongType, outcome)
	outcome, _, _ = r.Join(voice.ID, "alice")
	assert.Equal(t, JoinFull, outcome)
}

func TestRegistryLeave(t *testing.T) {
	r := NewChannelRegistry()
	voice := mustChannel(t, "Voice", domain.ChannelVoice, 4)
	r.Add(voice)
	r.Join(voice.ID, "alice")

	id, ok := r.Leave("alice")
	require.True(t, ok)
	assert.Equal(t, voice.ID, id)

	_, ok = r.Leave("alice")
	assert.False(t, ok)
	_, ok = r.Leave("stranger")
	assert.False(t, ok)
}

func TestRegistryRemoveReturnsMembers(t *testing.T) {
	r := NewChannelRegistry()
	voice := mustChannel(t, "Voice", domain.ChannelVoice, 4)
	r.Add(voice)
	r.Join(voice.ID, "carol")
	r.Join(voice.ID, "alice")

	members, ok := r.Remove(voice.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"alice", "carol"}, members)

	_, ok = r.Get(voice.ID)
	assert.False(t, ok)
	_, ok = r.Remove(voice.ID)
	assert.False(t, ok)
}

func TestRegistryListOrdering(t *testing.T) {
	r := NewChannelRegistry()
	names := []string{"Third", "First", "Second"}
	orders := []int{3, 1, 2}
	for i, name := range names {
		ch, err := domain.NewChannel(name, domain.ChannelText, 0, orders[i], 4)
		require.NoError(t, err)
		r.Add(ch)
	}

	views := r.List()
	require.Len(t, views, 3)
	assert.Equal(t, "First", views[0].Channel.Name)
	assert.Equal(t, "Second", views[1].Channel.Name)
	assert.Equal(t, "Third", views[2].Channel.Name)
}

func TestRegistryMessageCacheBounded(t *testing.T) {
	r := NewChannelRegistry()
	text := mustChannel(t, "Text", domain.ChannelText, 4)
	r.Add(text)

	for i := 0; i < messageCacheLimit+10; i++ {
		ok := r.AppendMessage(domain.NewChannelMessage(text.ID, "alice", fmt.Sprintf("m%d", i)))
		require.True(t, ok)
	}

	page, ok := r.Page(text.ID, 0)
	require.True(t, ok)
	require.Len(t, page, domain.MessagesPerPage)
	assert.Equal(t, fmt.Sprintf("m%d", messageCacheLimit+9), page[0].Text)

	// The oldest overflowed out of the cache.
	lastPage := messageCacheLimit/domain.MessagesPerPage - 1
	page, ok = r.Page(text.ID, lastPage)
	require.True(t, ok)
	assert.Equal(t, "m10", page[len(page)-1].Text)
}

func TestRegistryAppendMessageRejectsVoice(t *testing.T) {
	r := NewChannelRegistry()
	voice := mustChannel(t, "Voice", domain.ChannelVoice, 4)
	r.Add(voice)

	assert.False(t, r.AppendMessage(domain.NewChannelMessage(voice.ID, "alice", "hi")))
	assert.False(t, r.AppendMessage(domain.NewChannelMessage("missing", "alice", "hi")))
}

func TestRegistryPreloadKeepsHistory(t *testing.T) {
	r := NewChannelRegistry()
	text := mustChannel(t, "Text", domain.ChannelText, 4)
	recent := []*domain.ChannelMessage{
		domain.NewChannelMessage(text.ID, "alice", "newest"),
		domain.NewChannelMessage(text.ID, "alice", "older"),
	}
	r.Preload(text, recent)

	page, ok := r.Page(text.ID, 0)
	require.True(t, ok)
	require.Len(t, page, 2)
	assert.Equal(t, "newest", page[0].Text)

	r.AppendMessage(domain.NewChannelMessage(text.ID, "bob", "fresher"))
	page, _ = r.Page(text.ID, 0)
	assert.Equal(t, "fresher", page[0].Text)
}
