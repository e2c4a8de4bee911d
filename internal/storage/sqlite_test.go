package storage

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/parley/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "parley.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteChannelRoundTrip(t *testing.T) {
	store := openTestStore(t)

	ch, err := domain.NewChannel("Lobby", domain.ChannelVoice, 48000, 2, 8)
	require.NoError(t, err)
	require.NoError(t, store.SaveChannel(ch))

	loaded, err := store.LoadChannels()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, ch, loaded[0])
}

func TestSQLiteChannelUpsert(t *testing.T) {
	store := openTestStore(t)

	ch, err := domain.NewChannel("Lobby", domain.ChannelVoice, 48000, 0, 8)
	require.NoError(t, err)
	require.NoError(t, store.SaveChannel(ch))
	ch.Name = "Renamed"
	ch.MaxClients = 16
	require.NoError(t, store.SaveChannel(ch))

	loaded, err := store.LoadChannels()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "Renamed", loaded[0].Name)
	assert.Equal(t, 16, loaded[0].MaxClients)
}

func TestSQLiteChannelsOrdered(t *testing.T) {
	store := openTestStore(t)

	for i, order := range []int{3, 1, 2} {
		ch, err := domain.NewChannel(fmt.Sprintf("ch%d", i), domain.ChannelText, 0, order, 4)
		require.NoError(t, err)
		require.NoError(t, store.SaveChannel(ch))
	}

	loaded, err := store.LoadChannels()
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, 1, loaded[0].Order)
	assert.Equal(t, 2, loaded[1].Order)
	assert.Equal(t, 3, loaded[2].Order)
}

func TestSQLiteRecentMessagesNewestFirst(t *testing.T) {
	store := openTestStore(t)
	chID := domain.ChannelID("ch-1")

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		msg := domain.NewChannelMessage(chID, "alice", fmt.Sprintf("m%d", i))
		msg.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.SaveMessage(msg))
	}
	other := domain.NewChannelMessage("ch-2", "bob", "elsewhere")
	require.NoError(t, store.SaveMessage(other))

	loaded, err := store.LoadRecentMessages(chID, 3)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, "m4", loaded[0].Text)
	assert.Equal(t, "m3", loaded[1].Text)
	assert.Equal(t, "m2", loaded[2].Text)
}

func TestSQLiteDeleteChannelRemovesMessages(t *testing.T) {
	store := openTestStore(t)

	ch, err := domain.NewChannel("Doomed", domain.ChannelText, 0, 0, 4)
	require.NoError(t, err)
	require.NoError(t, store.SaveChannel(ch))
	require.NoError(t, store.SaveMessage(domain.NewChannelMessage(ch.ID, "alice", "hi")))

	require.NoError(t, store.DeleteChannel(ch.ID))

	channels, err := store.LoadChannels()
	require.NoError(t, err)
	assert.Empty(t, channels)
	msgs, err := store.LoadRecentMessages(ch.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

// recordingStore counts writes so the async draining can be observed.
type recordingStore struct {
	mu       sync.Mutex
	messages int
	channels int
	deletes  int
}

func (r *recordingStore) LoadChannels() ([]*domain.Channel, error) { return nil, nil }
func (r *recordingStore) LoadRecentMessages(domain.ChannelID, int) ([]*domain.ChannelMessage, error) {
	return nil, nil
}

func (r *recordingStore) SaveMessage(*domain.ChannelMessage) error {
	r.mu.Lock()
	r.messages++
	r.mu.Unlock()
	return nil
}

func (r *recordingStore) SaveChannel(*domain.Channel) error {
	r.mu.Lock()
	r.channels++
	r.mu.Unlock()
	return nil
}

func (r *recordingStore) DeleteChannel(domain.ChannelID) error {
	r.mu.Lock()
	r.deletes++
	r.mu.Unlock()
	return nil
}

func (r *recordingStore) Close() error { return nil }

func TestAsyncWriterDrainsOnClose(t *testing.T) {
	rec := &recordingStore{}
	w := NewAsyncWriter(rec)

	ch, err := domain.NewChannel("Lobby", domain.ChannelText, 0, 0, 4)
	require.NoError(t, err)
	w.SaveChannel(ch)
	for i := 0; i < 10; i++ {
		w.SaveMessage(domain.NewChannelMessage(ch.ID, "alice", "hi"))
	}
	w.DeleteChannel(ch.ID)
	w.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.channels)
	assert.Equal(t, 10, rec.messages)
	assert.Equal(t, 1, rec.deletes)
}

func TestAsyncWriterAfterCloseDrops(t *testing.T) {
	rec := &recordingStore{}
	w := NewAsyncWriter(rec)
	w.Close()
	w.Close() // second close is a no-op

	w.SaveMessage(domain.NewChannelMessage("ch", "alice", "late"))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Zero(t, rec.messages)
}
