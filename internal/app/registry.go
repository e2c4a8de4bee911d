package app

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/domain"
)

// messageCacheLimit bounds the in-memory newest-first cache per text channel;
// older history stays in storage only.
const messageCacheLimit = 200

type JoinOutcome int

const (
	JoinOK JoinOutcome = iota
	JoinNotFound
	JoinWrongType
	JoinFull
)

type channelEntry struct {
	ch      *domain.Channel
	members map[string]struct{} // usernames, voice channels only
	// messages is newest-first, capped at messageCacheLimit.
	messages []*domain.ChannelMessage
}

// ChannelRegistry is the single source of truth for channels and voice
// membership. A user belongs to at most one channel; Join enforces that by
// moving atomically under one lock.
type ChannelRegistry struct {
	mu       sync.RWMutex
	channels map[domain.ChannelID]*channelEntry
}

func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{channels: make(map[domain.ChannelID]*channelEntry)}
}

// Preload installs a stored channel with its recent history (newest first).
// Used at startup, before any session exists.
func (r *ChannelRegistry) Preload(ch *domain.Channel, recent []*domain.ChannelMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.ID] = &channelEntry{
		ch:       ch,
		members:  make(map[string]struct{}),
		messages: recent,
	}
}

func (r *ChannelRegistry) Add(ch *domain.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.ID] = &channelEntry{ch: ch, members: make(map[string]struct{})}
	log.Info().Str("module", "app.registry").Str("channel", string(ch.ID)).Str("name", ch.Name).Msg("channel added")
}

// Remove deletes the channel and returns the usernames that were members, so
// the caller can broadcast their eviction.
func (r *ChannelRegistry) Remove(id domain.ChannelID) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.channels[id]
	if !ok {
		return nil, false
	}
	members := make([]string, 0, len(e.members))
	for name := range e.members {
		members = append(members, name)
	}
	sort.Strings(members)
	delete(r.channels, id)
	log.Info().Str("module", "app.registry").Str("channel", string(id)).Int("evicted", len(members)).Msg("channel removed")
	return members, true
}

func (r *ChannelRegistry) Get(id domain.ChannelID) (*domain.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.channels[id]
	if !ok {
		return nil, false
	}
	return e.ch, true
}

// ChannelView pairs a channel with a snapshot of its member usernames.
type ChannelView struct {
	Channel *domain.Channel
	Members []string
}

func (r *ChannelRegistry) List() []ChannelView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ChannelView, 0, len(r.channels))
	for _, e := range r.channels {
		out = append(out, ChannelView{Channel: e.ch, Members: memberNames(e)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel.Order < out[j].Channel.Order })
	return out
}

func memberNames(e *channelEntry) []string {
	names := make([]string, 0, len(e.members))
	for name := range e.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Members returns a snapshot of the channel's member usernames. The fan-out
// path iterates this snapshot with no registry lock held.
func (r *ChannelRegistry) Members(id domain.ChannelID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.channels[id]
	if !ok {
		return nil
	}
	return memberNames(e)
}

func (r *ChannelRegistry) MemberCount(id domain.ChannelID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.channels[id]
	if !ok {
		return 0
	}
	return len(e.members)
}

// Join moves username into the channel, leaving any previous channel in the
// same critical section. prev reports where the user came from, if anywhere.
func (r *ChannelRegistry) Join(id domain.ChannelID, username string) (outcome JoinOutcome, prev domain.ChannelID, hadPrev bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.channels[id]
	if !ok {
		return JoinNotFound, "", false
	}
	if e.ch.Type != domain.ChannelVoice {
		return JoinWrongType, "", false
	}
	if len(e.members) >= e.ch.MaxClients {
		return JoinFull, "", false
	}
	for otherID, other := range r.channels {
		if _, in := other.members[username]; in {
			delete(other.members, username)
			prev, hadPrev = otherID, true
			break
		}
	}
	e.members[username] = struct{}{}
	log.Info().Str("module", "app.registry").Str("channel", string(id)).Str("user", username).Msg("member joined")
	return JoinOK, prev, hadPrev
}

// Leave removes username from whichever channel holds it. Leaving while not
// a member is a no-op.
func (r *ChannelRegistry) Leave(username string) (domain.ChannelID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.channels {
		if _, in := e.members[username]; in {
			delete(e.members, username)
			log.Info().Str("module", "app.registry").Str("channel", string(id)).Str("user", username).Msg("member left")
			return id, true
		}
	}
	return "", false
}

// AppendMessage prepends msg to the channel's newest-first cache. It reports
// false when the channel is missing or not a text channel.
func (r *ChannelRegistry) AppendMessage(msg *domain.ChannelMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.channels[msg.ChannelID]
	if !ok || e.ch.Type != domain.ChannelText {
		return false
	}
	e.messages = append([]*domain.ChannelMessage{msg}, e.messages...)
	if len(e.messages) > messageCacheLimit {
		e.messages = e.messages[:messageCacheLimit]
	}
	return true
}

// Page returns the fixed-size page (newest first) of the channel's cache.
// ok is false for a missing channel, a non-text channel or a negative page;
// a page past the end yields an empty slice with ok true.
func (r *ChannelRegistry) Page(id domain.ChannelID, page int) ([]*domain.ChannelMessage, bool) {
	if page < 0 {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.channels[id]
	if !ok || e.ch.Type != domain.ChannelText {
		return nil, false
	}
	start := page * domain.MessagesPerPage
	if start >= len(e.messages) {
		return []*domain.ChannelMessage{}, true
	}
	end := start + domain.MessagesPerPage
	if end > len(e.messages) {
		end = len(e.messages)
	}
	out := make([]*domain.ChannelMessage, end-start)
	copy(out, e.messages[start:end])
	return out, true
}
