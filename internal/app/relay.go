package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/protocol"
)

// relayVoice fans one voice payload out to the other members of the
// speaker's current channel. Membership is snapshotted under the registry
// guard and the sends run with no lock held, one goroutine per recipient,
// so a failing destination never blocks the rest.
func (m *MediaHandler) relayVoice(src *MediaSession, data []byte) {
	sess, ok := m.Sessions.ByUsername(src.Username)
	if !ok {
		return
	}
	chID := sess.CurrentChannel()
	if chID == "" {
		return
	}
	pkt := &protocol.VoiceDataMulticast{Username: src.Username, Data: data}
	var wg sync.WaitGroup
	for _, name := range m.Channels.Members(chID) {
		if !m.Loopback && name == src.Username {
			continue
		}
		dst, ok := m.Table.ByUsername(name)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(dst *MediaSession) {
			defer wg.Done()
			if err := m.Sender.SendTo(dst.Addr, pkt); err != nil {
				log.Debug().Err(err).Str("module", "app.relay").Str("dst", dst.Addr.String()).Msg("voice send failed")
			}
		}(dst)
	}
	wg.Wait()
}
