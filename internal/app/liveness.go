package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/domain"
	"github.com/dkeye/parley/internal/protocol"
)

const (
	// SweepInterval is how often both liveness sweeps run.
	SweepInterval = 10 * time.Second
	// MediaTimeout evicts a media session that stayed silent this long.
	MediaTimeout = 10 * time.Second
	// ControlTimeout disconnects a negotiated control session that stayed
	// silent this long.
	ControlTimeout = 15 * time.Second
)

// LivenessMonitor runs the two periodic sweeps: it evicts stale sessions on
// both planes and pushes keep-alives to the live ones.
type LivenessMonitor struct {
	Handler *Handler
	Media   *MediaHandler

	Interval time.Duration
}

func NewLivenessMonitor(h *Handler, m *MediaHandler) *LivenessMonitor {
	return &LivenessMonitor{Handler: h, Media: m, Interval: SweepInterval}
}

// Run starts both sweeps and blocks until ctx is done.
func (lm *LivenessMonitor) Run(ctx context.Context) {
	controlTick := time.NewTicker(lm.Interval)
	mediaTick := time.NewTicker(lm.Interval)
	defer controlTick.Stop()
	defer mediaTick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-controlTick.C:
			lm.sweepControl(time.Now())
		case <-mediaTick.C:
			lm.sweepMedia(time.Now())
		}
	}
}

// sweepControl disconnects negotiated sessions that went silent and pushes
// a heartbeat to the rest. Sessions mid-negotiation are exempt.
func (lm *LivenessMonitor) sweepControl(now time.Time) {
	for _, s := range lm.Handler.Sessions.Snapshot() {
		if !s.Negotiated() {
			continue
		}
		if s.State() == domain.StateConnected && now.Sub(s.LastHeartbeat()) > ControlTimeout {
			log.Info().Str("module", "app.liveness").Str("sid", string(s.ID)).Str("user", s.Username()).Msg("control session timed out")
			_ = s.Conn.TrySend(&protocol.Disconnect{Reason: "No heartbeat received from your client for more than 15 seconds"})
			s.Conn.Close()
			lm.Handler.Teardown(s)
			continue
		}
		if err := s.Conn.TrySend(&protocol.Heartbeat{}); err != nil {
			log.Debug().Err(err).Str("module", "app.liveness").Str("sid", string(s.ID)).Msg("heartbeat push failed")
		}
	}
}

// sweepMedia evicts stale media sessions (with a channel departure
// broadcast if they were members) and pushes a keep-alive to the rest.
func (lm *LivenessMonitor) sweepMedia(now time.Time) {
	for _, ms := range lm.Media.Table.Snapshot() {
		if now.Sub(ms.LastHeartbeat()) > MediaTimeout {
			log.Info().Str("module", "app.liveness").Str("addr", ms.Addr.String()).Str("user", ms.Username).Msg("media session timed out")
			lm.Media.Table.Remove(ms.Addr)
			if chID, ok := lm.Media.Channels.Leave(ms.Username); ok {
				lm.Media.Sessions.Broadcast(&protocol.ChannelUserDisconnected{ChannelID: chID, Username: ms.Username})
			}
			if sess, ok := lm.Media.Sessions.Get(ms.SessionID); ok {
				sess.SetCurrentChannel("")
			}
			continue
		}
		if err := lm.Media.Sender.SendTo(ms.Addr, &protocol.MediaHeartbeat{Username: ms.Username}); err != nil {
			log.Debug().Err(err).Str("module", "app.liveness").Str("addr", ms.Addr.String()).Msg("media heartbeat push failed")
		}
	}
}
