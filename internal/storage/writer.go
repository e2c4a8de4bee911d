package storage

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/domain"
)

const writerQueueSize = 256

// AsyncWriter wraps a Store with a single background goroutine so packet
// handlers never block on disk. Enqueue is non-blocking; a full queue drops
// the write with a log line, and failures are logged, never retried.
// It implements core.Persister.
type AsyncWriter struct {
	store Store
	queue chan func()

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewAsyncWriter(store Store) *AsyncWriter {
	w := &AsyncWriter{
		store: store,
		queue: make(chan func(), writerQueueSize),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *AsyncWriter) run() {
	for job := range w.queue {
		job()
	}
	close(w.done)
}

// Close drains pending writes and stops the worker.
func (w *AsyncWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()
	<-w.done
}

func (w *AsyncWriter) enqueue(what string, job func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		log.Warn().Str("module", "storage.writer").Str("op", what).Msg("writer closed, dropping")
		return
	}
	select {
	case w.queue <- job:
	default:
		log.Warn().Str("module", "storage.writer").Str("op", what).Msg("write queue full, dropping")
	}
}

func (w *AsyncWriter) SaveMessage(m *domain.ChannelMessage) {
	w.enqueue("save-message", func() {
		if err := w.store.SaveMessage(m); err != nil {
			log.Error().Err(err).Str("module", "storage.writer").Str("message", m.ID).Msg("save message failed")
		}
	})
}

func (w *AsyncWriter) SaveChannel(ch *domain.Channel) {
	w.enqueue("save-channel", func() {
		if err := w.store.SaveChannel(ch); err != nil {
			log.Error().Err(err).Str("module", "storage.writer").Str("channel", string(ch.ID)).Msg("save channel failed")
		}
	})
}

func (w *AsyncWriter) DeleteChannel(id domain.ChannelID) {
	w.enqueue("delete-channel", func() {
		if err := w.store.DeleteChannel(id); err != nil {
			log.Error().Err(err).Str("module", "storage.writer").Str("channel", string(id)).Msg("delete channel failed")
		}
	})
}
