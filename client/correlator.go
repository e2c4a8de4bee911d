package client

import (
	"sync"
	"time"

	"github.com/dkeye/parley/internal/protocol"
)

// pending matches asynchronous responses to outstanding requests by
// correlation id. Each id accepts exactly one response: resolve removes the
// slot before delivering, so late duplicates find nothing and are ignored.
type pending struct {
	mu    sync.Mutex
	slots map[string]chan protocol.Packet
}

func newPending() *pending {
	return &pending{slots: make(map[string]chan protocol.Packet)}
}

func (p *pending) register(id string) <-chan protocol.Packet {
	ch := make(chan protocol.Packet, 1)
	p.mu.Lock()
	p.slots[id] = ch
	p.mu.Unlock()
	return ch
}

func (p *pending) drop(id string) {
	p.mu.Lock()
	delete(p.slots, id)
	p.mu.Unlock()
}

// resolve delivers pkt to the slot registered for id, if any. It reports
// whether the packet was consumed.
func (p *pending) resolve(id string, pkt protocol.Packet) bool {
	p.mu.Lock()
	ch, ok := p.slots[id]
	if ok {
		delete(p.slots, id)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- pkt
	return true
}

// await blocks until the slot's response arrives or the timeout elapses.
// A nil result means no answer in time; it is not an error.
func (p *pending) await(id string, ch <-chan protocol.Packet, timeout time.Duration) protocol.Packet {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case pkt := <-ch:
		return pkt
	case <-t.C:
		p.drop(id)
		return nil
	}
}
