package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/parley/internal/protocol"
)

func TestPendingResolveDelivers(t *testing.T) {
	p := newPending()
	ch := p.register("r1")

	resp := &protocol.ChannelJoinResponse{RequestID: "r1", Allowed: true}
	assert.True(t, p.resolve("r1", resp))

	got := p.await("r1", ch, time.Second)
	require.NotNil(t, got)
	assert.Same(t, resp, got)
}

func TestPendingResolveExactlyOnce(t *testing.T) {
	p := newPending()
	p.register("r1")

	first := &protocol.ChannelJoinResponse{RequestID: "r1"}
	assert.True(t, p.resolve("r1", first))
	assert.False(t, p.resolve("r1", &protocol.ChannelJoinResponse{RequestID: "r1"}))
}

func TestPendingResolveUnknownID(t *testing.T) {
	p := newPending()
	assert.False(t, p.resolve("never-registered", &protocol.Heartbeat{}))
}

func TestPendingAwaitTimeout(t *testing.T) {
	p := newPending()
	ch := p.register("r1")

	start := time.Now()
	got := p.await("r1", ch, 50*time.Millisecond)
	assert.Nil(t, got)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// The slot was dropped; a late response is ignored, not delivered.
	assert.False(t, p.resolve("r1", &protocol.ChannelJoinResponse{RequestID: "r1"}))
}

func TestPendingConcurrentResolvers(t *testing.T) {
	p := newPending()
	ch := p.register("r1")

	var delivered int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.resolve("r1", &protocol.Heartbeat{}) {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, delivered)
	require.NotNil(t, p.await("r1", ch, time.Second))
}
