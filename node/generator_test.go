package node

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openlora/lorasim/channel"
	"github.com/openlora/lorasim/clock"
	"github.com/openlora/lorasim/packet"
	"github.com/openlora/lorasim/prng"
)

func TestRunGenerator_GatewayNeverGenerates(t *testing.T) {
	gw := New(GatewayID, channel.Position{})
	w := newFakeWorld(gw)
	w.params.AvgGenTime = 10

	done := make(chan struct{})
	w.clk.Spawn(func(p *clock.Process) {
		RunGenerator(w, gw, p)
		close(done)
	})
	w.clk.RunUntil(1000)

	select {
	case <-done:
	default:
		t.Fatal("RunGenerator should return immediately for the gateway")
	}
	assert.Equal(t, uint64(0), gw.Stats.Pkts)
}

func TestRunGenerator_PeriodicIntervalProducesOnePacketPerPeriod(t *testing.T) {
	end := New(1, channel.Position{})
	w := newFakeWorld(end)
	w.params.AvgGenTime = 100
	w.params.Exponential = false

	w.clk.Spawn(func(p *clock.Process) { RunGenerator(w, end, p) })
	w.clk.RunUntil(350)

	assert.Equal(t, uint64(3), end.Stats.Pkts)
	assert.Len(t, end.TxBuffer, 3)
	for _, pkt := range end.TxBuffer {
		assert.Equal(t, packet.Data, pkt.Type)
		assert.Equal(t, GatewayID, pkt.Dst)
		assert.Equal(t, end.ID, pkt.Src)
	}
}

func TestRunGenerator_ExponentialIntervalStillUsesSharedStream(t *testing.T) {
	end := New(1, channel.Position{})
	w := newFakeWorld(end)
	w.rng = prng.New(42)
	w.params.AvgGenTime = 100
	w.params.Exponential = true

	w.clk.Spawn(func(p *clock.Process) { RunGenerator(w, end, p) })
	w.clk.RunUntil(2000)

	assert.Greater(t, end.Stats.Pkts, uint64(0))
}
