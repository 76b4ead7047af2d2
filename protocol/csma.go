package protocol

import (
	"math"

	"github.com/openlora/lorasim/node"
	"github.com/openlora/lorasim/packet"
)

// csmaIdlePoll is how often a node with nothing to send re-checks its
// buffer and the channel (spec.md §4.7).
const csmaIdlePoll = 500

// CSMAProactive implements p-CSMA media access (spec.md §4.7), shared by
// every DSDV variant: a node with a packet queued and a known route to its
// destination rolls the dice against a fixed-point transmission
// probability whenever it senses the channel idle.
type CSMAProactive struct{}

func (c *CSMAProactive) OnRx(w node.World, n *node.Node) (node.Mode, uint64, uint64) {
	if !n.PhaseDone {
		n.PhaseDone = true
		return node.Rx, uint64(w.Rand().InitialPhase(5000)), 0
	}

	if len(n.TxBuffer) == 0 {
		return node.Rx, csmaIdlePoll, 0
	}

	head := n.TxBuffer[0]
	if head.Type != packet.Beacon && !n.Routing.KnowsRoute(head.Dst) {
		return node.Rx, csmaIdlePoll, 0
	}

	if len(n.RxBuffer) > 0 {
		// Carrier sensed busy.
		return node.Rx, csmaIdlePoll, 0
	}

	n0 := w.Params().N0
	if n0 < 1 {
		n0 = 1
	}
	p0 := math.Pow(1-1.0/float64(n0), float64(n0-1))
	if w.Rand().CsmaRoll() <= p0 {
		return node.Tx, 0, 0
	}
	return node.Rx, csmaIdlePoll, 0
}
