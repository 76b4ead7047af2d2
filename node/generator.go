package node

import (
	"github.com/openlora/lorasim/clock"
	"github.com/openlora/lorasim/packet"
)

// dataPayloadLen is the payload size (bytes) of a generated DATA packet
// (spec.md §4.8's `plenB=15`, distinct from the beacon's `plenC=20`).
const dataPayloadLen = 15

// RunGenerator is the per-end-device process of spec.md §4.8: it sleeps
// for an inter-arrival interval (fixed, or exponentially distributed when
// Params.Exponential is set), then enqueues one DATA packet addressed to
// the gateway and increments the node's own Pkts counter. The gateway
// itself never runs a generator.
func RunGenerator(w World, n *Node, p *clock.Process) {
	if n.IsGateway() {
		return
	}

	params := w.Params()
	for {
		var interval float64
		if params.Exponential {
			interval = w.Rand().ExpInterval(params.AvgGenTime)
		} else {
			interval = params.AvgGenTime
		}
		p.Sleep(uint64(interval))

		pkt := packet.NewPacket(
			n.NextSerial(),
			n.ID,
			GatewayID,
			packet.Data,
			dataPayloadLen,
			packet.RadioParams{
				TxPower: params.TxPower,
				SF:      params.SF,
				CR:      params.CR,
				BW:      params.BW,
				Freq:    params.Freq,
			},
			params.TTL,
		)
		n.TxBuffer = append(n.TxBuffer, pkt)
		n.Stats.Pkts++
	}
}
