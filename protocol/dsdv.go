package protocol

import (
	"math"

	"github.com/openlora/lorasim/clock"
	"github.com/openlora/lorasim/logging"
	"github.com/openlora/lorasim/node"
	"github.com/openlora/lorasim/packet"
)

// dsdvVariant implements the reactive half of the four DSDV variants of
// spec.md §4.7: route learning from BEACON adverts, and DATA relaying
// toward the gateway. The four variants share one OnReceive/onData code
// path and differ in route-acceptance policy (acceptRoute), selected by
// tag; variant 4 also drops DATA that onData would relay back onto its own
// path.
type dsdvVariant struct {
	tag Tag
}

func newDSDVReactive(tag Tag) node.ReactiveHandler {
	return &dsdvVariant{tag: tag}
}

func (d *dsdvVariant) OnReceive(w node.World, n *node.Node, pkt *packet.Packet) {
	switch pkt.Type {
	case packet.Beacon:
		d.onBeacon(w, n, pkt)
	case packet.Data:
		d.onData(w, n, pkt)
	}
}

// onBeacon folds a neighbor's advertised distance vector into n's own
// routing table. A route learned this way is always one hop further than
// the advertiser claims, via the advertiser itself.
func (d *dsdvVariant) onBeacon(w node.World, n *node.Node, pkt *packet.Packet) {
	neighbor := pkt.TxNode
	for _, adv := range pkt.Adverts {
		if adv.Dest == n.ID {
			continue // never route to ourselves through someone else
		}
		d.acceptRoute(w, n, adv.Dest, neighbor, adv.Metric+1, adv.Seq)
	}
}

// acceptRoute applies this variant's acceptance policy for a single
// candidate route (dest, via neighbor, at metric/seq), per spec.md §4.7.
func (d *dsdvVariant) acceptRoute(w node.World, n *node.Node, dest, neighbor, metric, seq int) {
	switch d.tag {
	case DSDVPlain:
		n.Routing.UpdateRoute(dest, neighbor, metric, seq)
	case DSDVRSSIHysteresis, DSDVPathWalk, DSDVProportional:
		d.acceptRSSIGoverned(w, n, dest, neighbor, metric, seq)
	}
}

// acceptRSSIGoverned implements variants 2, 4 and 5, which all share the
// same loop-prevention/hop-limit/sequence skeleton (archive/v0.4/protocol.py's
// reactive2/reactive4/reactive5) and differ in how far the loop check looks
// (variant 4 walks the whole path) and in the final band test applied once
// a candidate has survived those checks.
func (d *dsdvVariant) acceptRSSIGoverned(w node.World, n *node.Node, dest, neighbor, metric, seq int) {
	params := w.Params()
	neighborNode := w.NodeByID(neighbor)

	// Loop prevention. Variant 4 walks the advertiser's whole path to
	// dest; variants 2 and 5 only look at its immediate next hop.
	if d.tag == DSDVPathWalk {
		if neighborNode != nil && pathContains(w, neighborNode, dest, n.ID) {
			return
		}
	} else if neighborNode != nil && neighborNode.Routing.NextDict[dest] == n.ID {
		return
	}

	curSeq, known := n.Routing.SeqDict[dest]
	if metric > params.HL {
		return
	}
	if known && seq < curSeq {
		return
	}
	if !known {
		n.Routing.UpdateRoute(dest, neighbor, metric, seq)
		return
	}

	curMetric := n.Routing.MetricDict[dest]
	curNext := n.Routing.NextDict[dest]
	avgRSSI, haveAvg := n.Routing.AvgRSSI(neighbor)
	oldAvg, haveOld := n.Routing.AvgRSSI(curNext)
	if !haveAvg || !haveOld {
		return
	}

	// The band tests below decide acceptance on their own, so an accepted
	// route is stored directly rather than re-checked by UpdateRoute's
	// plain seq/metric rule.
	setRoute := func() {
		n.Routing.DestSet[dest] = true
		n.Routing.NextDict[dest] = neighbor
		n.Routing.MetricDict[dest] = metric
		n.Routing.SeqDict[dest] = seq
	}

	if d.tag == DSDVPathWalk && len(n.Routing.RssiRec[neighbor]) < 5 {
		if avgRSSI > oldAvg {
			setRoute()
			return
		}
	}

	if d.tag == DSDVProportional {
		diff := avgRSSI - oldAvg
		if diff > params.RM2 && metric <= curMetric+int(math.Round(diff/params.RM2)) {
			setRoute()
			return
		}
		if diff > -params.RM1 && metric < curMetric {
			setRoute()
		}
		return
	}

	if metric < curMetric && avgRSSI > oldAvg-params.RM1 {
		setRoute()
		return
	}
	if metric <= curMetric+1 && avgRSSI > oldAvg+params.RM2 {
		setRoute()
	}
}

// pathContains reports whether target appears anywhere on from's current
// path to dest (from's next hop, that next hop's next hop, and so on),
// mirroring original_source/network.py's pathTo(dest). Used by variant 4's
// beacon-acceptance-time loop prevention (spec.md §8 scenario 6).
func pathContains(w node.World, from *node.Node, dest, target int) bool {
	cur := from
	visited := map[int]bool{cur.ID: true}
	for {
		nh, ok := cur.Routing.NextDict[dest]
		if !ok || visited[nh] {
			return false
		}
		if nh == target {
			return true
		}
		if nh == dest {
			return false
		}
		visited[nh] = true
		next := w.NodeByID(nh)
		if next == nil {
			return false
		}
		cur = next
	}
}

// onData handles a received DATA packet: deliver if n is the final
// destination, otherwise relay it toward the next hop, subject to the
// variant's loop-prevention policy and the packet's hop limit.
func (d *dsdvVariant) onData(w node.World, n *node.Node, pkt *packet.Packet) {
	sender := w.NodeByID(pkt.TxNode)
	if sender.Routing.NextDict[pkt.Dst] != n.ID {
		// Not who the transmitter actually meant to reach; a real radio
		// can't know that until after receiving it.
		return
	}

	if n.ID == pkt.Dst {
		src := w.NodeByID(pkt.Src)
		src.Stats.Arr++
		if src.Stats.Arr > src.Stats.Pkts {
			logging.Panicf("node %d: arr exceeded pkts after delivery", src.ID)
		}
		return
	}

	if pkt.TTL <= 0 {
		return // hop limit reached, drop silently
	}
	if !n.Routing.KnowsRoute(pkt.Dst) {
		return
	}
	nextHop := n.Routing.NextDict[pkt.Dst]

	if d.tag == DSDVPathWalk && d.inPath(pkt, nextHop) {
		// Relaying would send the packet back the way it came: drop
		// silently rather than loop it forever.
		return
	}

	relayed := pkt.Relay(n.ID)
	n.TxBuffer = append(n.TxBuffer, relayed)
	n.Stats.Relay++
}

func (d *dsdvVariant) inPath(pkt *packet.Packet, nodeID int) bool {
	if pkt.Src == nodeID {
		return true
	}
	for _, id := range pkt.Passed {
		if id == nodeID {
			return true
		}
	}
	return false
}

// beaconSeqStep is how much a node advances its own sequence number each
// time it re-advertises itself, following the DSDV convention of even
// numbers for live advertisements (spec.md §4.7 leaves broken-link odd
// sequencing as a non-goal for this simulator).
const beaconSeqStep = 2

// RunBeaconGenerator is the per-DSDV-node process that periodically
// broadcasts this node's routing table (spec.md §4.7).
func RunBeaconGenerator(w node.World, n *node.Node, p *clock.Process) {
	params := w.Params()
	for {
		p.Sleep(params.BeaconInterval)

		n.Routing.SeqDict[n.ID] += beaconSeqStep

		adverts := make([]packet.RouteAdvert, 0, len(n.Routing.DestSet))
		for dest := range n.Routing.DestSet {
			adverts = append(adverts, packet.RouteAdvert{
				Dest:   dest,
				Metric: n.Routing.MetricDict[dest],
				Seq:    n.Routing.SeqDict[dest],
			})
		}

		pkt := packet.NewPacket(
			n.NextSerial(), n.ID, -1, packet.Beacon, 0,
			packet.RadioParams{TxPower: params.TxPower, SF: params.SF, CR: params.CR, BW: params.BW, Freq: params.Freq},
			1, // beacons are never relayed
		)
		pkt.Adverts = adverts
		n.TxBuffer = append(n.TxBuffer, pkt)
	}
}
