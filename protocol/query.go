package protocol

import (
	"github.com/openlora/lorasim/clock"
	"github.com/openlora/lorasim/logging"
	"github.com/openlora/lorasim/node"
	"github.com/openlora/lorasim/packet"
)

// queryIdlePoll is how often a node with nothing queued re-checks its
// buffer (spec.md §4.7).
const queryIdlePoll = 200

// queryPayloadLen is the payload size of a query-protocol DATA response.
const queryPayloadLen = 16

// queryHandler implements both halves of the gateway-driven query-tree
// protocol (spec.md §4.7, variant 3): a single BEACON/JOIN/CONFIRM
// handshake grows a spanning tree rooted at the gateway, one hop at a
// time up to the configured hop limit; the gateway (and, by the same
// logic, every relay along the way) then polls its children in turn with
// QUERY packets and relays their DATA responses upward. It carries no
// state of its own — all of it lives in each node's RoutingTable — so one
// instance serves every node in the network.
type queryHandler struct{}

func newQueryHandler() *queryHandler { return &queryHandler{} }

// OnRx is the proactive half: any node that is part of the tree (the
// gateway, or a joined end device) periodically re-advertises itself with
// a BEACON and polls its children for data; everyone else just waits to
// hear a BEACON.
func (q *queryHandler) OnRx(w node.World, n *node.Node) (node.Mode, uint64, uint64) {
	if n.IsGateway() || n.Routing.Joined {
		q.parentTick(w, n)
	}

	if len(n.TxBuffer) == 0 {
		return node.Rx, queryIdlePoll, 0
	}
	head := n.TxBuffer[0]
	return node.Tx, 0, q.postTxDelay(head.Type)
}

func (q *queryHandler) postTxDelay(typ packet.Type) uint64 {
	switch typ {
	case packet.Beacon:
		return 0 // the next parentTick decides what's next; no forced idle
	default:
		return 0
	}
}

// parentTick is the periodic housekeeping any tree member runs: refresh
// its own BEACON advertisement, then, if no packet is already queued, poll
// the next not-yet-queried child for data.
func (q *queryHandler) parentTick(w node.World, n *node.Node) {
	if len(n.TxBuffer) > 0 {
		return
	}
	params := w.Params()
	now := w.Now()

	if now-n.Routing.LastBeacon >= params.BeaconInterval {
		n.Routing.LastBeacon = now
		n.TxBuffer = append(n.TxBuffer, q.newBeaconPacket(w, n))
		return
	}

	if len(n.Routing.Childs) == 0 {
		return
	}
	if len(n.Routing.Qlst) == 0 {
		for id := range n.Routing.Childs {
			n.Routing.Qlst = append(n.Routing.Qlst, id)
		}
	}
	if n.Routing.Waiting < 0 && len(n.Routing.Qlst) > 0 {
		childID := n.Routing.Qlst[0]
		n.Routing.Qlst = n.Routing.Qlst[1:]
		n.TxBuffer = append(n.TxBuffer, q.newQueryPacket(w, n, childID))
		n.Routing.Waiting = childID
		w.Spawn(func(p *clock.Process) { q.waitResponse(w, n, childID, p) })
	}
}

func (q *queryHandler) newBeaconPacket(w node.World, n *node.Node) *packet.Packet {
	params := w.Params()
	hops := n.Routing.Hops
	if n.IsGateway() {
		hops = 0
	}
	pkt := packet.NewPacket(n.NextSerial(), n.ID, -1, packet.Beacon, 0,
		radioOf(params), 1)
	pkt.Hops = hops
	return pkt
}

func (q *queryHandler) newQueryPacket(w node.World, n *node.Node, childID int) *packet.Packet {
	params := w.Params()
	pkt := packet.NewPacket(n.NextSerial(), n.ID, childID, packet.Query, 0, radioOf(params), 1)
	pkt.ChildID = childID
	return pkt
}

func (q *queryHandler) newJoinPacket(w node.World, n *node.Node, parentID, hops int) *packet.Packet {
	params := w.Params()
	pkt := packet.NewPacket(n.NextSerial(), n.ID, parentID, packet.Join, 0, radioOf(params), 1)
	pkt.Hops = hops
	return pkt
}

func (q *queryHandler) newConfirmPacket(w node.World, n *node.Node, childID int) *packet.Packet {
	params := w.Params()
	pkt := packet.NewPacket(n.NextSerial(), n.ID, childID, packet.Confirm, 0, radioOf(params), 1)
	pkt.Hops = n.Routing.Hops + 1
	return pkt
}

func radioOf(params node.Params) packet.RadioParams {
	return packet.RadioParams{TxPower: params.TxPower, SF: params.SF, CR: params.CR, BW: params.BW, Freq: params.Freq}
}

// OnReceive is the reactive half: it dispatches on packet type to the
// join handshake, the query/response exchange, or data relaying.
func (q *queryHandler) OnReceive(w node.World, n *node.Node, pkt *packet.Packet) {
	switch pkt.Type {
	case packet.Beacon:
		q.onBeacon(w, n, pkt)
	case packet.Join:
		q.onJoin(w, n, pkt)
	case packet.Confirm:
		q.onConfirm(w, n, pkt)
	case packet.Query:
		q.onQuery(w, n, pkt)
	case packet.Data:
		q.onData(w, n, pkt)
	}
}

// onBeacon considers joining the beacon's sender as this node's parent, if
// it isn't already better-connected and isn't mid-handshake.
func (q *queryHandler) onBeacon(w node.World, n *node.Node, pkt *packet.Packet) {
	if n.IsGateway() {
		return
	}
	params := w.Params()
	candidateHops := pkt.Hops + 1
	if candidateHops > params.HL {
		return
	}
	if n.Routing.Joined && candidateHops >= n.Routing.Hops {
		return
	}
	if n.Routing.PendingParent >= 0 {
		return
	}

	parentID := pkt.TxNode
	n.TxBuffer = append(n.TxBuffer, q.newJoinPacket(w, n, parentID, candidateHops))
	n.Routing.PendingParent = parentID
	w.Spawn(func(p *clock.Process) { q.waitConfirm(w, n, parentID, p) })
}

// onJoin admits a child, if this node is itself part of the tree.
func (q *queryHandler) onJoin(w node.World, n *node.Node, pkt *packet.Packet) {
	if !(n.IsGateway() || n.Routing.Joined) {
		return
	}
	childID := pkt.TxNode
	n.Routing.Childs[childID] = true
	delete(n.Routing.Tout, childID)
	n.TxBuffer = append(n.TxBuffer, q.newConfirmPacket(w, n, childID))
}

// onConfirm completes the join handshake: the node adopts its new parent
// and registers a forwarding route to the gateway via it, then starts a
// liveness watchdog on the relationship.
func (q *queryHandler) onConfirm(w node.World, n *node.Node, pkt *packet.Packet) {
	if n.Routing.PendingParent != pkt.TxNode {
		return
	}
	n.Routing.Parent = pkt.TxNode
	n.Routing.Hops = pkt.Hops
	n.Routing.Joined = true
	n.Routing.PendingParent = -1
	n.Routing.Lrt = w.Now()

	n.Routing.DestSet[node.GatewayID] = true
	n.Routing.NextDict[node.GatewayID] = pkt.TxNode
	n.Routing.MetricDict[node.GatewayID] = pkt.Hops

	w.Spawn(func(p *clock.Process) { q.waitQuery(w, n, p) })
}

// onQuery answers a poll from this node's parent with a freshly generated
// DATA packet.
func (q *queryHandler) onQuery(w node.World, n *node.Node, pkt *packet.Packet) {
	if n.Routing.Parent != pkt.TxNode {
		return
	}
	n.Routing.Lrt = w.Now()

	params := w.Params()
	dataPkt := packet.NewPacket(n.NextSerial(), n.ID, node.GatewayID, packet.Data,
		queryPayloadLen, radioOf(params), params.TTL)
	n.Stats.Pkts++
	n.TxBuffer = append(n.TxBuffer, dataPkt)
}

// onData delivers a DATA packet at the gateway, or relays it one hop
// closer via this node's own route to the gateway. Either way, if this
// node was itself waiting on a response from the immediate sender, that
// wait is now satisfied.
func (q *queryHandler) onData(w node.World, n *node.Node, pkt *packet.Packet) {
	sender := w.NodeByID(pkt.TxNode)
	if sender.Routing.Parent != n.ID {
		return
	}

	if n.Routing.Waiting == pkt.TxNode {
		n.Routing.Waiting = -1
		delete(n.Routing.Tout, pkt.TxNode)
	}

	if n.IsGateway() {
		src := w.NodeByID(pkt.Src)
		src.Stats.Arr++
		if src.Stats.Arr > src.Stats.Pkts {
			logging.Panicf("node %d: arr exceeded pkts after delivery", src.ID)
		}
		return
	}

	if pkt.TTL <= 0 || !n.Routing.KnowsRoute(node.GatewayID) {
		return
	}
	relayed := pkt.Relay(n.ID)
	n.TxBuffer = append(n.TxBuffer, relayed)
	n.Stats.Relay++
}

// waitResponse is spawned each time a parent polls one child; if the
// child's DATA hasn't cleared Waiting by the time RTH elapses, the poll is
// counted as a timeout, and after too many of those the child is dropped.
func (q *queryHandler) waitResponse(w node.World, n *node.Node, childID int, p *clock.Process) {
	p.Sleep(w.Params().RTH)
	if n.Routing.Waiting != childID {
		return // already answered
	}
	n.Routing.Waiting = -1
	n.Routing.Tout[childID]++
	if n.Routing.Tout[childID] > 5 {
		delete(n.Routing.Childs, childID)
		delete(n.Routing.Tout, childID)
	}
}

// waitConfirm is spawned when a node sends a JOIN; if no CONFIRM arrives
// within CTH, the attempt is abandoned and a later BEACON may retry it.
func (q *queryHandler) waitConfirm(w node.World, n *node.Node, parentID int, p *clock.Process) {
	p.Sleep(w.Params().CTH)
	if n.Routing.PendingParent == parentID {
		n.Routing.PendingParent = -1
	}
}

// waitQuery is spawned once a node joins: a recurring liveness watchdog
// that un-joins the node if its parent has gone quiet for QTH.
func (q *queryHandler) waitQuery(w node.World, n *node.Node, p *clock.Process) {
	for {
		p.Sleep(w.Params().QTH)
		if !n.Routing.Joined {
			return
		}
		if w.Now()-n.Routing.Lrt >= w.Params().QTH {
			n.Routing.Joined = false
			n.Routing.Parent = -1
			n.Routing.Hops = -1
			delete(n.Routing.DestSet, node.GatewayID)
			delete(n.Routing.NextDict, node.GatewayID)
			delete(n.Routing.MetricDict, node.GatewayID)
			return
		}
	}
}
