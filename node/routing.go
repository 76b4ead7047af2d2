package node

import "github.com/openlora/lorasim/logging"

// rssiHistoryLen bounds the per-neighbor RSSI history kept for the
// RSSI-hysteresis and proportional-RSSI DSDV variants (spec.md §3: "a
// bounded FIFO of recent RSSI samples").
const rssiHistoryLen = 20

// RoutingTable holds both the distance-vector state used by the DSDV
// protocol variants and the tree state used by the query-tree variant
// (spec.md §3). Every node carries both shapes. A DSDV experiment never
// touches the tree half; the query-tree variant also records its route to
// the gateway in the distance-vector maps.
type RoutingTable struct {
	// Distance-vector half (DSDV, variants 1/2/4/5).
	DestSet    map[int]bool
	NextDict   map[int]int
	MetricDict map[int]int
	SeqDict    map[int]int
	RssiRec    map[int][]float64

	// Tree half (query protocol, variant 3).
	Parent        int // -1 if none
	Hops          int
	Joined        bool
	Lrt           uint64 // last contact with parent, ms
	Childs        map[int]bool
	Qlst          []int       // this round's not-yet-queried children
	Waiting       int         // child id this node is waiting on a DATA response from, -1 if none
	Tout          map[int]int // consecutive query timeouts per child
	Resp          map[int]bool
	PendingParent int    // candidate parent id while a JOIN is outstanding, -1 if none
	LastBeacon    uint64 // virtual time this node last originated a BEACON
}

// NewRoutingTable returns a routing table seeded with the self-route
// invariant of spec.md §3: a node always knows how to reach itself, at
// distance zero, via itself.
func NewRoutingTable(selfID int) RoutingTable {
	return RoutingTable{
		DestSet:    map[int]bool{selfID: true},
		NextDict:   map[int]int{selfID: selfID},
		MetricDict: map[int]int{selfID: 0},
		SeqDict:    map[int]int{selfID: 0},
		RssiRec:    map[int][]float64{},

		Parent:        -1,
		Hops:          -1,
		Childs:        map[int]bool{},
		Qlst:          nil,
		Waiting:       -1,
		Tout:          map[int]int{},
		Resp:          map[int]bool{},
		PendingParent: -1,
	}
}

// RecordRSSI appends a fresh sample to a neighbor's bounded RSSI history,
// dropping the oldest sample once the history is full.
func (rt *RoutingTable) RecordRSSI(neighbor int, rssi float64) {
	h := rt.RssiRec[neighbor]
	h = append(h, rssi)
	if len(h) > rssiHistoryLen {
		h = h[len(h)-rssiHistoryLen:]
	}
	rt.RssiRec[neighbor] = h
}

// AvgRSSI returns the mean of a neighbor's recorded RSSI history and true,
// or 0 and false if nothing has been recorded yet.
func (rt *RoutingTable) AvgRSSI(neighbor int) (float64, bool) {
	h := rt.RssiRec[neighbor]
	if len(h) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range h {
		sum += v
	}
	return sum / float64(len(h)), true
}

// UpdateRoute applies the plain DSDV acceptance rule of spec.md §4.7: a
// route to dest via nextHop is accepted if its sequence number is newer,
// or, on a tie, if its metric is strictly better. It returns whether the
// route table changed.
func (rt *RoutingTable) UpdateRoute(dest, nextHop, metric, seq int) bool {
	curSeq, known := rt.SeqDict[dest]
	if !known {
		rt.accept(dest, nextHop, metric, seq)
		return true
	}
	if seq > curSeq {
		rt.accept(dest, nextHop, metric, seq)
		return true
	}
	if seq == curSeq && metric < rt.MetricDict[dest] {
		rt.accept(dest, nextHop, metric, seq)
		return true
	}
	return false
}

func (rt *RoutingTable) accept(dest, nextHop, metric, seq int) {
	rt.DestSet[dest] = true
	rt.NextDict[dest] = nextHop
	rt.MetricDict[dest] = metric
	rt.SeqDict[dest] = seq
}

// KnowsRoute reports whether this node currently has any route to dest.
func (rt *RoutingTable) KnowsRoute(dest int) bool {
	return rt.DestSet[dest]
}

// CheckInvariants validates the self-route invariant of spec.md §3/§8.
func (rt *RoutingTable) CheckInvariants(selfID int) {
	if !rt.DestSet[selfID] {
		logging.Panicf("node %d: routing table missing self-route", selfID)
	}
	if rt.NextDict[selfID] != selfID {
		logging.Panicf("node %d: self-route next hop is %d, want self", selfID, rt.NextDict[selfID])
	}
	if rt.MetricDict[selfID] != 0 {
		logging.Panicf("node %d: self-route metric is %d, want 0", selfID, rt.MetricDict[selfID])
	}
}
