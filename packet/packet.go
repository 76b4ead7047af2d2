// Package packet implements the immutable LoRa packet model and the
// closed-form airtime function of spec.md §3 and §4.3.
package packet

import "math"

// Type identifies the role a packet plays in a protocol exchange.
type Type int

const (
	Data Type = iota
	Beacon
	Query
	Join
	Confirm
)

func (t Type) String() string {
	switch t {
	case Data:
		return "DATA"
	case Beacon:
		return "BEACON"
	case Query:
		return "QUERY"
	case Join:
		return "JOIN"
	case Confirm:
		return "CONFIRM"
	default:
		return "UNKNOWN"
	}
}

// RadioParams are the physical-layer parameters that determine airtime and
// interference behavior (spec.md §4.3, §4.5).
type RadioParams struct {
	TxPower float64 // dBm
	SF      int     // spreading factor, 7..12
	CR      int     // coding rate, 1..4
	BW      float64 // bandwidth, kHz: 125, 250 or 500
	Freq    float64 // carrier frequency, kHz
}

// Packet is a single in-flight (or queued) radio packet. Fields set at
// creation are treated as immutable; Relay (see below) never mutates an
// existing Packet, it always creates a new one. Once a packet is queued,
// only AppearTime and the RSSI map are written, when it is transmitted
// (spec.md §3); the protocol fields Adverts, Hops and ChildID are set right
// after NewPacket, before queueing.
type Packet struct {
	SN       uint64 // serial number, unique per source
	Src      int    // source node id (never changes across relays)
	Dst      int    // destination node id
	TxNode   int    // node id currently transmitting this packet instance
	Type     Type
	PayloadLen int
	Radio    RadioParams
	TTL      int

	AppearTime uint64          // set when this instance is handed to the channel
	RSSI       map[int]float64 // per-receiver RSSI, filled by the channel model
	Passed     []int           // relaying node ids, in relay order

	// Adverts carries a DSDV BEACON's distance-vector snapshot. Unused by
	// every other packet type.
	Adverts []RouteAdvert

	// Hops carries the query-tree protocol's hop count on a
	// BEACON/JOIN/CONFIRM; ChildID carries the polled child's id on a
	// QUERY. Unused by DSDV and by DATA packets.
	Hops    int
	ChildID int
}

// RouteAdvert is one destination entry in a DSDV beacon (spec.md §4.7).
type RouteAdvert struct {
	Dest   int
	Metric int
	Seq    int
}

// NewPacket creates a freshly generated (not yet relayed) packet.
func NewPacket(sn uint64, src, dst int, typ Type, payloadLen int, radio RadioParams, ttl int) *Packet {
	return &Packet{
		SN:         sn,
		Src:        src,
		Dst:        dst,
		TxNode:     src,
		Type:       typ,
		PayloadLen: payloadLen,
		Radio:      radio,
		TTL:        ttl,
		RSSI:       map[int]float64{},
	}
}

// Relay creates a new Packet instance for retransmission by relayer: it
// copies the immutable fields, decrements TTL, re-targets TxNode at the
// relayer, and records the relay in Passed. Source identity and SN are
// preserved so arrival accounting at the original source still works after
// any number of relays (spec.md §3, §9).
func (p *Packet) Relay(relayer int) *Packet {
	passed := make([]int, len(p.Passed), len(p.Passed)+1)
	copy(passed, p.Passed)
	passed = append(passed, relayer)

	return &Packet{
		SN:         p.SN,
		Src:        p.Src,
		Dst:        p.Dst,
		TxNode:     relayer,
		Type:       p.Type,
		PayloadLen: p.PayloadLen,
		Radio:      p.Radio,
		TTL:        p.TTL - 1,
		RSSI:       map[int]float64{},
		Passed:     passed,
	}
}

// symbolDuration returns Tsym in ms for the given spreading factor and
// bandwidth (bandwidth in kHz, so that 2^sf/bw is already in ms).
func symbolDuration(sf int, bw float64) float64 {
	return math.Pow(2, float64(sf)) / bw
}

// Airtime computes the total on-air duration in ms of a packet with the
// given spreading factor, bandwidth, coding rate, and payload length, per
// the closed-form LoRa airtime formula of spec.md §4.3. H=1 (implicit
// header disabled) and DE=0 (no low-data-rate optimization) are fixed, as
// in spec.md.
func Airtime(sf int, bw float64, cr int, plen int) float64 {
	const (
		h  = 1
		de = 0
	)
	tsym := symbolDuration(sf, bw)
	tpream := (8 + 4.25) * tsym

	numerator := 8*float64(plen) - 4*float64(sf) + 28 + 16 - 20*h
	denominator := 4 * (float64(sf) - 2*de)
	payloadSymbNum := math.Ceil(numerator/denominator) * float64(cr+4)
	payloadSymb := 8 + math.Max(payloadSymbNum, 0)

	return tpream + payloadSymb*tsym
}

// Airtime returns the on-air duration of this packet using its own radio
// parameters and payload length.
func (p *Packet) Airtime() float64 {
	return Airtime(p.Radio.SF, p.Radio.BW, p.Radio.CR, p.PayloadLen)
}
