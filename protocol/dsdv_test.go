package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlora/lorasim/channel"
	"github.com/openlora/lorasim/node"
	"github.com/openlora/lorasim/packet"
)

func beaconFrom(txNode int, adverts []packet.RouteAdvert) *packet.Packet {
	pkt := packet.NewPacket(0, txNode, -1, packet.Beacon, 0, packet.RadioParams{SF: 7, BW: 125}, 1)
	pkt.TxNode = txNode
	pkt.Adverts = adverts
	return pkt
}

func TestDSDVPlain_OnBeacon_LearnsRouteOneHopFurther(t *testing.T) {
	n := node.New(1, channel.Position{})
	w := newFakeWorld(1, n)
	d := newDSDVReactive(DSDVPlain)

	pkt := beaconFrom(2, []packet.RouteAdvert{{Dest: 0, Metric: 0, Seq: 4}})
	d.OnReceive(w, n, pkt)

	assert.True(t, n.Routing.KnowsRoute(0))
	assert.Equal(t, 2, n.Routing.NextDict[0])
	assert.Equal(t, 1, n.Routing.MetricDict[0])
}

func TestDSDVPlain_OnBeacon_IgnoresSelfDestinedAdvert(t *testing.T) {
	n := node.New(1, channel.Position{})
	w := newFakeWorld(1, n)
	d := newDSDVReactive(DSDVPlain)

	pkt := beaconFrom(2, []packet.RouteAdvert{{Dest: 1, Metric: 0, Seq: 4}})
	d.OnReceive(w, n, pkt)

	// Only the seeded self-route should exist; nothing learned about node 1
	// via node 2.
	assert.Equal(t, 1, n.Routing.NextDict[1])
}

func TestDSDVRSSIHysteresis_RequiresMarginToSwitchAtEqualMetric(t *testing.T) {
	n := node.New(1, channel.Position{})
	w := newFakeWorld(1, n)
	w.params.RM1 = 2
	w.params.RM2 = 4
	d := newDSDVReactive(DSDVRSSIHysteresis).(*dsdvVariant)

	// Establish an initial route via neighbor 2 at metric 3, seq 10.
	d.acceptRoute(w, n, 0, 2, 3, 10)
	n.Routing.RecordRSSI(2, -80)
	n.Routing.RecordRSSI(3, -78) // weaker margin, below RM2

	// Same seq, same metric, via a different neighbor with an insufficient
	// RSSI advantage: should not switch.
	d.acceptRoute(w, n, 0, 3, 3, 10)
	assert.Equal(t, 2, n.Routing.NextDict[0])

	// A much stronger neighbor (advantage > RM2) should switch.
	n.Routing.RecordRSSI(4, -70)
	d.acceptRoute(w, n, 0, 4, 3, 10)
	assert.Equal(t, 4, n.Routing.NextDict[0])
}

func TestDSDVRSSIHysteresis_BetterMetricWithinRSSIMarginSwitches(t *testing.T) {
	n := node.New(1, channel.Position{})
	w := newFakeWorld(1, n)
	w.params.RM1 = 2
	w.params.RM2 = 4
	d := newDSDVReactive(DSDVRSSIHysteresis).(*dsdvVariant)

	n.Routing.RecordRSSI(2, -80)
	d.acceptRoute(w, n, 0, 2, 5, 10)

	n.Routing.RecordRSSI(3, -79) // within RM1 of neighbor 2's average
	d.acceptRoute(w, n, 0, 3, 2, 10)
	assert.Equal(t, 3, n.Routing.NextDict[0])
}

func TestDSDVRSSIHysteresis_BetterMetricButMuchWeakerRSSIRejected(t *testing.T) {
	n := node.New(1, channel.Position{})
	w := newFakeWorld(1, n)
	w.params.RM1 = 2
	w.params.RM2 = 4
	d := newDSDVReactive(DSDVRSSIHysteresis).(*dsdvVariant)

	n.Routing.RecordRSSI(2, -80)
	d.acceptRoute(w, n, 0, 2, 5, 10)

	n.Routing.RecordRSSI(3, -90) // far below old_avg - RM1 (-82)
	d.acceptRoute(w, n, 0, 3, 2, 10)
	assert.Equal(t, 2, n.Routing.NextDict[0], "a better metric via a much weaker link is still rejected")
}

func TestDSDVRSSIHysteresis_RejectsWhenAdvertiserRoutesBackThroughReceiver(t *testing.T) {
	b := node.New(2, channel.Position{})
	a := node.New(5, channel.Position{})
	a.Routing.NextDict[3] = b.ID // a's own next hop toward 3 is b itself
	w := newFakeWorld(1, b, a)
	d := newDSDVReactive(DSDVRSSIHysteresis).(*dsdvVariant)

	d.acceptRoute(w, b, 3, a.ID, 2, 10)
	assert.False(t, b.Routing.KnowsRoute(3))
}

func TestDSDVRSSIHysteresis_MultiHopLoopNotCaughtByImmediateHopCheck(t *testing.T) {
	// Variant 2's loop check only inspects the advertiser's immediate next
	// hop, unlike variant 4's full path walk below.
	b := node.New(2, channel.Position{})
	a := node.New(5, channel.Position{})
	x := node.New(7, channel.Position{})
	a.Routing.NextDict[3] = 7
	x.Routing.NextDict[3] = 2 // a's path to 3 is [7, 2, ...]: it loops through b two hops out
	w := newFakeWorld(1, b, a, x)
	d := newDSDVReactive(DSDVRSSIHysteresis).(*dsdvVariant)

	d.acceptRoute(w, b, 3, a.ID, 2, 10)
	assert.True(t, b.Routing.KnowsRoute(3))
}

func TestDSDVRSSIHysteresis_RejectsMetricBeyondHopLimit(t *testing.T) {
	n := node.New(1, channel.Position{})
	w := newFakeWorld(1, n)
	w.params.HL = 5
	d := newDSDVReactive(DSDVRSSIHysteresis).(*dsdvVariant)

	d.acceptRoute(w, n, 0, 2, 6, 10)
	assert.False(t, n.Routing.KnowsRoute(0))
}

func TestDSDVRSSIHysteresis_RejectsStaleSequenceNumber(t *testing.T) {
	n := node.New(1, channel.Position{})
	w := newFakeWorld(1, n)
	d := newDSDVReactive(DSDVRSSIHysteresis).(*dsdvVariant)

	d.acceptRoute(w, n, 0, 2, 5, 10)
	d.acceptRoute(w, n, 0, 3, 1, 9) // stale seq, even with a much better metric
	assert.Equal(t, 2, n.Routing.NextDict[0])
}

func TestDSDVPathWalk_OnBeacon_RejectsMultiHopLoop(t *testing.T) {
	b := node.New(2, channel.Position{})
	a := node.New(5, channel.Position{})
	x := node.New(7, channel.Position{})
	a.Routing.NextDict[3] = 7
	x.Routing.NextDict[3] = 2 // a's path to 3 is [7, 2, ...]: already runs through b
	w := newFakeWorld(1, b, a, x)
	d := newDSDVReactive(DSDVPathWalk).(*dsdvVariant)

	d.acceptRoute(w, b, 3, a.ID, 2, 10)
	assert.False(t, b.Routing.KnowsRoute(3), "variant 4 must walk the whole path, not just the immediate hop")
}

func TestDSDVPathWalk_OnBeacon_PermitsDivergenceBelowSampleThreshold(t *testing.T) {
	n := node.New(1, channel.Position{})
	w := newFakeWorld(1, n)
	w.params.RM1 = 2
	w.params.RM2 = 4
	d := newDSDVReactive(DSDVPathWalk).(*dsdvVariant)

	n.Routing.RecordRSSI(2, -90)
	d.acceptRoute(w, n, 0, 2, 2, 10)

	// Fewer than 5 samples for neighbor 3: a weaker-metric route is still
	// accepted as long as its average RSSI beats the current next-hop's.
	n.Routing.RecordRSSI(3, -85)
	d.acceptRoute(w, n, 0, 3, 4, 10)
	assert.Equal(t, 3, n.Routing.NextDict[0])
}

func TestDSDVPathWalk_OnBeacon_SaturatedSamplesFallBackToNormalBands(t *testing.T) {
	n := node.New(1, channel.Position{})
	w := newFakeWorld(1, n)
	w.params.RM1 = 2
	w.params.RM2 = 4
	d := newDSDVReactive(DSDVPathWalk).(*dsdvVariant)

	n.Routing.RecordRSSI(2, -90)
	d.acceptRoute(w, n, 0, 2, 2, 10)

	for i := 0; i < 5; i++ {
		n.Routing.RecordRSSI(3, -85)
	}
	d.acceptRoute(w, n, 0, 3, 4, 10) // 5 samples now: divergence escape no longer applies
	assert.Equal(t, 2, n.Routing.NextDict[0], "once saturated, the normal metric/RSSI bands apply again")
}

func TestDSDVProportional_AcceptsWorseMetricWhenRSSIDiffExceedsRM2(t *testing.T) {
	n := node.New(1, channel.Position{})
	w := newFakeWorld(1, n)
	w.params.RM1 = 2
	w.params.RM2 = 4
	d := newDSDVReactive(DSDVProportional).(*dsdvVariant)

	n.Routing.RecordRSSI(2, -90)
	d.acceptRoute(w, n, 0, 2, 2, 10)

	n.Routing.RecordRSSI(3, -80) // diff=10 > RM2(4); allowance is 2+round(10/4)=5
	d.acceptRoute(w, n, 0, 3, 5, 10)
	assert.Equal(t, 3, n.Routing.NextDict[0], "diff > RM2 permits a proportionally worse metric")
}

func TestDSDVProportional_RejectsMetricBeyondProportionalAllowance(t *testing.T) {
	n := node.New(1, channel.Position{})
	w := newFakeWorld(1, n)
	w.params.RM1 = 2
	w.params.RM2 = 4
	d := newDSDVReactive(DSDVProportional).(*dsdvVariant)

	n.Routing.RecordRSSI(2, -90)
	d.acceptRoute(w, n, 0, 2, 2, 10)

	n.Routing.RecordRSSI(3, -80) // diff=10; allowance caps at metric 5
	d.acceptRoute(w, n, 0, 3, 6, 10)
	assert.Equal(t, 2, n.Routing.NextDict[0])
}

func TestDSDVProportional_BetterMetricWithMildlyWeakerRSSIAccepted(t *testing.T) {
	n := node.New(1, channel.Position{})
	w := newFakeWorld(1, n)
	w.params.RM1 = 2
	w.params.RM2 = 4
	d := newDSDVReactive(DSDVProportional).(*dsdvVariant)

	n.Routing.RecordRSSI(2, -80)
	d.acceptRoute(w, n, 0, 2, 2, 10)

	n.Routing.RecordRSSI(3, -81) // diff=-1, within -RM1(-2)
	d.acceptRoute(w, n, 0, 3, 1, 10)
	assert.Equal(t, 3, n.Routing.NextDict[0])
}

func TestDSDVProportional_SlightlyWeakerRSSIRejectsEvenBetterMetric(t *testing.T) {
	n := node.New(1, channel.Position{})
	w := newFakeWorld(1, n)
	w.params.RM1 = 2
	w.params.RM2 = 4
	d := newDSDVReactive(DSDVProportional).(*dsdvVariant)

	n.Routing.RecordRSSI(2, -80)
	d.acceptRoute(w, n, 0, 2, 2, 10)

	n.Routing.RecordRSSI(3, -85) // diff=-5: neither diff>RM2 nor diff>-RM1
	d.acceptRoute(w, n, 0, 3, 1, 10)
	assert.Equal(t, 2, n.Routing.NextDict[0], "diff <= -RM1 rejects regardless of metric")
}

func TestDSDVPathWalk_OnData_DropsPacketThatWouldLoopBack(t *testing.T) {
	relay := node.New(2, channel.Position{})
	gw := node.New(0, channel.Position{})
	w := newFakeWorld(1, relay, gw)
	d := newDSDVReactive(DSDVPathWalk).(*dsdvVariant)

	relay.Routing.UpdateRoute(0, 0, 1, 1) // relay's route to the gateway is direct

	// A packet whose original source is the relay's own next hop (the
	// gateway) would be relayed straight back to where it came from: it
	// should be detected as a path member and dropped.
	pkt := packet.NewPacket(0, relay.ID, 0, packet.Data, 10, packet.RadioParams{SF: 7, BW: 125}, 8)
	pkt.Src = 0 // pretend the packet's original source IS the next hop we'd relay to
	pkt.TxNode = 5
	sender := node.New(5, channel.Position{})
	sender.Routing.NextDict[0] = relay.ID
	w.byID[5] = sender
	w.nodes = append(w.nodes, sender)

	before := len(relay.TxBuffer)
	d.onData(w, relay, pkt)
	assert.Equal(t, before, len(relay.TxBuffer), "relaying back toward the packet's own source should be dropped")
}

func TestDSDVPlain_OnData_DeliversToFinalDestination(t *testing.T) {
	gw := node.New(0, channel.Position{})
	sender := node.New(1, channel.Position{})
	sender.Routing.NextDict[0] = gw.ID
	sender.Stats.Pkts = 1 // the generator increments Pkts for every DATA packet it enqueues
	w := newFakeWorld(1, gw, sender)
	d := newDSDVReactive(DSDVPlain).(*dsdvVariant)

	pkt := packet.NewPacket(0, 1, 0, packet.Data, 10, packet.RadioParams{SF: 7, BW: 125}, 8)
	pkt.TxNode = 1

	d.onData(w, gw, pkt)
	require.Equal(t, uint64(1), sender.Stats.Arr, "delivery at the final destination should credit the original source's Arr counter")
}

func TestDSDVPlain_OnData_RelaysTowardUnknownDestinationDropsSilently(t *testing.T) {
	mid := node.New(1, channel.Position{})
	sender := node.New(2, channel.Position{})
	sender.Routing.NextDict[9] = mid.ID
	w := newFakeWorld(1, mid, sender)
	d := newDSDVReactive(DSDVPlain).(*dsdvVariant)

	pkt := packet.NewPacket(0, 2, 9, packet.Data, 10, packet.RadioParams{SF: 7, BW: 125}, 8)
	pkt.TxNode = 2

	d.onData(w, mid, pkt)
	assert.Empty(t, mid.TxBuffer, "no route to dest 9 means the relay should drop silently")
}

func TestDSDVPlain_OnData_HopLimitReachedDropsSilently(t *testing.T) {
	mid := node.New(1, channel.Position{})
	gw := node.New(0, channel.Position{})
	sender := node.New(2, channel.Position{})
	mid.Routing.UpdateRoute(0, gw.ID, 1, 1)
	sender.Routing.NextDict[0] = mid.ID
	w := newFakeWorld(1, mid, gw, sender)
	d := newDSDVReactive(DSDVPlain).(*dsdvVariant)

	pkt := packet.NewPacket(0, 2, 0, packet.Data, 10, packet.RadioParams{SF: 7, BW: 125}, 0)
	pkt.TxNode = 2

	d.onData(w, mid, pkt)
	assert.Empty(t, mid.TxBuffer, "a packet with no TTL left should be dropped, not relayed")
}
