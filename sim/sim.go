// Package sim wires the clock, channel, node, and protocol packages into a
// runnable simulation (spec.md §5): it builds the node arena, selects the
// experiment's protocol handlers, spawns every node's transceiver and
// generator processes, and drives the whole thing forward in virtual
// time. Grounded on the teacher's simulation/simulation.go (construction
// and run-loop shape) and dispatcher/dispatcher.go (the single owning
// goroutine that is the only thing allowed to call Clock.RunUntil).
package sim

import (
	"fmt"
	"sort"

	"github.com/openlora/lorasim/channel"
	"github.com/openlora/lorasim/clock"
	"github.com/openlora/lorasim/node"
	"github.com/openlora/lorasim/prng"
	"github.com/openlora/lorasim/protocol"
)

// NodeSpec describes one node to place in the network (spec.md §6).
type NodeSpec struct {
	X, Y float64
}

// Config is everything needed to build and run a simulation (spec.md §6).
type Config struct {
	Seed     int64
	Nodes    []NodeSpec // index 0 is always the gateway
	Channel  channel.Params
	Params   node.Params
	Protocol protocol.Tag
}

// Simulation is a single simulation run. It implements node.World so the
// node and protocol packages can drive it without importing it back.
type Simulation struct {
	clk     *clock.Clock
	rng     *prng.Stream
	chModel *channel.Model
	params  node.Params

	nodes []*node.Node // ascending by ID, nodes[0] is the gateway
	byID  map[int]*node.Node

	proactive node.ProactiveHandler
	reactive  node.ReactiveHandler
}

// New builds a simulation from cfg: the channel model, every node (id 0
// first, as the gateway, per spec.md §3), and the protocol handler pair
// selected by cfg.Protocol.
func New(cfg Config) (*Simulation, error) {
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("sim: at least one node (the gateway) is required")
	}

	rng := prng.New(cfg.Seed)
	chModel := channel.NewModel(cfg.Channel, rng)

	params := cfg.Params
	params.QueryProtocol = cfg.Protocol == protocol.QueryTree

	s := &Simulation{
		clk:     clock.New(),
		rng:     rng,
		chModel: chModel,
		params:  params,
		byID:    map[int]*node.Node{},
	}

	for id, spec := range cfg.Nodes {
		n := node.New(id, channel.Position{X: spec.X, Y: spec.Y})
		s.nodes = append(s.nodes, n)
		s.byID[id] = n
	}

	proactive, reactive, err := protocol.Select(cfg.Protocol)
	if err != nil {
		return nil, err
	}
	s.proactive = proactive
	s.reactive = reactive

	return s, nil
}

// SpawnAll starts every node's transceiver process, and, for DSDV variants,
// its beacon generator, plus every end device's data generator. Call this
// once, before the first RunUntil.
func (s *Simulation) SpawnAll() {
	for _, n := range s.nodes {
		n := n
		s.clk.Spawn(func(p *clock.Process) { node.RunTransceiver(s, n, p) })
		if s.needsDSDVBeacons() {
			s.clk.Spawn(func(p *clock.Process) { protocol.RunBeaconGenerator(s, n, p) })
		}
		if !n.IsGateway() && s.usesDataGenerator() {
			s.clk.Spawn(func(p *clock.Process) { node.RunGenerator(s, n, p) })
		}
	}
}

func (s *Simulation) needsDSDVBeacons() bool {
	switch s.proactive.(type) {
	case *protocol.CSMAProactive:
		return true
	default:
		return false
	}
}

func (s *Simulation) usesDataGenerator() bool {
	return s.needsDSDVBeacons() // the query protocol generates DATA reactively from QUERY, not periodically
}

// RunUntil advances the simulation to virtual time t (ms).
func (s *Simulation) RunUntil(t uint64) { s.clk.RunUntil(t) }

// Nodes returns every node in the simulation.
func (s *Simulation) Nodes() []*node.Node { return s.nodes }

// --- node.World ---

func (s *Simulation) Now() uint64                      { return s.clk.Now() }
func (s *Simulation) NodeByID(id int) *node.Node       { return s.byID[id] }
func (s *Simulation) Channel() *channel.Model          { return s.chModel }
func (s *Simulation) Rand() *prng.Stream               { return s.rng }
func (s *Simulation) Params() node.Params              { return s.params }
func (s *Simulation) Proactive() node.ProactiveHandler { return s.proactive }
func (s *Simulation) Reactive() node.ReactiveHandler   { return s.reactive }
func (s *Simulation) Spawn(fn func(p *clock.Process))  { s.clk.Spawn(fn) }

// CheckInvariants validates every node-local invariant (spec.md §8). It is
// not called on every event, since it walks the whole node arena; the batch
// driver in cmd/lorasim calls it once after its run.
func (s *Simulation) CheckInvariants() {
	ids := make([]int, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		s.byID[id].CheckInvariants()
	}
}
