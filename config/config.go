// Package config loads a YAML scenario file describing a simulation run
// (spec.md §6): node positions, radio/channel/protocol parameters, the
// experiment tag, run duration and PRNG seed. Grounded on the teacher's
// simulation/simulation_config.go field layout, re-expressed with
// gopkg.in/yaml.v3 tags in place of the teacher's Go-struct-literal
// configuration (OTNS configures simulations from Python/gRPC calls, which
// this simulator's batch/CLI driver has no equivalent of; a flat YAML file
// is the natural idiomatic-Go stand-in, matching how the rest of the
// example pack's services configure themselves).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openlora/lorasim/channel"
	"github.com/openlora/lorasim/node"
	"github.com/openlora/lorasim/protocol"
	"github.com/openlora/lorasim/sim"
)

// NodePosition is one node's fixed (x, y) coordinate (spec.md §6). The
// first entry in Scenario.Nodes is always the gateway.
type NodePosition struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Scenario is the root of a scenario YAML document.
type Scenario struct {
	Seed       int64          `yaml:"seed"`
	DurationMs uint64         `yaml:"duration_ms"`
	Protocol   int            `yaml:"protocol"` // 1..5, see protocol.Tag
	Nodes      []NodePosition `yaml:"nodes"`

	Radio struct {
		TxPower float64 `yaml:"tx_power"`
		SF      int     `yaml:"sf"`
		CR      int     `yaml:"cr"`
		BW      float64 `yaml:"bw"`
		Freq    float64 `yaml:"freq"`
		TTL     int     `yaml:"ttl"`
	} `yaml:"radio"`

	Channel struct {
		Gamma float64 `yaml:"gamma"`
		D0    float64 `yaml:"d0"`
		PLd0  float64 `yaml:"pl_d0"`
		GL    float64 `yaml:"gl"`
		Sigma float64 `yaml:"sigma"`
	} `yaml:"channel"`

	ProtocolParams struct {
		N0             int     `yaml:"n0"`
		RM1            float64 `yaml:"rm1"`
		RM2            float64 `yaml:"rm2"`
		HopLimit       int     `yaml:"hop_limit"`
		AvgGenTimeMs   float64 `yaml:"avg_gen_time_ms"`
		Exponential    bool    `yaml:"exponential"`
		QTH            uint64  `yaml:"qth"`
		RTH            uint64  `yaml:"rth"`
		CTH            uint64  `yaml:"cth"`
		BeaconInterval uint64  `yaml:"beacon_interval_ms"`
	} `yaml:"protocol_params"`
}

// Load reads and parses a scenario YAML file from path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if len(sc.Nodes) == 0 {
		return nil, fmt.Errorf("config: %s declares no nodes", path)
	}
	return &sc, nil
}

// Build turns a parsed Scenario into a sim.Config ready to pass to
// sim.New, filling in spec.md §4's defaults for anything left at zero.
func (sc *Scenario) Build() sim.Config {
	defaults := node.DefaultParams()
	chDefaults := channel.DefaultParams()

	cfg := sim.Config{
		Seed:     sc.Seed,
		Protocol: protocol.Tag(sc.Protocol),
	}

	for _, np := range sc.Nodes {
		cfg.Nodes = append(cfg.Nodes, sim.NodeSpec{X: np.X, Y: np.Y})
	}

	cfg.Channel = chDefaults
	if sc.Channel.Gamma != 0 {
		cfg.Channel.Gamma = sc.Channel.Gamma
	}
	if sc.Channel.D0 != 0 {
		cfg.Channel.D0 = sc.Channel.D0
	}
	if sc.Channel.PLd0 != 0 {
		cfg.Channel.PLd0 = sc.Channel.PLd0
	}
	cfg.Channel.GL = sc.Channel.GL
	if sc.Channel.Sigma != 0 {
		cfg.Channel.Sigma = sc.Channel.Sigma
	}

	p := defaults
	if sc.Radio.TxPower != 0 {
		p.TxPower = sc.Radio.TxPower
	}
	if sc.Radio.SF != 0 {
		p.SF = sc.Radio.SF
	}
	if sc.Radio.CR != 0 {
		p.CR = sc.Radio.CR
	}
	if sc.Radio.BW != 0 {
		p.BW = sc.Radio.BW
	}
	if sc.Radio.Freq != 0 {
		p.Freq = sc.Radio.Freq
	}
	if sc.Radio.TTL != 0 {
		p.TTL = sc.Radio.TTL
	}
	if sc.ProtocolParams.N0 != 0 {
		p.N0 = sc.ProtocolParams.N0
	}
	if sc.ProtocolParams.RM1 != 0 {
		p.RM1 = sc.ProtocolParams.RM1
	}
	if sc.ProtocolParams.RM2 != 0 {
		p.RM2 = sc.ProtocolParams.RM2
	}
	if sc.ProtocolParams.HopLimit != 0 {
		p.HL = sc.ProtocolParams.HopLimit
	}
	if sc.ProtocolParams.AvgGenTimeMs != 0 {
		p.AvgGenTime = sc.ProtocolParams.AvgGenTimeMs
	}
	p.Exponential = sc.ProtocolParams.Exponential
	if sc.ProtocolParams.QTH != 0 {
		p.QTH = sc.ProtocolParams.QTH
	}
	if sc.ProtocolParams.RTH != 0 {
		p.RTH = sc.ProtocolParams.RTH
	}
	if sc.ProtocolParams.CTH != 0 {
		p.CTH = sc.ProtocolParams.CTH
	}
	if sc.ProtocolParams.BeaconInterval != 0 {
		p.BeaconInterval = sc.ProtocolParams.BeaconInterval
	}
	cfg.Params = p

	return cfg
}
