// Package protocol implements the proactive/reactive protocol engines of
// spec.md §4.7: p-CSMA media access shared by the DSDV variants, the DSDV
// routing variants themselves (dsdv.go), and the gateway-driven
// query-tree protocol (query.go). It is grounded on the teacher's
// radiomodel.Create(name) factory (radiomodel/radiomodel.go), generalized
// from "pick a physical radio model" to "pick a routing protocol
// variant", since both problems are "select one of several interchangeable
// strategy implementations by a short configuration tag".
package protocol

import (
	"fmt"

	"github.com/openlora/lorasim/node"
)

// Tag identifies one of spec.md §4.7's five experiment variants.
type Tag int

const (
	DSDVPlain          Tag = 1
	DSDVRSSIHysteresis Tag = 2
	QueryTree          Tag = 3
	DSDVPathWalk       Tag = 4
	DSDVProportional   Tag = 5
)

func (t Tag) String() string {
	switch t {
	case DSDVPlain:
		return "dsdv-plain"
	case DSDVRSSIHysteresis:
		return "dsdv-rssi-hysteresis"
	case QueryTree:
		return "query-tree"
	case DSDVPathWalk:
		return "dsdv-path-walk"
	case DSDVProportional:
		return "dsdv-proportional"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Select returns the proactive and reactive handler pair for a given
// experiment tag, per spec.md §4.7. It is the one place that knows about
// every variant, mirroring the teacher's radiomodel.Create switch.
func Select(tag Tag) (node.ProactiveHandler, node.ReactiveHandler, error) {
	switch tag {
	case DSDVPlain, DSDVRSSIHysteresis, DSDVPathWalk, DSDVProportional:
		return &CSMAProactive{}, newDSDVReactive(tag), nil
	case QueryTree:
		q := newQueryHandler()
		return q, q, nil
	default:
		return nil, nil, fmt.Errorf("protocol: unknown experiment tag %d", int(tag))
	}
}
