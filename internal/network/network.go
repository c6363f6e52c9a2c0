// Package network holds the irrigation network's static topology: nodes,
// gates, and canal reaches, loaded once at startup from a declarative
// topology file and immutable thereafter. Only calibration parameters on
// a Gate may change at runtime, via a calibration command.
package network

import (
	"fmt"

	"github.com/munbon/irrigation-control/pkg/apperror"
)

// GateType enumerates the physical gate mechanisms the calibrated flow
// model supports.
type GateType string

const (
	GateSluice    GateType = "sluice"
	GateRadial    GateType = "radial"
	GateOvershot  GateType = "overshot"
	GateUndershot GateType = "undershot"
)

// Node is a canal junction or reservoir.
type Node struct {
	ID                string
	InvertElevationM  float64
	SurfaceAreaM2     float64
	IsSource          bool
	FixedLevelM       float64 // meaningful only when IsSource
}

// Gate is the directed edge between two nodes that meters flow between
// them, carrying the calibrated discharge-coefficient parameters.
type Gate struct {
	ID              string
	UpstreamNode    string
	DownstreamNode  string
	Type            GateType
	WidthM          float64
	MaxOpeningM     float64
	MinOpeningM     float64
	SillElevationM  float64
	MaxFlowM3S      float64
	K1              float64
	K2              float64
	CalMinHsGo      float64
	CalMaxHsGo      float64
	SCADAID         string

	// Runtime-mutable, but not network topology: current commanded
	// opening and the most recently solved flow. Owned by the gate
	// controller registry, not mutated here.
}

// Reach is the canal geometry between the two nodes a Gate connects.
type Reach struct {
	GateID       string
	LengthM      float64
	BottomWidthM float64
	SideSlope    float64
	ManningN     float64
	BedSlope     float64
}

// Zone is a delivery area fed by one or more delivery gates.
type Zone struct {
	ID             string
	DeliveryGates  []string
	CentroidLatDeg float64
	CentroidLonDeg float64
}

// Plot is the smallest demand-bearing unit, assigned to a single
// delivery gate via its zone.
type Plot struct {
	ID           string
	ZoneID       string
	AreaRai      float64
	DeliveryGate string
}

// Network is the complete, immutable irrigation network topology.
type Network struct {
	SourceNode string
	Nodes      map[string]*Node
	Gates      map[string]*Gate
	Reaches    map[string]*Reach // keyed by GateID
	Zones      map[string]*Zone
	Plots      map[string]*Plot

	// children maps a node id to the gates whose upstream node it is,
	// i.e. the outgoing edges of the topology tree.
	children map[string][]string
	// parent maps a node id to the gate feeding it, i.e. the single
	// incoming edge in the topology tree (empty for the source).
	parent map[string]string
}

// ChildGates returns the ids of gates whose upstream node is nodeID.
func (n *Network) ChildGates(nodeID string) []string {
	return n.children[nodeID]
}

// ParentGate returns the id of the gate feeding nodeID, or "" if nodeID
// is the source.
func (n *Network) ParentGate(nodeID string) string {
	return n.parent[nodeID]
}

// Build indexes the children/parent maps and validates the tree-shaped,
// acyclic invariant from a fully populated Network.
func Build(sourceNode string, nodes map[string]*Node, gates map[string]*Gate, reaches map[string]*Reach, zones map[string]*Zone, plots map[string]*Plot) (*Network, error) {
	n := &Network{
		SourceNode: sourceNode,
		Nodes:      nodes,
		Gates:      gates,
		Reaches:    reaches,
		Zones:      zones,
		Plots:      plots,
		children:   make(map[string][]string),
		parent:     make(map[string]string),
	}

	if _, ok := nodes[sourceNode]; !ok {
		return nil, apperror.New(apperror.CodeTopologyBroken, fmt.Sprintf("source node %q not found", sourceNode))
	}
	if src := nodes[sourceNode]; !src.IsSource {
		return nil, apperror.New(apperror.CodeTopologyBroken, fmt.Sprintf("node %q is not marked as source", sourceNode))
	}

	for id, g := range gates {
		if g.UpstreamNode == g.DownstreamNode {
			return nil, apperror.New(apperror.CodeTopologyBroken, fmt.Sprintf("gate %q is a self-loop", id))
		}
		if _, ok := nodes[g.UpstreamNode]; !ok {
			return nil, apperror.New(apperror.CodeTopologyBroken, fmt.Sprintf("gate %q references unknown upstream node %q", id, g.UpstreamNode))
		}
		if _, ok := nodes[g.DownstreamNode]; !ok {
			return nil, apperror.New(apperror.CodeTopologyBroken, fmt.Sprintf("gate %q references unknown downstream node %q", id, g.DownstreamNode))
		}
		if existing, ok := n.parent[g.DownstreamNode]; ok {
			return nil, apperror.New(apperror.CodeTopologyBroken, fmt.Sprintf("node %q has two parent gates (%q and %q); network must be tree-shaped", g.DownstreamNode, existing, id))
		}
		n.parent[g.DownstreamNode] = id
		n.children[g.UpstreamNode] = append(n.children[g.UpstreamNode], id)

		if g.K1 <= 0 {
			return nil, apperror.New(apperror.CodeCorruptCalibration, fmt.Sprintf("gate %q has non-positive K1", id))
		}
		if g.K2 < -1 || g.K2 > 0 {
			return nil, apperror.New(apperror.CodeCorruptCalibration, fmt.Sprintf("gate %q has K2=%v outside [-1,0]", id, g.K2))
		}
		if g.MaxOpeningM <= 0 || g.MaxOpeningM > 5 {
			return nil, apperror.New(apperror.CodeCorruptCalibration, fmt.Sprintf("gate %q has invalid max_opening_m=%v", id, g.MaxOpeningM))
		}
		if g.WidthM <= 0 {
			return nil, apperror.New(apperror.CodeTopologyBroken, fmt.Sprintf("gate %q has non-positive width", id))
		}
	}

	for id, r := range reaches {
		if r.LengthM <= 0 || r.BottomWidthM <= 0 || r.ManningN <= 0 || r.BedSlope <= 0 {
			return nil, apperror.New(apperror.CodeTopologyBroken, fmt.Sprintf("reach %q has non-positive geometry", id))
		}
		if _, ok := gates[id]; !ok {
			return nil, apperror.New(apperror.CodeTopologyBroken, fmt.Sprintf("reach %q references unknown gate", id))
		}
	}

	if err := n.checkAcyclic(); err != nil {
		return nil, err
	}

	return n, nil
}

// checkAcyclic walks the tree from the source, failing if any node is
// unreachable (orphaned) or if a cycle is detected via a visited set.
func (n *Network) checkAcyclic() error {
	visited := make(map[string]bool, len(n.Nodes))
	stack := []string{n.SourceNode}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[id] {
			return apperror.New(apperror.CodeTopologyBroken, fmt.Sprintf("cycle detected at node %q", id))
		}
		visited[id] = true

		for _, gateID := range n.children[id] {
			stack = append(stack, n.Gates[gateID].DownstreamNode)
		}
	}

	if len(visited) != len(n.Nodes) {
		return apperror.New(apperror.CodeTopologyBroken, fmt.Sprintf("network has %d nodes unreachable from source", len(n.Nodes)-len(visited)))
	}

	return nil
}
