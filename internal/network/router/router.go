// Package router implements path enumeration and impact analysis over the
// network tree (C4): shortest/all paths, ordered gate ids along a path,
// downstream impact of a gate, and bottleneck flow. All functions are pure
// with respect to a network.Network snapshot and a level/opening state.
package router

import (
	"math"

	"github.com/munbon/irrigation-control/internal/hydraulics/gateflow"
	"github.com/munbon/irrigation-control/internal/network"
)

// Path is an ordered sequence of node ids from src to dst.
type Path []string

const maxAllPathsDepth = 64

// ShortestPath returns the unique path from src to dst in the network tree,
// taken as the first path AllPaths finds by its depth-first search. Since
// the network is a tree, "shortest" and "only" coincide; nil
// is returned when no path exists (src and dst are not on a common
// source-rooted chain).
func ShortestPath(net *network.Network, src, dst string) Path {
	paths := AllPaths(net, src, dst)
	if len(paths) == 0 {
		return nil
	}
	return paths[0]
}

// AllPaths enumerates every path from src to dst via bounded DFS. In a
// tree-shaped network there is at most one, but the signature is kept
// general for callers that reason about candidate route sets.
func AllPaths(net *network.Network, src, dst string) []Path {
	var results []Path
	var walk func(node string, trail Path, depth int)
	walk = func(node string, trail Path, depth int) {
		if depth > maxAllPathsDepth {
			return
		}
		trail = append(trail, node)
		if node == dst {
			cp := make(Path, len(trail))
			copy(cp, trail)
			results = append(results, cp)
			return
		}
		for _, gateID := range net.ChildGates(node) {
			walk(net.Gates[gateID].DownstreamNode, trail, depth+1)
		}
	}
	walk(src, nil, 0)
	return results
}

// PathGates returns the ordered gate ids traversed by path.
func PathGates(net *network.Network, path Path) []string {
	if len(path) < 2 {
		return nil
	}
	gates := make([]string, 0, len(path)-1)
	for i := 0; i < len(path)-1; i++ {
		gates = append(gates, net.ParentGate(path[i+1]))
	}
	return gates
}

// AffectedDownstream returns every node reachable from gate's downstream
// node, i.e. every delivery point whose source-to-delivery path includes
// gate.
func AffectedDownstream(net *network.Network, gateID string) []string {
	gate, ok := net.Gates[gateID]
	if !ok {
		return nil
	}

	var affected []string
	var walk func(node string)
	walk = func(node string) {
		affected = append(affected, node)
		for _, childGate := range net.ChildGates(node) {
			walk(net.Gates[childGate].DownstreamNode)
		}
	}
	walk(gate.DownstreamNode)
	return affected
}

// BottleneckFlowM3S returns the minimum admissible flow along path given
// current openings and levels: the smallest of each gate's
// opening_fraction·max_flow_m3s, further clipped by each gate's own orifice
// flow at the supplied levels.
func BottleneckFlowM3S(net *network.Network, path Path, openingM, levelM map[string]float64) float64 {
	gates := PathGates(net, path)
	if len(gates) == 0 {
		return 0
	}

	bottleneck := math.Inf(1)
	for _, gateID := range gates {
		g := net.Gates[gateID]

		openingFraction := 0.0
		if g.MaxOpeningM > 0 {
			openingFraction = openingM[gateID] / g.MaxOpeningM
		}
		capacity := openingFraction * g.MaxFlowM3S
		if capacity < bottleneck {
			bottleneck = capacity
		}

		orifice := gateflow.Compute(g, levelM[g.UpstreamNode], levelM[g.DownstreamNode], openingM[gateID]).FlowM3S
		if orifice < bottleneck {
			bottleneck = orifice
		}
	}
	if math.IsInf(bottleneck, 1) {
		return 0
	}
	return bottleneck
}
