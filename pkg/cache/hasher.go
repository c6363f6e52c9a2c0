package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// NetworkNode is the minimal per-node information that affects a
// hydraulic solve: its identity and the gate opening (if any) controlling
// inflow to it. It is intentionally decoupled from the richer network
// topology types in internal/ so this package stays a leaf dependency.
type NetworkNode struct {
	ID          string
	GateOpening float64
}

// NetworkEdge is a canal reach between two nodes, as seen by the solver.
type NetworkEdge struct {
	From     string
	To       string
	Capacity float64
}

// NetworkSnapshot is the subset of network state the hydraulic solver's
// result depends on: topology, gate openings, and reach capacities. Two
// snapshots with the same hash are guaranteed to produce the same solve.
type NetworkSnapshot struct {
	Nodes []NetworkNode
	Edges []NetworkEdge
}

// NetworkHash computes a deterministic hash of a network snapshot for use
// as a cache key.
func NetworkHash(snap *NetworkSnapshot) string {
	if snap == nil {
		return ""
	}

	data := snapshotToCanonical(snap)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

// snapshotToCanonical builds a deterministic byte representation of a
// network snapshot, sorted so that node/edge ordering does not affect
// the resulting hash.
func snapshotToCanonical(snap *NetworkSnapshot) []byte {
	nodes := make([]NetworkNode, len(snap.Nodes))
	copy(nodes, snap.Nodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	edges := make([]NetworkEdge, len(snap.Edges))
	copy(edges, snap.Edges)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})

	var result []byte
	for _, n := range nodes {
		result = append(result, []byte(fmt.Sprintf("n:%s:%.6f;", n.ID, n.GateOpening))...)
	}
	for _, e := range edges {
		result = append(result, []byte(fmt.Sprintf("e:%s:%s:%.6f;", e.From, e.To, e.Capacity))...)
	}

	return result
}

// BuildSolveKey builds a cache key for a hydraulic solve result.
func BuildSolveKey(networkHash, mode string) string {
	return fmt.Sprintf("solve:%s:%s", mode, networkHash)
}

// BuildSolveKeyWithWeek builds a solve-result cache key scoped to a
// scheduling week, since the same network topology can be solved under
// different weekly demand scenarios.
func BuildSolveKeyWithWeek(networkHash, mode, week string) string {
	if week == "" {
		return BuildSolveKey(networkHash, mode)
	}
	return fmt.Sprintf("solve:%s:%s:%s", mode, networkHash, week)
}

// QuickHash is a general-purpose hash for arbitrary byte payloads.
func QuickHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ShortHash is a truncated, 16-character hash.
func ShortHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}
