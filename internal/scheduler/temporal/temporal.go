// Package temporal implements the temporal scheduler (C11): translates a
// set of irrigation requests into a totally-ordered sequence of gate open/
// close operations, staggered to respect canal travel time and avoid
// simultaneous large openings.
package temporal

import (
	"sort"
	"time"

	"github.com/munbon/irrigation-control/internal/hydraulics/reach"
	"github.com/munbon/irrigation-control/internal/network"
	"github.com/munbon/irrigation-control/internal/network/router"
)

const (
	openStagger  = 2 * time.Minute
	closeStagger = 5 * time.Minute
)

// Priority mirrors the irrigation request's urgency ordering; higher value
// sequences first when requests cannot run concurrently.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// Request is a single delivery target from the source to a zone.
type Request struct {
	ID          string
	Zone        string
	DestNode    string
	VolumeM3    float64
	FlowM3S     float64
	Priority    Priority
}

// Action is a single gate state change.
type Action string

const (
	ActionOpen  Action = "open"
	ActionClose Action = "close"
)

// GateOperation is a single scheduled gate action.
type GateOperation struct {
	RequestID      string
	GateID         string
	Action         Action
	OpeningPercent float64
	Time           time.Time
	Reason         string
}

// Plan sequences requests starting at startTime into a totally-ordered list
// of gate operations. Requests sharing a path prefix whose combined flow
// fits the prefix's capacity run concurrently; otherwise they are sequenced
// by descending priority.
func Plan(net *network.Network, requests []Request, startTime time.Time, openingPercentForFlow func(gateID string, flowM3S float64) float64) []GateOperation {
	ordered := append([]Request(nil), requests...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	groups := groupByPathPrefix(net, ordered)

	var ops []GateOperation
	cursor := startTime

	for _, group := range groups {
		groupOps, finishedAt := planGroup(net, group, cursor, openingPercentForFlow)
		ops = append(ops, groupOps...)
		cursor = finishedAt
	}

	return ops
}

// groupByPathPrefix buckets requests that share their first path gate and
// whose combined flow fits that gate's capacity into concurrent groups; all
// others become singleton groups, preserving priority order.
func groupByPathPrefix(net *network.Network, ordered []Request) [][]Request {
	var groups [][]Request
	used := make(map[string]bool)

	for i, r := range ordered {
		if used[r.ID] {
			continue
		}
		path := router.ShortestPath(net, net.SourceNode, r.DestNode)
		gates := router.PathGates(net, path)
		if len(gates) == 0 {
			groups = append(groups, []Request{r})
			used[r.ID] = true
			continue
		}
		firstGate := gates[0]

		group := []Request{r}
		combinedFlow := r.FlowM3S
		for j := i + 1; j < len(ordered); j++ {
			other := ordered[j]
			if used[other.ID] {
				continue
			}
			otherPath := router.ShortestPath(net, net.SourceNode, other.DestNode)
			otherGates := router.PathGates(net, otherPath)
			if len(otherGates) == 0 || otherGates[0] != firstGate {
				continue
			}
			if combinedFlow+other.FlowM3S <= net.Gates[firstGate].MaxFlowM3S {
				group = append(group, other)
				combinedFlow += other.FlowM3S
				used[other.ID] = true
			}
		}
		used[r.ID] = true
		groups = append(groups, group)
	}

	return groups
}

func planGroup(net *network.Network, group []Request, start time.Time, openingPercentForFlow func(string, float64) float64) ([]GateOperation, time.Time) {
	var ops []GateOperation
	latestClose := start

	for _, r := range group {
		path := router.ShortestPath(net, net.SourceNode, r.DestNode)
		gates := router.PathGates(net, path)

		openTime := start
		arrival := start
		for _, gateID := range gates {
			pct := openingPercentForFlow(gateID, r.FlowM3S)
			ops = append(ops, GateOperation{
				RequestID: r.ID, GateID: gateID, Action: ActionOpen,
				OpeningPercent: pct, Time: openTime,
				Reason: "deliver " + r.ID + " to " + r.Zone,
			})

			rc := net.Reaches[gateID]
			velocity := manningVelocity(rc, r.FlowM3S)
			travelTime := time.Duration(0)
			if velocity > 0 {
				travelTime = time.Duration(rc.LengthM/velocity) * time.Second
			}
			arrival = arrival.Add(travelTime)
			openTime = openTime.Add(openStagger)
		}

		runDurationHours := 0.0
		if r.FlowM3S > 0 {
			runDurationHours = r.VolumeM3 / r.FlowM3S / 3600
		}
		closeStart := arrival.Add(time.Duration(runDurationHours * float64(time.Hour)))

		closeTime := closeStart
		for i := len(gates) - 1; i >= 0; i-- {
			ops = append(ops, GateOperation{
				RequestID: r.ID, GateID: gates[i], Action: ActionClose,
				OpeningPercent: 0, Time: closeTime,
				Reason: "complete delivery " + r.ID,
			})
			closeTime = closeTime.Add(closeStagger)
		}

		if closeTime.After(latestClose) {
			latestClose = closeTime
		}
	}

	return ops, latestClose
}

func manningVelocity(r *network.Reach, flowM3S float64) float64 {
	if flowM3S <= 0 || r == nil {
		return 0
	}
	yN := reach.NormalDepth(r, flowM3S)
	a := r.BottomWidthM*yN + r.SideSlope*yN*yN
	if a == 0 {
		return 0
	}
	return flowM3S / a
}
