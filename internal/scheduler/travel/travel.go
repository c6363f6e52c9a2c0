// Package travel implements the travel optimizer (C8): a pure routing
// subcomponent that orders a set of waypoints into a visit sequence,
// falling back to a VRPTW-style greedy-with-windows solve when time
// windows are present.
package travel

import (
	"math"
	"time"
)

const (
	earthRadiusKM   = 6371.0
	avgSpeedKMH     = 40.0
	serviceTimePerStop = 15 * time.Minute
)

// Waypoint is a single stop: a gate to visit, located in lat/lon, with an
// optional delivery time window.
type Waypoint struct {
	ID          string
	LatDeg      float64
	LonDeg      float64
	WindowStart time.Time
	WindowEnd   time.Time
}

func (w Waypoint) hasWindow() bool {
	return !w.WindowStart.IsZero() || !w.WindowEnd.IsZero()
}

// Route is an ordered visit sequence with its aggregate cost.
type Route struct {
	Order         []string
	DistanceKM    float64
	DurationHours float64
	Efficiency    float64 // MST lower bound / route length, ∈ (0,1]
}

// haversineKM returns the great-circle distance between two points.
func haversineKM(aLat, aLon, bLat, bLon float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(bLat - aLat)
	dLon := toRad(bLon - aLon)
	lat1 := toRad(aLat)
	lat2 := toRad(bLat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKM * c
}

type point struct {
	id         string
	lat, lon   float64
}

func distanceMatrix(points []point) [][]float64 {
	n := len(points)
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
		for j := range d[i] {
			if i != j {
				d[i][j] = haversineKM(points[i].lat, points[i].lon, points[j].lat, points[j].lon)
			}
		}
	}
	return d
}

// Optimize computes a visit route for waypoints starting at depot. Uses
// cheapest-insertion + 2-opt for a plain TSP when no waypoint carries a
// time window; otherwise visits waypoints in window-start order (VRPTW),
// with no return leg to the depot.
func Optimize(depotLat, depotLon float64, waypoints []Waypoint) Route {
	if len(waypoints) == 0 {
		return Route{}
	}

	hasWindows := false
	for _, w := range waypoints {
		if w.hasWindow() {
			hasWindows = true
			break
		}
	}

	if hasWindows {
		return optimizeVRPTW(depotLat, depotLon, waypoints)
	}
	return optimizeTSP(depotLat, depotLon, waypoints)
}

func optimizeTSP(depotLat, depotLon float64, waypoints []Waypoint) Route {
	points := []point{{id: "__depot__", lat: depotLat, lon: depotLon}}
	for _, w := range waypoints {
		points = append(points, point{id: w.ID, lat: w.LatDeg, lon: w.LonDeg})
	}
	d := distanceMatrix(points)

	order := cheapestInsertion(d)
	order = twoOpt(order, d)

	length := tourLength(order, d)
	mst := mstLowerBound(d)

	efficiency := 1.0
	if length > 0 {
		efficiency = mst / length
	}

	visitOrder := make([]string, 0, len(waypoints))
	for _, idx := range order {
		if idx == 0 {
			continue
		}
		visitOrder = append(visitOrder, points[idx].id)
	}

	return Route{
		Order:         visitOrder,
		DistanceKM:    length,
		DurationHours: length/avgSpeedKMH + float64(len(waypoints))*serviceTimePerStop.Hours(),
		Efficiency:    efficiency,
	}
}

// cheapestInsertion builds a tour starting from the depot (index 0),
// inserting each remaining point where it adds the least distance.
func cheapestInsertion(d [][]float64) []int {
	n := len(d)
	if n <= 1 {
		return []int{0}
	}

	tour := []int{0, 1, 0}
	inserted := map[int]bool{0: true, 1: true}

	for len(inserted) < n {
		bestCity, bestPos, bestCost := -1, -1, math.Inf(1)
		for city := 0; city < n; city++ {
			if inserted[city] {
				continue
			}
			for pos := 0; pos < len(tour)-1; pos++ {
				a, b := tour[pos], tour[pos+1]
				cost := d[a][city] + d[city][b] - d[a][b]
				if cost < bestCost {
					bestCost, bestCity, bestPos = cost, city, pos
				}
			}
		}
		newTour := make([]int, 0, len(tour)+1)
		newTour = append(newTour, tour[:bestPos+1]...)
		newTour = append(newTour, bestCity)
		newTour = append(newTour, tour[bestPos+1:]...)
		tour = newTour
		inserted[bestCity] = true
	}

	return tour
}

// twoOpt locally improves a closed tour (first index == last index) by
// reversing segments that shorten the total length.
func twoOpt(tour []int, d [][]float64) []int {
	improved := true
	for improved {
		improved = false
		for i := 1; i < len(tour)-2; i++ {
			for j := i + 1; j < len(tour)-1; j++ {
				a, b := tour[i-1], tour[i]
				c, e := tour[j], tour[j+1]
				before := d[a][b] + d[c][e]
				after := d[a][c] + d[b][e]
				if after < before-1e-9 {
					reverse(tour, i, j)
					improved = true
				}
			}
		}
	}
	return tour
}

func reverse(s []int, i, j int) {
	for i < j {
		s[i], s[j] = s[j], s[i]
		i++
		j--
	}
}

func tourLength(tour []int, d [][]float64) float64 {
	total := 0.0
	for i := 0; i < len(tour)-1; i++ {
		total += d[tour[i]][tour[i+1]]
	}
	return total
}

// mstLowerBound computes a minimum spanning tree weight over the distance
// matrix via Prim's algorithm, used as a tour-quality lower bound.
func mstLowerBound(d [][]float64) float64 {
	n := len(d)
	if n <= 1 {
		return 0
	}
	inTree := make([]bool, n)
	minEdge := make([]float64, n)
	for i := range minEdge {
		minEdge[i] = math.Inf(1)
	}
	minEdge[0] = 0

	total := 0.0
	for range make([]struct{}, n) {
		u := -1
		best := math.Inf(1)
		for v := 0; v < n; v++ {
			if !inTree[v] && minEdge[v] < best {
				best, u = minEdge[v], v
			}
		}
		if u == -1 {
			break
		}
		inTree[u] = true
		total += best
		for v := 0; v < n; v++ {
			if !inTree[v] && d[u][v] < minEdge[v] {
				minEdge[v] = d[u][v]
			}
		}
	}
	return total
}

// optimizeVRPTW appends every waypoint in ascending window-start order. It
// does not check whether the arrival time falls inside a waypoint's window.
func optimizeVRPTW(depotLat, depotLon float64, waypoints []Waypoint) Route {
	remaining := append([]Waypoint(nil), waypoints...)
	sortByWindowStart(remaining)

	order := make([]string, 0, len(remaining))
	curLat, curLon := depotLat, depotLon
	totalKM := 0.0
	totalHours := 0.0

	for _, w := range remaining {
		leg := haversineKM(curLat, curLon, w.LatDeg, w.LonDeg)
		totalKM += leg
		totalHours += leg/avgSpeedKMH + serviceTimePerStop.Hours()
		order = append(order, w.ID)
		curLat, curLon = w.LatDeg, w.LonDeg
	}

	points := []point{{lat: depotLat, lon: depotLon}}
	for _, w := range remaining {
		points = append(points, point{lat: w.LatDeg, lon: w.LonDeg})
	}
	mst := mstLowerBound(distanceMatrix(points))

	efficiency := 1.0
	if totalKM > 0 {
		efficiency = mst / totalKM
	}

	return Route{
		Order:         order,
		DistanceKM:    totalKM,
		DurationHours: totalHours,
		Efficiency:    efficiency,
	}
}

func sortByWindowStart(ws []Waypoint) {
	for i := 1; i < len(ws); i++ {
		for j := i; j > 0 && ws[j].WindowStart.Before(ws[j-1].WindowStart); j-- {
			ws[j], ws[j-1] = ws[j-1], ws[j]
		}
	}
}
