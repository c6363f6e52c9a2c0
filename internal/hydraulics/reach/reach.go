// Package reach implements the trapezoidal canal reach model (C2): normal
// depth via Manning's equation and friction head loss for a known flow.
package reach

import (
	"math"

	"github.com/munbon/irrigation-control/internal/network"
)

const (
	normalDepthMinM = 0.01
	normalDepthMaxM = 10.0
	bisectionIters  = 60
)

// area returns the trapezoidal cross-sectional area at depth y.
func area(r *network.Reach, y float64) float64 {
	return r.BottomWidthM*y + r.SideSlope*y*y
}

// wettedPerimeter returns the wetted perimeter at depth y.
func wettedPerimeter(r *network.Reach, y float64) float64 {
	return r.BottomWidthM + 2*y*math.Sqrt(1+r.SideSlope*r.SideSlope)
}

// hydraulicRadius returns A/P at depth y.
func hydraulicRadius(r *network.Reach, y float64) float64 {
	p := wettedPerimeter(r, y)
	if p == 0 {
		return 0
	}
	return area(r, y) / p
}

// manningFlow returns the discharge Manning's equation predicts at depth y.
func manningFlow(r *network.Reach, y float64) float64 {
	a := area(r, y)
	rh := hydraulicRadius(r, y)
	return (1 / r.ManningN) * a * math.Pow(rh, 2.0/3.0) * math.Sqrt(r.BedSlope)
}

// NormalDepth solves Manning's equation for the depth that carries flowM3S,
// by bisection over y ∈ [0.01, 10] m.
func NormalDepth(r *network.Reach, flowM3S float64) float64 {
	if flowM3S <= 0 {
		return normalDepthMinM
	}

	lo, hi := normalDepthMinM, normalDepthMaxM
	fLo := manningFlow(r, lo) - flowM3S

	for i := 0; i < bisectionIters; i++ {
		mid := (lo + hi) / 2
		fMid := manningFlow(r, mid) - flowM3S

		if (fLo < 0) == (fMid < 0) {
			lo = mid
			fLo = fMid
		} else {
			hi = mid
		}
	}

	return (lo + hi) / 2
}

// HeadLoss computes the friction head loss over a reach carrying flowM3S,
// evaluated at its normal depth.
func HeadLoss(r *network.Reach, flowM3S float64) float64 {
	if flowM3S <= 0 {
		return 0
	}
	yN := NormalDepth(r, flowM3S)
	a := area(r, yN)
	if a == 0 {
		return 0
	}
	rh := hydraulicRadius(r, yN)
	v := flowM3S / a
	sf := math.Pow(r.ManningN*v, 2) / math.Pow(rh, 4.0/3.0)
	return sf * r.LengthM
}
