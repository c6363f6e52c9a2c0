// Package team holds the field team entity: crews that execute gate
// operations in the field, their base location, operating hours, and daily
// capacity.
package team

import "time"

// Status is a field team's current availability.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusOnRoute     Status = "on_route"
)

// TimeWindow is an inclusive-start, exclusive-end interval within a day.
type TimeWindow struct {
	Start time.Duration // offset from midnight
	End   time.Duration
}

// Team is a field crew able to execute manual gate operations.
type Team struct {
	Code                string
	BaseLatDeg          float64
	BaseLonDeg          float64
	OperatingHours      TimeWindow
	MaxOperationsPerDay int
	VehicleSpeedKMH     float64
	Capabilities        []string
	AssignedZones       []string
	Status              Status
}

// Unavailability is a recorded window during which a team cannot be
// assigned operations.
type Unavailability struct {
	TeamCode string
	From     time.Time
	Until    time.Time
	Reason   string
}

// HasCapability reports whether the team can perform the named operation
// capability.
func (t Team) HasCapability(capability string) bool {
	for _, c := range t.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// CoversZone reports whether zoneID is one of the team's assigned zones.
func (t Team) CoversZone(zoneID string) bool {
	for _, z := range t.AssignedZones {
		if z == zoneID {
			return true
		}
	}
	return false
}
