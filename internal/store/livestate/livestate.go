// Package livestate wraps pkg/cache with the four key-value shapes named
// in spec.md §6.4's persisted-state layout: the active schedule pointer
// per ISO week, each team's last known location, each gate's last
// measurement, and a capped per-schedule adaptation history — the same
// typed-wrapper-over-Cache pattern pkg/cache.SolverCache uses for
// hydraulic solve results.
package livestate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/munbon/irrigation-control/pkg/cache"
)

const (
	defaultTTL            = 24 * time.Hour
	maxAdaptationHistory  = 50
)

// Store is the live-state key-value wrapper.
type Store struct {
	cache cache.Cache
}

// New builds a Store over c.
func New(c cache.Cache) *Store {
	return &Store{cache: c}
}

func activeScheduleKey(isoYear, isoWeek int) string {
	return fmt.Sprintf("active_schedule:%d:week_%d", isoYear, isoWeek)
}

func teamLocationKey(teamCode string) string {
	return "team_location:" + teamCode
}

func gateMeasurementKey(gateID string) string {
	return "gate_measurement:" + gateID
}

func adaptationHistoryKey(scheduleID string) string {
	return "adaptation_history:" + scheduleID
}

// SetActiveSchedule records scheduleID as the active schedule for an ISO
// week, the pointer Schedule CRUD's `activate` operation maintains.
func (s *Store) SetActiveSchedule(ctx context.Context, isoYear, isoWeek int, scheduleID string) error {
	return s.cache.Set(ctx, activeScheduleKey(isoYear, isoWeek), []byte(scheduleID), 0)
}

// ActiveSchedule returns the active schedule id for an ISO week, or
// cache.ErrKeyNotFound if none is active.
func (s *Store) ActiveSchedule(ctx context.Context, isoYear, isoWeek int) (string, error) {
	v, err := s.cache.Get(ctx, activeScheduleKey(isoYear, isoWeek))
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// TeamLocation is a field team's last reported position.
type TeamLocation struct {
	LatDeg     float64   `json:"lat_deg"`
	LonDeg     float64   `json:"lon_deg"`
	ObservedAt time.Time `json:"observed_at"`
}

// SetTeamLocation records teamCode's last known position, with a 24h TTL
// so a silent device does not leave a stale pin on the dispatch map.
func (s *Store) SetTeamLocation(ctx context.Context, teamCode string, loc TeamLocation) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, teamLocationKey(teamCode), data, defaultTTL)
}

// TeamLocationOf returns teamCode's last known position.
func (s *Store) TeamLocationOf(ctx context.Context, teamCode string) (TeamLocation, error) {
	var loc TeamLocation
	data, err := s.cache.Get(ctx, teamLocationKey(teamCode))
	if err != nil {
		return loc, err
	}
	err = json.Unmarshal(data, &loc)
	return loc, err
}

// GateMeasurement is a gate's last live reading, the fast-path read the
// dual-mode gate controller serves ahead of a round trip to
// internal/store/timeseries.
type GateMeasurement struct {
	OpeningM    float64   `json:"opening_m"`
	FlowM3S     float64   `json:"flow_m3s"`
	ObservedAt  time.Time `json:"observed_at"`
}

// SetGateMeasurement records gateID's last reading.
func (s *Store) SetGateMeasurement(ctx context.Context, gateID string, m GateMeasurement) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, gateMeasurementKey(gateID), data, defaultTTL)
}

// GateMeasurementOf returns gateID's last reading.
func (s *Store) GateMeasurementOf(ctx context.Context, gateID string) (GateMeasurement, error) {
	var m GateMeasurement
	data, err := s.cache.Get(ctx, gateMeasurementKey(gateID))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(data, &m)
	return m, err
}

// AdaptationEntry is one event in a schedule's recent adaptation history.
type AdaptationEntry struct {
	EventKind  string    `json:"event_kind"`
	Strategy   string    `json:"strategy"`
	ShortageM3 float64   `json:"shortage_m3"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PushAdaptation appends entry to scheduleID's adaptation history,
// trimming to the most recent maxAdaptationHistory entries — the capped
// list spec.md §6.4 names. The durable record lives in
// internal/store/postgres.AdaptationRepository; this is the fast-path
// read for a dashboard polling recent activity.
func (s *Store) PushAdaptation(ctx context.Context, scheduleID string, entry AdaptationEntry) error {
	key := adaptationHistoryKey(scheduleID)

	existing, err := s.cache.Get(ctx, key)
	var history []AdaptationEntry
	if err == nil {
		if jsonErr := json.Unmarshal(existing, &history); jsonErr != nil {
			history = nil
		}
	} else if err != cache.ErrKeyNotFound {
		return err
	}

	history = append([]AdaptationEntry{entry}, history...)
	if len(history) > maxAdaptationHistory {
		history = history[:maxAdaptationHistory]
	}

	data, err := json.Marshal(history)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, key, data, 0)
}

// AdaptationHistory returns scheduleID's recent adaptation entries,
// newest first.
func (s *Store) AdaptationHistory(ctx context.Context, scheduleID string) ([]AdaptationEntry, error) {
	data, err := s.cache.Get(ctx, adaptationHistoryKey(scheduleID))
	if err != nil {
		if err == cache.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}
	var history []AdaptationEntry
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}
