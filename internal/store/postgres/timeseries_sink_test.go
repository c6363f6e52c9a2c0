package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/munbon/irrigation-control/internal/store/timeseries"
)

func TestTimeSeriesSink_WriteGateSample(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink := NewTimeSeriesSink(&pgxMockAdapter{mock: mock})

	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	sample := timeseries.GateSample{GateID: "HG-C1", RecordedAt: now, OpeningM: 0.8, FlowM3S: 1.1, UpstreamM: 9.5, DownstreamM: 8.9}

	mock.ExpectExec(`INSERT INTO gate_samples`).
		WithArgs(sample.GateID, sample.RecordedAt, sample.OpeningM, sample.FlowM3S, sample.UpstreamM, sample.DownstreamM).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, sink.WriteGateSample(context.Background(), sample))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeSeriesSink_WriteZoneVolume(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink := NewTimeSeriesSink(&pgxMockAdapter{mock: mock})

	hour := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	sample := timeseries.ZoneVolumeSample{ZoneID: "Z1", HourStart: hour, VolumeM3: 450}

	mock.ExpectExec(`INSERT INTO zone_volume_samples`).
		WithArgs(sample.ZoneID, sample.HourStart, sample.VolumeM3).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, sink.WriteZoneVolume(context.Background(), sample))
	require.NoError(t, mock.ExpectationsWereMet())
}
