package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWeeklyBuildTrigger_DefaultsInterval(t *testing.T) {
	trig := NewWeeklyBuildTrigger(nil, 0)
	require.Equal(t, "weekly-build-trigger", trig.Name())
	require.Equal(t, 24*time.Hour, trig.interval)
}

func TestDailyAccumulateTrigger_DefaultsInterval(t *testing.T) {
	trig := NewDailyAccumulateTrigger(nil, []string{"Z1"}, 0)
	require.Equal(t, "daily-accumulate-trigger", trig.Name())
	require.Equal(t, 24*time.Hour, trig.interval)
}
