package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apexflow/retrainctl/internal/config"
	"github.com/apexflow/retrainctl/internal/ledger"
	"github.com/apexflow/retrainctl/internal/scheduler"
)

func newTestOptimizer(t *testing.T, cfg config.OptimizerConfig) (*scheduler.Optimizer, *ledger.RetrainLog) {
	t.Helper()
	db, err := ledger.Open(":memory:")
	require.NoError(t, err)
	log := ledger.NewRetrainLog(db)
	return scheduler.New(cfg, log, zap.NewNop()), log
}

func baseConfig() config.OptimizerConfig {
	return config.OptimizerConfig{
		SeverityFloor:         0.7,
		Cooldown:              10 * time.Minute,
		MaxRetrainsPerWindow:  3,
		HighTrafficDays:       []string{"Saturday", "Sunday"},
		RetrainCountingWindow: 24 * time.Hour,
	}
}

func TestShouldTriggerSeverityFloor(t *testing.T) {
	o, _ := newTestOptimizer(t, baseConfig())
	assert.False(t, o.ShouldTrigger(context.Background(), 0.5, "drift-A"))
}

func TestShouldTriggerCooldown(t *testing.T) {
	o, log := newTestOptimizer(t, baseConfig())

	// Use a weekday so the window cap does not interfere.
	monday := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	o.WithClock(func() time.Time { return monday })

	require.NoError(t, log.Record(monday.Add(-5*time.Minute)))
	assert.False(t, o.ShouldTrigger(context.Background(), 0.9, "drift-A"))

	o.WithClock(func() time.Time { return monday.Add(10 * time.Minute) })
	assert.True(t, o.ShouldTrigger(context.Background(), 0.9, "drift-A"))
}

func TestShouldTriggerHighTrafficWindowCap(t *testing.T) {
	o, log := newTestOptimizer(t, baseConfig())

	saturday := time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)
	require.Equal(t, time.Saturday, saturday.Weekday())
	o.WithClock(func() time.Time { return saturday })

	// Three retrains already in the trailing day, all outside the cooldown.
	for _, ago := range []time.Duration{20 * time.Hour, 15 * time.Hour, 2 * time.Hour} {
		require.NoError(t, log.Record(saturday.Add(-ago)))
	}
	assert.False(t, o.ShouldTrigger(context.Background(), 0.9, "drift-A"))
}

func TestShouldTriggerRecordsApproval(t *testing.T) {
	o, log := newTestOptimizer(t, baseConfig())

	monday := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	o.WithClock(func() time.Time { return monday })

	require.True(t, o.ShouldTrigger(context.Background(), 0.9, "drift-A"))

	// The approval itself is recorded immediately, so a second attempt in
	// the cooldown window is refused even though nothing has trained yet.
	o.WithClock(func() time.Time { return monday.Add(time.Minute) })
	assert.False(t, o.ShouldTrigger(context.Background(), 0.9, "drift-B"))

	count, err := log.CountSince(monday.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestWeekdayCapDoesNotApplyOffPeak(t *testing.T) {
	o, log := newTestOptimizer(t, baseConfig())

	wednesday := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	require.Equal(t, time.Wednesday, wednesday.Weekday())
	o.WithClock(func() time.Time { return wednesday })

	for _, ago := range []time.Duration{20 * time.Hour, 15 * time.Hour, 11 * time.Minute} {
		require.NoError(t, log.Record(wednesday.Add(-ago)))
	}
	// Same history that fails on Saturday passes midweek.
	assert.True(t, o.ShouldTrigger(context.Background(), 0.9, "drift-A"))
}
