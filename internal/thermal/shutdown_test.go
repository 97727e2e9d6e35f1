package thermal

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a manually-advanced clock for deterministic tick tests.
type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func makeManager(enabled bool) (*Manager, *testClock) {
	clock := &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)}
	m := &Manager{
		state:   Normal{},
		enabled: enabled,
		settings: ManagerSettings{
			EmergencyThreshold: 100.0,
			CriticalThreshold:  95.0,
			SustainedSecs:      30,
			GraceSecs:          30,
			ScheduleStartHour:  0,
			ScheduleEndHour:    24,
		},
		now: clock.now,
	}
	return m, clock
}

func TestNewManagerDoubleGate(t *testing.T) {
	defer os.Unsetenv(envOptInFlag)

	settings := ManagerSettings{ConfigEnabled: true, ScheduleEndHour: 24}

	os.Unsetenv(envOptInFlag)
	assert.False(t, NewManager(settings).Enabled(), "config alone must not arm")

	os.Setenv(envOptInFlag, "true")
	assert.True(t, NewManager(settings).Enabled())

	os.Setenv(envOptInFlag, "1")
	assert.True(t, NewManager(settings).Enabled())

	os.Setenv(envOptInFlag, "yes")
	assert.False(t, NewManager(settings).Enabled(), "only true/1 opt in")

	settings.ConfigEnabled = false
	os.Setenv(envOptInFlag, "true")
	assert.False(t, NewManager(settings).Enabled(), "env alone must not arm")
}

func TestDisabledManagerDoesNothing(t *testing.T) {
	m, _ := makeManager(false)

	assert.Equal(t, EventNone{}, m.Tick(110.0))
	assert.Equal(t, EventNone{}, m.Tick(150.0))
	assert.False(t, m.State().Active())
}

func TestNormalStaysNormalBelowEmergency(t *testing.T) {
	m, _ := makeManager(true)

	assert.Equal(t, EventNone{}, m.Tick(90.0))
	assert.Equal(t, EventNone{}, m.Tick(99.9))
	assert.False(t, m.State().Active())
}

func TestNormalToCountingAtEmergency(t *testing.T) {
	m, _ := makeManager(true)

	assert.Equal(t, EventEmergencyStarted{}, m.Tick(100.0))
	assert.True(t, m.State().Active())
}

func TestCountingProgressEvents(t *testing.T) {
	m, clock := makeManager(true)

	m.Tick(100.0)
	clock.advance(10 * time.Second)

	ev := m.Tick(101.0)
	counting, ok := ev.(EventCounting)
	require.True(t, ok)
	assert.Equal(t, 10, counting.ElapsedSecs)
	assert.Equal(t, 30, counting.RequiredSecs)
}

func TestRecoveryUsesCriticalThresholdNotEmergency(t *testing.T) {
	m, clock := makeManager(true)

	m.Tick(100.0)
	clock.advance(5 * time.Second)

	// 96°C is below emergency (100) but above critical (95):
	// still counting, hysteresis holds
	ev := m.Tick(96.0)
	_, ok := ev.(EventCounting)
	assert.True(t, ok)

	// Below critical cancels
	assert.Equal(t, EventRecovered{}, m.Tick(90.0))
	assert.False(t, m.State().Active())
}

func TestFullEscalationToShutdown(t *testing.T) {
	m, clock := makeManager(true)

	assert.Equal(t, EventEmergencyStarted{}, m.Tick(100.0))

	clock.advance(30 * time.Second)
	assert.Equal(t, EventGracePeriodStarted{}, m.Tick(101.0))

	clock.advance(10 * time.Second)
	ev := m.Tick(101.0)
	countdown, ok := ev.(EventGracePeriodCountdown)
	require.True(t, ok)
	assert.Equal(t, 20, countdown.RemainingSecs)

	clock.advance(20 * time.Second)
	assert.Equal(t, EventShutdownNow{}, m.Tick(101.0))

	// Terminal: keeps emitting ShutdownNow
	assert.Equal(t, EventShutdownNow{}, m.Tick(101.0))
	assert.Equal(t, EventShutdownNow{}, m.Tick(50.0))
	assert.Equal(t, "SHUTTING DOWN", m.State().Label())
}

func TestGracePeriodRecovery(t *testing.T) {
	m, clock := makeManager(true)

	m.Tick(100.0)
	clock.advance(30 * time.Second)
	require.Equal(t, EventGracePeriodStarted{}, m.Tick(101.0))

	// Temperature drops below critical mid-grace: cancel
	assert.Equal(t, EventRecovered{}, m.Tick(94.0))
	assert.False(t, m.State().Active())
}

func TestAbort(t *testing.T) {
	m, _ := makeManager(true)

	// No-op while Normal
	assert.False(t, m.Abort())

	m.Tick(100.0)
	assert.True(t, m.Abort())
	assert.False(t, m.State().Active())

	// Abort works even mid-grace-period
	m2, clock := makeManager(true)
	m2.Tick(100.0)
	clock.advance(30 * time.Second)
	m2.Tick(101.0)
	require.True(t, m2.State().Active())
	assert.True(t, m2.Abort())
	assert.False(t, m2.State().Active())
}

func TestScheduleWindowResetsActiveState(t *testing.T) {
	m, clock := makeManager(true)
	// Window 9-17, clock starts at noon
	m.settings.ScheduleStartHour = 9
	m.settings.ScheduleEndHour = 17

	m.Tick(100.0)
	require.True(t, m.State().Active())

	// Clock leaves the window: forced reset even at emergency temps.
	// The schedule wins over an in-progress escalation.
	clock.advance(6 * time.Hour) // 18:00
	assert.Equal(t, EventRecovered{}, m.Tick(110.0))
	assert.False(t, m.State().Active())

	// Stays inactive with only None afterwards
	assert.Equal(t, EventNone{}, m.Tick(110.0))
}

func TestScheduleWrapsMidnight(t *testing.T) {
	m, clock := makeManager(true)
	m.settings.ScheduleStartHour = 22
	m.settings.ScheduleEndHour = 6

	clock.t = time.Date(2025, 6, 1, 23, 0, 0, 0, time.Local)
	assert.True(t, m.inSchedule())

	clock.t = time.Date(2025, 6, 2, 3, 0, 0, 0, time.Local)
	assert.True(t, m.inSchedule())

	clock.t = time.Date(2025, 6, 2, 12, 0, 0, 0, time.Local)
	assert.False(t, m.inSchedule())
}

func TestScheduleEnd24MeansAlways(t *testing.T) {
	m, clock := makeManager(true)

	for hour := 0; hour < 24; hour++ {
		clock.t = time.Date(2025, 6, 1, hour, 0, 0, 0, time.Local)
		assert.True(t, m.inSchedule(), "hour %d", hour)
	}
}

func TestStateLabels(t *testing.T) {
	assert.Equal(t, "Normal", Normal{}.Label())
	assert.Equal(t, "Thermal Warning - Counting", Counting{}.Label())
	assert.Equal(t, "SHUTDOWN IMMINENT", GracePeriod{}.Label())
	assert.Equal(t, "SHUTTING DOWN", ShuttingDown{}.Label())
}

func TestSecondsRemaining(t *testing.T) {
	m, clock := makeManager(true)

	_, ok := m.SecondsRemaining()
	assert.False(t, ok, "Normal has no countdown")

	m.Tick(100.0)
	clock.advance(12 * time.Second)
	left, ok := m.SecondsRemaining()
	require.True(t, ok)
	assert.Equal(t, 18, left)

	clock.advance(time.Minute)
	left, ok = m.SecondsRemaining()
	require.True(t, ok)
	assert.Equal(t, 0, left, "never negative")
}
