package thermal

import (
	"os"
	"time"
)

// Auto-shutdown state machine for thermal emergencies.
//
// State flow: Normal → Counting → GracePeriod → ShuttingDown.
// Any active state cancels back to Normal once the temperature drops
// below the critical threshold (the lower hysteresis bound), or
// whenever the machine is disabled or outside its schedule window.
//
// OFF by default and double-gated: the config flag AND the
// SENTINEL_AUTO_SHUTDOWN env flag must both be set, and both are
// evaluated exactly once at construction so a mid-run environment
// change can't silently arm or disarm the machine.

// envOptInFlag is the environment-level confirmation required on top
// of the config flag before the machine will ever arm.
const envOptInFlag = "SENTINEL_AUTO_SHUTDOWN"

// State is the closed set of shutdown machine states. Exactly one is
// current at any time; per-state payloads live on the concrete types
// so "which fields are valid" is a property of the type, not a runtime
// convention.
type State interface {
	// Label is a short human-readable name for the operator surface.
	Label() string
	// Active reports whether the state is anything other than Normal.
	Active() bool

	sealedState()
}

// Normal is the quiescent state with no thermal emergency.
type Normal struct{}

// Counting means the emergency threshold was crossed and the machine
// is counting sustained seconds before escalating.
type Counting struct {
	Since        time.Time
	RequiredSecs int
}

// GracePeriod is the final countdown before the power-off command.
type GracePeriod struct {
	Since     time.Time
	GraceSecs int
}

// ShuttingDown means the shutdown command has been issued. Terminal
// under normal operation; only Abort leaves it.
type ShuttingDown struct{}

func (Normal) Label() string       { return "Normal" }
func (Counting) Label() string     { return "Thermal Warning - Counting" }
func (GracePeriod) Label() string  { return "SHUTDOWN IMMINENT" }
func (ShuttingDown) Label() string { return "SHUTTING DOWN" }

func (Normal) Active() bool       { return false }
func (Counting) Active() bool     { return true }
func (GracePeriod) Active() bool  { return true }
func (ShuttingDown) Active() bool { return true }

func (Normal) sealedState()       {}
func (Counting) sealedState()     {}
func (GracePeriod) sealedState()  {}
func (ShuttingDown) sealedState() {}

// Event is the result of one Tick call. Consumed immediately by the
// caller; never persisted.
type Event interface {
	sealedEvent()
}

// EventNone means nothing noteworthy happened this tick.
type EventNone struct{}

// EventEmergencyStarted means the emergency threshold was crossed and
// sustained-seconds counting began.
type EventEmergencyStarted struct{}

// EventCounting reports counting progress.
type EventCounting struct {
	ElapsedSecs  int
	RequiredSecs int
}

// EventGracePeriodStarted means the sustained emergency was confirmed.
type EventGracePeriodStarted struct{}

// EventGracePeriodCountdown reports the remaining grace seconds.
type EventGracePeriodCountdown struct {
	RemainingSecs int
}

// EventShutdownNow tells the executor to power off. Re-emitted every
// tick while in ShuttingDown; the executor must tolerate repeats.
type EventShutdownNow struct{}

// EventRecovered means the machine reset to Normal.
type EventRecovered struct{}

func (EventNone) sealedEvent()                 {}
func (EventEmergencyStarted) sealedEvent()     {}
func (EventCounting) sealedEvent()             {}
func (EventGracePeriodStarted) sealedEvent()   {}
func (EventGracePeriodCountdown) sealedEvent() {}
func (EventShutdownNow) sealedEvent()          {}
func (EventRecovered) sealedEvent()            {}

// ManagerSettings is the static configuration of the state machine.
// Precondition (enforced at config load): Critical <= Emergency.
type ManagerSettings struct {
	// Config-side enable gate
	ConfigEnabled bool
	// Escalation threshold (°C)
	EmergencyThreshold float32
	// Recovery threshold (°C), the hysteresis floor
	CriticalThreshold float32
	// Seconds at emergency before the grace period
	SustainedSecs int
	// Grace period length in seconds
	GraceSecs int
	// Active window [start, end) in local hours; end of 24 runs
	// through midnight, start > end wraps past midnight
	ScheduleStartHour int
	ScheduleEndHour   int
}

// Manager owns the shutdown state machine. It is single-owner: one
// caller drives Tick sequentially, and it is not safe for concurrent
// use; serialize access externally if the operator surface needs it.
type Manager struct {
	state    State
	enabled  bool
	settings ManagerSettings
	now      func() time.Time
}

// NewManager builds the state machine. The enabled gate is computed
// here, once, from the config flag and the env opt-in.
func NewManager(settings ManagerSettings) *Manager {
	env := os.Getenv(envOptInFlag)
	return &Manager{
		state:    Normal{},
		enabled:  settings.ConfigEnabled && (env == "true" || env == "1"),
		settings: settings,
		now:      time.Now,
	}
}

// Enabled reports whether both gates were set at construction.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// State returns the current state.
func (m *Manager) State() State {
	return m.state
}

// SecondsRemaining returns the seconds until the next escalation, if
// the current state has one.
func (m *Manager) SecondsRemaining() (int, bool) {
	switch st := m.state.(type) {
	case Counting:
		return remaining(st.Since, st.RequiredSecs, m.now()), true
	case GracePeriod:
		return remaining(st.Since, st.GraceSecs, m.now()), true
	default:
		return 0, false
	}
}

func remaining(since time.Time, total int, now time.Time) int {
	left := total - int(now.Sub(since).Seconds())
	if left < 0 {
		return 0
	}
	return left
}

// inSchedule reports whether the current local hour falls inside the
// configured window.
func (m *Manager) inSchedule() bool {
	hour := m.now().Hour()
	start, end := m.settings.ScheduleStartHour, m.settings.ScheduleEndHour
	if start <= end {
		return hour >= start && hour < end
	}
	// Wraps midnight, e.g. 22..6
	return hour >= start || hour < end
}

// Tick advances the machine with the current max temperature and
// returns the event describing what happened. Must be called from a
// single owner, one call per monitoring cycle.
func (m *Manager) Tick(maxTemp float32) Event {
	if !m.enabled || !m.inSchedule() {
		// Fail safe to inactive: leaving the schedule window or being
		// disabled discards any escalation in progress, even at
		// emergency temperatures. The operator schedule always wins.
		if m.state.Active() {
			m.state = Normal{}
			return EventRecovered{}
		}
		return EventNone{}
	}

	switch st := m.state.(type) {
	case Normal:
		if maxTemp >= m.settings.EmergencyThreshold {
			m.state = Counting{Since: m.now(), RequiredSecs: m.settings.SustainedSecs}
			return EventEmergencyStarted{}
		}
		return EventNone{}

	case Counting:
		if maxTemp < m.settings.CriticalThreshold {
			m.state = Normal{}
			return EventRecovered{}
		}
		elapsed := int(m.now().Sub(st.Since).Seconds())
		if elapsed >= st.RequiredSecs {
			m.state = GracePeriod{Since: m.now(), GraceSecs: m.settings.GraceSecs}
			return EventGracePeriodStarted{}
		}
		return EventCounting{ElapsedSecs: elapsed, RequiredSecs: st.RequiredSecs}

	case GracePeriod:
		if maxTemp < m.settings.CriticalThreshold {
			m.state = Normal{}
			return EventRecovered{}
		}
		elapsed := int(m.now().Sub(st.Since).Seconds())
		if elapsed >= st.GraceSecs {
			m.state = ShuttingDown{}
			return EventShutdownNow{}
		}
		return EventGracePeriodCountdown{RemainingSecs: st.GraceSecs - elapsed}

	default: // ShuttingDown
		return EventShutdownNow{}
	}
}

// Abort force-resets to Normal from any active state. Returns whether
// a reset actually occurred. This is the only operator-initiated
// transition and works even mid-grace-period.
func (m *Manager) Abort() bool {
	if m.state.Active() {
		m.state = Normal{}
		return true
	}
	return false
}
