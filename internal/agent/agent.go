// Package agent runs the thermal safety loop: poll the hardware
// monitor, record history, detect alerts, drive the auto-shutdown
// escalation and dispatch notifications.
package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ecortez91/sentinel-sub001/internal/alerts"
	"github.com/ecortez91/sentinel-sub001/internal/history"
	"github.com/ecortez91/sentinel-sub001/internal/notify"
	"github.com/ecortez91/sentinel-sub001/internal/power"
	"github.com/ecortez91/sentinel-sub001/internal/thermal"
)

// Agent owns the poll loop. The thermal manager and detector are not
// concurrency safe, so every access goes through the agent's mutex;
// that is what lets the HTTP abort endpoint race safely with ticks.
type Agent struct {
	client       *thermal.Client
	manager      *thermal.Manager
	executor     *power.Executor
	notifier     *notify.Notifier // nil when SMTP is not configured
	detector     *alerts.Detector
	history      *history.Store
	hostname     string
	pollInterval time.Duration

	mu       sync.Mutex
	lastSnap *thermal.Snapshot
	lastPoll time.Time
	failures int
}

// Options wires the agent's collaborators.
type Options struct {
	Client       *thermal.Client
	Manager      *thermal.Manager
	Executor     *power.Executor
	Notifier     *notify.Notifier
	Detector     *alerts.Detector
	History      *history.Store
	Hostname     string
	PollInterval time.Duration
}

func New(opts Options) *Agent {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	return &Agent{
		client:       opts.Client,
		manager:      opts.Manager,
		executor:     opts.Executor,
		notifier:     opts.Notifier,
		detector:     opts.Detector,
		history:      opts.History,
		hostname:     opts.Hostname,
		pollInterval: opts.PollInterval,
	}
}

// Run polls until the context is cancelled. One poll happens
// immediately so the API has data before the first tick.
func (a *Agent) Run(ctx context.Context) {
	log.Printf("thermal agent polling %s every %s", a.client.URL(), a.pollInterval)
	if a.manager.Enabled() {
		log.Printf("auto-shutdown is ARMED")
	} else {
		log.Printf("auto-shutdown is disabled")
	}

	a.tick(ctx)

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// PollOnce runs a single poll cycle immediately.
func (a *Agent) PollOnce(ctx context.Context) {
	a.tick(ctx)
}

func (a *Agent) tick(ctx context.Context) {
	snap := a.client.Poll(ctx)

	a.mu.Lock()
	a.lastPoll = time.Now()
	if snap == nil {
		a.failures++
		failures := a.failures
		a.mu.Unlock()
		if failures == 1 || failures%12 == 0 {
			log.Printf("thermal data unavailable (%d consecutive failures)", failures)
		}
		// The escalation state machine only moves on real readings.
		// A dead sensor source must never trigger a shutdown.
		return
	}
	a.failures = 0
	a.lastSnap = snap

	a.recordHistory(snap)
	fired := a.detector.Analyze(snap)
	event := a.manager.Tick(snap.MaxTemp)
	a.mu.Unlock()

	for _, alert := range fired {
		log.Printf("[%s] %s", alert.Severity, alert.Message)
		if alert.Severity == alerts.SeverityCritical {
			a.sendAsync(notify.ThermalCritical, alert.Value)
		}
	}

	a.handleEvent(event, snap.MaxTemp)
}

func (a *Agent) recordHistory(snap *thermal.Snapshot) {
	now := snap.Timestamp
	if snap.CPUPackage != nil {
		a.history.Record("CPU Package", float64(*snap.CPUPackage), now)
	}
	if snap.GPUTemp != nil {
		a.history.Record("GPU", float64(*snap.GPUTemp), now)
	}
	if snap.GPUHotspot != nil {
		a.history.Record("GPU Hot Spot", float64(*snap.GPUHotspot), now)
	}
	for _, s := range snap.SSDTemps {
		a.history.Record(s.Name, float64(s.Value), now)
	}
	a.history.Record("Max", float64(snap.MaxTemp), now)
}

func (a *Agent) handleEvent(event thermal.Event, maxTemp float32) {
	switch e := event.(type) {
	case thermal.EventNone:

	case thermal.EventEmergencyStarted:
		log.Printf("EMERGENCY: max temp %.1f°C reached emergency threshold", maxTemp)
		a.sendAsync(notify.ThermalEmergency, float64(maxTemp))

	case thermal.EventCounting:
		log.Printf("emergency sustained %d/%d seconds at %.1f°C", e.ElapsedSecs, e.RequiredSecs, maxTemp)

	case thermal.EventGracePeriodStarted:
		log.Printf("SHUTDOWN IMMINENT: grace period started at %.1f°C", maxTemp)
		a.sendAsync(notify.ShutdownImminent, float64(maxTemp))

	case thermal.EventGracePeriodCountdown:
		log.Printf("shutdown in %d seconds unless temperature recovers or an operator aborts", e.RemainingSecs)

	case thermal.EventShutdownNow:
		log.Printf("grace period expired at %.1f°C, powering off", maxTemp)
		if err := a.executor.Shutdown(); err != nil {
			log.Printf("shutdown failed: %v", err)
		}

	case thermal.EventRecovered:
		log.Printf("temperature recovered to %.1f°C", maxTemp)
		a.sendAsync(notify.Recovered, float64(maxTemp))
	}
}

func (a *Agent) sendAsync(kind notify.EventKind, temp float64) {
	if a.notifier == nil || !a.notifier.TrySend(kind) {
		return
	}
	body := notify.AlertBody(kind, float32(temp), "System Max", a.hostname)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.notifier.Send(ctx, kind, body); err != nil {
			log.Printf("notification failed: %v", err)
		}
	}()
}

// Snapshot returns the latest thermal snapshot, or nil when no poll
// has succeeded yet.
func (a *Agent) Snapshot() *thermal.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSnap
}

// ShutdownStatus is the API view of the escalation state machine.
type ShutdownStatus struct {
	Enabled          bool      `json:"enabled"`
	State            string    `json:"state"`
	Active           bool      `json:"active"`
	SecondsRemaining *int      `json:"seconds_remaining,omitempty"`
	LastPoll         time.Time `json:"last_poll"`
	PollFailures     int       `json:"poll_failures"`
}

// Status reports the shutdown state machine and poll health.
func (a *Agent) Status() ShutdownStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := a.manager.State()
	out := ShutdownStatus{
		Enabled:      a.manager.Enabled(),
		State:        st.Label(),
		Active:       st.Active(),
		LastPoll:     a.lastPoll,
		PollFailures: a.failures,
	}
	if remaining, ok := a.manager.SecondsRemaining(); ok {
		out.SecondsRemaining = &remaining
	}
	return out
}

// Abort cancels an in-progress escalation. It returns an error when
// there is nothing to abort.
func (a *Agent) Abort() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.manager.Abort() {
		return fmt.Errorf("no shutdown in progress")
	}
	log.Printf("shutdown aborted by operator")
	return nil
}

// RecentAlerts exposes the detector's recent alert log.
func (a *Agent) RecentAlerts() []alerts.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.detector.Recent()
}

// History exposes the per-sensor temperature series store.
func (a *Agent) History() *history.Store {
	return a.history
}
