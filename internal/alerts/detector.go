// Package alerts detects threshold violations in thermal and system
// data and deduplicates them with a per-source cooldown.
package alerts

import (
	"fmt"
	"time"

	"github.com/ecortez91/sentinel-sub001/internal/thermal"
)

// CooldownSecs is how long a (source, severity) pair stays muted after
// an alert fires for it.
const CooldownSecs = 60

// Severity ranks an alert.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "CRITICAL"
	case SeverityWarning:
		return "WARNING"
	default:
		return "INFO"
	}
}

// Alert is a single triggered detection.
type Alert struct {
	Severity  Severity  `json:"severity"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Time      time.Time `json:"time"`
}

type cooldownKey struct {
	source   string
	severity Severity
}

// Thresholds configure the detector.
type Thresholds struct {
	WarningC  float32
	CriticalC float32
}

// Detector runs detection rules against thermal snapshots and applies
// a cooldown per (source, severity) so repeated violations do not
// flood the log and notification channels.
//
// Not safe for concurrent use; the agent loop owns it.
type Detector struct {
	thresholds Thresholds
	cooldowns  map[cooldownKey]time.Time
	recent     []Alert
	now        func() time.Time
}

const maxRecent = 50

func NewDetector(t Thresholds) *Detector {
	return &Detector{
		thresholds: t,
		cooldowns:  make(map[cooldownKey]time.Time),
		now:        time.Now,
	}
}

// Analyze runs all rules against the snapshot and returns alerts that
// survived cooldown deduplication. A nil snapshot yields no alerts.
func (d *Detector) Analyze(snap *thermal.Snapshot) []Alert {
	if snap == nil {
		return nil
	}

	var raw []Alert
	d.checkSensor(&raw, "CPU Package", snap.CPUPackage)
	d.checkSensor(&raw, "GPU", snap.GPUTemp)
	d.checkSensor(&raw, "GPU Hot Spot", snap.GPUHotspot)
	for _, s := range snap.SSDTemps {
		v := s.Value
		d.checkSensor(&raw, s.Name, &v)
	}
	for _, s := range snap.MotherboardTemps {
		v := s.Value
		d.checkSensor(&raw, s.Name, &v)
	}

	out := raw[:0]
	now := d.now()
	for _, a := range raw {
		key := cooldownKey{a.Source, a.Severity}
		if last, ok := d.cooldowns[key]; ok && now.Sub(last) < CooldownSecs*time.Second {
			continue
		}
		d.cooldowns[key] = now
		a.Time = now
		out = append(out, a)
	}

	d.recent = append(d.recent, out...)
	if len(d.recent) > maxRecent {
		d.recent = d.recent[len(d.recent)-maxRecent:]
	}
	return out
}

// Recent returns the most recently fired alerts, oldest first.
func (d *Detector) Recent() []Alert {
	out := make([]Alert, len(d.recent))
	copy(out, d.recent)
	return out
}

func (d *Detector) checkSensor(alerts *[]Alert, source string, temp *float32) {
	if temp == nil {
		return
	}
	t := *temp
	switch {
	case t >= d.thresholds.CriticalC:
		*alerts = append(*alerts, Alert{
			Severity:  SeverityCritical,
			Source:    source,
			Message:   fmt.Sprintf("%s critically hot: %.1f°C", source, t),
			Value:     float64(t),
			Threshold: float64(d.thresholds.CriticalC),
		})
	case t >= d.thresholds.WarningC:
		*alerts = append(*alerts, Alert{
			Severity:  SeverityWarning,
			Source:    source,
			Message:   fmt.Sprintf("%s running hot: %.1f°C", source, t),
			Value:     float64(t),
			Threshold: float64(d.thresholds.WarningC),
		})
	}
}
