package thermal

import (
	"fmt"
	"strings"
	"time"
)

// SensorReading is a single classified sensor value, in degrees
// Celsius for temperatures and RPM for fans.
type SensorReading struct {
	Name  string  `json:"name"`
	Value float32 `json:"value"`
}

// Snapshot is one complete, immutable thermal reading assembled from a
// single poll. It is built once by the aggregator and never mutated.
type Snapshot struct {
	// When this snapshot was captured
	Timestamp time.Time `json:"timestamp"`
	// CPU package temperature, nil if the sensor is absent
	CPUPackage *float32 `json:"cpu_package,omitempty"`
	// Per-core CPU temperatures, natural-sorted by name
	CPUCores []SensorReading `json:"cpu_cores,omitempty"`
	// GPU die temperature
	GPUTemp *float32 `json:"gpu_temp,omitempty"`
	// GPU hot spot temperature
	GPUHotspot *float32 `json:"gpu_hotspot,omitempty"`
	// SSD / NVMe temperatures, names prefixed with the device
	SSDTemps []SensorReading `json:"ssd_temps,omitempty"`
	// Fan speeds in RPM
	FanRPMs []SensorReading `json:"fan_rpms,omitempty"`
	// Motherboard / chipset temperatures. Socket-proxy CPU readings
	// are kept here with a " (socket)" suffix but excluded from MaxTemp.
	MotherboardTemps []SensorReading `json:"motherboard_temps,omitempty"`
	// Maximum across all shutdown-relevant temperature sensors
	MaxTemp float32 `json:"max_temp"`
	// Maximum CPU temperature (package or hottest core)
	MaxCPUTemp float32 `json:"max_cpu_temp"`
	// Maximum GPU temperature (die or hot spot)
	MaxGPUTemp float32 `json:"max_gpu_temp"`
}

// parsedSensor is the transient flattened form a tree leaf takes
// between the walker and the aggregator.
type parsedSensor struct {
	// Breadcrumb of hardware group names down to this sensor
	hardwarePath []string
	// Sensor name from the leaf text, before any colon
	name string
	// Parsed numeric value
	value float32
	// Active category label: "Temperatures", "Fans", etc.
	category string
}

// Text formats the snapshot as a readable block for the operator
// surface.
func (s *Snapshot) Text() string {
	var b strings.Builder
	b.WriteString("=== Thermal Snapshot ===\n\n")

	if s.CPUPackage != nil || len(s.CPUCores) > 0 {
		b.WriteString("CPU:\n")
		if s.CPUPackage != nil {
			fmt.Fprintf(&b, "  Package: %.1f°C\n", *s.CPUPackage)
		}
		for _, core := range s.CPUCores {
			fmt.Fprintf(&b, "  %s: %.1f°C\n", core.Name, core.Value)
		}
		b.WriteString("\n")
	}

	if s.GPUTemp != nil || s.GPUHotspot != nil {
		b.WriteString("GPU:\n")
		if s.GPUTemp != nil {
			fmt.Fprintf(&b, "  Temperature: %.1f°C\n", *s.GPUTemp)
		}
		if s.GPUHotspot != nil {
			fmt.Fprintf(&b, "  Hot Spot: %.1f°C\n", *s.GPUHotspot)
		}
		b.WriteString("\n")
	}

	if len(s.SSDTemps) > 0 {
		b.WriteString("Storage:\n")
		for _, r := range s.SSDTemps {
			fmt.Fprintf(&b, "  %s: %.1f°C\n", r.Name, r.Value)
		}
		b.WriteString("\n")
	}

	if len(s.MotherboardTemps) > 0 {
		b.WriteString("Motherboard:\n")
		for _, r := range s.MotherboardTemps {
			fmt.Fprintf(&b, "  %s: %.1f°C\n", r.Name, r.Value)
		}
		b.WriteString("\n")
	}

	if len(s.FanRPMs) > 0 {
		b.WriteString("Fans:\n")
		for _, r := range s.FanRPMs {
			fmt.Fprintf(&b, "  %s: %.0f RPM\n", r.Name, r.Value)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Max CPU: %.1f°C\n", s.MaxCPUTemp)
	fmt.Fprintf(&b, "Max GPU: %.1f°C\n", s.MaxGPUTemp)
	fmt.Fprintf(&b, "Overall Max: %.1f°C", s.MaxTemp)

	return b.String()
}
