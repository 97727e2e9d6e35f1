// Package thermal polls LibreHardwareMonitor's HTTP JSON endpoint and
// turns its vendor-defined sensor tree into structured snapshots, and
// runs the auto-shutdown state machine over the resulting temperatures.
//
// Graceful fallback: if LHM is unreachable or the JSON shape drifts,
// polling yields no snapshot and the rest of the agent carries on.
package thermal

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// lhmNode is one node in the LHM tree. The JSON is recursive: hardware
// groups, sensor categories, and leaf sensors all share this shape and
// are distinguished only by which fields are populated. Every field
// defaults to empty so schema drift degrades instead of failing.
type lhmNode struct {
	// Display text, e.g. "Intel Core i7-10700K" or "CPU Core #1: 65 °C"
	Text string `json:"Text"`
	// Child nodes (sub-hardware, sensor categories, individual sensors)
	Children []lhmNode `json:"Children"`
	// Min/Max/Value are raw strings like "65.2 °C"; present on sensors
	Min   string `json:"Min"`
	Max   string `json:"Max"`
	Value string `json:"Value"`
	// Icon path, e.g. "images/cpu.png"; unused for classification
	ImageURL string `json:"ImageURL"`
}

// Sensor category labels that scope the subtree beneath them.
var categoryLabels = map[string]bool{
	"Temperatures": true,
	"Fans":         true,
	"Voltages":     true,
	"Clocks":       true,
	"Powers":       true,
	"Load":         true,
	"Data":         true,
	"Throughput":   true,
}

// Vendor metadata leaves that look like temperature sensors but are
// limits or resolutions, not readings. Matching is case-insensitive.
var (
	noiseSubstrings = []string{
		"distance to tjmax", "tjmax",
		"sensor resolution", "sensor low", "sensor high", "sensor limit",
	}
	noisePrefixes = []string{
		"temperature warning", "temperature critical", "thermal sensor",
	}
)

// Motherboard sensor names that are CPU-socket proxy reads. These come
// through the Super I/O chip rather than the CPU die sensor and run
// hot enough to cause false emergency triggers, so they are labeled
// and kept out of MaxTemp.
var socketProxyNames = map[string]bool{
	"cpu":             true,
	"cpu temperature": true,
	"cpu (peci)":      true,
	"cpu peci":        true,
}

// Parse parses an LHM JSON document into a Snapshot. Returns nil for
// malformed JSON or a document that yields no classified sensors;
// callers treat both the same as a failed poll.
func Parse(data []byte) *Snapshot {
	var root lhmNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil
	}

	var sensors []parsedSensor
	var path []string
	collectSensors(&root, &path, new(string), &sensors)

	if len(sensors) == 0 {
		return nil
	}

	return aggregate(sensors)
}

// collectSensors walks the tree depth-first, flattening leaf sensors.
// The category is scoped to the labeled subtree: set on entry, cleared
// on the way back out.
func collectSensors(node *lhmNode, path *[]string, category *string, out *[]parsedSensor) {
	text := strings.TrimSpace(node.Text)

	isCategory := categoryLabels[text]
	if isCategory {
		*category = text
	}

	// Leaf sensor: has a raw value and no children
	if node.Value != "" && len(node.Children) == 0 {
		if value, ok := parseSensorValue(node.Value); ok {
			name := text
			if idx := strings.Index(text, ":"); idx >= 0 {
				name = strings.TrimSpace(text[:idx])
			}

			if *category != "" && !isNoiseSensor(name) {
				*out = append(*out, parsedSensor{
					hardwarePath: append([]string(nil), *path...),
					name:         name,
					value:        value,
					category:     *category,
				})
			}
		}
	}

	// Hardware grouping node: non-category, named, no value of its own
	isHardware := !isCategory && text != "" && node.Value == ""
	if isHardware {
		*path = append(*path, text)
	}

	for i := range node.Children {
		collectSensors(&node.Children[i], path, category, out)
	}

	if isHardware {
		*path = (*path)[:len(*path)-1]
	}
	if isCategory {
		*category = ""
	}
}

// parseSensorValue extracts the numeric prefix of a raw reading like
// "65.2 °C" or "1200 RPM". Empty, "-", and "N/A" mean no value.
// Decimal commas are normalized for comma-locale LHM builds.
func parseSensorValue(s string) (float32, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || s == "N/A" {
		return 0, false
	}

	end := 0
	for end < len(s) {
		c := s[end]
		if (c < '0' || c > '9') && c != '.' && c != '-' && c != ',' {
			break
		}
		end++
	}

	num := strings.ReplaceAll(s[:end], ",", ".")
	value, err := strconv.ParseFloat(num, 32)
	if err != nil {
		return 0, false
	}
	return float32(value), true
}

func isNoiseSensor(name string) bool {
	lower := strings.ToLower(name)
	for _, sub := range noiseSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	for _, prefix := range noisePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// Hardware domain classification

// Ordered heuristics over the breadcrumb path: CPU wins over GPU wins
// over storage. Not an authoritative taxonomy; vendor strings vary.

func isCPUHardware(path string) bool {
	return strings.Contains(path, "cpu") ||
		strings.Contains(path, "intel core") ||
		strings.Contains(path, "amd ryzen") ||
		strings.Contains(path, "processor")
}

func isGPUHardware(path string) bool {
	return strings.Contains(path, "gpu") ||
		strings.Contains(path, "nvidia") ||
		strings.Contains(path, "geforce") ||
		strings.Contains(path, "radeon") ||
		strings.Contains(path, "amd rx") ||
		strings.Contains(path, "intel arc")
}

func isStorageHardware(path string) bool {
	return strings.Contains(path, "ssd") ||
		strings.Contains(path, "nvme") ||
		strings.Contains(path, "samsung") ||
		strings.Contains(path, "wd ") ||
		strings.Contains(path, "western digital") ||
		strings.Contains(path, "crucial") ||
		strings.Contains(path, "kingston") ||
		strings.Contains(path, "hynix")
}

// formatStorageName prefixes a storage sensor with its drive name from
// the breadcrumb so multiple drives stay distinguishable.
func formatStorageName(path []string, sensorName string) string {
	if len(path) > 0 {
		dev := path[len(path)-1]
		if strings.ToLower(dev) != "temperatures" {
			return dev + ": " + sensorName
		}
	}
	return sensorName
}

// Aggregation

func aggregate(sensors []parsedSensor) *Snapshot {
	snap := &Snapshot{Timestamp: time.Now()}

	for i := range sensors {
		s := &sensors[i]
		nameLower := strings.ToLower(s.name)
		pathStr := strings.ToLower(strings.Join(s.hardwarePath, " "))

		switch s.category {
		case "Temperatures":
			switch {
			case isCPUHardware(pathStr):
				if s.value > snap.MaxCPUTemp {
					snap.MaxCPUTemp = s.value
				}
				if strings.Contains(nameLower, "package") || strings.Contains(nameLower, "cpu total") {
					v := s.value
					snap.CPUPackage = &v
				} else if strings.Contains(nameLower, "core") ||
					strings.Contains(nameLower, "average") ||
					strings.Contains(nameLower, "max") {
					snap.CPUCores = append(snap.CPUCores, SensorReading{Name: s.name, Value: s.value})
				}
				if s.value > snap.MaxTemp {
					snap.MaxTemp = s.value
				}

			case isGPUHardware(pathStr):
				if strings.Contains(nameLower, "hot spot") || strings.Contains(nameLower, "hotspot") {
					v := s.value
					snap.GPUHotspot = &v
				} else if strings.Contains(nameLower, "gpu") || strings.Contains(nameLower, "temperature") {
					v := s.value
					snap.GPUTemp = &v
				}
				if s.value > snap.MaxGPUTemp {
					snap.MaxGPUTemp = s.value
				}
				if s.value > snap.MaxTemp {
					snap.MaxTemp = s.value
				}

			case isStorageHardware(pathStr):
				snap.SSDTemps = append(snap.SSDTemps, SensorReading{
					Name:  formatStorageName(s.hardwarePath, s.name),
					Value: s.value,
				})
				if s.value > snap.MaxTemp {
					snap.MaxTemp = s.value
				}

			default:
				// Motherboard / chipset / other
				if socketProxyNames[nameLower] {
					// Less accurate proxy read of the CPU socket;
					// displayed, but never allowed to trigger shutdown
					snap.MotherboardTemps = append(snap.MotherboardTemps, SensorReading{
						Name:  s.name + " (socket)",
						Value: s.value,
					})
				} else {
					snap.MotherboardTemps = append(snap.MotherboardTemps, SensorReading{
						Name:  s.name,
						Value: s.value,
					})
					if s.value > snap.MaxTemp {
						snap.MaxTemp = s.value
					}
				}
			}

		case "Fans":
			snap.FanRPMs = append(snap.FanRPMs, SensorReading{Name: s.name, Value: s.value})
		}
	}

	// Sort CPU cores so "Core #9" lands before "Core #10"
	sort.SliceStable(snap.CPUCores, func(i, j int) bool {
		pi, ni := naturalSortKey(snap.CPUCores[i].Name)
		pj, nj := naturalSortKey(snap.CPUCores[j].Name)
		if pi != pj {
			return pi < pj
		}
		return ni < nj
	})

	return snap
}

// naturalSortKey splits a name at its trailing digit run so numeric
// suffixes compare as numbers.
func naturalSortKey(s string) (string, int) {
	end := len(s)
	for end > 0 && !isDigit(s[end-1]) {
		end--
	}
	if end == 0 {
		return s, 0
	}
	start := end
	for start > 0 && isDigit(s[start-1]) {
		start--
	}

	n := 0
	for i := start; i < end; i++ {
		n = n*10 + int(s[i]-'0')
	}
	return s[:start], n
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
