// Package history keeps bounded per-sensor temperature series with
// min/peak/avg statistics for the operator API.
package history

import (
	"math"
	"sort"
	"sync"
	"time"
)

// DefaultCapacity bounds each series. At a 5 second poll interval this
// covers the last ten minutes.
const DefaultCapacity = 120

// Point is one recorded reading.
type Point struct {
	Temp float64   `json:"temp"`
	Time time.Time `json:"time"`
}

// Series is a fixed-capacity ring of readings for one sensor.
type Series struct {
	points []Point
	cap    int
	min    float64
	peak   float64
}

func newSeries(capacity int) *Series {
	return &Series{
		points: make([]Point, 0, capacity),
		cap:    capacity,
		min:    math.MaxFloat64,
		peak:   -math.MaxFloat64,
	}
}

func (s *Series) push(temp float64, t time.Time) {
	p := Point{Temp: temp, Time: t}
	if len(s.points) >= s.cap {
		copy(s.points, s.points[1:])
		s.points[len(s.points)-1] = p
	} else {
		s.points = append(s.points, p)
	}
	if temp < s.min {
		s.min = temp
	}
	if temp > s.peak {
		s.peak = temp
	}
}

// Last returns the most recent reading, or 0 when empty.
func (s *Series) Last() float64 {
	if len(s.points) == 0 {
		return 0
	}
	return s.points[len(s.points)-1].Temp
}

// Min returns the lowest reading ever pushed, or 0 when empty.
func (s *Series) Min() float64 {
	if len(s.points) == 0 {
		return 0
	}
	return s.min
}

// Peak returns the highest reading ever pushed, or 0 when empty.
func (s *Series) Peak() float64 {
	if len(s.points) == 0 {
		return 0
	}
	return s.peak
}

// Avg averages the readings currently held in the ring.
func (s *Series) Avg() float64 {
	if len(s.points) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range s.points {
		sum += p.Temp
	}
	return sum / float64(len(s.points))
}

// LastN returns up to n of the most recent points, oldest first.
func (s *Series) LastN(n int) []Point {
	if n <= 0 || len(s.points) == 0 {
		return nil
	}
	start := len(s.points) - n
	if start < 0 {
		start = 0
	}
	out := make([]Point, len(s.points)-start)
	copy(out, s.points[start:])
	return out
}

// Len returns how many points the series currently holds.
func (s *Series) Len() int { return len(s.points) }

// SeriesStats is the JSON view of one sensor's history.
type SeriesStats struct {
	Sensor  string  `json:"sensor"`
	Current float64 `json:"current"`
	Min     float64 `json:"min"`
	Peak    float64 `json:"peak"`
	Avg     float64 `json:"avg"`
	Samples int     `json:"samples"`
	Points  []Point `json:"points,omitempty"`
}

// Store tracks a Series per sensor key. Safe for concurrent use: the
// poll loop records while HTTP handlers read.
type Store struct {
	mu       sync.RWMutex
	series   map[string]*Series
	capacity int
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		series:   make(map[string]*Series),
		capacity: capacity,
	}
}

// Record appends a reading for the sensor key, creating the series on
// first sight.
func (st *Store) Record(key string, temp float64, t time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.series[key]
	if !ok {
		s = newSeries(st.capacity)
		st.series[key] = s
	}
	s.push(temp, t)
}

// Stats returns a snapshot of every tracked series, sorted by sensor
// name. When points is true the raw readings are included.
func (st *Store) Stats(points bool) []SeriesStats {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]SeriesStats, 0, len(st.series))
	for key, s := range st.series {
		stat := SeriesStats{
			Sensor:  key,
			Current: s.Last(),
			Min:     s.Min(),
			Peak:    s.Peak(),
			Avg:     s.Avg(),
			Samples: s.Len(),
		}
		if points {
			stat.Points = s.LastN(s.Len())
		}
		out = append(out, stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sensor < out[j].Sensor })
	return out
}

// Get returns a stats view for one sensor key, including raw points.
func (st *Store) Get(key string) (SeriesStats, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.series[key]
	if !ok {
		return SeriesStats{}, false
	}
	return SeriesStats{
		Sensor:  key,
		Current: s.Last(),
		Min:     s.Min(),
		Peak:    s.Peak(),
		Avg:     s.Avg(),
		Samples: s.Len(),
		Points:  s.LastN(s.Len()),
	}, true
}
