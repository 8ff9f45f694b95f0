package sensor

import (
	"math/rand"
	"sync"
	"time"
)

// Fake produces plausible indoor readings without hardware. Each Read drifts
// slightly from the previous value.
type Fake struct {
	mu   sync.Mutex
	rng  *rand.Rand
	last Sample
}

func NewFake() *Fake {
	return NewFakeSeeded(time.Now().UnixNano())
}

// NewFakeSeeded returns a Fake whose sequence is determined by seed.
func NewFakeSeeded(seed int64) *Fake {
	return &Fake{
		rng:  rand.New(rand.NewSource(seed)),
		last: Sample{Temperature: 21.5, Pressure: 1013.25, Humidity: 45},
	}
}

func (f *Fake) Read() (Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.last.Temperature = clamp(f.last.Temperature+f.drift(0.1), 15, 30)
	f.last.Pressure = clamp(f.last.Pressure+f.drift(0.2), 980, 1040)
	f.last.Humidity = clamp(f.last.Humidity+f.drift(0.5), 20, 80)
	return f.last, nil
}

func (f *Fake) Close() error { return nil }

func (f *Fake) drift(span float64) float64 {
	return (f.rng.Float64()*2 - 1) * span
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
